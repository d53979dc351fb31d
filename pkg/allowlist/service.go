package allowlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garnet-sec/garnet/internal/metrics"
	"github.com/garnet-sec/garnet/pkg/store"
)

// DefaultTTL is how long a cached allow-list snapshot stays fresh.
const DefaultTTL = 5 * time.Minute

// Lookup is the result of an allow-list decision for one email.
type Lookup struct {
	// Allowed is true only when an active entry exists.
	Allowed bool
	// Entry is the matching row, nil when no row exists.
	Entry *store.Entry
	// Reason explains a denial: "not_found" or "inactive". Empty when
	// Allowed is true.
	Reason string
}

// Service answers allow-list decisions and applies admin mutations.
// Reads go through the cache; every successful write invalidates the
// written email so the next read observes committed state.
type Service struct {
	store  *store.Store
	cache  Cache
	logger *slog.Logger
}

// NewService constructs a Service. A nil cache gets a DefaultTTL
// in-memory cache; a nil logger gets slog.Default().
func NewService(st *store.Store, cache Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NewMemoryCache(DefaultTTL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, cache: cache, logger: logger}
}

// IsEmailAllowed decides whether email may access the system. The input
// is normalized before lookup. A missing or revoked entry is a denial
// with a Reason, not an error; a non-nil error means the store could not
// answer and the caller must deny.
func (s *Service) IsEmailAllowed(ctx context.Context, email string) (*Lookup, error) {
	email = Normalize(email)

	if entry, ok := s.cache.Get(email); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return lookupFromEntry(entry), nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	entry, err := s.store.GetEntry(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return &Lookup{Allowed: false, Reason: "not_found"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("allowlist lookup for %s: %w", email, err)
	}

	s.cache.Set(email, entry)
	return lookupFromEntry(entry), nil
}

func lookupFromEntry(entry *store.Entry) *Lookup {
	l := &Lookup{Allowed: entry.Active, Entry: entry}
	if !entry.Active {
		l.Reason = "inactive"
	}
	return l
}

// AddUser creates or updates an allow-list entry. An existing row keeps
// its active flag and created_at; display name, role, and invited_by are
// overwritten. New rows start active.
func (s *Service) AddUser(ctx context.Context, email, displayName, role, invitedBy string) error {
	email = Normalize(email)
	invitedBy = Normalize(invitedBy)

	if err := s.store.UpsertEntry(ctx, email, displayName, role, invitedBy); err != nil {
		return err
	}
	s.cache.Invalidate(email)
	s.logger.Info("allowlist entry upserted", "email", email, "role", role, "invited_by", invitedBy)
	return nil
}

// RemoveUser hard-deletes an allow-list entry.
// Returns store.ErrNotFound if no entry exists.
func (s *Service) RemoveUser(ctx context.Context, email string) error {
	email = Normalize(email)

	if err := s.store.DeleteEntry(ctx, email); err != nil {
		return err
	}
	s.cache.Invalidate(email)
	s.logger.Info("allowlist entry removed", "email", email)
	return nil
}

// ToggleUserStatus atomically flips an entry's active flag and returns
// the resulting value. Returns store.ErrNotFound if no entry exists.
func (s *Service) ToggleUserStatus(ctx context.Context, email string) (bool, error) {
	email = Normalize(email)

	active, err := s.store.ToggleEntry(ctx, email)
	if err != nil {
		return false, err
	}
	s.cache.Invalidate(email)
	s.logger.Info("allowlist entry toggled", "email", email, "active", active)
	return active, nil
}

// GetAllUsers returns every allow-list entry, newest-created first.
func (s *Service) GetAllUsers(ctx context.Context) ([]*store.Entry, error) {
	return s.store.ListEntries(ctx)
}

// SearchUsers returns entries whose email or display name contains term,
// case-insensitively.
func (s *Service) SearchUsers(ctx context.Context, term string) ([]*store.Entry, error) {
	return s.store.SearchEntries(ctx, term)
}
