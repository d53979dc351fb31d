package audit

import (
	"context"
	"log/slog"

	"github.com/garnet-sec/garnet/internal/metrics"
	"github.com/garnet-sec/garnet/pkg/store"
)

// Recorder appends events to the audit log. Recording is best-effort:
// a failed write is logged and counted but never propagated, so an
// audit outage cannot block or fail the caller's decision.
type Recorder struct {
	store  *store.Store
	logger *slog.Logger
}

// NewRecorder constructs a Recorder. A nil logger gets slog.Default().
func NewRecorder(st *store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: st, logger: logger}
}

// Record appends ev to the audit log.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	entry := &store.AuditEntry{
		Event:     string(ev.Type),
		IP:        ev.IP,
		UserAgent: ev.UserAgent,
		Details:   ev.Details,
	}
	if ev.Email != "" {
		entry.Email = &ev.Email
	}
	if ev.Path != "" {
		entry.Path = &ev.Path
	}

	if _, err := r.store.InsertAuditEntry(ctx, entry); err != nil {
		metrics.AuditWriteFailures.Inc()
		r.logger.Error("failed to write audit entry",
			"event", ev.Type, "email", ev.Email, "error", err)
	}
}
