// Package idp talks to the external identity provider. The provider owns
// authentication end to end; this client only asks "who is making this
// request" and treats every provider failure as no identity.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionCookie is the cookie the provider sets after login and the one
// we forward on verification calls.
const SessionCookie = "garnet_session"

// Identity is who the provider says is making a request.
type Identity struct {
	SessionID   string
	Email       string // may be empty when the claim set lacks one
	DisplayName string
}

// Profile is the provider's directory record for a session's user, used
// as a secondary email source when the token claims lack one.
type Profile struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Client resolves request identities against the provider. A nil
// Identity with a nil error means no valid session; a non-nil error
// means the provider could not answer. Callers treat both as
// unauthenticated.
type Client interface {
	VerifySession(ctx context.Context, r *http.Request) (*Identity, error)
	FetchProfile(ctx context.Context, sessionID string) (*Profile, error)
}

// HTTPClient is the production Client over the provider's REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient constructs a client for the provider at baseURL.
// timeout bounds each provider call; zero means 5s.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// verifyResponse is the provider's /v1/session/verify payload.
type verifyResponse struct {
	Valid         bool   `json:"valid"`
	SessionID     string `json:"session_id"`
	IdentityToken string `json:"identity_token"`
}

// VerifySession forwards the request's session cookie to the provider
// and extracts the verified identity. Requests without a session cookie
// resolve to nil without a provider round trip.
func (c *HTTPClient) VerifySession(ctx context.Context, r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/session/verify", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.AddCookie(cookie)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session verify call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session verify returned status %d", resp.StatusCode)
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("failed to decode verify response: %w", err)
	}
	if !vr.Valid {
		return nil, nil
	}

	ident := &Identity{SessionID: vr.SessionID}
	// The provider already verified the token's signature on its side;
	// we only read the claims it vouched for.
	if vr.IdentityToken != "" {
		email, name, err := claimsFromToken(vr.IdentityToken)
		if err != nil {
			c.logger.Warn("failed to parse identity token claims", "error", err)
		} else {
			ident.Email = email
			ident.DisplayName = name
		}
	}
	return ident, nil
}

// FetchProfile looks up the directory record for sessionID. Used when
// the identity token carried no email claim.
func (c *HTTPClient) FetchProfile(ctx context.Context, sessionID string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/session/"+sessionID+"/profile", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile returned status %d", resp.StatusCode)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &p, nil
}

func claimsFromToken(token string) (email, name string, err error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}
	if v, ok := claims["email"].(string); ok {
		email = v
	}
	if v, ok := claims["name"].(string); ok {
		name = v
	}
	return email, name, nil
}
