package idp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// unsignedToken builds a JWT-shaped token with the given claims and an
// empty signature. The client reads claims without verifying, so the
// signature content is irrelevant here.
func unsignedToken(t *testing.T, claims map[string]interface{}) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "none", "typ": "JWT"})
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(payload) + "."
}

func withSession(r *http.Request, value string) *http.Request {
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: value})
	return r
}

func TestVerifySession_NoCookie(t *testing.T) {
	c := NewHTTPClient("http://unreachable.invalid", time.Second, nil)

	r := httptest.NewRequest("GET", "/dashboard", nil)
	ident, err := c.VerifySession(context.Background(), r)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if ident != nil {
		t.Errorf("expected nil identity without a cookie, got %+v", ident)
	}
}

func TestVerifySession_ValidSession(t *testing.T) {
	token := unsignedToken(t, map[string]interface{}{
		"email": "Alice@Example.com",
		"name":  "Alice",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/session/verify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if _, err := r.Cookie(SessionCookie); err != nil {
			t.Error("session cookie not forwarded")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"valid":          true,
			"session_id":     "sess-1",
			"identity_token": token,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	r := withSession(httptest.NewRequest("GET", "/dashboard", nil), "cookie-value")

	ident, err := c.VerifySession(context.Background(), r)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if ident == nil {
		t.Fatal("expected identity")
	}
	if ident.SessionID != "sess-1" {
		t.Errorf("SessionID = %s", ident.SessionID)
	}
	if ident.Email != "Alice@Example.com" {
		t.Errorf("Email = %s", ident.Email)
	}
	if ident.DisplayName != "Alice" {
		t.Errorf("DisplayName = %s", ident.DisplayName)
	}
}

func TestVerifySession_InvalidSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"valid": false})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	r := withSession(httptest.NewRequest("GET", "/dashboard", nil), "stale")

	ident, err := c.VerifySession(context.Background(), r)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if ident != nil {
		t.Errorf("expected nil identity for invalid session, got %+v", ident)
	}
}

func TestVerifySession_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	r := withSession(httptest.NewRequest("GET", "/dashboard", nil), "expired")

	ident, err := c.VerifySession(context.Background(), r)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if ident != nil {
		t.Error("401 from the provider means no identity")
	}
}

func TestVerifySession_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	r := withSession(httptest.NewRequest("GET", "/dashboard", nil), "any")

	if _, err := c.VerifySession(context.Background(), r); err == nil {
		t.Error("provider 500 should surface as an error")
	}
}

func TestVerifySession_TokenWithoutEmailClaim(t *testing.T) {
	token := unsignedToken(t, map[string]interface{}{"sub": "user-1"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"valid":          true,
			"session_id":     "sess-2",
			"identity_token": token,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	r := withSession(httptest.NewRequest("GET", "/dashboard", nil), "v")

	ident, err := c.VerifySession(context.Background(), r)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	if ident == nil || ident.Email != "" {
		t.Errorf("expected identity with empty email, got %+v", ident)
	}
}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/session/sess-3/profile" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Profile{Email: "bob@example.com", DisplayName: "Bob"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, nil)
	p, err := c.FetchProfile(context.Background(), "sess-3")
	if err != nil {
		t.Fatalf("FetchProfile() error = %v", err)
	}
	if p.Email != "bob@example.com" || p.DisplayName != "Bob" {
		t.Errorf("Profile = %+v", p)
	}
}
