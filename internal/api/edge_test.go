package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/garnet-sec/garnet/pkg/idp"
	"github.com/garnet-sec/garnet/pkg/store"
)

func edgeHandler(t *testing.T, srv *Server, precheck bool) (http.Handler, *int) {
	t.Helper()
	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	return srv.EdgeWrap(precheck)(next), &calls
}

func TestEdge_PublicPathsBypass(t *testing.T) {
	// A provider that would panic if consulted proves public paths
	// never trigger a session check.
	srv, _ := setupServer(t, &panickyIdP{})
	h, calls := edgeHandler(t, srv, true)

	for _, path := range []string{"/", "/login", "/auth/callback", "/not-invited", "/health", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
	if *calls != 7 {
		t.Errorf("next called %d times, want 7", *calls)
	}
}

func TestEdge_APIPathsPassThrough(t *testing.T) {
	srv, _ := setupServer(t, &panickyIdP{})
	h, calls := edgeHandler(t, srv, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/admin/users", nil))
	if rec.Code != http.StatusOK || *calls != 1 {
		t.Error("API paths are the guard's concern, not the edge's")
	}
}

func TestEdge_NoSessionRedirectsToLogin(t *testing.T) {
	srv, _ := setupServer(t, &stubIdP{})
	h, calls := edgeHandler(t, srv, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("Location = %s, want /login", loc)
	}
	if *calls != 0 {
		t.Error("next must not run without a session")
	}
}

func TestEdge_PrecheckRedirectsDenied(t *testing.T) {
	srv, st := setupServer(t, &stubIdP{
		ident: &idp.Identity{SessionID: "s", Email: "Stranger@Example.com"},
	})
	h, calls := edgeHandler(t, srv, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/not-invited" {
		t.Errorf("Location = %s, want /not-invited", loc)
	}
	if *calls != 0 {
		t.Error("next must not run for a denied browser")
	}

	entries, _, err := st.QueryAuditEntries(context.Background(), store.AuditFilter{Event: "login_deny"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || *entries[0].Email != "stranger@example.com" {
		t.Errorf("login_deny rows = %v", entries)
	}
}

func TestEdge_PrecheckAdmitsAllowed(t *testing.T) {
	srv, st := setupServer(t, &stubIdP{
		ident: &idp.Identity{SessionID: "s", Email: "alice@example.com"},
	})
	addUser(t, st, "alice@example.com", store.RoleViewer, true)
	h, calls := edgeHandler(t, srv, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))

	if rec.Code != http.StatusOK || *calls != 1 {
		t.Errorf("status = %d calls = %d, want 200/1", rec.Code, *calls)
	}
	if n := countEvents(t, st, "login_allow"); n != 1 {
		t.Errorf("login_allow rows = %d, want 1", n)
	}
}

func TestEdge_PrecheckDisabled(t *testing.T) {
	srv, _ := setupServer(t, &stubIdP{
		ident: &idp.Identity{SessionID: "s", Email: "stranger@example.com"},
	})
	h, calls := edgeHandler(t, srv, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))

	// Without the pre-check a session is enough for a page; the API
	// guard still decides anything that matters.
	if rec.Code != http.StatusOK || *calls != 1 {
		t.Errorf("status = %d calls = %d, want 200/1", rec.Code, *calls)
	}
}

func TestEdge_StoreErrorFallsThrough(t *testing.T) {
	srv, st := setupServer(t, &stubIdP{
		ident: &idp.Identity{SessionID: "s", Email: "alice@example.com"},
	})
	st.Close()
	h, calls := edgeHandler(t, srv, true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/dashboard", nil))

	// The page renders; its API calls fail closed on their own.
	if rec.Code != http.StatusOK || *calls != 1 {
		t.Errorf("status = %d calls = %d, want 200/1", rec.Code, *calls)
	}
}
