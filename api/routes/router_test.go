package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/consertaja/billing/pkg/config"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testRouter() http.Handler {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Admin = config.AdminConfig{JWTSecret: "test-secret", JWTIssuer: "consertaja-test"}
	return NewRouter(cfg, nil, okPinger{}, okPinger{}, nil, nil, nil, nil, nil)
}

func TestRouterServesHealth(t *testing.T) {
	router := testRouter()

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 but got %d", path, w.Code)
		}
		if got := w.Header().Get("X-ConsertaJa-Env"); got != "test" {
			t.Fatalf("%s: unexpected env header %q", path, got)
		}
	}
}

func TestRouterGuardsAdminRoutes(t *testing.T) {
	router := testRouter()

	for _, path := range []string{"/api/admin/v1/saas-metrics", "/api/admin/v1/alerts"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 but got %d", path, w.Code)
		}
	}
}

func TestRouterReturns404ForUnknownRoutes(t *testing.T) {
	router := testRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 but got %d", w.Code)
	}
}
