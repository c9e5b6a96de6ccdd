package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func serveCORS(t *testing.T, cfg CORSConfig, method, origin string, preflight bool) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, "/api/signals", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	if preflight {
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPatch)
	}
	rec := httptest.NewRecorder()
	h := CORS(cfg)(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return rec
}

func TestCORS_Preflight(t *testing.T) {
	cfg := CORSConfig{AllowOrigins: []string{"https://app.savannafx.co"}}

	rec := serveCORS(t, cfg, http.MethodOptions, "https://app.savannafx.co", true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://app.savannafx.co" {
		t.Fatalf("allow origin = %q", got)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderAccessControlAllowHeaders), HeaderActorID) {
		t.Fatalf("actor header not allowed: %q", rec.Header().Get(echo.HeaderAccessControlAllowHeaders))
	}

	rec = serveCORS(t, cfg, http.MethodOptions, "https://evil.example", true)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign preflight status = %d", rec.Code)
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	rec := serveCORS(t, CORSConfig{}, http.MethodGet, "https://anywhere.example", false)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "*" {
		t.Fatalf("status = %d, allow origin = %q", rec.Code, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	}

	rec = serveCORS(t, CORSConfig{AllowOrigins: []string{"https://app.savannafx.co"}}, http.MethodGet, "https://evil.example", false)
	if rec.Code != http.StatusOK || rec.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Fatalf("foreign origin got CORS headers: %v", rec.Header())
	}
}
