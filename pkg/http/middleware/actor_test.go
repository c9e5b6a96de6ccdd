package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestIdentify(t *testing.T) {
	e := echo.New()
	var got Actor
	h := Identify()(func(c echo.Context) error {
		got, _ = ActorFrom(c)
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "admin-1")
	req.Header.Set(HeaderActorRole, "Admin")
	if err := h(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got.ID != "admin-1" || !got.IsAdmin() {
		t.Fatalf("actor = %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws?actor_id=user-1", nil)
	got = Actor{}
	_ = h(e.NewContext(req, httptest.NewRecorder()))
	if got.ID != "user-1" || got.Role != RoleSubscriber {
		t.Fatalf("query actor = %+v", got)
	}
}

func TestRequireAdmin(t *testing.T) {
	e := echo.New()
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }
	h := Identify()(RequireAdmin()(ok))

	cases := []struct {
		id, role string
		want     int
	}{
		{"", "", http.StatusUnauthorized},
		{"user-1", "", http.StatusForbidden},
		{"admin-1", RoleAdmin, http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.id != "" {
			req.Header.Set(HeaderActorID, tc.id)
		}
		if tc.role != "" {
			req.Header.Set(HeaderActorRole, tc.role)
		}
		rec := httptest.NewRecorder()
		err := h(e.NewContext(req, rec))
		code := rec.Code
		if he, isHTTP := err.(*echo.HTTPError); isHTTP {
			code = he.Code
		}
		if code != tc.want {
			t.Fatalf("%q/%q: status = %d, want %d", tc.id, tc.role, code, tc.want)
		}
	}
}
