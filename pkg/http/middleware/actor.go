package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Identity is resolved upstream (API gateway); this service trusts these headers.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"

	RoleAdmin      = "admin"
	RoleSubscriber = "subscriber"

	actorKey = "actor"
)

type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Identify stores the caller on the context. Requests without an id pass
// through anonymous; routes that need one use RequireActor or RequireAdmin.
func Identify() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(HeaderActorID))
			if id == "" {
				// browsers cannot set headers on websocket upgrades
				id = strings.TrimSpace(c.QueryParam("actor_id"))
			}
			if id != "" {
				role := strings.ToLower(strings.TrimSpace(c.Request().Header.Get(HeaderActorRole)))
				if role == "" {
					role = RoleSubscriber
				}
				c.Set(actorKey, Actor{ID: id, Role: role})
			}
			return next(c)
		}
	}
}

// ActorFrom returns the caller set by Identify.
func ActorFrom(c echo.Context) (Actor, bool) {
	a, ok := c.Get(actorKey).(Actor)
	return a, ok
}

func RequireActor() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := ActorFrom(c); !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderActorID)
			}
			return next(c)
		}
	}
}

func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, ok := ActorFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HeaderActorID)
			}
			if !a.IsAdmin() {
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}
			return next(c)
		}
	}
}
