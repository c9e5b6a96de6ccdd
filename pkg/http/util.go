package http

import (
	"github.com/labstack/echo/v4"

	xutil "github.com/paeltech/savannaFx-sub000/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// Pagination reads limit/offset query params, clamping limit to [1, max].
func Pagination(c echo.Context, def, max int) (limit, offset int) {
	limit = xutil.Clamp(ParseIntDefault(c.QueryParam("limit"), def), 1, max)
	offset = ParseIntDefault(c.QueryParam("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
