package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/paeltech/savannaFx-sub000/pkg/logger"
)

// RequestLogging logs one line per request at debug, or warn for 4xx and error for 5xx.
func RequestLogging(lgr *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.String("uri", req.RequestURI),
				logger.Int("status", status),
				logger.Duration("latency", time.Since(start)),
				logger.String("actor", req.Header.Get(HeaderActorID)),
			}
			switch {
			case status >= 500:
				lgr.Error("http request", fields...)
			case status >= 400:
				lgr.Warn("http request", fields...)
			default:
				lgr.Debug("http request", fields...)
			}
			return nil
		}
	}
}
