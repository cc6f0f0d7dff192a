package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// OpsTokenMiddleware authenticates operator requests using X-Ops-Token.
// An empty configured token disables the check (dev only); the ops surface
// is meant to sit behind the platform's internal network either way.
func OpsTokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}
			got := strings.TrimSpace(c.Request().Header.Get("X-Ops-Token"))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid ops token"})
			}
			return next(c)
		}
	}
}
