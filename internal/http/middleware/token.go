package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

// TokenMiddleware authenticates requests using the X-API-Key header or an
// "Authorization: Bearer" token. An empty token disables the check.
func TokenMiddleware(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if token == "" {
			return next
		}
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				auth := c.Request().Header.Get(echo.HeaderAuthorization)
				if v, ok := strings.CutPrefix(auth, "Bearer "); ok {
					key = strings.TrimSpace(v)
				}
			}
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"status": "error", "message": "missing api key"})
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{"status": "error", "message": "invalid api key"})
			}
			return next(c)
		}
	}
}
