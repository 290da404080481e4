package admission

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/middleware"
)

// Gate is an echo middleware that rejects requests whose Origin header the
// policy does not allow. It guards the websocket upgrade route.
func Gate(p *Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if !p.Allowed(origin) {
				middleware.FromContext(c.Request().Context()).Warn("Rejected connection from disallowed origin", "origin", origin, "remote_ip", c.RealIP())
				return c.String(http.StatusForbidden, "Origin not allowed")
			}
			return next(c)
		}
	}
}
