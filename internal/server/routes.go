package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/relay/internal/admission"
	"github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/router"
	"github.com/nfrund/relay/internal/topics"
)

// HealthMessage is the body of GET /health.
const HealthMessage = "Socket relay is up and running!"

// Stats is the body of GET /stats.
type Stats struct {
	Sessions int               `json:"sessions"`
	Sockets  int               `json:"sockets"`
	Registry topics.Stats      `json:"registry"`
	Router   router.Stats      `json:"router"`
	Presence presence.Snapshot `json:"presence"`
}

// RegisterRoutes sets up all the relay routes.
func (s *Server) RegisterRoutes() {
	// Platform port checks probe the root.
	s.E.GET("/", s.health)
	s.E.GET("/health", s.health)
	s.E.GET("/stats", s.stats)

	s.E.GET("/ws", s.Bridge.Handler(),
		admission.Gate(s.Policy),
		middleware.UpgradeLimiter(s.Cfg.UpgradeRateLimit),
	)
}

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, HealthMessage)
}

func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, Stats{
		Sessions: s.Directory.Count(),
		Sockets:  s.Bridge.Count(),
		Registry: s.Registry.Stats(),
		Router:   s.Router.Stats(),
		Presence: s.Presence.Snapshot(),
	})
}
