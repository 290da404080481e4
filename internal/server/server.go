// Package server assembles the relay: it builds the component graph,
// mounts the HTTP surface on echo and owns startup and shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"

	"github.com/nfrund/relay/internal/admission"
	"github.com/nfrund/relay/internal/config"
	relaymw "github.com/nfrund/relay/internal/middleware"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/router"
	"github.com/nfrund/relay/internal/session"
	"github.com/nfrund/relay/internal/topics"
	relayws "github.com/nfrund/relay/internal/websocket"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	Cfg *config.Config

	Registry  *topics.Registry
	Directory *session.Directory
	Router    *router.Router
	Bridge    *relayws.Bridge
	PubSub    *pubsub.WatermillBridge
	Presence  *presence.Service
	Policy    *admission.Policy

	origins   *admission.FileSource
	telemetry *telemetry
	logger    *slog.Logger
	cancel    context.CancelFunc
}

type options struct {
	logger  *slog.Logger
	fs      afero.Fs
	version string
}

// Option configures New.
type Option func(*options)

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFs sets the filesystem the origins file is read from.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// WithVersion tags traces with the build version.
func WithVersion(version string) Option {
	return func(o *options) { o.version = version }
}

// New creates a new Server instance. No socket is opened until Start.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	o := options{logger: slog.Default(), fs: afero.NewOsFs(), version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	i := newContainer(cfg, o)

	tel, err := do.Invoke[*telemetry](i)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	policy, err := do.Invoke[*admission.Policy](i)
	if err != nil {
		return nil, fmt.Errorf("build origin policy: %w", err)
	}

	s := &Server{
		E:         echo.New(),
		Cfg:       cfg,
		Registry:  do.MustInvoke[*topics.Registry](i),
		Directory: do.MustInvoke[*session.Directory](i),
		Router:    do.MustInvoke[*router.Router](i),
		Bridge:    do.MustInvoke[*relayws.Bridge](i),
		PubSub:    do.MustInvoke[*pubsub.WatermillBridge](i),
		Presence:  do.MustInvoke[*presence.Service](i),
		Policy:    policy,
		telemetry: tel,
		logger:    o.logger.With("component", "server"),
	}

	if cfg.AllowedOriginsFile != "" {
		src, err := do.Invoke[*admission.FileSource](i)
		if err != nil {
			return nil, fmt.Errorf("load origins file: %w", err)
		}
		s.origins = src
	}

	s.E.HideBanner = true
	s.E.HidePort = true
	s.E.Use(middleware.RequestID())
	s.E.Use(middleware.Recover())
	s.E.Use(relaymw.Logger(o.logger))
	s.E.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return s.Policy.Allowed(origin), nil
		},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	s.RegisterRoutes()
	return s, nil
}

// Boot starts the background work the relay needs before serving: the
// presence subscription and the origins file watcher.
func (s *Server) Boot(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.Presence.Start(ctx, s.PubSub); err != nil {
		cancel()
		return fmt.Errorf("start presence: %w", err)
	}
	if s.origins != nil {
		// Hot reload is best effort; the rules loaded at startup stay in force.
		if err := s.origins.Watch(ctx); err != nil {
			s.logger.Warn("Origins file will not be hot reloaded", "error", err)
		}
	}
	return nil
}

// Shutdown closes websocket clients, then the HTTP server, the bus and the
// tracer, in that order. All errors are reported.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Bridge.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close websocket clients: %w", err))
	}
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	if s.cancel != nil {
		s.cancel()
	}
	if err := s.PubSub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pubsub: %w", err))
	}
	if err := s.telemetry.shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush traces: %w", err))
	}
	return errors.Join(errs...)
}
