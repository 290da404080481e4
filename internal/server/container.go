package server

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/nfrund/relay/internal/admission"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/fanout"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/router"
	"github.com/nfrund/relay/internal/session"
	"github.com/nfrund/relay/internal/topics"
	"github.com/nfrund/relay/internal/tracing"
	relayws "github.com/nfrund/relay/internal/websocket"
)

// telemetry bundles the tracer with its flush hook.
type telemetry struct {
	tracer   trace.Tracer
	shutdown tracing.Shutdown
}

// newContainer registers every relay component. Providers are lazy, so
// nothing is built until the server invokes it.
func newContainer(cfg *config.Config, o options) do.Injector {
	i := do.New()

	do.ProvideValue(i, cfg)
	do.ProvideValue(i, o.logger)
	do.ProvideValue(i, o.fs)

	do.Provide(i, func(i do.Injector) (*telemetry, error) {
		cfg := do.MustInvoke[*config.Config](i)
		tracer, shutdown, err := tracing.Setup(context.Background(), tracing.Config{
			Enabled:     cfg.TracingEnabled,
			ServiceName: cfg.TracingServiceName,
			ZipkinURL:   cfg.TracingZipkinURL,
			Version:     o.version,
		})
		if err != nil {
			return nil, err
		}
		return &telemetry{tracer: tracer, shutdown: shutdown}, nil
	})

	do.Provide(i, func(i do.Injector) (*admission.Policy, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return admission.NewPolicy(cfg.AllowedOrigins, cfg.AllowedOriginPatterns, cfg.AllowEmptyOrigin)
	})

	do.Provide(i, func(i do.Injector) (*admission.FileSource, error) {
		cfg := do.MustInvoke[*config.Config](i)
		policy := do.MustInvoke[*admission.Policy](i)
		src := admission.NewFileSource(
			do.MustInvoke[afero.Fs](i),
			cfg.AllowedOriginsFile,
			policy,
			cfg.AllowedOrigins,
			cfg.AllowedOriginPatterns,
			do.MustInvoke[*slog.Logger](i),
		)
		if err := src.Reload(); err != nil {
			return nil, err
		}
		return src, nil
	})

	do.Provide(i, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		tel := do.MustInvoke[*telemetry](i)
		return pubsub.NewWatermillBridge(
			do.MustInvoke[*slog.Logger](i),
			pubsub.WithPublisherMiddleware(func(p message.Publisher) message.Publisher {
				return pubsub.NewTracingPublisher(p, tel.tracer)
			}),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*topics.Registry, error) {
		return topics.NewRegistry(), nil
	})

	do.Provide(i, func(i do.Injector) (*session.Directory, error) {
		return session.NewDirectory(
			do.MustInvoke[*topics.Registry](i),
			do.MustInvoke[*slog.Logger](i),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*router.Router, error) {
		logger := do.MustInvoke[*slog.Logger](i)
		tel := do.MustInvoke[*telemetry](i)
		return router.New(
			do.MustInvoke[*topics.Registry](i),
			fanout.NewEngine(logger),
			router.WithLogger(logger),
			router.WithTracer(tel.tracer),
		), nil
	})

	do.Provide(i, func(i do.Injector) (*presence.Service, error) {
		return presence.NewService(presence.WithLogger(do.MustInvoke[*slog.Logger](i))), nil
	})

	do.Provide(i, func(i do.Injector) (*relayws.Bridge, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return relayws.NewBridge(relayws.Dependencies{
			Directory:    do.MustInvoke[*session.Directory](i),
			Router:       do.MustInvoke[*router.Router](i),
			Publisher:    do.MustInvoke[*pubsub.WatermillBridge](i),
			Logger:       do.MustInvoke[*slog.Logger](i),
			SendBuffer:   cfg.SendBuffer,
			WriteTimeout: cfg.WriteTimeout,
			PingInterval: cfg.PingInterval,
			ReadLimit:    cfg.ReadLimit,
		}), nil
	})

	return i
}
