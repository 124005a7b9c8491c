package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/NewsPager/cmd/server/factory"
	"github.com/NewsPager/internal/app"
	"github.com/NewsPager/internal/infra/tracing"
	transport "github.com/NewsPager/internal/transport/http"
	"github.com/NewsPager/pkg/config"
	"go.uber.org/fx"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Infrastructure
			factory.NewMongoClient,
			factory.NewMongoRepository,
			fx.Annotate(
				factory.NewMainKafkaProducer,
				fx.ResultTags(`name:"main_producer"`),
			),
			fx.Annotate(
				factory.NewDLQProducer,
				fx.ResultTags(`name:"dlq_producer"`),
			),
			fx.Annotate(
				factory.NewKafkaConsumer,
				fx.ParamTags(``, `name:"dlq_producer"`),
			),
			factory.NewConnectivityMonitor,

			// Backend & repository
			factory.NewFeedClient,
			factory.NewNewsRepository,
			factory.NewPageFetcher,

			// Services
			fx.Annotate(
				factory.NewSessionRegistry,
				fx.ParamTags(``, ``, ``, `name:"main_producer"`),
			),
			factory.NewArchiveService,
			factory.NewReadinessWaiter,

			// HTTP Server
			factory.NewHandler,
			transport.NewHTTPServer,
		),
		fx.Invoke(
			SetupTracer,
			WaitForReady, // Block until dependencies are ready
			RegisterHooks,
			StartServer,
		),
	).Run()
}

// --- Invokers ---

func RegisterHooks(lc fx.Lifecycle, registry *app.SessionRegistry, archive *app.ArchiveService) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if archive != nil {
				archive.Start(ctx)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			registry.CloseAll()
			if archive != nil {
				return archive.Stop()
			}
			return nil
		},
	})
}

func SetupTracer(lc fx.Lifecycle) error {
	ctx := context.Background()
	shutdown, err := tracing.InitTracer(ctx, "news-pager")
	if err != nil {
		slog.Error("Failed to initialize tracer", "error", err)
		return err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Info("Shutting down tracer provider")
			return shutdown(ctx)
		},
	})
	return nil
}

// WaitForReady blocks until all configured dependencies are ready.
func WaitForReady(waiter *app.ReadinessWaiter) error {
	return waiter.WaitForDependencies(context.Background())
}

func StartServer(lc fx.Lifecycle, server *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				slog.Info("Starting HTTP server", "address", server.Addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					slog.Error("HTTP server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
