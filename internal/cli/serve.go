package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/octofit/internal/api"
	"example.com/octofit/internal/auth"
	"example.com/octofit/internal/catalog"
	"example.com/octofit/internal/domain"
	"example.com/octofit/internal/outbox"
	httptransport "example.com/octofit/internal/transport/http"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the metrics listener and the outbox dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := b.services(domain.NewRealClock())
	if cfg.SeedActivityTypes {
		if err := svc.Catalog.Seed(ctx, catalog.Defaults); err != nil {
			return fmt.Errorf("seed activity types: %w", err)
		}
	}

	router := api.NewHandler(svc).Router(api.Options{
		Auth:           auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(ctx, httptransport.DefaultServerConfig("api", cfg.HTTPAddress), router)
	})
	if cfg.MetricsAddress != cfg.HTTPAddress {
		serveMetrics(ctx, g, cfg.MetricsAddress)
	}

	if b.pool != nil && cfg.OutboxEnabled {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(b.pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		g.Go(func() error {
			dispatcher.Start(ctx)
			return nil
		})
	} else if cfg.OutboxEnabled {
		log.Info().Str("store", cfg.Store).Msg("outbox dispatcher disabled; it requires the postgres store")
	}

	return g.Wait()
}

// serveMetrics runs a bare metrics listener next to a worker loop.
func serveMetrics(ctx context.Context, g *errgroup.Group, address string) {
	if address == "" {
		return
	}
	g.Go(func() error {
		return httptransport.Serve(ctx, httptransport.DefaultServerConfig("metrics", address), promhttp.Handler())
	})
}
