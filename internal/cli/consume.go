package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/octofit/internal/consumer"
)

func newConsumeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Record published ledger and roster events in the audit log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.consume(cmd.Context())
		},
	}
}

func (a *app) consume(ctx context.Context) error {
	cfg := a.cfg
	if len(cfg.ConsumerTopics) == 0 {
		return fmt.Errorf("no consumer topics configured")
	}
	pool, err := connectPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	handler := consumer.NewAuditHandler(pool)
	g, ctx := errgroup.WithContext(ctx)
	serveMetrics(ctx, g, cfg.MetricsAddress)

	for _, topic := range cfg.ConsumerTopics {
		topic := topic
		reader := consumer.NewKafkaReader(cfg.KafkaBrokers, cfg.ConsumerGroupID, topic)
		logger := log.With().Str("component", "consumer").Str("topic", topic).Logger()
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))
		g.Go(func() error {
			defer reader.Close()
			logger.Info().Str("group", cfg.ConsumerGroupID).Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consumer %s: %w", topic, err)
			}
			return nil
		})
	}
	return g.Wait()
}
