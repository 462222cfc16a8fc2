package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/octofit/internal/outbox"
)

const defaultDLQBatchSize = 50

func newDLQCommand(a *app) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Re-queue or quarantine failed outbox deliveries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.dlq(cmd.Context(), batch)
		},
	}
	cmd.Flags().IntVar(&batch, "batch", defaultDLQBatchSize, "entries handled per poll")
	return cmd
}

func (a *app) dlq(ctx context.Context, batch int) error {
	cfg := a.cfg
	pool, err := connectPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
	g, ctx := errgroup.WithContext(ctx)
	serveMetrics(ctx, g, cfg.MetricsAddress)
	g.Go(func() error {
		return manager.Run(ctx, cfg.DLQPollInterval, batch)
	})
	return g.Wait()
}
