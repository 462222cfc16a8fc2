package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"example.com/octofit/internal/domain"
)

func newReconcileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Check every profile's points against the ledger",
		Long: `Compares each stored profile total with the sum of its counted ledger
entries and prints the divergences as JSON. Nothing is corrected. Exits
non-zero when any fault is found.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.reconcile(cmd.Context())
		},
	}
}

func (a *app) reconcile(ctx context.Context) error {
	b, err := openBackend(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	faults, err := b.services(domain.NewRealClock()).Profiles.Reconcile(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"faults": faults}); err != nil {
		return err
	}
	if len(faults) > 0 {
		return fmt.Errorf("%w: %d", ErrIntegrityFaults, len(faults))
	}
	return nil
}
