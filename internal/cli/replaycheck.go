package cli

import (
	"fmt"
	"reflect"

	"github.com/spf13/cobra"

	"github.com/riftline/arcjournal/internal/app"
	"github.com/riftline/arcjournal/internal/journal"
	"github.com/riftline/arcjournal/internal/replay"
)

func newReplayCheckCommand() *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "replay-check",
		Short: "Verify an instance replays deterministically",
		Long: `Loads an instance, derives state once via the live instance and once via a
copied transaction list, and reports whether the two derivations match.

Exit codes:
  0 - replays match
  1 - replays diverged`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			library, err := app.LoadContent(cfg)
			if err != nil {
				return err
			}

			instance, err := st.Load(ctx, instanceID)
			if err != nil {
				return err
			}

			live, err := replay.ReplayToNow(instance, library)
			if err != nil {
				return fmt.Errorf("live replay: %w", err)
			}

			arc, err := library.Arc(instance.ArcRef)
			if err != nil {
				return err
			}
			copied := append([]journal.Transaction(nil), instance.Committed()...)
			detached, err := replay.Replay(copied, arc)
			if err != nil {
				return fmt.Errorf("detached replay: %w", err)
			}

			if !reflect.DeepEqual(live, detached) {
				return fmt.Errorf("replays diverged for instance %s", instanceID)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"instance %s replays deterministically (%d committed transactions, last seq %d)\n",
				instanceID, len(copied), live.LastSeq)
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "instance id to check (required)")
	_ = cmd.MarkFlagRequired("instance")

	return cmd
}
