package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riftline/arcjournal/internal/app"
	"github.com/riftline/arcjournal/internal/archive"
)

func newExportCommand() *cobra.Command {
	var instanceID string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an instance's committed log to object storage",
		Long:  "Writes the committed transactions of one instance as JSON Lines to the configured S3 bucket.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if cfg.ArchiveBucket == "" {
				return fmt.Errorf("ARCJOURNAL_ARCHIVE_BUCKET is required for export")
			}

			st, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			exporter, err := archive.New(ctx, archive.Config{
				Region:    cfg.ArchiveRegion,
				Bucket:    cfg.ArchiveBucket,
				Endpoint:  cfg.ArchiveEndpoint,
				PathStyle: cfg.ArchivePathStyle,
			}, st)
			if err != nil {
				return err
			}

			key, count, err := exporter.ExportInstance(ctx, instanceID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d transactions to s3://%s/%s\n", count, cfg.ArchiveBucket, key)
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "instance id to export (required)")
	_ = cmd.MarkFlagRequired("instance")

	return cmd
}
