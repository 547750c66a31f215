package main

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/dvloznov/fines-ledger/internal/gcs"
	"github.com/dvloznov/fines-ledger/internal/logger"
	"github.com/dvloznov/fines-ledger/internal/source"
	"github.com/spf13/cobra"
)

type fileUploader interface {
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error
}

func newUploadCmd() *cobra.Command {
	var bucket, prefix, logLevel string

	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload statement PDFs to a GCS bucket",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logger.New(logLevel)
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context(), log)

			client, err := gcs.NewClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			return uploadFiles(ctx, client, bucket, prefix, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "GCS bucket name (required)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "object name prefix, e.g. statements/2025")
	cmd.Flags().StringVar(&logLevel, "log-level", logger.DefaultLevel, "log level")
	_ = cmd.MarkFlagRequired("bucket")

	return cmd
}

// uploadFiles uploads each PDF under prefix, keeping its base name so the
// statement date can still be read from it. Other files are skipped.
func uploadFiles(ctx context.Context, up fileUploader, bucket, prefix string, files []string, out io.Writer) error {
	log := logger.FromContext(ctx)

	for _, file := range files {
		if !source.IsPDF(file) {
			log.Warn().Str("file", file).Msg("Skipping non-PDF file")
			continue
		}
		object := path.Join(prefix, filepath.Base(file))

		log.Info().
			Str("bucket", bucket).
			Str("object", object).
			Str("file", file).
			Msg("Uploading file to GCS")

		if err := up.UploadFile(ctx, bucket, object, file); err != nil {
			return fmt.Errorf("upload %s: %w", file, err)
		}
		fmt.Fprintf(out, "Uploaded %s to %s\n", file, gcs.URI(bucket, object))
	}
	return nil
}
