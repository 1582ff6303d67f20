package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lychee-technology/sigmaql"
	"github.com/lychee-technology/sigmaql/internal"
	"github.com/spf13/cobra"
)

func newPublishSchemaCommand() *cobra.Command {
	cfg := sigmaql.S3Config{}

	cmd := &cobra.Command{
		Use:   "publish-schema <schema-file>",
		Short: "Check a schema document and upload it to S3",
		Long: `Check a schema document exactly as the server would load it, then upload
it to the bucket and key the server reads with schema.source: s3.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Bucket == "" || cfg.Key == "" {
				return fmt.Errorf("--bucket and --key are required")
			}

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read schema file: %w", err)
			}
			// The object key decides the format the server parses with.
			root, err := internal.ParseSchemaDocument(data, internal.FormatFromPath(cfg.Key))
			if err != nil {
				return err
			}
			if _, err := internal.NewSchemaRegistry(root); err != nil {
				return err
			}

			client, err := internal.NewS3Client(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			_, err = manager.NewUploader(client).Upload(cmd.Context(), &s3.PutObjectInput{
				Bucket: aws.String(cfg.Bucket),
				Key:    aws.String(cfg.Key),
				Body:   bytes.NewReader(data),
			})
			if err != nil {
				return fmt.Errorf("s3 upload: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Published %d entities to s3://%s/%s\n", len(root.Entities), cfg.Bucket, cfg.Key)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Bucket, "bucket", "", "destination bucket")
	cmd.Flags().StringVar(&cfg.Key, "key", "", "destination object key")
	cmd.Flags().StringVar(&cfg.Region, "region", os.Getenv("AWS_REGION"), "AWS region")
	cmd.Flags().StringVar(&cfg.Endpoint, "endpoint", "", "custom S3 endpoint for S3-compatible stores")
	return cmd
}
