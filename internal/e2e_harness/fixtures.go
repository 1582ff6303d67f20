package e2e_harness

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/sigmaql"
)

// SeedSchemaTable creates the schema table and inserts one row per entity
// of the JSON schema document at schemaPath.
func SeedSchemaTable(ctx context.Context, db *sql.DB, table, schemaPath string) error {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	var doc struct {
		Entities map[string]json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode schema: %w", err)
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  entity_name TEXT PRIMARY KEY,
  definition JSONB NOT NULL
);`, table)
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (entity_name, definition) VALUES ($1, $2)
ON CONFLICT (entity_name) DO UPDATE SET definition = EXCLUDED.definition`, table)
	for name, definition := range doc.Entities {
		if _, err := db.ExecContext(ctx, insert, name, string(definition)); err != nil {
			return fmt.Errorf("insert %s: %w", name, err)
		}
	}
	return nil
}

// UploadSchemaToS3 uploads a local schema document, creating the bucket if
// needed.
func UploadSchemaToS3(ctx context.Context, cfg sigmaql.S3Config, accessKey, secretKey, filePath string) error {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		if _, cerr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)}); cerr != nil {
			var apiErr smithy.APIError
			if !errors.As(cerr, &apiErr) {
				return fmt.Errorf("create bucket: %w", cerr)
			}
			if code := apiErr.ErrorCode(); code != "BucketAlreadyOwnedByYou" && code != "BucketAlreadyExists" {
				return fmt.Errorf("create bucket: %w", cerr)
			}
		}
	}

	in, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open src: %w", err)
	}
	defer in.Close()

	_, err = manager.NewUploader(client).Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(cfg.Key),
		Body:   in,
	})
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	return nil
}
