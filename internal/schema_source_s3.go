package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/sigmaql"
	"go.uber.org/zap"
)

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3SchemaSource reads the schema document from a single S3 object. The
// document format follows the key extension.
type S3SchemaSource struct {
	client objectGetter
	bucket string
	key    string
}

func NewS3SchemaSource(client objectGetter, bucket, key string) *S3SchemaSource {
	return &S3SchemaSource{client: client, bucket: bucket, key: key}
}

func (s *S3SchemaSource) Load(ctx context.Context) (*sigmaql.SchemaRoot, error) {
	location := fmt.Sprintf("s3://%s/%s", s.bucket, s.key)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NoSuchBucket", "NotFound":
				return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed,
					fmt.Sprintf("schema object %s not found", location), err).
					WithDetail("awsCode", apiErr.ErrorCode())
			}
		}
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed,
			fmt.Sprintf("failed to fetch schema object %s", location), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed,
			fmt.Sprintf("failed to read schema object %s", location), err)
	}

	root, err := ParseSchemaDocument(data, FormatFromPath(s.key))
	if err != nil {
		return nil, err
	}
	zap.S().Infow("schema loaded from s3", "location", location, "entities", len(root.Entities))
	return root, nil
}

// NewS3Client builds an S3 client from the default AWS credential chain.
// Static credentials from AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY take
// precedence, and a custom endpoint switches to path-style addressing.
func NewS3Client(ctx context.Context, cfg sigmaql.S3Config) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if key := os.Getenv("AWS_ACCESS_KEY_ID"); key != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(key, os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN")),
		))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	}), nil
}
