package factory

import (
	"context"
	"fmt"

	"github.com/lychee-technology/sigmaql"
	"github.com/lychee-technology/sigmaql/internal"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewQueryServiceWithConfig loads the schema described by config and returns a
// ready QueryService. This is the primary way for external projects to create
// a QueryService instance.
//
// Validation metrics are registered on reg when config.Metrics.Enabled is set;
// pass nil to skip registration.
//
// Usage:
//
//	import (
//	    "github.com/lychee-technology/sigmaql"
//	    "github.com/lychee-technology/sigmaql/factory"
//	)
//
//	config, err := sigmaql.LoadConfig("sigmaql.yaml")
//	if err != nil {
//	    // handle error
//	}
//	svc, err := factory.NewQueryServiceWithConfig(ctx, config, prometheus.DefaultRegisterer)
func NewQueryServiceWithConfig(ctx context.Context, config *sigmaql.Config, reg prometheus.Registerer) (sigmaql.QueryService, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	registry, err := LoadSchemaRegistry(ctx, config)
	if err != nil {
		return nil, err
	}
	return NewQueryService(registry, config, reg)
}

// NewQueryService builds the validator and service around an already loaded
// registry.
func NewQueryService(registry sigmaql.SchemaRegistry, config *sigmaql.Config, reg prometheus.Registerer) (sigmaql.QueryService, error) {
	if registry == nil {
		return nil, fmt.Errorf("schema registry is required")
	}
	if config == nil {
		config = sigmaql.DefaultConfig()
	}

	var metrics *internal.ValidationMetrics
	if config.Metrics.Enabled && reg != nil {
		m, err := internal.NewValidationMetrics(config.Metrics.Namespace, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register validation metrics: %w", err)
		}
		metrics = m
	}

	validator := internal.NewQueryValidator(registry, config.Validation.MaxIncludeDepth)
	return internal.NewQueryService(registry, validator, metrics), nil
}

// LoadSchemaRegistry reads the configured schema source within the load
// timeout and builds the immutable registry.
func LoadSchemaRegistry(ctx context.Context, config *sigmaql.Config) (sigmaql.SchemaRegistry, error) {
	if config.Schema.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Schema.LoadTimeout)
		defer cancel()
	}

	var source internal.SchemaSource
	switch config.Schema.Source {
	case sigmaql.SchemaSourceFile:
		source = internal.NewFileSchemaSource(config.Schema.Path)
	case sigmaql.SchemaSourcePostgres:
		pool, err := internal.NewPostgresPool(ctx, config.Schema.Postgres)
		if err != nil {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed, "failed to connect to schema database", err)
		}
		// The schema is read exactly once; the pool is not needed afterwards.
		defer pool.Close()
		source = internal.NewPostgresSchemaSource(pool, config.Schema.Postgres.Table)
	case sigmaql.SchemaSourceS3:
		client, err := internal.NewS3Client(ctx, config.Schema.S3)
		if err != nil {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed, "failed to create s3 client", err)
		}
		source = internal.NewS3SchemaSource(client, config.Schema.S3.Bucket, config.Schema.S3.Key)
	default:
		return nil, &sigmaql.ConfigError{Field: "schema.source", Message: fmt.Sprintf("unsupported source %q", config.Schema.Source)}
	}

	root, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := internal.NewSchemaRegistry(root)
	if err != nil {
		return nil, err
	}

	zap.S().Infow("schema registry ready", "source", config.Schema.Source, "entities", registry.ListEntities())
	return registry, nil
}
