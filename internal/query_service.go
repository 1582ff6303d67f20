package internal

import (
	"context"
	"time"

	"github.com/lychee-technology/sigmaql"
	"go.uber.org/zap"
)

type queryService struct {
	registry  sigmaql.SchemaRegistry
	validator sigmaql.QueryValidator
	metrics   *ValidationMetrics
	nowFunc   func() time.Time
}

// NewQueryService creates a new QueryService instance. metrics may be nil.
func NewQueryService(
	registry sigmaql.SchemaRegistry,
	validator sigmaql.QueryValidator,
	metrics *ValidationMetrics,
) sigmaql.QueryService {
	return &queryService{
		registry:  registry,
		validator: validator,
		metrics:   metrics,
		nowFunc:   time.Now,
	}
}

func (s *queryService) Validate(ctx context.Context, req *sigmaql.QueryRequest) (*sigmaql.QueryRequest, error) {
	start := s.nowFunc()
	err := s.validator.Validate(req)
	elapsed := s.nowFunc().Sub(start)

	if err != nil {
		s.metrics.ObserveRejected(elapsed, err)
		fields := []any{"error", err.Error(), "kind", sigmaql.KindOf(err)}
		if req != nil {
			fields = append(fields, "entity", req.Entity)
		}
		if sigmaql.KindOf(err).IsClientError() {
			zap.S().Infow("query rejected", fields...)
		} else {
			zap.S().Errorw("query validation failed", fields...)
		}
		return nil, err
	}

	depth := req.IncludeDepth()
	s.metrics.ObserveAccepted(elapsed, depth)
	zap.S().Debugw("query accepted", "entity", req.Entity, "fields", len(req.Fields), "include_depth", depth)
	return req, nil
}

func (s *queryService) DescribeEntity(ctx context.Context, name string) (sigmaql.EntitySchema, error) {
	return s.registry.GetEntity(name)
}

func (s *queryService) ListEntities(ctx context.Context) []string {
	return s.registry.ListEntities()
}
