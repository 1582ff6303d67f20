package sigmaql

import (
	"context"
)

// QueryValidator checks a query tree against the loaded schema.
type QueryValidator interface {
	Validate(req *QueryRequest) error
	ValidateNode(entity string, node *QueryNode) error
}

// QueryService is the facade used by transports.
type QueryService interface {
	// Validate returns req unchanged when it is schema-valid.
	Validate(ctx context.Context, req *QueryRequest) (*QueryRequest, error)

	// Schema introspection
	DescribeEntity(ctx context.Context, name string) (EntitySchema, error)
	ListEntities(ctx context.Context) []string
}
