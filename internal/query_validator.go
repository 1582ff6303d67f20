package internal

import (
	"fmt"
	"strings"

	"github.com/lychee-technology/sigmaql"
)

// QueryValidator walks a query tree against the schema registry.
// It holds no per-request state and is safe for concurrent use.
type QueryValidator struct {
	registry        sigmaql.SchemaRegistry
	maxIncludeDepth int
}

// NewQueryValidator creates a validator. maxIncludeDepth bounds include
// nesting; 0 disables the bound.
func NewQueryValidator(registry sigmaql.SchemaRegistry, maxIncludeDepth int) *QueryValidator {
	if maxIncludeDepth < 0 {
		maxIncludeDepth = 0
	}
	return &QueryValidator{
		registry:        registry,
		maxIncludeDepth: maxIncludeDepth,
	}
}

// Validate checks a whole request. The first violation aborts the walk.
func (v *QueryValidator) Validate(req *sigmaql.QueryRequest) error {
	if req == nil {
		return sigmaql.NewInvalidQueryError("query body is missing")
	}
	if strings.TrimSpace(req.Entity) == "" {
		return sigmaql.NewInvalidQueryError("entity is required")
	}
	return v.ValidateNode(req.Entity, &req.QueryNode)
}

// ValidateNode checks node as a root query against entity.
func (v *QueryValidator) ValidateNode(entity string, node *sigmaql.QueryNode) error {
	if node == nil {
		return sigmaql.NewInvalidQueryError("query body is missing")
	}
	if err := v.validateQuery(entity, node, 0); err != nil {
		return err
	}
	if err := validatePaging(node.Limit, node.Offset); err != nil {
		return err
	}
	return v.validateOrderBy(entity, node.OrderBy)
}

// validateQuery runs the entity, fields, filter and include checks for one node.
func (v *QueryValidator) validateQuery(entity string, node *sigmaql.QueryNode, depth int) error {
	if _, err := v.registry.GetEntity(entity); err != nil {
		return err
	}
	if err := v.validateFields(entity, node.Fields); err != nil {
		return err
	}
	if err := v.validateFilter(entity, node.Filter); err != nil {
		return err
	}
	return v.validateInclude(entity, node.Include, depth)
}

func (v *QueryValidator) validateFields(entity string, fields []string) error {
	if len(fields) == 0 {
		return sigmaql.NewInvalidQueryError("fields is required and cannot be empty").WithEntity(entity)
	}
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return sigmaql.NewInvalidQueryError(fmt.Sprintf("fields[%d] is empty", i)).
				WithEntity(entity).
				WithDetail("index", i)
		}
		if err := v.registry.AssertFieldExists(entity, f); err != nil {
			return err
		}
	}
	return nil
}

func (v *QueryValidator) validateFilter(entity string, filter sigmaql.Filter) error {
	for _, ff := range filter {
		if err := v.registry.AssertFieldExists(entity, ff.Field); err != nil {
			return err
		}
		if len(ff.Predicates) == 0 {
			return sigmaql.NewInvalidQueryError(fmt.Sprintf("filter for field '%s' is empty", ff.Field)).
				WithEntity(entity).
				WithField(ff.Field)
		}
		for _, p := range ff.Predicates {
			op, err := sigmaql.ResolveOperator(p.Operator)
			if err != nil {
				if qe, ok := sigmaql.AsQueryError(err); ok {
					return qe.WithEntity(entity).WithField(ff.Field)
				}
				return err
			}
			if err := op.CheckValue(ff.Field, p.Value); err != nil {
				if qe, ok := sigmaql.AsQueryError(err); ok {
					return qe.WithEntity(entity).WithDetail("operator", string(op))
				}
				return err
			}
		}
	}
	return nil
}

func (v *QueryValidator) validateInclude(entity string, include sigmaql.Includes, depth int) error {
	for _, inc := range include {
		if strings.TrimSpace(inc.Relation) == "" {
			return sigmaql.NewInvalidQueryError("include has an empty relation key").WithEntity(entity)
		}
		if inc.Node == nil {
			return sigmaql.NewInvalidQueryError(fmt.Sprintf("include.%s is null", inc.Relation)).
				WithEntity(entity)
		}

		rel, err := v.registry.GetRelation(entity, inc.Relation)
		if err != nil {
			return err
		}

		prefix := "include." + inc.Relation
		childDepth := depth + 1
		if v.maxIncludeDepth > 0 && childDepth > v.maxIncludeDepth {
			return sigmaql.NewQueryError(sigmaql.ErrorKindInvalidQuery, sigmaql.ErrCodeDepthExceeded,
				fmt.Sprintf("include depth exceeds the maximum of %d", v.maxIncludeDepth)).
				WithEntity(entity).
				WithDetail("maxDepth", v.maxIncludeDepth).
				WithPathPrefix(prefix)
		}

		if err := v.validateChild(rel.Target, inc.Node, childDepth); err != nil {
			if qe, ok := sigmaql.AsQueryError(err); ok {
				return qe.WithPathPrefix(prefix)
			}
			return err
		}
	}
	return nil
}

// validateChild validates an included node, then its own paging and ordering
// against the relation target.
func (v *QueryValidator) validateChild(entity string, node *sigmaql.QueryNode, depth int) error {
	if err := v.validateQuery(entity, node, depth); err != nil {
		return err
	}
	if err := validatePaging(node.Limit, node.Offset); err != nil {
		return err
	}
	return v.validateOrderBy(entity, node.OrderBy)
}

func validatePaging(limit, offset *int) error {
	if limit != nil && *limit <= 0 {
		return sigmaql.NewInvalidQueryError("limit must be > 0").WithDetail("limit", *limit)
	}
	if offset != nil && *offset < 0 {
		return sigmaql.NewInvalidQueryError("offset must be >= 0").WithDetail("offset", *offset)
	}
	return nil
}

func (v *QueryValidator) validateOrderBy(entity string, orderBy sigmaql.OrderByList) error {
	for i, ob := range orderBy {
		if ob == nil {
			return sigmaql.NewInvalidQueryError(fmt.Sprintf("orderBy[%d] is null", i)).WithDetail("index", i)
		}
		if strings.TrimSpace(ob.Field) == "" {
			return sigmaql.NewInvalidQueryError(fmt.Sprintf("orderBy[%d].field is empty", i)).WithDetail("index", i)
		}
		if err := v.registry.AssertFieldExists(entity, ob.Field); err != nil {
			return err
		}
		if strings.TrimSpace(string(ob.Direction)) == "" {
			return sigmaql.NewInvalidQueryError(fmt.Sprintf("orderBy[%d].direction is empty", i)).
				WithDetail("index", i)
		}
		if !ob.Direction.Valid() {
			return sigmaql.NewInvalidQueryError(fmt.Sprintf("orderBy[%d].direction must be 'asc' or 'desc'", i)).
				WithField(ob.Field).
				WithDetail("index", i)
		}
	}
	return nil
}
