package internal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lychee-technology/sigmaql"
	"go.uber.org/zap"
)

// schemaRegistry is an immutable in-memory SchemaRegistry. All maps are
// populated by NewSchemaRegistry and never written afterwards, so lookups
// need no locking.
type schemaRegistry struct {
	entities map[string]sigmaql.EntitySchema
	fieldSet map[string]map[string]struct{}
	names    []string
}

// NewSchemaRegistry builds a registry from a decoded schema document.
// Structural problems are reported as schema errors and are fatal at startup.
func NewSchemaRegistry(root *sigmaql.SchemaRoot) (sigmaql.SchemaRegistry, error) {
	if root == nil || len(root.Entities) == 0 {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaEmpty, "schema declares no entities", nil)
	}

	registry := &schemaRegistry{
		entities: make(map[string]sigmaql.EntitySchema, len(root.Entities)),
		fieldSet: make(map[string]map[string]struct{}, len(root.Entities)),
		names:    make([]string, 0, len(root.Entities)),
	}

	for name, entity := range root.Entities {
		if strings.TrimSpace(name) == "" {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid, "entity name is empty", nil)
		}
		if len(entity.Fields) == 0 {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
				fmt.Sprintf("entity '%s' declares no fields", name), nil).WithEntity(name)
		}

		fields := make(map[string]struct{}, len(entity.Fields))
		for i, field := range entity.Fields {
			if strings.TrimSpace(field) == "" {
				return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
					fmt.Sprintf("entity '%s' fields[%d] is empty", name, i), nil).WithEntity(name)
			}
			if _, dup := fields[field]; dup {
				return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
					fmt.Sprintf("entity '%s' declares field '%s' more than once", name, field), nil).
					WithEntity(name).
					WithField(field)
			}
			fields[field] = struct{}{}
		}

		registry.entities[name] = entity.Clone()
		registry.fieldSet[name] = fields
		registry.names = append(registry.names, name)
	}

	// Relation targets can only be checked once every entity is known.
	for name, entity := range registry.entities {
		for relName, rel := range entity.Relations {
			if strings.TrimSpace(relName) == "" {
				return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
					fmt.Sprintf("entity '%s' has a relation with an empty name", name), nil).WithEntity(name)
			}
			if _, ok := registry.entities[rel.Target]; !ok {
				return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
					fmt.Sprintf("relation '%s.%s' targets unknown entity '%s'", name, relName, rel.Target), nil).
					WithEntity(name).
					WithDetail("relation", relName)
			}
		}
	}

	sort.Strings(registry.names)

	zap.S().Debugw("schema registry built", "entities", len(registry.names))
	return registry, nil
}

// GetEntity returns a copy so callers cannot mutate registry state.
func (r *schemaRegistry) GetEntity(name string) (sigmaql.EntitySchema, error) {
	entity, ok := r.entities[name]
	if !ok {
		return sigmaql.EntitySchema{}, sigmaql.NewUnknownEntityError(name)
	}
	return entity.Clone(), nil
}

func (r *schemaRegistry) AssertFieldExists(entity, field string) error {
	fields, ok := r.fieldSet[entity]
	if !ok {
		return sigmaql.NewUnknownEntityError(entity)
	}
	if _, ok := fields[field]; !ok {
		return sigmaql.NewUnknownFieldError(entity, field)
	}
	return nil
}

func (r *schemaRegistry) GetRelation(entity, relation string) (sigmaql.RelationSchema, error) {
	schema, ok := r.entities[entity]
	if !ok {
		return sigmaql.RelationSchema{}, sigmaql.NewUnknownEntityError(entity)
	}
	rel, ok := schema.Relations[relation]
	if !ok {
		return sigmaql.RelationSchema{}, sigmaql.NewUnknownRelationError(entity, relation)
	}
	return rel, nil
}

func (r *schemaRegistry) GetTable(entity string) (string, error) {
	schema, ok := r.entities[entity]
	if !ok {
		return "", sigmaql.NewUnknownEntityError(entity)
	}
	return schema.Table, nil
}

func (r *schemaRegistry) GetPrimaryKey(entity string) (string, error) {
	schema, ok := r.entities[entity]
	if !ok {
		return "", sigmaql.NewUnknownEntityError(entity)
	}
	return schema.PrimaryKey, nil
}

// ListEntities returns all entity names in sorted order.
func (r *schemaRegistry) ListEntities() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
