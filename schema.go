package sigmaql

import (
	"maps"
	"slices"
)

// RelationType is an opaque relation kind tag. The validator never
// interprets it; it is carried for the execution stage.
type RelationType string

const (
	RelationOneToOne  RelationType = "one-to-one"
	RelationOneToMany RelationType = "one-to-many"
	RelationManyToOne RelationType = "many-to-one"
)

// RelationSchema describes one named relation from an owning entity to a target entity.
type RelationSchema struct {
	Type       RelationType `json:"type" yaml:"type"`
	Target     string       `json:"target" yaml:"target"`
	LocalKey   string       `json:"localKey" yaml:"localKey"`
	ForeignKey string       `json:"foreignKey" yaml:"foreignKey"`
}

// EntitySchema describes one queryable entity.
type EntitySchema struct {
	Table      string                    `json:"table" yaml:"table"`
	PrimaryKey string                    `json:"primaryKey" yaml:"primaryKey"`
	Fields     []string                  `json:"fields" yaml:"fields"`
	Relations  map[string]RelationSchema `json:"relations,omitempty" yaml:"relations,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate registry state.
func (e EntitySchema) Clone() EntitySchema {
	return EntitySchema{
		Table:      e.Table,
		PrimaryKey: e.PrimaryKey,
		Fields:     slices.Clone(e.Fields),
		Relations:  maps.Clone(e.Relations),
	}
}

// SchemaRoot is the top-level schema document.
type SchemaRoot struct {
	Entities map[string]EntitySchema `json:"entities" yaml:"entities"`
}
