package sigmaql

// SchemaRegistry provides read-only schema lookups.
// Implementations are built once at startup and must be safe for concurrent
// use without external locking.
type SchemaRegistry interface {
	// GetEntity returns the entity schema or an unknown_entity error.
	GetEntity(name string) (EntitySchema, error)
	// AssertFieldExists fails with unknown_entity or unknown_field.
	AssertFieldExists(entity, field string) error
	// GetRelation fails with unknown_entity or unknown_relation.
	GetRelation(entity, relation string) (RelationSchema, error)
	GetTable(entity string) (string, error)
	GetPrimaryKey(entity string) (string, error)
	// ListEntities returns all registered entity names, sorted.
	ListEntities() []string
}
