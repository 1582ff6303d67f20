package sigmaql

import (
	"strings"
)

// SortDirection is the normalized orderBy direction.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Valid reports whether d is asc or desc, ignoring case.
func (d SortDirection) Valid() bool {
	switch d.Normalize() {
	case SortAsc, SortDesc:
		return true
	}
	return false
}

// Normalize lowercases the direction.
func (d SortDirection) Normalize() SortDirection {
	return SortDirection(strings.ToLower(string(d)))
}

// OrderBy is one {field, direction} ordering entry.
type OrderBy struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// OrderByList keeps nil entries so that a null element in the payload is
// reported by index during validation.
type OrderByList []*OrderBy

// Predicate is one operatorKey → value pair inside a field filter.
type Predicate struct {
	Operator string
	Value    any
}

// FieldFilter holds every predicate applied to one field, in payload order.
// A nil Predicates slice means the payload carried null or {}.
type FieldFilter struct {
	Field      string
	Predicates []Predicate
}

// Filter is the field → operator → value mapping, in payload order.
type Filter []FieldFilter

// Include is a nested query against a relation of the parent entity.
// Node is nil when the payload carried null.
type Include struct {
	Relation string
	Node     *QueryNode
}

// Includes is the relation → child mapping, in payload order.
type Includes []Include

// Get returns the child node for relation.
func (in Includes) Get(relation string) (*QueryNode, bool) {
	for _, inc := range in {
		if inc.Relation == relation {
			return inc.Node, true
		}
	}
	return nil, false
}

// QueryNode is the recursive request unit. It carries no entity; the
// validator derives the entity from the parent relation's target.
type QueryNode struct {
	Fields  []string    `json:"fields"`
	Filter  Filter      `json:"filter,omitempty"`
	Include Includes    `json:"include,omitempty"`
	Limit   *int        `json:"limit,omitempty"`
	Offset  *int        `json:"offset,omitempty"`
	OrderBy OrderByList `json:"orderBy,omitempty"`
}

// QueryRequest is the root of a client query.
type QueryRequest struct {
	Entity string `json:"entity"`
	QueryNode
}

// IncludeDepth returns the deepest include level below n. A node without
// includes has depth 0.
func (n *QueryNode) IncludeDepth() int {
	if n == nil {
		return 0
	}
	deepest := 0
	for _, inc := range n.Include {
		if inc.Node == nil {
			continue
		}
		if d := inc.Node.IncludeDepth() + 1; d > deepest {
			deepest = d
		}
	}
	return deepest
}
