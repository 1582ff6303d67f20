package sigmaql

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator is a filter comparison or membership operator.
type Operator string

const (
	OperatorEq      Operator = "eq"
	OperatorNeq     Operator = "neq"
	OperatorGt      Operator = "gt"
	OperatorGte     Operator = "gte"
	OperatorLt      Operator = "lt"
	OperatorLte     Operator = "lte"
	OperatorIn      Operator = "in"
	OperatorBetween Operator = "between"
)

// Operators lists the closed operator set in catalog order.
var Operators = []Operator{
	OperatorEq,
	OperatorNeq,
	OperatorGt,
	OperatorGte,
	OperatorLt,
	OperatorLte,
	OperatorIn,
	OperatorBetween,
}

// ResolveOperator matches key case-insensitively against the catalog.
// A blank or unknown key is an invalid_operator error, never a default.
func ResolveOperator(key string) (Operator, error) {
	if strings.TrimSpace(key) == "" {
		return "", NewInvalidOperatorError("", "operator is empty")
	}
	for _, op := range Operators {
		if strings.EqualFold(string(op), key) {
			return op, nil
		}
	}
	return "", NewInvalidOperatorError("", "unknown operator: "+key).WithDetail("operator", key)
}

// CheckValue enforces the operator's value-shape contract for a filter on field.
// Type compatibility with the field is not checked.
func (o Operator) CheckValue(field string, value any) error {
	if isNull(value) {
		return NewInvalidFilterValueError(field, fmt.Sprintf("filter value is null for field '%s'", field))
	}

	switch o {
	case OperatorIn:
		if n, ok := sequenceLen(value); !ok || n == 0 {
			return NewInvalidFilterValueError(field,
				fmt.Sprintf("operator 'in' requires a non-empty array for field '%s'", field))
		}
	case OperatorBetween:
		if n, ok := sequenceLen(value); !ok || n != 2 {
			return NewInvalidFilterValueError(field,
				fmt.Sprintf("operator 'between' requires an array with 2 values for field '%s'", field))
		}
	}
	return nil
}

func isNull(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// sequenceLen reports the element count of slice and array values.
// Strings and byte slices are scalars here.
func sequenceLen(value any) (int, bool) {
	switch v := value.(type) {
	case []any:
		return len(v), true
	case []byte:
		return 0, false
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len(), true
	}
	return 0, false
}
