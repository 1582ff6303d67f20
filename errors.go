package sigmaql

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure so the transport can map it to a status.
type ErrorKind string

const (
	ErrorKindUnknownEntity      ErrorKind = "unknown_entity"
	ErrorKindUnknownField       ErrorKind = "unknown_field"
	ErrorKindUnknownRelation    ErrorKind = "unknown_relation"
	ErrorKindInvalidOperator    ErrorKind = "invalid_operator"
	ErrorKindInvalidFilterValue ErrorKind = "invalid_filter_value"
	ErrorKindInvalidQuery       ErrorKind = "invalid_query"
	ErrorKindSchema             ErrorKind = "schema"
	ErrorKindInternal           ErrorKind = "internal"
)

// IsClientError reports whether the kind describes a malformed client request.
func (k ErrorKind) IsClientError() bool {
	switch k {
	case ErrorKindUnknownEntity, ErrorKindUnknownField, ErrorKindUnknownRelation,
		ErrorKindInvalidOperator, ErrorKindInvalidFilterValue, ErrorKindInvalidQuery:
		return true
	default:
		return false
	}
}

// Error codes
const (
	ErrCodeUnknownEntity      = "UNKNOWN_ENTITY"
	ErrCodeUnknownField       = "UNKNOWN_FIELD"
	ErrCodeUnknownRelation    = "UNKNOWN_RELATION"
	ErrCodeInvalidOperator    = "INVALID_OPERATOR"
	ErrCodeInvalidFilterValue = "INVALID_FILTER_VALUE"
	ErrCodeInvalidQuery       = "INVALID_QUERY"
	ErrCodeInvalidPayload     = "INVALID_PAYLOAD"
	ErrCodeDepthExceeded      = "INCLUDE_DEPTH_EXCEEDED"

	ErrCodeSchemaLoadFailed = "SCHEMA_LOAD_FAILED"
	ErrCodeSchemaInvalid    = "SCHEMA_INVALID"
	ErrCodeSchemaEmpty      = "SCHEMA_EMPTY"

	ErrCodeInternalError = "INTERNAL_ERROR"
)

// QueryError is the single error type produced by schema lookups, query
// decoding and validation.
type QueryError struct {
	Kind    ErrorKind      `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Entity  string         `json:"entity,omitempty"`
	Field   string         `json:"field,omitempty"`
	Path    string         `json:"path,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *QueryError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("[%s:%s] at %s: %s", e.Kind, e.Code, e.Path, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to a QueryError
func (e *QueryError) WithDetail(key string, value any) *QueryError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a QueryError
func (e *QueryError) WithCause(cause error) *QueryError {
	e.Cause = cause
	return e
}

// WithEntity records the entity the failure was raised against.
func (e *QueryError) WithEntity(entity string) *QueryError {
	e.Entity = entity
	return e
}

// WithField adds field context to a QueryError
func (e *QueryError) WithField(field string) *QueryError {
	e.Field = field
	return e
}

// WithPathPrefix prepends an include path segment, e.g. "include.posts".
func (e *QueryError) WithPathPrefix(prefix string) *QueryError {
	if prefix == "" {
		return e
	}
	if e.Path == "" {
		e.Path = prefix
	} else {
		e.Path = prefix + "." + e.Path
	}
	return e
}

// NewQueryError creates a new QueryError
func NewQueryError(kind ErrorKind, code, message string) *QueryError {
	return &QueryError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewUnknownEntityError creates an unknown entity error
func NewUnknownEntityError(entity string) *QueryError {
	return &QueryError{
		Kind:    ErrorKindUnknownEntity,
		Code:    ErrCodeUnknownEntity,
		Message: "unknown entity: " + entity,
		Entity:  entity,
	}
}

// NewUnknownFieldError creates an unknown field error
func NewUnknownFieldError(entity, field string) *QueryError {
	return &QueryError{
		Kind:    ErrorKindUnknownField,
		Code:    ErrCodeUnknownField,
		Message: "unknown field: " + field,
		Entity:  entity,
		Field:   field,
	}
}

// NewUnknownRelationError creates an unknown relation error
func NewUnknownRelationError(entity, relation string) *QueryError {
	return &QueryError{
		Kind:    ErrorKindUnknownRelation,
		Code:    ErrCodeUnknownRelation,
		Message: "unknown relation: " + relation,
		Entity:  entity,
	}
}

// NewInvalidOperatorError creates an invalid operator error
func NewInvalidOperatorError(field, message string) *QueryError {
	return &QueryError{
		Kind:    ErrorKindInvalidOperator,
		Code:    ErrCodeInvalidOperator,
		Message: message,
		Field:   field,
	}
}

// NewInvalidFilterValueError creates an invalid filter value error
func NewInvalidFilterValueError(field, message string) *QueryError {
	return &QueryError{
		Kind:    ErrorKindInvalidFilterValue,
		Code:    ErrCodeInvalidFilterValue,
		Message: message,
		Field:   field,
	}
}

// NewInvalidQueryError creates a structural validation error
func NewInvalidQueryError(message string) *QueryError {
	return &QueryError{
		Kind:    ErrorKindInvalidQuery,
		Code:    ErrCodeInvalidQuery,
		Message: message,
	}
}

// NewInvalidPayloadError creates an error for a payload that cannot be decoded
func NewInvalidPayloadError(cause error) *QueryError {
	return &QueryError{
		Kind:    ErrorKindInvalidQuery,
		Code:    ErrCodeInvalidPayload,
		Message: fmt.Sprintf("invalid query payload: %v", cause),
		Cause:   cause,
	}
}

// NewSchemaError creates a load-time schema error
func NewSchemaError(code, message string, cause error) *QueryError {
	return &QueryError{
		Kind:    ErrorKindSchema,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *QueryError {
	return &QueryError{
		Kind:    ErrorKindInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
	}
}

// AsQueryError extracts a *QueryError from err's chain.
func AsQueryError(err error) (*QueryError, bool) {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or ErrorKindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if qe, ok := AsQueryError(err); ok {
		return qe.Kind
	}
	return ErrorKindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
