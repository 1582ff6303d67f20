package sigmaql

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var errNotObject = errors.New("expected a JSON object")

// DecodeQueryRequest reads a JSON query payload. Every decode failure is an
// invalid_query error; orderBy entries with the wrong shape are rejected here.
func DecodeQueryRequest(r io.Reader) (*QueryRequest, error) {
	return DecodeQueryRequestWithMaxDepth(r, 0)
}

// DecodeQueryRequestWithMaxDepth is DecodeQueryRequest with a bound on include
// nesting. The bound is checked while decoding, so an over-deep payload is
// rejected before the rest of it is materialized. 0 disables the bound.
func DecodeQueryRequestWithMaxDepth(r io.Reader, maxIncludeDepth int) (*QueryRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewInvalidPayloadError(err)
	}
	return ParseQueryRequestWithMaxDepth(data, maxIncludeDepth)
}

// ParseQueryRequest is DecodeQueryRequest for an in-memory payload.
func ParseQueryRequest(data []byte) (*QueryRequest, error) {
	return ParseQueryRequestWithMaxDepth(data, 0)
}

// ParseQueryRequestWithMaxDepth is DecodeQueryRequestWithMaxDepth for an
// in-memory payload.
func ParseQueryRequestWithMaxDepth(data []byte, maxIncludeDepth int) (*QueryRequest, error) {
	if len(bytes.TrimSpace(data)) == 0 || isJSONNull(data) {
		return nil, NewInvalidQueryError("query body is missing")
	}
	// Syntax errors win over structural ones, as with json.Unmarshal.
	if !json.Valid(data) {
		return nil, NewInvalidPayloadError(json.Unmarshal(data, new(json.RawMessage)))
	}

	d := newQueryDecoder(data, maxIncludeDepth)
	req, err := d.request()
	if err != nil {
		return nil, asDecodeError(err)
	}
	return req, nil
}

// queryDecoder walks the whole payload in a single streaming pass. Nested
// nodes are read from the same token stream, never re-parsed from raw bytes.
type queryDecoder struct {
	dec      *json.Decoder
	maxDepth int
}

func newQueryDecoder(data []byte, maxDepth int) *queryDecoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &queryDecoder{dec: dec, maxDepth: maxDepth}
}

func (d *queryDecoder) request() (*QueryRequest, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, NewInvalidPayloadError(errors.New("query must be a JSON object"))
	}

	var req QueryRequest
	err = d.members(func(key string) error {
		if key == "entity" {
			return d.dec.Decode(&req.Entity)
		}
		return d.nodeMember(&req.QueryNode, key, 0)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// node decodes the body of a query node whose opening brace was consumed.
func (d *queryDecoder) node(depth int) (*QueryNode, error) {
	var node QueryNode
	err := d.members(func(key string) error {
		return d.nodeMember(&node, key, depth)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (d *queryDecoder) nodeMember(node *QueryNode, key string, depth int) error {
	switch key {
	case "fields":
		node.Fields = nil
		return d.dec.Decode(&node.Fields)
	case "filter":
		filter, err := d.filter()
		if err != nil {
			return err
		}
		node.Filter = filter
	case "include":
		include, err := d.includes(depth)
		if err != nil {
			return err
		}
		node.Include = include
	case "limit":
		node.Limit = nil
		return d.dec.Decode(&node.Limit)
	case "offset":
		node.Offset = nil
		return d.dec.Decode(&node.Offset)
	case "orderBy":
		var raw json.RawMessage
		if err := d.dec.Decode(&raw); err != nil {
			return err
		}
		var list OrderByList
		if err := list.UnmarshalJSON(raw); err != nil {
			return err
		}
		node.OrderBy = list
	default:
		var skip json.RawMessage
		return d.dec.Decode(&skip)
	}
	return nil
}

// members calls fn for every key of the current object, leaving the decoder
// positioned on the member's value. It consumes the closing brace.
func (d *queryDecoder) members(fn func(key string) error) error {
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	_, err := d.dec.Token()
	return err
}

// openObject reads the first token of a value. It reports null as
// (false, nil) and anything other than an object as errNotObject.
func (d *queryDecoder) openObject() (bool, error) {
	tok, err := d.dec.Token()
	if err != nil {
		return false, err
	}
	if tok == nil {
		return false, nil
	}
	if delim, ok := tok.(json.Delim); ok && delim == '{' {
		return true, nil
	}
	return false, errNotObject
}

// filter decodes a field → operator → value object. A repeated key replaces
// the earlier value in its original position.
func (d *queryDecoder) filter() (Filter, error) {
	open, err := d.openObject()
	if errors.Is(err, errNotObject) {
		return nil, NewInvalidQueryError("filter must be an object")
	}
	if err != nil || !open {
		return nil, err
	}

	var out Filter
	seen := make(map[string]int)
	err = d.members(func(field string) error {
		predicates, err := d.predicates(field)
		if err != nil {
			return err
		}
		if i, dup := seen[field]; dup {
			out[i].Predicates = predicates
			return nil
		}
		seen[field] = len(out)
		out = append(out, FieldFilter{Field: field, Predicates: predicates})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *queryDecoder) predicates(field string) ([]Predicate, error) {
	open, err := d.openObject()
	if errors.Is(err, errNotObject) {
		return nil, NewInvalidQueryError(fmt.Sprintf("filter for field '%s' must be an object", field)).
			WithField(field)
	}
	if err != nil || !open {
		return nil, err
	}

	var out []Predicate
	seen := make(map[string]int)
	err = d.members(func(op string) error {
		var v any
		if err := d.dec.Decode(&v); err != nil {
			return err
		}
		if i, dup := seen[op]; dup {
			out[i].Value = v
			return nil
		}
		seen[op] = len(out)
		out = append(out, Predicate{Operator: op, Value: v})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// includes decodes the relation → child object of a node at depth. A
// repeated relation replaces the earlier child in its original position.
func (d *queryDecoder) includes(depth int) (Includes, error) {
	open, err := d.openObject()
	if errors.Is(err, errNotObject) {
		return nil, NewInvalidQueryError("include must be an object")
	}
	if err != nil || !open {
		return nil, err
	}

	var out Includes
	seen := make(map[string]int)
	err = d.members(func(relation string) error {
		prefix := "include." + relation
		open, err := d.openObject()
		if errors.Is(err, errNotObject) {
			return NewInvalidPayloadError(errors.New("query node must be a JSON object")).WithPathPrefix(prefix)
		}
		if err != nil {
			return asDecodeError(err).WithPathPrefix(prefix)
		}

		var child *QueryNode
		if open {
			childDepth := depth + 1
			if d.maxDepth > 0 && childDepth > d.maxDepth {
				return NewQueryError(ErrorKindInvalidQuery, ErrCodeDepthExceeded,
					fmt.Sprintf("include depth exceeds the maximum of %d", d.maxDepth)).
					WithDetail("maxDepth", d.maxDepth).
					WithPathPrefix(prefix)
			}
			child, err = d.node(childDepth)
			if err != nil {
				return asDecodeError(err).WithPathPrefix(prefix)
			}
		}

		if i, dup := seen[relation]; dup {
			out[i].Node = child
			return nil
		}
		seen[relation] = len(out)
		out = append(out, Include{Relation: relation, Node: child})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func asDecodeError(err error) *QueryError {
	if qe, ok := AsQueryError(err); ok {
		return qe
	}
	return NewInvalidPayloadError(err)
}

// UnmarshalJSON decodes the filter object keeping field and operator order.
func (f *Filter) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*f = nil
		return nil
	}
	out, err := newQueryDecoder(data, 0).filter()
	if err != nil {
		return err
	}
	*f = out
	return nil
}

// MarshalJSON encodes the filter back into its object form.
func (f Filter) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ff := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, ff.Field); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for j, p := range ff.Predicates {
			if j > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, p.Operator); err != nil {
				return nil, err
			}
			v, err := json.Marshal(p.Value)
			if err != nil {
				return nil, err
			}
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the include object keeping relation order.
func (in *Includes) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*in = nil
		return nil
	}
	out, err := newQueryDecoder(data, 0).includes(0)
	if err != nil {
		return err
	}
	*in = out
	return nil
}

// MarshalJSON encodes includes back into their object form.
func (in Includes) MarshalJSON() ([]byte, error) {
	if in == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, inc := range in {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, inc.Relation); err != nil {
			return nil, err
		}
		v, err := json.Marshal(inc.Node)
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON builds typed orderBy entries. Null entries stay nil so the
// validator can report them by index.
func (l *OrderByList) UnmarshalJSON(data []byte) error {
	if isJSONNull(data) {
		*l = nil
		return nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return NewInvalidQueryError("orderBy must be an array").WithCause(err)
	}

	list := make(OrderByList, len(raws))
	for i, raw := range raws {
		if isJSONNull(raw) {
			continue
		}
		ob, err := decodeOrderBy(raw)
		if err != nil {
			return NewInvalidQueryError(fmt.Sprintf("orderBy[%d] has invalid structure", i)).
				WithDetail("index", i).
				WithCause(err)
		}
		list[i] = ob
	}

	*l = list
	return nil
}

// decodeOrderBy accepts exactly an object with string-valued field and
// direction attributes. Missing attributes decode as empty strings.
func decodeOrderBy(raw json.RawMessage) (*OrderBy, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}

	var entry struct {
		Field     *string `json:"field"`
		Direction *string `json:"direction"`
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entry); err != nil {
		return nil, err
	}

	ob := &OrderBy{}
	if entry.Field != nil {
		ob.Field = *entry.Field
	}
	if entry.Direction != nil {
		ob.Direction = SortDirection(*entry.Direction)
	}
	return ob, nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	return nil
}

func isJSONNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}
