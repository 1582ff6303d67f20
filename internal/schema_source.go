package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/lychee-technology/sigmaql"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SchemaSource reads the schema document once at startup.
type SchemaSource interface {
	Load(ctx context.Context) (*sigmaql.SchemaRoot, error)
}

// DocumentFormat is the encoding of a raw schema document.
type DocumentFormat string

const (
	FormatJSON DocumentFormat = "json"
	FormatYAML DocumentFormat = "yaml"
)

// FormatFromPath picks the document format from a file name or object key.
func FormatFromPath(path string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// documentSchema is the structural contract every schema document must meet
// before it is decoded into the typed model.
const documentSchema = `{
	"type": "object",
	"required": ["entities"],
	"properties": {
		"entities": {
			"type": "object",
			"minProperties": 1,
			"additionalProperties": {
				"type": "object",
				"required": ["fields"],
				"properties": {
					"table": {"type": "string"},
					"primaryKey": {"type": "string"},
					"fields": {
						"type": "array",
						"minItems": 1,
						"uniqueItems": true,
						"items": {"type": "string", "minLength": 1}
					},
					"relations": {
						"type": "object",
						"additionalProperties": {
							"type": "object",
							"required": ["target"],
							"properties": {
								"type": {"type": "string"},
								"target": {"type": "string", "minLength": 1},
								"localKey": {"type": "string"},
								"foreignKey": {"type": "string"}
							}
						}
					}
				}
			}
		}
	}
}`

var (
	documentSchemaOnce     sync.Once
	documentSchemaResolved *jsonschema.Resolved
	documentSchemaErr      error
)

func resolvedDocumentSchema() (*jsonschema.Resolved, error) {
	documentSchemaOnce.Do(func() {
		var schema jsonschema.Schema
		if err := json.Unmarshal([]byte(documentSchema), &schema); err != nil {
			documentSchemaErr = fmt.Errorf("failed to unmarshal into jsonschema.Schema: %w", err)
			return
		}
		documentSchemaResolved, documentSchemaErr = schema.Resolve(&jsonschema.ResolveOptions{})
	})
	return documentSchemaResolved, documentSchemaErr
}

// ParseSchemaDocument checks a raw document against the structural contract
// and decodes it into a SchemaRoot.
func ParseSchemaDocument(data []byte, format DocumentFormat) (*sigmaql.SchemaRoot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaEmpty, "schema document is empty", nil)
	}

	var instance any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &instance); err != nil {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
				fmt.Sprintf("failed to parse YAML schema document: %v", err), err)
		}
		// Re-encode so YAML and JSON documents share one decode path.
		normalized, err := json.Marshal(instance)
		if err != nil {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
				fmt.Sprintf("failed to normalize YAML schema document: %v", err), err)
		}
		data = normalized
		instance = nil
		if err := json.Unmarshal(data, &instance); err != nil {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
				fmt.Sprintf("failed to parse schema document: %v", err), err)
		}
	default:
		if err := json.Unmarshal(data, &instance); err != nil {
			return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
				fmt.Sprintf("failed to parse JSON schema document: %v", err), err)
		}
	}

	resolved, err := resolvedDocumentSchema()
	if err != nil {
		return nil, sigmaql.NewInternalError("failed to resolve schema document contract", err)
	}
	if err := resolved.Validate(instance); err != nil {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
			fmt.Sprintf("schema document validation failed: %v", err), err)
	}

	var root sigmaql.SchemaRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaInvalid,
			fmt.Sprintf("failed to decode schema document: %v", err), err)
	}
	return &root, nil
}

// FileSchemaSource loads a JSON or YAML schema document from disk.
type FileSchemaSource struct {
	path string
}

func NewFileSchemaSource(path string) *FileSchemaSource {
	return &FileSchemaSource{path: path}
}

func (s *FileSchemaSource) Load(ctx context.Context) (*sigmaql.SchemaRoot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, sigmaql.NewSchemaError(sigmaql.ErrCodeSchemaLoadFailed,
			fmt.Sprintf("failed to read schema file %s", s.path), err)
	}

	root, err := ParseSchemaDocument(data, FormatFromPath(s.path))
	if err != nil {
		return nil, err
	}
	zap.S().Infow("schema loaded from file", "path", s.path, "entities", len(root.Entities))
	return root, nil
}
