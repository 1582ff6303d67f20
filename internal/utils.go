package internal

import (
	"strings"

	"github.com/jackc/pgx/v5"
)

// sanitizeIdentifier quotes a possibly schema-qualified table name such as
// public.sigmaql_schema for interpolation into SQL.
func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	var parts []string
	for _, part := range strings.Split(name, ".") {
		if trimmed := strings.Trim(part, " \""); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		parts = []string{name}
	}
	return pgx.Identifier(parts).Sanitize()
}
