package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "plain table", input: "sigmaql_schema", expected: `"sigmaql_schema"`},
		{name: "schema qualified", input: "public.sigmaql_schema", expected: `"public"."sigmaql_schema"`},
		{name: "trim quotes and spaces", input: `  "meta" . "entities"  `, expected: `"meta"."entities"`},
		{name: "embedded quote is escaped", input: `bad"; drop table x; --`, expected: `"bad""; drop table x; --"`},
		{name: "all empty parts fallback", input: "...", expected: `"..."`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeIdentifier(tt.input))
		})
	}
}
