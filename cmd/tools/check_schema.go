package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lychee-technology/sigmaql"
	"github.com/lychee-technology/sigmaql/internal"
	"github.com/spf13/cobra"
)

func newCheckSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-schema <schema-file>",
		Short: "Check a JSON or YAML schema document and print its entities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSchemaSummary(cmd.OutOrStdout(), registry)
		},
	}
}

// loadRegistry reads a schema file the same way the server does at startup.
func loadRegistry(ctx context.Context, path string) (sigmaql.SchemaRegistry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	root, err := internal.NewFileSchemaSource(path).Load(ctx)
	if err != nil {
		return nil, err
	}
	return internal.NewSchemaRegistry(root)
}

func printSchemaSummary(w io.Writer, registry sigmaql.SchemaRegistry) error {
	names := registry.ListEntities()
	fmt.Fprintf(w, "schema OK: %d entities\n", len(names))
	for _, name := range names {
		entity, err := registry.GetEntity(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s (table %s, primary key %s)\n", name, orDash(entity.Table), orDash(entity.PrimaryKey))
		fmt.Fprintf(w, "  fields: %s\n", strings.Join(entity.Fields, ", "))

		relNames := make([]string, 0, len(entity.Relations))
		for rel := range entity.Relations {
			relNames = append(relNames, rel)
		}
		sort.Strings(relNames)
		for _, rel := range relNames {
			r := entity.Relations[rel]
			fmt.Fprintf(w, "  relation %s -> %s (%s)\n", rel, r.Target, orDash(string(r.Type)))
		}
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
