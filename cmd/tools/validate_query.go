package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lychee-technology/sigmaql"
	"github.com/lychee-technology/sigmaql/internal"
	"github.com/spf13/cobra"
)

type validateQueryOptions struct {
	schemaFile string
	maxDepth   int
	format     string
}

func newValidateQueryCommand() *cobra.Command {
	opts := &validateQueryOptions{}

	cmd := &cobra.Command{
		Use:   "validate-query <query-file|->",
		Short: "Validate a query payload against a schema document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateQuery(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.schemaFile, "schema", "schema.json", "path to the schema document")
	cmd.Flags().IntVar(&opts.maxDepth, "max-depth", sigmaql.DefaultConfig().Validation.MaxIncludeDepth, "maximum include depth, 0 disables the bound")
	cmd.Flags().StringVar(&opts.format, "format", "text", "output format (json|text)")
	return cmd
}

// queryResponse is the json output of validate-query. It has the same shape
// as the envelope written by POST /api/v1/query.
type queryResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code,omitempty"`
	Path    string `json:"path,omitempty"`
}

func runValidateQuery(cmd *cobra.Command, opts *validateQueryOptions, queryFile string) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("invalid format %q: must be one of [text json]", opts.format)
	}

	registry, err := loadRegistry(cmd.Context(), opts.schemaFile)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if queryFile != "-" {
		f, err := os.Open(queryFile)
		if err != nil {
			return fmt.Errorf("open query file: %w", err)
		}
		defer f.Close()
		in = f
	}

	req, validationErr := validateQuery(registry, opts.maxDepth, in)
	if validationErr != nil {
		if _, ok := sigmaql.AsQueryError(validationErr); !ok {
			return validationErr
		}
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		resp := queryResponse{Success: validationErr == nil, Data: req}
		if qe, ok := sigmaql.AsQueryError(validationErr); ok {
			resp = queryResponse{Error: qe.Message, Kind: string(qe.Kind), Code: qe.Code, Path: qe.Path}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else if validationErr == nil {
		fmt.Fprintln(out, "query OK")
	} else {
		fmt.Fprintln(out, validationErr.Error())
	}

	if validationErr != nil {
		return fmt.Errorf("query rejected: %s", sigmaql.KindOf(validationErr))
	}
	return nil
}

func validateQuery(registry sigmaql.SchemaRegistry, maxDepth int, in io.Reader) (*sigmaql.QueryRequest, error) {
	req, err := sigmaql.DecodeQueryRequestWithMaxDepth(in, maxDepth)
	if err != nil {
		return nil, err
	}
	if err := internal.NewQueryValidator(registry, maxDepth).Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}
