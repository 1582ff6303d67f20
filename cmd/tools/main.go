package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sigmaql-tools",
		Short:         "Schema and query tooling for SigmaQL",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newCheckSchemaCommand())
	cmd.AddCommand(newValidateQueryCommand())
	cmd.AddCommand(newInitDBCommand())
	cmd.AddCommand(newPublishSchemaCommand())
	return cmd
}
