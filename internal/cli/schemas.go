package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/drblury/livebridge/internal/runtime/dbn"
)

// NewSchemasCommand lists the schema names accepted by subscriptions.
func NewSchemasCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "schemas",
		Short:         "List the known record schemas",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := dbn.SchemaNames()
			return opts.formatter(cmd).Success(strings.Join(names, "\n"), names)
		},
	}
}
