package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/database"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Field string
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one record",
		Long: `Print the record stored under key, decoded, with its key.

With --field only the value at that dotted path is printed.

Example:
  basekit get rex
  basekit get rex --field owner.name --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Field, "field", "", "print only this dotted field path")

	return cmd
}

func runGet(opts *GetOptions, key string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	sess, err := openSession(cmd, opts.RootOptions, "")
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer sess.Close()

	rec, err := sess.db.Get(cmd.Context(), key)
	if err != nil {
		return formatter.Fail("failed to get record", err)
	}

	data, err := rec.Data(cmd.Context())
	if err != nil {
		return formatter.Fail("failed to read record", err)
	}

	if opts.Field != "" {
		v, ok := value.Lookup(data, opts.Field)
		if !ok {
			return formatter.Fail("failed to read field",
				&database.FieldError{Key: key, Path: opts.Field, Err: database.ErrFieldNotFound})
		}
		return formatter.Value(v)
	}
	return formatter.Record(store.WithKey(rec.Key(), data))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
