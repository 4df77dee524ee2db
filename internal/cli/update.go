package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/store"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Show bool
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <key> <json|->",
		Short: "Apply partial changes to a record",
		Long: `Apply an update to an existing record without rewriting it.

The update is a JSON object with any of the sections set, increment,
append, prepend (objects keyed by dotted field path) and delete (a list of
paths).

Example:
  basekit update rex '{"set":{"owner.name":"ana"},"increment":{"visits":1}}'
  basekit update rex '{"append":{"tags":["loud"]},"delete":["vet"]}' --show`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Show, "show", false, "print the record after the update")

	return cmd
}

func runUpdate(opts *UpdateOptions, key, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	obj, err := readObject(cmd, arg)
	if err != nil {
		return formatter.Fail("failed to read update", err)
	}
	upd, err := store.UpdateFromObject(obj)
	if err != nil {
		return formatter.Fail("failed to read update", err)
	}

	sess, err := openSession(cmd, opts.RootOptions, "")
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer sess.Close()

	if err := sess.db.Update(cmd.Context(), key, upd); err != nil {
		return formatter.Fail("failed to update record", err)
	}

	if !opts.Show {
		if formatter.Format == "json" {
			return formatter.Success(map[string]string{"key": key})
		}
		return formatter.Success("updated " + key)
	}

	rec, err := sess.db.Get(cmd.Context(), key)
	if err != nil {
		return formatter.Fail("failed to get record", err)
	}
	data, err := rec.Data(cmd.Context())
	if err != nil {
		return formatter.Fail("failed to read record", err)
	}
	return formatter.Record(store.WithKey(key, data))
}
