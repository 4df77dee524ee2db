package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/database"
	"github.com/roach88/basekit/internal/schema"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// WriteOptions holds flags for the put and insert commands.
type WriteOptions struct {
	*RootOptions
	Key    string
	Schema string
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return newWriteCommand(rootOpts, "put", "Create or replace a record",
		`Store a JSON object as a record, replacing any record with the same key.

The key comes from --key, else from the object's "key" field, else it is
generated. Pass "-" to read the object from stdin.

Example:
  basekit put '{"key":"rex","name":"Rex","age":4}'
  basekit put --key rex - < rex.json`)
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	return newWriteCommand(rootOpts, "insert", "Create a record that must not exist yet",
		`Store a JSON object as a new record. Fails if the key is already used.

The key comes from --key, else from the object's "key" field, else it is
generated. Pass "-" to read the object from stdin.

Example:
  basekit insert '{"name":"Rex"}'`)
}

func newWriteCommand(rootOpts *RootOptions, use, short, long string) *cobra.Command {
	opts := &WriteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           use + " <json|->",
		Short:         short,
		Long:          long,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(opts, use == "insert", args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "record key")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema file the record must satisfy")

	return cmd
}

func runWrite(opts *WriteOptions, insert bool, arg string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	data, err := readObject(cmd, arg)
	if err != nil {
		return formatter.Fail("failed to read record", err)
	}
	key := opts.Key
	if key == "" {
		if k, ok := data[store.KeyField].(value.String); ok {
			key = string(k)
		}
	}
	data = store.WithoutKey(data)

	var dbOpts []database.Option
	if opts.Schema != "" {
		s, err := schema.Load(opts.Schema, "")
		if err != nil {
			return formatter.Fail("failed to load schema", invalidInput("%v", err))
		}
		dbOpts = append(dbOpts, database.WithSchema(s))
	}

	sess, err := openSession(cmd, opts.RootOptions, "", dbOpts...)
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer sess.Close()

	var rec *database.Record
	if insert {
		rec, err = sess.db.Insert(cmd.Context(), key, data)
	} else {
		rec, err = sess.db.Put(cmd.Context(), key, data)
	}
	if err != nil {
		return formatter.Fail("failed to write record", err)
	}

	stored, err := rec.Data(cmd.Context())
	if err != nil {
		return formatter.Fail("failed to read record", err)
	}
	return formatter.Record(store.WithKey(rec.Key(), stored))
}

// readObject parses arg as a JSON object. "-" reads it from stdin and
// "@file" from a file.
func readObject(cmd *cobra.Command, arg string) (value.Object, error) {
	raw, err := readArg(cmd, arg)
	if err != nil {
		return nil, err
	}
	v, err := value.Unmarshal(raw)
	if err != nil {
		return nil, invalidInput("malformed JSON: %v", err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return nil, invalidInput("expected a JSON object, got %s", value.Kind(v))
	}
	return obj, nil
}

func readArg(cmd *cobra.Command, arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(cmd.InOrStdin())
	case len(arg) > 1 && arg[0] == '@':
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", arg[1:], err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}
