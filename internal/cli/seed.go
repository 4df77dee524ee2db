package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/database"
	"github.com/roach88/basekit/internal/fixture"
	"github.com/roach88/basekit/internal/schema"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Concurrency int
}

// SeedResult is the JSON payload of the seed command.
type SeedResult struct {
	Base  string `json:"base"`
	Items int    `json:"items"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Put every item of a fixture file",
		Long: `Put the items listed in a YAML fixture, in batches of 25.

The fixture's base overrides --base. When the fixture names a schema every
item is checked against it before anything is written.

Example:
  basekit seed --store sqlite --path ./pets.db testdata/pets.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 1, "batches in flight at once")

	return cmd
}

func runSeed(opts *SeedOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	f, err := fixture.Load(path)
	if err != nil {
		return formatter.Fail("failed to load fixture", invalidInput("%v", err))
	}

	dbOpts := []database.Option{database.WithPutConcurrency(opts.Concurrency)}
	if f.Schema != "" {
		s, err := schema.Load(f.Schema, "")
		if err != nil {
			return formatter.Fail("failed to load schema", invalidInput("%v", err))
		}
		formatter.VerboseLog("validating against %s in %s", s.Definition(), f.Schema)
		dbOpts = append(dbOpts, database.WithSchema(s))
	}

	sess, err := openSession(cmd, opts.RootOptions, f.Base, dbOpts...)
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer sess.Close()

	n, err := f.Apply(cmd.Context(), sess.db)
	if err != nil {
		return formatter.Fail("failed to seed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(SeedResult{Base: sess.base, Items: n})
	}
	return formatter.Success(fmt.Sprintf("seeded %d item(s) into %s", n, sess.base))
}
