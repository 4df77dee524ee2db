package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/database"
	"github.com/roach88/basekit/internal/query"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Where  []string
	Filter string
	Limit  int
	Last   string
	All    bool
}

// FetchResult is the JSON payload of the fetch command.
type FetchResult struct {
	Items []json.RawMessage `json:"items"`
	Count int               `json:"count"`
	Last  string            `json:"last,omitempty"`
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "List records matching a filter",
		Long: `List the records of the base that match a filter, one page at a time.

Each --where adds a condition "field?op=value" (op defaults to equality);
all of them must hold. The value is read as JSON and falls back to a plain
string. --filter takes the raw wire form instead: an object, or a list of
objects of which any may match.

Operators: ne, lt, lte, gt, gte, pfx, r (range, value [lo,hi]), contains,
not_contains.

Example:
  basekit fetch --where 'age?gte=18' --where 'name?pfx=b' --limit 10
  basekit fetch --filter '[{"tags?contains":"vip"},{"age?lt":3}]' --all
  basekit fetch --last rex`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "condition field?op=value (repeatable, ANDed)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "raw filter JSON (object or list of objects)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size (default: store default)")
	cmd.Flags().StringVar(&opts.Last, "last", "", "resume after this key")
	cmd.Flags().BoolVar(&opts.All, "all", false, "follow every page")

	return cmd
}

func runFetch(opts *FetchOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	q, err := buildQuery(opts.Where, opts.Filter)
	if err != nil {
		return formatter.Fail("invalid filter", err)
	}
	if opts.All && (opts.Last != "" || opts.Limit != 0) {
		return formatter.Fail("invalid flags", invalidInput("--all cannot be combined with --last or --limit"))
	}

	sess, err := openSession(cmd, opts.RootOptions, "")
	if err != nil {
		return formatter.Fail("failed to open store", err)
	}
	defer sess.Close()

	var records []*database.Record
	var last string
	if opts.All {
		records, err = sess.db.FetchAll(cmd.Context(), q)
	} else {
		var page database.Page
		page, err = sess.db.Fetch(cmd.Context(), q, store.FetchOptions{Limit: opts.Limit, Last: opts.Last})
		records, last = page.Records, page.Last
	}
	if err != nil {
		return formatter.Fail("failed to fetch records", err)
	}

	result := FetchResult{Items: make([]json.RawMessage, 0, len(records)), Count: len(records), Last: last}
	for _, rec := range records {
		data, err := rec.Data(cmd.Context())
		if err != nil {
			return formatter.Fail("failed to read record", err)
		}
		item, err := canonical(store.WithKey(rec.Key(), data))
		if err != nil {
			return formatter.Fail("failed to render record", err)
		}
		result.Items = append(result.Items, item)
	}
	formatter.VerboseLog("fetched %d record(s) from %s", result.Count, sess.base)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	for _, item := range result.Items {
		fmt.Fprintf(formatter.Writer, "%s\n", item)
	}
	if result.Last != "" {
		fmt.Fprintf(formatter.Writer, "# more after %s\n", result.Last)
	}
	return nil
}

// buildQuery turns --where conditions or a --filter payload into a query.
// No conditions match everything.
func buildQuery(where []string, filter string) (query.Query, error) {
	if len(where) > 0 && filter != "" {
		return query.Query{}, invalidInput("use either --where or --filter, not both")
	}

	if filter != "" {
		v, err := value.Unmarshal([]byte(filter))
		if err != nil {
			return query.Query{}, invalidInput("malformed filter JSON: %v", err)
		}
		var wire query.Wire
		switch f := v.(type) {
		case value.Object:
			wire = query.Wire{f}
		case value.Array:
			for i, elem := range f {
				obj, ok := elem.(value.Object)
				if !ok {
					return query.Query{}, invalidInput("filter element %d is a %s, not an object", i, value.Kind(elem))
				}
				wire = append(wire, obj)
			}
		default:
			return query.Query{}, invalidInput("filter must be an object or a list of objects")
		}
		return query.ParseWire(wire)
	}

	if len(where) == 0 {
		return query.Query{}, nil
	}
	conj := make(value.Object, len(where))
	for _, w := range where {
		wireKey, operand, ok := strings.Cut(w, "=")
		if !ok || wireKey == "" {
			return query.Query{}, invalidInput("condition %q must look like field?op=value", w)
		}
		if _, dup := conj[wireKey]; dup {
			return query.Query{}, invalidInput("condition %q given twice", wireKey)
		}
		conj[wireKey] = parseOperand(operand)
	}
	return query.ParseWire(query.Wire{conj})
}

// parseOperand reads s as JSON, or as a string when it is not valid JSON.
func parseOperand(s string) value.Value {
	if v, err := value.Unmarshal([]byte(s)); err == nil {
		return v
	}
	return value.String(s)
}
