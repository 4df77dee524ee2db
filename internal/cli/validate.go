package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/basekit/internal/fixture"
	"github.com/roach88/basekit/internal/schema"
	"github.com/roach88/basekit/internal/store"
	"github.com/roach88/basekit/internal/value"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Schema     string
	Definition string
}

// ItemError is one item a schema rejected.
type ItemError struct {
	Item    string `json:"item"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Items  int         `json:"items"`
	Errors []ItemError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <fixture.yaml|items.json>",
		Short: "Check records against a CUE schema without writing them",
		Long: `Check every item of a YAML fixture or a JSON file (one object or a list
of objects) against a CUE definition. Nothing is written.

--schema defaults to the schema the fixture names.

Example:
  basekit validate --schema pets.cue pets.yaml
  basekit validate --schema pets.cue --definition '#Pet' items.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema file")
	cmd.Flags().StringVar(&opts.Definition, "definition", schema.DefaultDefinition, "definition records must satisfy")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	items, schemaPath, err := loadItems(path)
	if err != nil {
		return formatter.Fail("failed to load items", invalidInput("%v", err))
	}
	if opts.Schema != "" {
		schemaPath = opts.Schema
	}
	if schemaPath == "" {
		return formatter.Fail("no schema", invalidInput("pass --schema or name one in the fixture"))
	}

	s, err := schema.Load(schemaPath, opts.Definition)
	if err != nil {
		return formatter.Fail("failed to load schema", invalidInput("%v", err))
	}
	formatter.VerboseLog("Checking %d item(s) against %s in %s", len(items), s.Definition(), schemaPath)

	result := ValidationResult{Valid: true, Items: len(items)}
	for i, item := range items {
		err := s.Validate(store.WithoutKey(item))
		if err == nil {
			continue
		}
		ie := ItemError{Item: itemLabel(i, item), Message: err.Error()}
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			ie.Path = verr.Path
			ie.Message = verr.Message
		}
		result.Valid = false
		result.Errors = append(result.Errors, ie)
	}

	if result.Valid {
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %d item(s) valid\n", result.Items)
		return nil
	}
	return outputValidationErrors(formatter, result)
}

// loadItems reads a fixture (.yaml, .yml) or JSON items. The schema path
// is the one a fixture names, if any.
func loadItems(path string) ([]value.Object, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f, err := fixture.Load(path)
		if err != nil {
			return nil, "", err
		}
		items, err := f.Objects()
		return items, f.Schema, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read items: %w", err)
	}
	v, err := value.Unmarshal(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%s: malformed JSON: %w", path, err)
	}
	switch val := v.(type) {
	case value.Object:
		return []value.Object{val}, "", nil
	case value.Array:
		items := make([]value.Object, len(val))
		for i, elem := range val {
			obj, ok := elem.(value.Object)
			if !ok {
				return nil, "", fmt.Errorf("%s: item %d is a %s, not an object", path, i, value.Kind(elem))
			}
			items[i] = obj
		}
		return items, "", nil
	default:
		return nil, "", fmt.Errorf("%s: expected an object or a list of objects", path)
	}
}

// itemLabel names an item by its key, or by position when it has none.
func itemLabel(i int, item value.Object) string {
	if key, err := store.ItemKey(item); err == nil {
		return key
	}
	return fmt.Sprintf("#%d", i)
}

// outputValidationErrors outputs every rejected item.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeValidation,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d item(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, e := range errs {
		if e.Path != "" {
			fmt.Fprintf(formatter.Writer, "%s: %s\n", e.Item, e.Path)
		} else {
			fmt.Fprintf(formatter.Writer, "%s\n", e.Item)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", ErrCodeValidation, e.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d item(s)", len(errs)))
}
