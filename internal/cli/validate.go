package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/schema"
)

// ValidationError is one problem found in a schema file.
type ValidationError struct {
	File    string `json:"file"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// TypeSummary describes one bean type of a valid schema.
type TypeSummary struct {
	Name       string   `json:"name"`
	Properties []string `json:"properties"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Types  []TypeSummary     `json:"types,omitempty"`
	Enums  []string          `json:"enums,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema.cue>...",
		Short: "Validate bean schemas",
		Long: `Validate CUE bean schema files.

Each file is compiled, its enums and bean types are registered together,
and every bean reference target is checked. Files are validated
independently.

Exit codes:
  0 - All schemas valid
  1 - One or more schemas invalid
  2 - Command error (file not found, etc.)

Examples:
  pmsync validate ./beans.cue
  pmsync validate ./beans.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, files []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			msg := fmt.Sprintf("schema file not found: %s", f)
			_ = formatter.Error(ErrCodeNotFound, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
	}

	result := ValidationResult{Valid: true}
	for _, f := range files {
		formatter.VerboseLog("Validating %s", f)
		types, enums, verr := validateFile(f)
		if verr != nil {
			result.Valid = false
			result.Errors = append(result.Errors, *verr)
			continue
		}
		result.Types = append(result.Types, types...)
		result.Enums = append(result.Enums, enums...)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !result.Valid {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    result.Errors[0].Code,
				Message: fmt.Sprintf("%d schema(s) invalid", len(result.Errors)),
			}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		outputValidateText(formatter.Writer, result, opts.Verbose)
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d schema(s) invalid", len(result.Errors)))
	}
	return nil
}

// validateFile compiles one schema into a fresh registry and freezes it.
func validateFile(path string) ([]TypeSummary, []string, *ValidationError) {
	doc, err := schema.LoadFile(path)
	if err != nil {
		return nil, nil, toValidationError(path, ErrCodeSchema, err)
	}

	reg := schema.NewRegistry(convert.NewRegistry())
	if err := doc.Apply(reg); err != nil {
		return nil, nil, toValidationError(path, ErrCodeDefinition, err)
	}
	if err := reg.Freeze(); err != nil {
		return nil, nil, toValidationError(path, ErrCodeDefinition, err)
	}

	types := make([]TypeSummary, 0, len(doc.Types))
	for _, bt := range doc.Types {
		ts := TypeSummary{Name: bt.Name()}
		for _, p := range bt.Properties() {
			ts.Properties = append(ts.Properties, describeProperty(p))
		}
		types = append(types, ts)
	}
	enums := make([]string, 0, len(doc.Enums))
	for _, e := range doc.Enums {
		enums = append(enums, e.Name)
	}
	return types, enums, nil
}

func describeProperty(p schema.Property) string {
	typ := string(p.Type)
	if p.Target != "" {
		typ = "bean:" + p.Target
	}
	if p.IsList() {
		typ = "[]" + typ
	}
	return p.Name + " " + typ
}

func toValidationError(path, code string, err error) *ValidationError {
	verr := &ValidationError{File: path, Code: code, Message: err.Error()}
	var ce *schema.CompileError
	if errors.As(err, &ce) {
		verr.Field = ce.Field
		verr.Message = ce.Message
		if ce.Pos.IsValid() {
			verr.Line = ce.Pos.Line()
			verr.Column = ce.Pos.Column()
		}
	}
	return verr
}

func outputValidateText(w io.Writer, result ValidationResult, verbose bool) {
	if !result.Valid {
		fmt.Fprintf(w, "✗ Validation failed with %d error(s):\n", len(result.Errors))
		for _, e := range result.Errors {
			loc := e.File
			if e.Line > 0 {
				loc = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
			}
			if e.Field != "" {
				fmt.Fprintf(w, "  %s: [%s] %s: %s\n", loc, e.Code, e.Field, e.Message)
			} else {
				fmt.Fprintf(w, "  %s: [%s] %s\n", loc, e.Code, e.Message)
			}
		}
		return
	}

	fmt.Fprintf(w, "✓ Schema valid: %d bean type(s), %d enum(s)\n", len(result.Types), len(result.Enums))
	if verbose {
		for _, t := range result.Types {
			fmt.Fprintf(w, "  %s\n", t.Name)
			for _, p := range t.Properties {
				fmt.Fprintf(w, "    %s\n", p)
			}
		}
	}
}
