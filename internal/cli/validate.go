package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/nexus/internal/doc"
	"github.com/roach88/nexus/internal/resource"
	"github.com/roach88/nexus/internal/validate"
)

// InstanceResult is the outcome for one instance file.
type InstanceResult struct {
	File       string   `json:"file"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// ValidationResult holds the schema check and every instance outcome.
type ValidationResult struct {
	Schema     string           `json:"schema"`
	Properties int              `json:"properties"`
	Instances  []InstanceResult `json:"instances"`
}

// Valid reports whether every instance passed.
func (r ValidationResult) Valid() bool {
	for _, i := range r.Instances {
		if !i.Valid {
			return false
		}
	}
	return true
}

func (r ValidationResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: schema ok (%d properties)", r.Schema, r.Properties)
	for _, i := range r.Instances {
		if i.Valid {
			fmt.Fprintf(&b, "\n  ok    %s", i.File)
			continue
		}
		fmt.Fprintf(&b, "\n  FAIL  %s", i.File)
		for _, v := range i.Violations {
			fmt.Fprintf(&b, "\n        %s", v)
		}
	}
	return b.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema.json> [instance.json...]",
		Short: "Check a schema and instance payloads without a server",
		Long: `Compile a schema payload and validate instance payloads against it.

Uses the same rules the server applies on writes, without touching a
database. Exits 1 when the schema is illegal or any instance violates it.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], args[1:], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaFile string, instanceFiles []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	schema, err := readObject(schemaFile)
	if err != nil {
		return err
	}

	v := validate.New(nil)
	rs, err := v.Compile(schema)
	if err != nil {
		var se *validate.SchemaError
		var details any
		if errors.As(err, &se) {
			details = se.Field
		}
		formatter.Error(resource.CodeIllegalSchema, err.Error(), details)
		return WrapExitError(ExitFailure, "illegal schema", err)
	}
	formatter.VerboseLog("compiled %s: %d properties", schemaFile, len(rs.Properties))

	result := ValidationResult{Schema: schemaFile, Properties: len(rs.Properties), Instances: []InstanceResult{}}
	for _, file := range instanceFiles {
		payload, err := readObject(file)
		if err != nil {
			return err
		}
		ir := InstanceResult{File: file, Valid: true}
		if err := rs.Validate(payload); err != nil {
			var ve *validate.ValidationError
			if !errors.As(err, &ve) {
				return WrapExitError(ExitCommandError, "validate "+file, err)
			}
			ir.Valid = false
			ir.Violations = ve.Violations
		}
		result.Instances = append(result.Instances, ir)
	}

	if err := formatter.Success(result); err != nil {
		return err
	}
	if !result.Valid() {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func readObject(path string) (doc.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read "+path, err)
	}
	obj, err := doc.ParseObject(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, path+" is not a JSON object", err)
	}
	return obj, nil
}
