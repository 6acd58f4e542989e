package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lineage/internal/compiler"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the resolved classes.
type CompilationResult struct {
	Root    string          `json:"root"`
	Classes []CompiledClass `json:"classes"`
}

// CompiledClass is one class with its layout and relations resolved.
type CompiledClass struct {
	Name      string                      `json:"name"`
	Ancestry  []string                    `json:"ancestry"`
	BaseTable string                      `json:"base_table"`
	Tables    []CompiledTable             `json:"tables"`
	Fields    map[string]string           `json:"fields"`
	Defaults  map[string]any              `json:"defaults,omitempty"`
	Relations []schema.RelationDescriptor `json:"relations,omitempty"`
}

// CompiledTable lists the fields stored in one table.
type CompiledTable struct {
	Table  string   `json:"table"`
	Fields []string `json:"fields"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	ClassCount    int
	TableCount    int
	RelationCount int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [schema-dir]",
		Short: "Resolve CUE class declarations to table layouts",
		Long: `Compile CUE class declarations and print what the engine resolves
from them: the ancestry of every class, the table each field is stored
in and every relation with its join columns.

The schema directory defaults to schema_dir from the project config.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			rootOpts.ensure()
			return runCompile(opts, rootOpts.schemaDir(args), cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSchema(schemaDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, schemaDir)
	for _, c := range loadResult.Classes {
		formatter.VerboseLog("Compiling class: %s", c.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	reg, err := BuildRegistry(loadResult.Classes, opts.Config.BaseClass)
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}

	result, err := resolveClasses(reg)
	if err != nil {
		return outputCompileErrors(formatter, []error{err})
	}
	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeCompiledToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// resolveClasses builds the compiled view of every class in reg.
func resolveClasses(reg *schema.Registry) (*CompilationResult, error) {
	result := &CompilationResult{Root: reg.Root()}
	for _, name := range reg.Classes() {
		ancestry, err := reg.AncestryNames(name)
		if err != nil {
			return nil, err
		}
		layout, err := reg.Layout(name)
		if err != nil {
			return nil, err
		}
		fields, err := reg.Fields(name)
		if err != nil {
			return nil, err
		}
		defaults, err := reg.Defaults(name)
		if err != nil {
			return nil, err
		}
		relations, err := reg.Relations(name)
		if err != nil {
			return nil, err
		}

		c := CompiledClass{
			Name:      name,
			Ancestry:  ancestry,
			Fields:    fields,
			Defaults:  defaults,
			Relations: relations,
		}
		for _, l := range layout {
			c.Tables = append(c.Tables, CompiledTable{Table: l.Table, Fields: l.Fields})
		}
		if len(c.Tables) > 0 {
			c.BaseTable = c.Tables[0].Table
		}
		result.Classes = append(result.Classes, c)
	}
	return result, nil
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{ClassCount: len(result.Classes)}
	tables := make(map[string]bool)
	for _, c := range result.Classes {
		for _, t := range c.Tables {
			tables[t.Table] = true
		}
		for _, rel := range c.Relations {
			if rel.DeclaredOn == c.Name {
				stats.RelationCount++
			}
		}
	}
	stats.TableCount = len(tables)
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d class(es), %d table(s), %d relation(s)\n\n",
		stats.ClassCount, stats.TableCount, stats.RelationCount)

	for _, c := range result.Classes {
		fmt.Fprintf(formatter.Writer, "%s\n", c.Name)
		for _, t := range c.Tables {
			fmt.Fprintf(formatter.Writer, "  table %s: %d field(s)\n", t.Table, len(t.Fields))
		}
		for _, rel := range c.Relations {
			fmt.Fprintf(formatter.Writer, "  %s %s → %s\n", rel.Kind, rel.Name, rel.Target)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote compiled schema to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeCompiledToFile writes the compilation result as indented JSON.
func writeCompiledToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal compiled schema")
	}

	if err := os.WriteFile(filename, append(data, '\n'), 0644); err != nil {
		return errors.Wrap(err, "write file")
	}

	return nil
}
