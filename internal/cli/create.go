package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/record"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	DatabaseOptions
	Schema string
}

// CreateResult describes the written record.
type CreateResult struct {
	Class  string            `json:"class"`
	ID     int64             `json:"id"`
	Values map[string]string `json:"values"`
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{DatabaseOptions: DatabaseOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "create <class> [Field=Value...]",
		Short: "Write a new record",
		Long: `Create a record of a class, assign fields and persist it.

Values are converted with the field's type. Unassigned fields take the
declared defaults. The record is read back and printed.

Example:
  lineage create Post Title="Hello" Price="12.50 NZD" AuthorID=1`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rootOpts.ensure()
			return runCreate(opts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema directory (defaults to the configured one)")

	return cmd
}

func runCreate(opts *CreateOptions, class string, assignments []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	values, err := parseAssignments(assignments)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	s, err := openSession(&opts.DatabaseOptions, opts.schemaDirFlag(opts.Schema))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			opts.Logger.Error("close database", zap.Error(closeErr))
		}
	}()

	eng := s.engine
	formatter.ScopeID = eng.ScopeID()
	if err := classOrError(eng.Registry(), class); err != nil {
		return err
	}

	rec, err := eng.NewRecord(class)
	if err != nil {
		return WrapExitError(ExitCommandError, "new record", err)
	}
	for _, name := range sortedNames(values) {
		v, err := decodeArg(eng, class, name, values[name])
		if err != nil {
			return NewExitError(ExitCommandError, err.Error())
		}
		rec.Set(name, v)
	}

	ctx := commandContext(cmd)
	id, err := eng.Persist(ctx, rec)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitFailure, "persist", err)
	}
	opts.Logger.Debug("record created", zap.String("class", class), zap.Int64("id", id))

	stored, err := eng.Scope().GetByID(ctx, class, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "read back", err)
	}
	if stored == nil {
		stored = rec
	}

	result := CreateResult{Class: stored.ClassName(), ID: stored.ID(), Values: renderValues(stored)}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Created %s #%d\n", result.Class, result.ID)
	for _, name := range sortedNames(result.Values) {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", name, result.Values[name])
	}
	return nil
}

// schemaDirFlag returns dir, else the configured schema directory.
func (o *DatabaseOptions) schemaDirFlag(dir string) string {
	if dir != "" {
		return dir
	}
	return o.Config.SchemaDir
}

// parseAssignments splits Field=Value arguments.
func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, errors.Newf("invalid assignment %q: want Field=Value", arg)
		}
		values[name] = value
	}
	return values, nil
}

// decodeArg converts a command-line value with the field's codec.
func decodeArg(eng *engine.Engine, class, name, raw string) (any, error) {
	typ, ok := eng.Registry().FieldType(class, name)
	if !ok {
		return nil, errors.Newf("%s has no field %s", class, name)
	}
	codec, err := eng.Codecs().Lookup(typ)
	if err != nil {
		return nil, err
	}
	v, err := codec.Decode(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "%s.%s", class, name)
	}
	return v, nil
}

// renderValues renders every field of rec as text.
func renderValues(rec *record.Record) map[string]string {
	out := make(map[string]string)
	for name, v := range rec.Values() {
		out[name] = field.ToString(v)
	}
	return out
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
