package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/field"
	"github.com/roach88/lineage/internal/query"
	"github.com/roach88/lineage/internal/queryir"
	"github.com/roach88/lineage/internal/schema"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	DatabaseOptions
	Schema string
	Where  []string // Field=Value, conjoined
	Sort   []string // "Field" or "Field desc"
	Limit  int
	Offset int
	SQL    bool // print the SQL instead of running it
}

// QueryResult holds the loaded records.
type QueryResult struct {
	Class   string              `json:"class"`
	SQL     string              `json:"sql,omitempty"`
	Args    []any               `json:"args,omitempty"`
	Count   int                 `json:"count"`
	Records []map[string]string `json:"records"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{DatabaseOptions: DatabaseOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "query <class>",
		Short: "Load records of a class",
		Long: `Load every record of a class and its subclasses.

Each record is built as its own concrete class, so subclass fields are
included. Filters compare a stored field with a value converted by the
field's type.

Examples:
  lineage query Page
  lineage query Page --where ParentID=0 --sort "Sort desc" --limit 10
  lineage query RedirectorPage --sql`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rootOpts.ensure()
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the configured one)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema directory (defaults to the configured one)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "filter Field=Value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Sort, "sort", nil, `sort key "Field [asc|desc]" (repeatable)`)
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records to load (0 = no limit)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "records to skip")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "print the SQL instead of running it")

	return cmd
}

func runQuery(opts *QueryOptions, class string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
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

	params, err := buildParams(eng, class, opts)
	if err != nil {
		return NewExitError(ExitCommandError, err.Error())
	}

	result := QueryResult{Class: class, Records: []map[string]string{}}
	result.SQL, result.Args, err = eng.SQL(class, params)
	if err != nil {
		return WrapExitError(ExitCommandError, "build query", err)
	}
	formatter.VerboseLog("SQL: %s %v", result.SQL, result.Args)

	if opts.SQL {
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintln(formatter.Writer, result.SQL)
		if len(result.Args) > 0 {
			fmt.Fprintf(formatter.Writer, "-- args: %v\n", result.Args)
		}
		return nil
	}

	recs, err := eng.Get(commandContext(cmd), class, params)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "query", err)
	}
	for _, rec := range recs {
		result.Records = append(result.Records, renderValues(rec))
	}
	result.Count = len(result.Records)

	if formatter.Format == "json" {
		result.SQL, result.Args = "", nil
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "%d %s record(s)\n", result.Count, class)
	for _, values := range result.Records {
		fmt.Fprintf(formatter.Writer, "\n%s #%s\n", values[schema.FieldClassName], values[schema.FieldID])
		for _, name := range sortedNames(values) {
			if name == schema.FieldID || name == schema.FieldClassName || name == schema.FieldRecordClassName {
				continue
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", name, values[name])
		}
	}
	return nil
}

// buildParams turns the command flags into query parameters.
func buildParams(eng *engine.Engine, class string, opts *QueryOptions) (query.Params, error) {
	p := query.Params{Limit: opts.Limit, Offset: opts.Offset}

	where, err := parseAssignments(opts.Where)
	if err != nil {
		return p, err
	}
	var preds []queryir.Predicate
	for _, name := range sortedNames(where) {
		table, err := storedColumn(eng, class, name)
		if err != nil {
			return p, err
		}
		typ, _ := eng.Registry().FieldType(class, name)
		value := any(where[name])
		switch {
		case name == schema.FieldID:
			if value, err = field.ToInt64(where[name]); err != nil {
				return p, errors.Wrapf(err, "--where %s", name)
			}
		case typ != "":
			codec, err := eng.Codecs().Lookup(typ)
			if err != nil {
				return p, err
			}
			if value, err = codec.Encode(where[name]); err != nil {
				return p, errors.Wrapf(err, "--where %s", name)
			}
		}
		preds = append(preds, queryir.Equals{Table: table, Field: name, Value: value})
	}
	switch len(preds) {
	case 0:
	case 1:
		p.Filter = preds[0]
	default:
		p.Filter = queryir.And{Predicates: preds}
	}

	for _, key := range opts.Sort {
		parts := strings.Fields(key)
		if len(parts) == 0 || len(parts) > 2 {
			return p, errors.Newf("invalid sort %q: want \"Field [asc|desc]\"", key)
		}
		desc := false
		if len(parts) == 2 {
			switch strings.ToLower(parts[1]) {
			case "asc":
			case "desc":
				desc = true
			default:
				return p, errors.Newf("invalid sort direction %q", parts[1])
			}
		}
		table, err := storedColumn(eng, class, parts[0])
		if err != nil {
			return p, err
		}
		p.Sort = append(p.Sort, queryir.Order{Table: table, Field: parts[0], Desc: desc})
	}
	return p, nil
}

// storedColumn returns the table holding name. Composite fields span
// several columns and cannot be compared directly.
func storedColumn(eng *engine.Engine, class, name string) (string, error) {
	table, ok := eng.Registry().FieldTable(class, name)
	if !ok {
		return "", errors.Newf("%s has no stored field %s", class, name)
	}
	if typ, ok := eng.Registry().FieldType(class, name); ok && eng.Codecs().IsComposite(typ) {
		return "", errors.Newf("%s.%s spans several columns", class, name)
	}
	return table, nil
}
