package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/engine"
	"github.com/roach88/lineage/internal/schema"
	"github.com/roach88/lineage/internal/store"
)

// DatabaseOptions holds the flags shared by commands that open a database.
type DatabaseOptions struct {
	*RootOptions
	Database string
}

// database returns the --db flag, else the configured path.
func (o *DatabaseOptions) database() string {
	if o.Database != "" {
		return o.Database
	}
	return o.Config.Database
}

// MigrateResult lists the tables ensured.
type MigrateResult struct {
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
}

// session is an open store with an engine over it.
type session struct {
	store  *store.Store
	engine *engine.Engine
}

func (s *session) Close() error {
	return s.store.Close()
}

// openSession loads the schema, opens the database and builds an engine.
func openSession(opts *DatabaseOptions, schemaDir string) (*session, error) {
	reg, _, err := loadRegistry(schemaDir, opts.Config.BaseClass)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load schema", err)
	}

	path := opts.database()
	opts.Logger.Debug("opening database", zap.String("path", path))
	st, err := store.Open(path, store.WithLogger(opts.Logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open database", err)
	}

	engOpts := []engine.Option{engine.WithLogger(opts.Logger)}
	if !opts.Config.CacheEnabled() {
		engOpts = append(engOpts, engine.WithLookupCache(nil))
	}
	if opts.ScopeIDs != nil {
		engOpts = append(engOpts, engine.WithScopeIDGenerator(opts.ScopeIDs))
	}
	return &session{store: st, engine: engine.New(reg, st, engOpts...)}, nil
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatabaseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate [schema-dir]",
		Short: "Create the tables for every declared class",
		Long: `Create the tables and junction tables the class declarations need.

Existing tables gain any missing columns; nothing is dropped. The database
is created if it does not exist.

Example:
  lineage migrate --db ./site.db ./schema`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rootOpts.ensure()
			return runMigrate(opts, rootOpts.schemaDir(args), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the configured one)")

	return cmd
}

func runMigrate(opts *DatabaseOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	s, err := openSession(opts, schemaDir)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			opts.Logger.Error("close database", zap.Error(closeErr))
		}
	}()

	if err := s.engine.EnsureSchema(commandContext(cmd)); err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "ensure schema", err)
	}

	defs, err := engine.TableDefs(s.engine.Registry(), s.engine.Codecs())
	if err != nil {
		return WrapExitError(ExitCommandError, "list tables", err)
	}
	result := MigrateResult{Database: opts.database()}
	for _, d := range defs {
		result.Tables = append(result.Tables, d.Name)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Ensured %d table(s) in %s\n", len(result.Tables), result.Database)
	for _, t := range result.Tables {
		formatter.VerboseLog("  %s", t)
	}
	return nil
}

// classOrError checks that class is declared.
func classOrError(reg *schema.Registry, class string) error {
	if !reg.Has(class) || class == reg.Root() {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown class %q", class))
	}
	return nil
}
