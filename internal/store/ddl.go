package store

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/querysql"
)

// ColumnDef is one non-identity column.
type ColumnDef struct {
	Name string
	Type string
}

// TableDef describes a table to create. Every table has an integer "ID"
// primary key; AutoIncrement makes SQLite generate it.
type TableDef struct {
	Name          string
	AutoIncrement bool
	Columns       []ColumnDef
	Indexes       [][]string
}

// CreateSQL returns the CREATE TABLE and CREATE INDEX statements for t.
func (t TableDef) CreateSQL() []string {
	table := querysql.QuoteIdent(t.Name)
	id := `"ID" INTEGER PRIMARY KEY`
	if t.AutoIncrement {
		id += " AUTOINCREMENT"
	}
	cols := []string{id}
	for _, c := range t.Columns {
		def := querysql.QuoteIdent(c.Name)
		if c.Type != "" {
			def += " " + c.Type
		}
		cols = append(cols, def)
	}

	stmts := []string{"CREATE TABLE IF NOT EXISTS " + table + " (" + strings.Join(cols, ", ") + ")"}
	for _, idx := range t.Indexes {
		quoted := make([]string, len(idx))
		for i, c := range idx {
			quoted[i] = querysql.QuoteIdent(c)
		}
		name := querysql.QuoteIdent("idx_" + t.Name + "_" + strings.Join(idx, "_"))
		stmts = append(stmts, "CREATE INDEX IF NOT EXISTS "+name+" ON "+table+" ("+strings.Join(quoted, ", ")+")")
	}
	return stmts
}

// EnsureTables creates any missing tables and indexes in one transaction.
// Existing tables are left as they are.
func (s *Store) EnsureTables(ctx context.Context, defs []TableDef) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, def := range defs {
		for _, q := range def.CreateSQL() {
			if _, err = tx.ExecContext(ctx, q); err != nil {
				return errors.Wrapf(err, "create %s", def.Name)
			}
		}
		s.logger.Debug("ensured table", zap.String("table", def.Name), zap.Int("columns", len(def.Columns)))
	}
	return tx.Commit()
}
