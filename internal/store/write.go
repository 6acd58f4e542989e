package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/errors"
	"github.com/roach88/lineage/internal/querysql"
)

// Command is the kind of a table write.
type Command int

const (
	Insert Command = iota
	Update
	Delete
)

func (c Command) String() string {
	switch c {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// TableWrite is one manipulation of one table.
//
// Rows are addressed by ID. An ID of 0 means the batch identity: the first
// Insert with ID 0 generates it and later writes reuse it.
//
// When Where is set the row is addressed by those columns instead: Insert
// becomes an upsert of Where plus Fields, Update and Delete match on Where.
// Junction tables are written this way.
type TableWrite struct {
	Table   string
	Command Command
	ID      int64
	Fields  map[string]any
	Where   map[string]any
}

// Manipulate applies writes in order inside one transaction and returns the
// batch identity: the generated one, else the first non-zero ID.
//
// An Update that matches no row falls back to an Insert with the same ID.
func (s *Store) Manipulate(ctx context.Context, writes []TableWrite) (id int64, err error) {
	if len(writes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	var generated, first int64
	for i, w := range writes {
		target := w.ID
		if target == 0 {
			target = generated
		}
		if first == 0 && w.ID != 0 {
			first = w.ID
		}

		var newID int64
		newID, err = s.apply(ctx, tx, w, target)
		if err != nil {
			return 0, errors.Wrapf(err, "write %d: %s %s", i, w.Command, w.Table)
		}
		if newID != 0 {
			generated = newID
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	id = generated
	if id == 0 {
		id = first
	}
	s.logger.Info("manipulated", zap.Int("writes", len(writes)), zap.Int64("id", id))
	return id, nil
}

// apply runs one write. For an identity-generating insert it returns the
// new row's ID.
func (s *Store) apply(ctx context.Context, tx *sql.Tx, w TableWrite, id int64) (int64, error) {
	if w.Table == "" {
		return 0, errors.New("empty table name")
	}

	if w.Where != nil {
		if len(w.Where) == 0 {
			return 0, errors.New("empty row address")
		}
		switch w.Command {
		case Insert:
			return 0, s.upsertWhere(ctx, tx, w)
		case Update:
			if len(w.Fields) == 0 {
				return 0, nil
			}
			_, err := s.exec(ctx, tx, updateSQL(w.Table, w.Fields, w.Where))
			return 0, err
		case Delete:
			_, err := s.exec(ctx, tx, deleteSQL(w.Table, w.Where))
			return 0, err
		}
		return 0, errors.Newf("unknown command %d", w.Command)
	}

	switch w.Command {
	case Insert:
		fields := w.Fields
		if id != 0 {
			fields = withID(fields, id)
		}
		res, err := s.exec(ctx, tx, insertSQL(w.Table, fields))
		if err != nil {
			return 0, err
		}
		if id != 0 {
			return 0, nil
		}
		return res.LastInsertId()

	case Update:
		if id == 0 {
			return 0, errors.New("update without identity")
		}
		if len(w.Fields) == 0 {
			_, err := s.exec(ctx, tx, stmt{
				sql:  "INSERT OR IGNORE INTO " + querysql.QuoteIdent(w.Table) + ` ("ID") VALUES (?)`,
				args: []any{id},
			})
			return 0, err
		}
		res, err := s.exec(ctx, tx, updateSQL(w.Table, w.Fields, map[string]any{"ID": id}))
		if err != nil {
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			_, err = s.exec(ctx, tx, insertSQL(w.Table, withID(w.Fields, id)))
			return 0, err
		}
		return 0, nil

	case Delete:
		if id == 0 {
			return 0, errors.New("delete without identity")
		}
		_, err := s.exec(ctx, tx, deleteSQL(w.Table, map[string]any{"ID": id}))
		return 0, err
	}
	return 0, errors.Newf("unknown command %d", w.Command)
}

func (s *Store) upsertWhere(ctx context.Context, tx *sql.Tx, w TableWrite) error {
	where, args := whereClause(w.Where)
	var n int64
	q := "SELECT COUNT(*) FROM " + querysql.QuoteIdent(w.Table) + " WHERE " + where
	if err := tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return errors.Wrap(err, "check existing row")
	}
	if n > 0 {
		if len(w.Fields) == 0 {
			return nil
		}
		_, err := s.exec(ctx, tx, updateSQL(w.Table, w.Fields, w.Where))
		return err
	}
	row := make(map[string]any, len(w.Where)+len(w.Fields))
	for k, v := range w.Where {
		row[k] = v
	}
	for k, v := range w.Fields {
		row[k] = v
	}
	_, err := s.exec(ctx, tx, insertSQL(w.Table, row))
	return err
}

type stmt struct {
	sql  string
	args []any
}

func (s *Store) exec(ctx context.Context, tx *sql.Tx, st stmt) (sql.Result, error) {
	s.logger.Debug("exec", zap.String("sql", st.sql), zap.Int("params", len(st.args)))
	return tx.ExecContext(ctx, st.sql, st.args...)
}

func withID(fields map[string]any, id int64) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["ID"] = id
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func insertSQL(table string, fields map[string]any) stmt {
	if len(fields) == 0 {
		return stmt{sql: "INSERT INTO " + querysql.QuoteIdent(table) + " DEFAULT VALUES"}
	}
	keys := sortedKeys(fields)
	cols := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = querysql.QuoteIdent(k)
		args[i] = fields[k]
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	return stmt{
		sql:  "INSERT INTO " + querysql.QuoteIdent(table) + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")",
		args: args,
	}
}

func updateSQL(table string, fields, where map[string]any) stmt {
	keys := sortedKeys(fields)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(where))
	for i, k := range keys {
		sets[i] = querysql.QuoteIdent(k) + " = ?"
		args = append(args, fields[k])
	}
	cond, condArgs := whereClause(where)
	return stmt{
		sql:  "UPDATE " + querysql.QuoteIdent(table) + " SET " + strings.Join(sets, ", ") + " WHERE " + cond,
		args: append(args, condArgs...),
	}
}

func deleteSQL(table string, where map[string]any) stmt {
	cond, args := whereClause(where)
	return stmt{sql: "DELETE FROM " + querysql.QuoteIdent(table) + " WHERE " + cond, args: args}
}

func whereClause(where map[string]any) (string, []any) {
	keys := sortedKeys(where)
	parts := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		parts[i] = querysql.QuoteIdent(k) + " = ?"
		args[i] = where[k]
	}
	return strings.Join(parts, " AND "), args
}
