package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/roach88/lineage/internal/errors"
)

// Row is one result row keyed by column name. TEXT and BLOB columns are
// returned as strings.
type Row map[string]any

// Query runs a select and collects every row.
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	s.logger.Debug("query", zap.String("sql", query), zap.Int("params", len(args)))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rows")
	}
	return out, nil
}
