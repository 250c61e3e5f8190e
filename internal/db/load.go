package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

func copyRows(ctx context.Context, tx pgx.Tx, t Table, columns []string, rows [][]any) (int64, error) {
	src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		if len(rows[i]) != len(columns) {
			return nil, eris.Errorf("row %d has %d values for %d columns", i, len(rows[i]), len(columns))
		}
		return rows[i], nil
	})
	n, err := tx.CopyFrom(ctx, t.Ident(), columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "copy into %s", t)
	}
	return n, nil
}

// Replace swaps the contents of t for rows in one transaction: readers
// see either the previous run or this one. An empty rows still clears t.
func Replace(ctx context.Context, pool Pool, t Table, columns []string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "TRUNCATE "+t.Quoted()); err != nil {
		return 0, eris.Wrapf(err, "db: replace: truncate %s", t)
	}
	var n int64
	if len(rows) > 0 {
		if n, err = copyRows(ctx, tx, t, columns, rows); err != nil {
			return 0, eris.Wrap(err, "db: replace")
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit")
	}
	return n, nil
}

// Merge loads rows into a staging copy of t and folds them in keyed on
// key: matching rows have every other column overwritten, the rest are
// inserted. Rows already in t that this batch does not mention are kept.
func Merge(ctx context.Context, pool Pool, t Table, key string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if !slices.Contains(columns, key) {
		return 0, eris.Errorf("db: merge: key %q is not among the loaded columns", key)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: merge: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stage := t.stage()
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		stage.Quoted(), t.Quoted())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: merge: stage %s", t)
	}
	if _, err := copyRows(ctx, tx, stage, columns, rows); err != nil {
		return 0, eris.Wrap(err, "db: merge")
	}

	tag, err := tx.Exec(ctx, mergeSQL(t, stage, key, columns))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge: insert into %s", t)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: merge: commit")
	}
	return tag.RowsAffected(), nil
}

func mergeSQL(t, stage Table, key string, columns []string) string {
	cols := columnList(columns)
	keyIdent := pgx.Identifier{key}.Sanitize()

	var set []string
	for _, c := range columns {
		if c == key {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		set = append(set, q+" = EXCLUDED."+q)
	}
	conflict := "DO NOTHING"
	if len(set) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		t.Quoted(), cols, cols, stage.Quoted(), keyIdent, conflict)
}
