package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a merge of rows into Table keyed on ConflictKeys.
type UpsertConfig struct {
	// Table may be schema-qualified.
	Table        string
	Columns      []string
	ConflictKeys []string
	// UpdateCols are overwritten on conflict. Nil means every column that is
	// not a conflict key; an empty non-nil slice keeps existing rows as-is.
	UpdateCols []string
}

// upsertPlan holds the rendered statements of one BulkUpsert call.
type upsertPlan struct {
	staging string
	create  string
	merge   string
	keyIdx  []int
}

func newUpsertPlan(cfg UpsertConfig) (*upsertPlan, error) {
	if len(cfg.Columns) == 0 {
		return nil, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return nil, eris.New("db: upsert: no conflict keys specified")
	}

	position := make(map[string]int, len(cfg.Columns))
	for i, c := range cfg.Columns {
		position[c] = i
	}
	keyIdx := make([]int, len(cfg.ConflictKeys))
	isKey := make(map[string]bool, len(cfg.ConflictKeys))
	for i, k := range cfg.ConflictKeys {
		idx, ok := position[k]
		if !ok {
			return nil, eris.Errorf("db: upsert: conflict key %q is not a column", k)
		}
		keyIdx[i] = idx
		isKey[k] = true
	}

	update := cfg.UpdateCols
	if update == nil {
		for _, c := range cfg.Columns {
			if !isKey[c] {
				update = append(update, c)
			}
		}
	}

	staging := "_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")
	target := sanitizeTable(cfg.Table)
	cols := quoteAndJoin(cfg.Columns)
	return &upsertPlan{
		staging: staging,
		create: fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
			pgx.Identifier{staging}.Sanitize(), target),
		merge: fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
			target, cols, cols, pgx.Identifier{staging}.Sanitize(),
			quoteAndJoin(cfg.ConflictKeys), conflictAction(update)),
		keyIdx: keyIdx,
	}, nil
}

// dedupe keeps the last row per conflict key. Postgres rejects a merge that
// touches the same target row twice.
func (p *upsertPlan) dedupe(rows [][]any, width int) ([][]any, error) {
	last := make(map[string]int, len(rows))
	order := make([]string, 0, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return nil, eris.Errorf("db: upsert: row %d has %d values, want %d", i, len(row), width)
		}
		parts := make([]string, len(p.keyIdx))
		for j, idx := range p.keyIdx {
			parts[j] = keyString(row[idx])
		}
		key := strings.Join(parts, "\x00")
		if _, seen := last[key]; !seen {
			order = append(order, key)
		}
		last[key] = i
	}
	if len(order) == len(rows) {
		return rows, nil
	}
	out := make([][]any, len(order))
	for i, key := range order {
		out[i] = rows[last[key]]
	}
	return out, nil
}

func keyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case *string:
		if t == nil {
			return ""
		}
		return *t
	case *int64:
		if t == nil {
			return ""
		}
		return fmt.Sprint(*t)
	default:
		return fmt.Sprint(t)
	}
}

// BulkUpsert stages rows in a temp table with COPY and merges them into the
// target with INSERT ... ON CONFLICT, all in one transaction. It returns the
// number of rows inserted or updated.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	plan, err := newUpsertPlan(cfg)
	if err != nil {
		return 0, err
	}
	if pool == nil {
		return 0, eris.New("db: upsert: nil pool")
	}
	rows, err = plan.dedupe(rows, len(cfg.Columns))
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, plan.create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{plan.staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into staging table for %s", cfg.Table)
	}
	tag, err := tx.Exec(ctx, plan.merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func conflictAction(update []string) string {
	if len(update) == 0 {
		return "DO NOTHING"
	}
	set := make([]string, len(update))
	for i, col := range update {
		id := pgx.Identifier{col}.Sanitize()
		set[i] = id + " = EXCLUDED." + id
	}
	return "DO UPDATE SET " + strings.Join(set, ", ")
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
