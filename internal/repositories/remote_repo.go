package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/edgeledger/internal/models"
)

// PostgresRemoteGateway talks to the hosted Postgres backend. Rows travel
// as JSON and are converted to column types by jsonb_populate_record, so
// the gateway needs no per-table code.
type PostgresRemoteGateway struct {
	pool   *pgxpool.Pool
	schema models.Schema
}

func NewPostgresRemoteGateway(pool *pgxpool.Pool, schema models.Schema) *PostgresRemoteGateway {
	return &PostgresRemoteGateway{pool: pool, schema: schema}
}

func (g *PostgresRemoteGateway) Ping(ctx context.Context) error {
	return classifyRemoteError(g.pool.Ping(ctx))
}

// Insert upserts record keyed by its id and returns the stored row.
func (g *PostgresRemoteGateway) Insert(ctx context.Context, table string, record map[string]any) (map[string]any, error) {
	if err := g.checkTable(table); err != nil {
		return nil, err
	}
	if _, ok := record[models.FieldID]; !ok {
		return nil, fmt.Errorf("%w: insert into %s without id", ErrRejected, table)
	}
	record = g.remoteRow(table, record)
	query := buildUpsert(table, record)
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal record: %w", ErrRejected, err)
	}

	var stored map[string]any
	if err := g.pool.QueryRow(ctx, query, string(payload)).Scan(&stored); err != nil {
		return nil, classifyRemoteError(fmt.Errorf("failed to insert into %s: %w", table, err))
	}
	return stored, nil
}

func (g *PostgresRemoteGateway) Update(ctx context.Context, table, id string, patch map[string]any) error {
	if err := g.checkTable(table); err != nil {
		return err
	}
	patch = g.remoteRow(table, patch)
	query, ok := buildUpdate(table, patch)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal patch: %w", ErrRejected, err)
	}

	result, err := g.pool.Exec(ctx, query, string(payload), id)
	if err != nil {
		return classifyRemoteError(fmt.Errorf("failed to update %s: %w", table, err))
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return nil
}

func (g *PostgresRemoteGateway) Delete(ctx context.Context, table, id string) error {
	if err := g.checkTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE "id" = $1`, pgx.Identifier{table}.Sanitize())

	result, err := g.pool.Exec(ctx, query, id)
	if err != nil {
		return classifyRemoteError(fmt.Errorf("failed to delete from %s: %w", table, err))
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return nil
}

func (g *PostgresRemoteGateway) Query(ctx context.Context, table string, q models.Query) ([]map[string]any, error) {
	if err := g.checkTable(table); err != nil {
		return nil, err
	}
	for _, e := range q.Embeds {
		if err := g.checkTable(e.Table); err != nil {
			return nil, err
		}
	}
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}

	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyRemoteError(fmt.Errorf("failed to query %s: %w", table, err))
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var row map[string]any
		if err := rows.Scan(&row); err != nil {
			return nil, classifyRemoteError(fmt.Errorf("failed to scan %s row: %w", table, err))
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, classifyRemoteError(fmt.Errorf("error iterating %s rows: %w", table, err))
	}
	return out, nil
}

func (g *PostgresRemoteGateway) checkTable(table string) error {
	if _, ok := g.schema.Table(table); !ok {
		return fmt.Errorf("%w: %w: %s", ErrRejected, ErrUnknownTable, table)
	}
	return nil
}

// remoteRow drops columns the remote table does not have, so rows queued
// before a schema change still apply.
func (g *PostgresRemoteGateway) remoteRow(table string, row map[string]any) map[string]any {
	ts, _ := g.schema.Table(table)
	return ts.RemoteRow(row)
}

func sortedColumns(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func buildUpsert(table string, record map[string]any) string {
	tbl := pgx.Identifier{table}.Sanitize()
	cols := sortedColumns(record)

	quoted := make([]string, len(cols))
	var updates []string
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		if c != models.FieldID {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}
	list := strings.Join(quoted, ", ")

	// DO NOTHING returns no row on conflict, so the id-only case selects
	// the existing row instead.
	if len(updates) == 0 {
		return fmt.Sprintf(
			`WITH ins AS (INSERT INTO %[1]s (%[2]s) SELECT %[2]s FROM jsonb_populate_record(NULL::%[1]s, $1::jsonb) ON CONFLICT ("id") DO NOTHING RETURNING *)
			 SELECT to_jsonb(ins) FROM ins
			 UNION ALL
			 SELECT to_jsonb(t) FROM %[1]s t WHERE t."id" = ($1::jsonb ->> 'id') AND NOT EXISTS (SELECT 1 FROM ins)`,
			tbl, list)
	}
	return fmt.Sprintf(
		`INSERT INTO %[1]s AS t (%[2]s)
		 SELECT %[2]s FROM jsonb_populate_record(NULL::%[1]s, $1::jsonb)
		 ON CONFLICT ("id") DO UPDATE SET %[3]s
		 RETURNING to_jsonb(t)`,
		tbl, list, strings.Join(updates, ", "))
}

func buildUpdate(table string, patch map[string]any) (string, bool) {
	tbl := pgx.Identifier{table}.Sanitize()
	var sets []string
	for _, c := range sortedColumns(patch) {
		if c == models.FieldID {
			continue
		}
		q := pgx.Identifier{c}.Sanitize()
		sets = append(sets, fmt.Sprintf("%s = r.%s", q, q))
	}
	if len(sets) == 0 {
		return "", false
	}
	return fmt.Sprintf(
		`UPDATE %[1]s AS t SET %[2]s
		 FROM jsonb_populate_record(NULL::%[1]s, $1::jsonb) AS r
		 WHERE t."id" = $2`,
		tbl, strings.Join(sets, ", ")), true
}

var filterOperators = map[models.FilterOp]string{
	models.OpEq:  "=",
	models.OpNeq: "<>",
	models.OpGt:  ">",
	models.OpGte: ">=",
	models.OpLt:  "<",
	models.OpLte: "<=",
}

func buildSelect(table string, q models.Query) (string, []any, error) {
	tbl := pgx.Identifier{table}.Sanitize()

	selectExpr := "to_jsonb(t)"
	for i, e := range q.Embeds {
		alias := fmt.Sprintf("e%d", i)
		selectExpr += fmt.Sprintf(
			` || jsonb_build_object('%s', (SELECT to_jsonb(%s) FROM %s %s WHERE %s."id" = t.%s))`,
			strings.ReplaceAll(e.As, "'", "''"),
			alias,
			pgx.Identifier{e.Table}.Sanitize(),
			alias,
			alias,
			pgx.Identifier{e.ForeignKey}.Sanitize(),
		)
	}

	var (
		where []string
		args  []any
	)
	for _, f := range q.Filters {
		op, ok := filterOperators[f.Op]
		if !ok {
			return "", nil, fmt.Errorf("%w: unsupported filter operator %q", ErrRejected, f.Op)
		}
		args = append(args, f.Value)
		where = append(where, fmt.Sprintf("t.%s %s $%d", pgx.Identifier{f.Column}.Sanitize(), op, len(args)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s t", selectExpr, tbl)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY t.%s %s", pgx.Identifier{q.OrderBy}.Sanitize(), dir)
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return query, args, nil
}
