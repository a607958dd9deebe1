package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/prudhvinik1/edgeledger/internal/models"
)

// MemoryRemoteGateway is an in-process RemoteGateway with the same upsert
// and not-found semantics as the Postgres gateway. It backs development
// runs (REMOTE_DRIVER=memory) and tests.
type MemoryRemoteGateway struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]any
	calls  []GatewayCall

	// Intercept, when set, runs before every mutation and ping; a non-nil
	// error is returned to the caller instead of applying the mutation.
	Intercept func(call GatewayCall) error
}

type GatewayCall struct {
	Op    string
	Table string
	ID    string
}

func NewMemoryRemoteGateway() *MemoryRemoteGateway {
	return &MemoryRemoteGateway{tables: make(map[string]map[string]map[string]any)}
}

func (g *MemoryRemoteGateway) Ping(ctx context.Context) error {
	return g.record(ctx, GatewayCall{Op: "ping"})
}

func (g *MemoryRemoteGateway) Insert(ctx context.Context, table string, record map[string]any) (map[string]any, error) {
	id, _ := record[models.FieldID].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: insert into %s without id", ErrRejected, table)
	}
	if err := g.record(ctx, GatewayCall{Op: "insert", Table: table, ID: id}); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	rows := g.tables[table]
	if rows == nil {
		rows = make(map[string]map[string]any)
		g.tables[table] = rows
	}
	stored := rows[id]
	if stored == nil {
		stored = make(map[string]any, len(record))
	}
	for k, v := range record {
		stored[k] = v
	}
	rows[id] = stored
	return copyRow(stored), nil
}

func (g *MemoryRemoteGateway) Update(ctx context.Context, table, id string, patch map[string]any) error {
	if err := g.record(ctx, GatewayCall{Op: "update", Table: table, ID: id}); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	stored, ok := g.tables[table][id]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	for k, v := range patch {
		if k == models.FieldID {
			continue
		}
		stored[k] = v
	}
	return nil
}

func (g *MemoryRemoteGateway) Delete(ctx context.Context, table, id string) error {
	if err := g.record(ctx, GatewayCall{Op: "delete", Table: table, ID: id}); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tables[table][id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	delete(g.tables[table], id)
	return nil
}

func (g *MemoryRemoteGateway) Query(ctx context.Context, table string, q models.Query) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, classifyRemoteError(err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var out []map[string]any
	for _, row := range g.tables[table] {
		if !matchesFilters(row, q.Filters) {
			continue
		}
		r := copyRow(row)
		for _, e := range q.Embeds {
			fk, _ := row[e.ForeignKey].(string)
			if related, ok := g.tables[e.Table][fk]; ok {
				r[e.As] = copyRow(related)
			} else {
				r[e.As] = nil
			}
		}
		out = append(out, r)
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = models.FieldID
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := compareValues(out[i][orderBy], out[j][orderBy])
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Row returns a copy of a stored row.
func (g *MemoryRemoteGateway) Row(table, id string) (map[string]any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	row, ok := g.tables[table][id]
	if !ok {
		return nil, false
	}
	return copyRow(row), true
}

func (g *MemoryRemoteGateway) Len(table string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tables[table])
}

// Calls returns the mutations and pings seen so far, in order.
func (g *MemoryRemoteGateway) Calls() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GatewayCall, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *MemoryRemoteGateway) record(ctx context.Context, call GatewayCall) error {
	if err := ctx.Err(); err != nil {
		return classifyRemoteError(err)
	}
	g.mu.Lock()
	g.calls = append(g.calls, call)
	intercept := g.Intercept
	g.mu.Unlock()

	if intercept != nil {
		if err := intercept(call); err != nil {
			return classifyRemoteError(err)
		}
	}
	return nil
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func matchesFilters(row map[string]any, filters []models.Filter) bool {
	for _, f := range filters {
		v, ok := row[f.Column]
		if !ok || v == nil {
			return false
		}
		c := compareValues(v, f.Value)
		var pass bool
		switch f.Op {
		case models.OpEq:
			pass = c == 0
		case models.OpNeq:
			pass = c != 0
		case models.OpGt:
			pass = c > 0
		case models.OpGte:
			pass = c >= 0
		case models.OpLt:
			pass = c < 0
		case models.OpLte:
			pass = c <= 0
		}
		if !pass {
			return false
		}
	}
	return true
}

// compareValues orders numbers numerically and everything else by its
// string form. Nil sorts first.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		return 0, false
	}
	if f, err := strconv.ParseFloat(fmt.Sprint(v), 64); err == nil {
		return f, true
	}
	return 0, false
}
