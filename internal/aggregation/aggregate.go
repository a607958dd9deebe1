// Package aggregation holds the pure report arithmetic: window filtering,
// sums, group-bys and VAT splits over mirrored records.
package aggregation

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/shopspring/decimal"
)

const (
	LabelOther   = "Other"
	LabelUnknown = "unknown"
)

// Selector extracts a numeric value from a record.
type Selector func(*models.Record) decimal.Decimal

// KeySelector derives a grouping label from a record.
type KeySelector func(*models.Record) string

// Field selects a numeric field. Missing, null and unparsable values
// count as zero.
func Field(name string) Selector {
	return func(r *models.Record) decimal.Decimal {
		return ToDecimal(r.Value(name))
	}
}

// Key selects a string field.
func Key(name string) KeySelector {
	return func(r *models.Record) string {
		return strings.TrimSpace(r.String(name))
	}
}

func ToDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return t
	case json.Number:
		if d, err := decimal.NewFromString(t.String()); err == nil {
			return d
		}
	case float64:
		return decimal.NewFromFloat(t)
	case float32:
		return decimal.NewFromFloat32(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// FilterByWindow keeps the records whose dateField falls in w.
func FilterByWindow(records []*models.Record, dateField string, w Window) []*models.Record {
	out := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if w.Contains(r.Value(dateField)) {
			out = append(out, r)
		}
	}
	return out
}

func SumField(records []*models.Record, sel Selector) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(sel(r))
	}
	return sum
}

// GroupSum sums sel per key. Records with an empty key are grouped under
// fallback.
func GroupSum(records []*models.Record, key KeySelector, sel Selector, fallback string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		k := key(r)
		if k == "" {
			k = fallback
		}
		out[k] = out[k].Add(sel(r))
	}
	return out
}

type GroupStat struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// GroupStats is GroupSum with a per-key count, ordered by total
// descending and then by name.
func GroupStats(records []*models.Record, key KeySelector, sel Selector, fallback string) []GroupStat {
	index := make(map[string]int)
	var stats []GroupStat
	for _, r := range records {
		k := key(r)
		if k == "" {
			k = fallback
		}
		i, ok := index[k]
		if !ok {
			i = len(stats)
			index[k] = i
			stats = append(stats, GroupStat{Name: k})
		}
		stats[i].Total = stats[i].Total.Add(sel(r))
		stats[i].Count++
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if c := stats[i].Total.Cmp(stats[j].Total); c != 0 {
			return c > 0
		}
		return stats[i].Name < stats[j].Name
	})
	return stats
}

func Profit(sales, expenses, salaries decimal.Decimal) decimal.Decimal {
	return sales.Sub(expenses).Sub(salaries)
}

type SaleTotals struct {
	Total   decimal.Decimal `json:"total"`
	VAT     decimal.Decimal `json:"vat"`
	Paid    decimal.Decimal `json:"paid"`
	Pending decimal.Decimal `json:"pending"`
	Cash    decimal.Decimal `json:"cash"`
	Bank    decimal.Decimal `json:"bank"`
	Card    decimal.Decimal `json:"card"`
	Count   int             `json:"count"`
}

// ComputeSaleTotals splits sales by settlement. A partial sale counts its
// deposit as paid and the remainder as pending.
func ComputeSaleTotals(sales []*models.Record) SaleTotals {
	var t SaleTotals
	for _, s := range sales {
		total := ToDecimal(s.Value("total_amount"))
		deposit := ToDecimal(s.Value("deposit_amount"))

		t.Total = t.Total.Add(total)
		t.VAT = t.VAT.Add(ToDecimal(s.Value("vat_amount")))
		t.Count++

		switch s.String("payment_status") {
		case "paid":
			t.Paid = t.Paid.Add(total)
		case "partial":
			t.Paid = t.Paid.Add(deposit)
			t.Pending = t.Pending.Add(total.Sub(deposit))
		case "pending":
			t.Pending = t.Pending.Add(total)
		}

		switch s.String("payment_method") {
		case "cash":
			t.Cash = t.Cash.Add(total)
		case "bank_transfer":
			t.Bank = t.Bank.Add(total)
		case "card":
			t.Card = t.Card.Add(total)
		}
	}
	return t
}
