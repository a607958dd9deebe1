package models

type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
)

type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Embed asks the gateway to attach the related row referenced by
// ForeignKey under the key As, e.g. {As: "service", Table: "services",
// ForeignKey: "service_id"}.
type Embed struct {
	As         string
	Table      string
	ForeignKey string
}

type Query struct {
	Filters    []Filter
	Embeds     []Embed
	OrderBy    string
	Descending bool
	Limit      int
}
