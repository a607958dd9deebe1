package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type IndexSchema struct {
	Name  string `yaml:"name" json:"name"`
	Field string `yaml:"field" json:"field"`
}

// TableSchema describes one mirrored table: which field carries the
// business date used by report windows, and which fields are indexed.
// UpdatedAt is set when the remote table has an updated_at column.
type TableSchema struct {
	Name      string        `yaml:"name" json:"name"`
	DateField string        `yaml:"date_field,omitempty" json:"date_field,omitempty"`
	UpdatedAt bool          `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
	Indexes   []IndexSchema `yaml:"indexes,omitempty" json:"indexes,omitempty"`
}

// RemoteRow returns row restricted to the columns the remote table
// carries. row is not modified.
func (t TableSchema) RemoteRow(row map[string]any) map[string]any {
	if _, ok := row[FieldUpdatedAt]; !ok || t.UpdatedAt {
		return row
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		if k != FieldUpdatedAt {
			out[k] = v
		}
	}
	return out
}

func (t TableSchema) Index(name string) (IndexSchema, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexSchema{}, false
}

type Schema struct {
	Tables []TableSchema `yaml:"tables" json:"tables"`
}

func (s Schema) Table(name string) (TableSchema, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableSchema{}, false
}

func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s.Tables))
	for _, t := range s.Tables {
		if t.Name == "" {
			return fmt.Errorf("table with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("table %q declared twice", t.Name)
		}
		seen[t.Name] = true
		idx := make(map[string]bool, len(t.Indexes))
		for _, i := range t.Indexes {
			if i.Name == "" || i.Field == "" {
				return fmt.Errorf("table %q: index needs a name and a field", t.Name)
			}
			if idx[i.Name] {
				return fmt.Errorf("table %q: index %q declared twice", t.Name, i.Name)
			}
			idx[i.Name] = true
		}
	}
	return nil
}

const (
	TableSales             = "sales"
	TableExpenses          = "expenses"
	TableSalaryPayments    = "salary_payments"
	TableCustomers         = "customers"
	TableServices          = "services"
	TableExpenseCategories = "expense_categories"
	TableSuppliers         = "suppliers"
	TableEmployees         = "employees"
)

const (
	IndexByDate     = "by-date"
	IndexBySynced   = "by-synced"
	IndexByName     = "by-name"
	IndexByCustomer = "by-customer"
	IndexByCategory = "by-category"
	IndexByEmployee = "by-employee"
)

func DefaultSchema() Schema {
	return Schema{Tables: []TableSchema{
		{
			Name:      TableSales,
			DateField: "sale_date",
			UpdatedAt: true,
			Indexes: []IndexSchema{
				{Name: IndexByDate, Field: "sale_date"},
				{Name: IndexBySynced, Field: FieldSyncState},
				{Name: IndexByCustomer, Field: "customer_id"},
			},
		},
		{
			Name:      TableExpenses,
			DateField: "expense_date",
			Indexes: []IndexSchema{
				{Name: IndexByDate, Field: "expense_date"},
				{Name: IndexBySynced, Field: FieldSyncState},
				{Name: IndexByCategory, Field: "category_id"},
			},
		},
		{
			Name:      TableSalaryPayments,
			DateField: "payment_date",
			Indexes: []IndexSchema{
				{Name: IndexByDate, Field: "payment_date"},
				{Name: IndexBySynced, Field: FieldSyncState},
				{Name: IndexByEmployee, Field: "employee_id"},
			},
		},
		{Name: TableCustomers, UpdatedAt: true, Indexes: []IndexSchema{{Name: IndexByName, Field: "name"}}},
		{Name: TableServices, Indexes: []IndexSchema{{Name: IndexByName, Field: "name_en"}}},
		{Name: TableExpenseCategories, Indexes: []IndexSchema{{Name: IndexByName, Field: "name_en"}}},
		{Name: TableSuppliers, Indexes: []IndexSchema{{Name: IndexByName, Field: "name"}}},
		{Name: TableEmployees, Indexes: []IndexSchema{{Name: IndexByName, Field: "name"}}},
	}}
}

// LoadSchemaFile reads a YAML schema. An empty path yields DefaultSchema.
func LoadSchemaFile(path string) (Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to read schema file: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("failed to parse schema file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, fmt.Errorf("invalid schema file: %w", err)
	}
	return s, nil
}
