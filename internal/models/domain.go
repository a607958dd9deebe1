package models

import (
	"github.com/shopspring/decimal"
)

// The typed shapes below mirror the backend's row definitions. They are
// used to validate optimistic writes before they reach the mirror; the
// mirror itself stores Records.

type Sale struct {
	ID                string          `json:"id"`
	SaleDate          string          `json:"sale_date" validate:"required,datetime=2006-01-02"`
	CustomerID        *string         `json:"customer_id"`
	ServiceID         *string         `json:"service_id"`
	CustomDescription *string         `json:"custom_description" validate:"required_without=ServiceID"`
	Quantity          decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice         decimal.Decimal `json:"unit_price" validate:"gt=0"`
	Subtotal          decimal.Decimal `json:"subtotal" validate:"gte=0"`
	VATAmount         decimal.Decimal `json:"vat_amount" validate:"gte=0"`
	TotalAmount       decimal.Decimal `json:"total_amount" validate:"gte=0"`
	PaymentMethod     string          `json:"payment_method" validate:"required,oneof=cash bank_transfer card"`
	PaymentStatus     string          `json:"payment_status" validate:"omitempty,oneof=paid partial pending"`
	DepositAmount     decimal.Decimal `json:"deposit_amount" validate:"gte=0"`
	Notes             *string         `json:"notes"`
}

type Expense struct {
	ID              string          `json:"id"`
	ExpenseDate     string          `json:"expense_date" validate:"required,datetime=2006-01-02"`
	CategoryID      *string         `json:"category_id"`
	SupplierID      *string         `json:"supplier_id"`
	Description     *string         `json:"description"`
	Amount          decimal.Decimal `json:"amount" validate:"gt=0"`
	VATAmount       decimal.Decimal `json:"vat_amount" validate:"gte=0"`
	TotalAmount     decimal.Decimal `json:"total_amount" validate:"gte=0"`
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=cash bank_transfer card"`
	ReferenceNumber *string         `json:"reference_number"`
	ReceiptURL      *string         `json:"receipt_url" validate:"omitempty,url"`
	Notes           *string         `json:"notes"`
}

type SalaryPayment struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employee_id" validate:"required"`
	PaymentDate   string          `json:"payment_date" validate:"required,datetime=2006-01-02"`
	PeriodMonth   int             `json:"period_month" validate:"min=1,max=12"`
	PeriodYear    int             `json:"period_year" validate:"min=2000"`
	BaseSalary    decimal.Decimal `json:"base_salary" validate:"gte=0"`
	Deductions    decimal.Decimal `json:"deductions" validate:"gte=0"`
	Advances      decimal.Decimal `json:"advances" validate:"gte=0"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,oneof=cash bank_transfer"`
	Notes         *string         `json:"notes"`
}

type Customer struct {
	ID           string  `json:"id"`
	Name         string  `json:"name" validate:"required"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email" validate:"omitempty,email"`
	CustomerType string  `json:"customer_type" validate:"omitempty,oneof=individual brand company"`
	Notes        *string `json:"notes"`
}

type Service struct {
	ID              string           `json:"id"`
	NameEn          string           `json:"name_en" validate:"required"`
	NameTr          *string          `json:"name_tr"`
	DefaultPrice    decimal.Decimal  `json:"default_price" validate:"gte=0"`
	MinPrice        *decimal.Decimal `json:"min_price"`
	MaxPrice        *decimal.Decimal `json:"max_price"`
	IsVariablePrice bool             `json:"is_variable_price"`
	IsActive        *bool            `json:"is_active"`
	SortOrder       int              `json:"sort_order"`
}

type ExpenseCategory struct {
	ID        string  `json:"id"`
	NameEn    string  `json:"name_en" validate:"required"`
	NameTr    *string `json:"name_tr"`
	Icon      *string `json:"icon"`
	IsActive  *bool   `json:"is_active"`
	SortOrder int     `json:"sort_order"`
}

type Supplier struct {
	ID          string  `json:"id"`
	Name        string  `json:"name" validate:"required"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email" validate:"omitempty,email"`
	ContactInfo *string `json:"contact_info"`
	Category    *string `json:"category"`
	Notes       *string `json:"notes"`
	IsActive    *bool   `json:"is_active"`
}

type Employee struct {
	ID             string          `json:"id"`
	Name           string          `json:"name" validate:"required"`
	NameAr         *string         `json:"name_ar"`
	JobTitle       string          `json:"job_title" validate:"required"`
	SalaryAmount   decimal.Decimal `json:"salary_amount" validate:"gte=0"`
	SalaryCurrency string          `json:"salary_currency"`
	SalaryDay      int             `json:"salary_day" validate:"omitempty,min=1,max=31"`
	Phone          *string         `json:"phone"`
	VisaExpiryDate *string         `json:"visa_expiry_date" validate:"omitempty,datetime=2006-01-02"`
	EmiratesID     *string         `json:"emirates_id"`
	StartDate      *string         `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	IsActive       *bool           `json:"is_active"`
	Notes          *string         `json:"notes"`
}

// TypedModel returns a fresh pointer to the typed shape of table, or nil
// when the table has none.
func TypedModel(table string) any {
	switch table {
	case TableSales:
		return &Sale{}
	case TableExpenses:
		return &Expense{}
	case TableSalaryPayments:
		return &SalaryPayment{}
	case TableCustomers:
		return &Customer{}
	case TableServices:
		return &Service{}
	case TableExpenseCategories:
		return &ExpenseCategory{}
	case TableSuppliers:
		return &Supplier{}
	case TableEmployees:
		return &Employee{}
	}
	return nil
}
