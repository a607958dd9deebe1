package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prudhvinik1/edgeledger/internal/aggregation"
	"github.com/prudhvinik1/edgeledger/internal/models"
	"github.com/prudhvinik1/edgeledger/internal/repositories"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

type SalesSummary struct {
	Total           decimal.Decimal            `json:"total"`
	VAT             decimal.Decimal            `json:"vat"`
	Count           int                        `json:"count"`
	ByPaymentMethod map[string]decimal.Decimal `json:"by_payment_method"`
	ByService       []aggregation.GroupStat    `json:"by_service"`
}

type ExpenseSummary struct {
	Total      decimal.Decimal         `json:"total"`
	Count      int                     `json:"count"`
	ByCategory []aggregation.GroupStat `json:"by_category"`
}

type SalarySummary struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type ReportData struct {
	Start    string          `json:"start"`
	End      string          `json:"end"`
	Source   string          `json:"source"`
	Sales    SalesSummary    `json:"sales"`
	Expenses ExpenseSummary  `json:"expenses"`
	Salaries SalarySummary   `json:"salaries"`
	Profit   decimal.Decimal `json:"profit"`
}

type VATReport struct {
	Period     string          `json:"period"`
	SalesVAT   decimal.Decimal `json:"sales_vat"`
	InputVAT   decimal.Decimal `json:"input_vat"`
	NetVAT     decimal.Decimal `json:"net_vat"`
	SalesTotal decimal.Decimal `json:"sales_total"`
	SalesCount int             `json:"sales_count"`
}

type ExportData struct {
	Start    string           `json:"start"`
	End      string           `json:"end"`
	Sales    []map[string]any `json:"sales"`
	Expenses []map[string]any `json:"expenses"`
}

var (
	serviceEmbed  = models.Embed{As: "service", Table: models.TableServices, ForeignKey: "service_id"}
	customerEmbed = models.Embed{As: "customer", Table: models.TableCustomers, ForeignKey: "customer_id"}
	categoryEmbed = models.Embed{As: "category", Table: models.TableExpenseCategories, ForeignKey: "category_id"}
	supplierEmbed = models.Embed{As: "supplier", Table: models.TableSuppliers, ForeignKey: "supplier_id"}
)

// ReportService computes dashboards and VAT returns. Rows come from the
// local mirror unless remote reads are preferred and the backend is
// reachable.
type ReportService struct {
	store        LocalMirror
	remote       repositories.RemoteGateway
	online       func() bool
	preferRemote bool
	vatRate      decimal.Decimal
	loc          *time.Location
	now          func() time.Time
	log          logrus.FieldLogger
}

type ReportOptions struct {
	PreferRemote bool
	VATRate      decimal.Decimal
	Location     *time.Location
	Online       func() bool
}

func NewReportService(store LocalMirror, remote repositories.RemoteGateway, opts ReportOptions, log logrus.FieldLogger) *ReportService {
	if opts.Online == nil {
		opts.Online = func() bool { return false }
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &ReportService{
		store:        store,
		remote:       remote,
		online:       opts.Online,
		preferRemote: opts.PreferRemote,
		vatRate:      opts.VATRate,
		loc:          opts.Location,
		now:          time.Now,
		log:          log.WithField("module", "reports"),
	}
}

// Window resolves a named range, or a custom one when start and end are
// both given.
func (s *ReportService) Window(name, start, end string) (aggregation.Window, error) {
	if start != "" || end != "" {
		w, err := aggregation.ParseWindow(start, end, s.loc)
		if err != nil {
			return aggregation.Window{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return w, nil
	}
	if name == "" {
		name = "month"
	}
	w, err := aggregation.Preset(name, s.now(), s.loc)
	if err != nil {
		return aggregation.Window{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return w, nil
}

func (s *ReportService) Report(ctx context.Context, w aggregation.Window) (*ReportData, error) {
	sales, source, err := s.fetch(ctx, models.TableSales, w, serviceEmbed)
	if err != nil {
		return nil, err
	}
	expenses, _, err := s.fetch(ctx, models.TableExpenses, w, categoryEmbed)
	if err != nil {
		return nil, err
	}
	salaries, _, err := s.fetch(ctx, models.TableSalaryPayments, w)
	if err != nil {
		return nil, err
	}

	salesTotal := aggregation.Round2(aggregation.SumField(sales, aggregation.Field("total_amount")))
	expensesTotal := aggregation.Round2(aggregation.SumField(expenses, aggregation.Field("amount")))
	salariesTotal := aggregation.Round2(aggregation.SumField(salaries, aggregation.Field("net_amount")))

	return &ReportData{
		Start:  w.StartDate(),
		End:    w.EndDate(),
		Source: source,
		Sales: SalesSummary{
			Total:           salesTotal,
			VAT:             aggregation.Round2(aggregation.SumField(sales, aggregation.Field("vat_amount"))),
			Count:           len(sales),
			ByPaymentMethod: aggregation.GroupSum(sales, aggregation.Key("payment_method"), aggregation.Field("total_amount"), aggregation.LabelUnknown),
			ByService:       aggregation.GroupStats(sales, serviceLabel, aggregation.Field("total_amount"), aggregation.LabelOther),
		},
		Expenses: ExpenseSummary{
			Total:      expensesTotal,
			Count:      len(expenses),
			ByCategory: aggregation.GroupStats(expenses, embeddedLabel("category", "name_en"), aggregation.Field("amount"), aggregation.LabelOther),
		},
		Salaries: SalarySummary{
			Total: salariesTotal,
			Count: len(salaries),
		},
		Profit: aggregation.Profit(salesTotal, expensesTotal, salariesTotal),
	}, nil
}

// VATReport covers one calendar month. Input VAT is not reclaimed, so the
// net figure equals the output VAT collected on sales.
func (s *ReportService) VATReport(ctx context.Context, month, year int) (*VATReport, error) {
	if month < 1 || month > 12 || year < 1 {
		return nil, fmt.Errorf("%w: invalid period %d/%d", ErrValidation, month, year)
	}
	w := aggregation.MonthWindow(month, year, s.loc)
	sales, _, err := s.fetch(ctx, models.TableSales, w)
	if err != nil {
		return nil, err
	}

	salesVAT := aggregation.SumField(sales, aggregation.Field("vat_amount"))
	return &VATReport{
		Period:     fmt.Sprintf("%04d-%02d", year, month),
		SalesVAT:   salesVAT,
		InputVAT:   decimal.Zero,
		NetVAT:     aggregation.NetVAT(salesVAT, decimal.Zero),
		SalesTotal: aggregation.SumField(sales, aggregation.Field("total_amount")),
		SalesCount: len(sales),
	}, nil
}

func (s *ReportService) SalesTotals(ctx context.Context, w aggregation.Window) (aggregation.SaleTotals, error) {
	sales, _, err := s.fetch(ctx, models.TableSales, w)
	if err != nil {
		return aggregation.SaleTotals{}, err
	}
	return aggregation.ComputeSaleTotals(sales), nil
}

// ExportData returns the rows behind a report with their related labels
// attached, newest first.
func (s *ReportService) ExportData(ctx context.Context, w aggregation.Window) (*ExportData, error) {
	sales, _, err := s.fetch(ctx, models.TableSales, w, serviceEmbed, customerEmbed)
	if err != nil {
		return nil, err
	}
	expenses, _, err := s.fetch(ctx, models.TableExpenses, w, categoryEmbed, supplierEmbed)
	if err != nil {
		return nil, err
	}

	return &ExportData{
		Start:    w.StartDate(),
		End:      w.EndDate(),
		Sales:    s.exportRows(sales, "sale_date"),
		Expenses: s.exportRows(expenses, "expense_date"),
	}, nil
}

func (s *ReportService) exportRows(records []*models.Record, dateField string) []map[string]any {
	sort.SliceStable(records, func(i, j int) bool {
		di, _ := aggregation.CivilDate(records[i].Value(dateField), s.loc)
		dj, _ := aggregation.CivilDate(records[j].Value(dateField), s.loc)
		if di != dj {
			return di > dj
		}
		return records[i].ID < records[j].ID
	})
	rows := make([]map[string]any, len(records))
	for i, r := range records {
		rows[i] = r.Snapshot()
	}
	return rows
}

// fetch loads the rows of table inside w with the requested relations
// embedded under their Embed.As keys.
func (s *ReportService) fetch(ctx context.Context, table string, w aggregation.Window, embeds ...models.Embed) ([]*models.Record, string, error) {
	ts, ok := s.store.Schema().Table(table)
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", repositories.ErrUnknownTable, table)
	}

	if s.preferRemote && s.online() {
		records, err := s.fetchRemote(ctx, ts, w, embeds)
		if err == nil {
			return records, SourceRemote, nil
		}
		s.log.WithError(err).WithField("table", table).Warn("remote report query failed, using local mirror")
	}

	records, err := s.fetchLocal(ctx, ts, w, embeds)
	if err != nil {
		return nil, "", err
	}
	return records, SourceLocal, nil
}

func (s *ReportService) fetchRemote(ctx context.Context, ts models.TableSchema, w aggregation.Window, embeds []models.Embed) ([]*models.Record, error) {
	rows, err := s.remote.Query(ctx, ts.Name, models.Query{
		Filters: []models.Filter{
			{Column: ts.DateField, Op: models.OpGte, Value: w.StartDate()},
			{Column: ts.DateField, Op: models.OpLte, Value: w.EndDate()},
		},
		Embeds:     embeds,
		OrderBy:    ts.DateField,
		Descending: true,
	})
	if err != nil {
		return nil, err
	}
	records := make([]*models.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.RecordFromRow(row))
	}
	return aggregation.FilterByWindow(records, ts.DateField, w), nil
}

func (s *ReportService) fetchLocal(ctx context.Context, ts models.TableSchema, w aggregation.Window, embeds []models.Embed) ([]*models.Record, error) {
	mirror := s.store.Mirror()
	all, err := mirror.GetAll(ctx, ts.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ts.Name, err)
	}
	records := aggregation.FilterByWindow(all, ts.DateField, w)

	for _, e := range embeds {
		related, err := mirror.GetAll(ctx, e.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", e.Table, err)
		}
		byID := make(map[string]map[string]any, len(related))
		for _, r := range related {
			byID[r.ID] = r.Snapshot()
		}
		for i, r := range records {
			c := r.Clone()
			if row, ok := byID[c.String(e.ForeignKey)]; ok {
				c.Fields[e.As] = row
			} else {
				c.Fields[e.As] = nil
			}
			records[i] = c
		}
	}
	return records, nil
}

// serviceLabel names a sale by its service, falling back to the free-text
// description.
func serviceLabel(r *models.Record) string {
	if name := embeddedLabel("service", "name_en")(r); name != "" {
		return name
	}
	return aggregation.Key("custom_description")(r)
}

func embeddedLabel(as, field string) aggregation.KeySelector {
	return func(r *models.Record) string {
		related, ok := r.Value(as).(map[string]any)
		if !ok {
			return ""
		}
		name, _ := related[field].(string)
		return name
	}
}
