package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finflow/backend/internal/config"
	"github.com/finflow/backend/internal/models"
)

// Invoice confidence heuristic bounds.
const (
	minProjectionConfidence = 0.1
	maxProjectionConfidence = 1.0
)

// RefreshSummary reports the outcome of one projection rebuild.
type RefreshSummary struct {
	CompanyID   int                         `json:"company_id"`
	WindowStart time.Time                   `json:"window_start"`
	WindowEnd   time.Time                   `json:"window_end"`
	Created     int                         `json:"created"`
	ByType      map[models.CashflowType]int `json:"by_type"`
	Warnings    []string                    `json:"warnings,omitempty"`
}

// ProjectionFilter narrows a projection listing.
type ProjectionFilter struct {
	Type     string
	Status   string
	FromDate *time.Time
	ToDate   *time.Time
}

// ProjectionService rebuilds and serves cashflow projections. Projections
// are derived data: every refresh clears the window and regenerates it from
// recurring payments, open invoices and facility balances.
type ProjectionService struct {
	db         *sql.DB
	cfg        *config.ProjectionConfig
	isFacility func(string, float64) bool
	now        func() time.Time
}

func NewProjectionService(db *sql.DB, cfg *config.ProjectionConfig) *ProjectionService {
	if cfg == nil {
		cfg = config.LoadProjectionConfig()
	}
	return &ProjectionService{
		db:         db,
		cfg:        cfg,
		isFacility: IsFacilityAccount,
		now:        time.Now,
	}
}

// RefreshProjections rebuilds the company's projection window. The three
// generators read concurrently; the delete and reinsert then commit as one
// transaction so readers never observe a half-built window.
func (ps *ProjectionService) RefreshProjections(ctx context.Context, companyID int) (*RefreshSummary, error) {
	today := ps.now().UTC().Truncate(24 * time.Hour)
	windowStart := today
	windowEnd := today.AddDate(0, 0, ps.cfg.WindowDays)

	summary := &RefreshSummary{
		CompanyID:   companyID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		ByType:      map[models.CashflowType]int{},
	}

	type generated struct {
		name string
		rows []models.CashflowProjection
		err  error
	}

	generators := []struct {
		name string
		run  func(context.Context, int, time.Time, time.Time) ([]models.CashflowProjection, error)
	}{
		{"recurring", ps.generateRecurringProjections},
		{"invoices", ps.generateInvoiceProjections},
		{"obligations", ps.generateBankObligationProjections},
	}

	results := make(chan generated, len(generators))
	var wg sync.WaitGroup
	for _, g := range generators {
		wg.Add(1)
		go func(name string, run func(context.Context, int, time.Time, time.Time) ([]models.CashflowProjection, error)) {
			defer wg.Done()
			rows, err := run(ctx, companyID, windowStart, windowEnd)
			results <- generated{name: name, rows: rows, err: err}
		}(g.name, g.run)
	}
	wg.Wait()
	close(results)

	rows := []models.CashflowProjection{}
	failures := 0
	for r := range results {
		if r.err != nil {
			failures++
			log.Printf("[PROJECTION] %s generator failed for company %d: %v", r.name, companyID, r.err)
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("%s generator failed: %v", r.name, r.err))
			continue
		}
		rows = append(rows, r.rows...)
	}
	if failures == len(generators) {
		return nil, fmt.Errorf("all projection generators failed for company %d", companyID)
	}

	if err := ps.replaceWindow(ctx, companyID, windowStart, windowEnd, rows); err != nil {
		return nil, err
	}

	summary.Created = len(rows)
	for _, row := range rows {
		summary.ByType[row.Type]++
	}

	log.Printf("[PROJECTION] rebuilt %d projections for company %d (%s to %s)",
		len(rows), companyID, windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))
	return summary, nil
}

// replaceWindow swaps the projected rows in the window atomically. Confirmed
// rows survive the rebuild.
func (ps *ProjectionService) replaceWindow(ctx context.Context, companyID int, windowStart, windowEnd time.Time, rows []models.CashflowProjection) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM cashflow_projections
		WHERE company_id = $1 AND status = 'PROJECTED'
		  AND projection_date >= $2 AND projection_date <= $3
	`, companyID, windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("clearing projection window for company %d: %w", companyID, err)
	}

	// Generator completion order is nondeterministic; sorting keeps the
	// insert order stable across refreshes.
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ProjectionDate.Equal(rows[j].ProjectionDate) {
			return rows[i].ProjectionDate.Before(rows[j].ProjectionDate)
		}
		return rows[i].Type < rows[j].Type
	})

	batchSize := ps.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := ps.insertProjectionBatch(ctx, tx, companyID, rows[start:end]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// projectionInsertColumns is the arity of each VALUES tuple below.
const projectionInsertColumns = 10

func (ps *ProjectionService) insertProjectionBatch(ctx context.Context, tx *sql.Tx, companyID int, batch []models.CashflowProjection) error {
	placeholders := make([]string, 0, len(batch))
	args := make([]any, 0, len(batch)*projectionInsertColumns)
	for i, row := range batch {
		base := i * projectionInsertColumns
		marks := make([]string, projectionInsertColumns)
		for j := range marks {
			marks[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(marks, ", ")+")")
		args = append(args, companyID, row.ProjectionDate, row.ProjectedAmount, row.Type, models.StatusProjected,
			row.Confidence, row.Description, row.InvoiceID, row.RecurringPaymentID, row.BankStatementID)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO cashflow_projections
		(company_id, projection_date, projected_amount, type, status, confidence,
		 description, invoice_id, recurring_payment_id, bank_statement_id)
		VALUES `+strings.Join(placeholders, ", "), args...)
	if err != nil {
		return fmt.Errorf("inserting projection batch for company %d: %w", companyID, err)
	}
	return nil
}

func (ps *ProjectionService) generateRecurringProjections(ctx context.Context, companyID int, windowStart, windowEnd time.Time) ([]models.CashflowProjection, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, company_id, name, amount, type, frequency,
		       start_date, end_date, next_due_date, day_of_month, day_of_week,
		       confidence, is_active, created_at
		FROM recurring_payments
		WHERE company_id = $1 AND is_active = true
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("loading recurring payments: %w", err)
	}
	defer rows.Close()

	projections := []models.CashflowProjection{}
	for rows.Next() {
		var p models.RecurringPayment
		err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Amount, &p.Type, &p.Frequency,
			&p.StartDate, &p.EndDate, &p.NextDueDate, &p.DayOfMonth, &p.DayOfWeek,
			&p.Confidence, &p.IsActive, &p.CreatedAt)
		if err != nil {
			return nil, err
		}

		for _, occ := range GenerateOccurrences(p, windowStart, windowEnd) {
			paymentID := p.ID
			projections = append(projections, models.CashflowProjection{
				CompanyID:          companyID,
				ProjectionDate:     occ.Date,
				ProjectedAmount:    occ.Amount,
				Type:               p.Type,
				Status:             models.StatusProjected,
				Confidence:         p.Confidence,
				Description:        p.Name,
				RecurringPaymentID: &paymentID,
			})
		}
	}

	return projections, rows.Err()
}

func (ps *ProjectionService) generateInvoiceProjections(ctx context.Context, companyID int, windowStart, windowEnd time.Time) ([]models.CashflowProjection, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT i.id, i.invoice_number, i.total, i.invoice_date,
		       i.customer_id, i.supplier_id,
		       COALESCE(i.customer_name, ''), COALESCE(i.supplier_name, ''),
		       COALESCE(i.currency, ''), i.payment_terms_data,
		       COALESCE((
		           SELECT SUM(p.amount) FROM invoice_payments p
		           WHERE p.invoice_id = i.id AND p.status = 'approved'
		       ), 0) AS paid
		FROM invoices i
		WHERE i.company_id = $1
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("loading invoices: %w", err)
	}
	defer rows.Close()

	today := ps.now().UTC()
	projections := []models.CashflowProjection{}
	for rows.Next() {
		var inv models.Invoice
		var termsRaw []byte
		var paid float64
		err := rows.Scan(&inv.ID, &inv.InvoiceNumber, &inv.Total, &inv.InvoiceDate,
			&inv.CustomerID, &inv.SupplierID, &inv.CustomerName, &inv.SupplierName,
			&inv.Currency, &termsRaw, &paid)
		if err != nil {
			return nil, err
		}

		remaining := inv.Total - paid
		if remaining <= amountTolerance {
			continue
		}

		isReceivable := inv.CustomerID != nil
		sign := 1.0
		cashflowType := models.CashflowCustomerReceivable
		counterparty := inv.CustomerName
		if !isReceivable {
			sign = -1.0
			cashflowType = models.CashflowSupplierPayable
			counterparty = inv.SupplierName
		}

		terms, termsOK := decodeTerms(termsRaw, inv.InvoiceNumber)
		confidence := invoiceConfidence(inv, terms, today)
		if !termsOK {
			confidence = 0.6
		}

		// Terms split the remaining balance proportionally across the
		// schedule computed from the full total.
		schedule := CalculateExpectedPayments(inv.Total, inv.InvoiceDate, terms)
		scheduleTotal := ScheduleTotal(schedule)
		if scheduleTotal <= amountTolerance {
			continue
		}

		invoiceID := inv.ID
		for _, payment := range schedule {
			amount := remaining * payment.Amount / scheduleTotal
			if amount <= amountTolerance {
				continue
			}
			dueDate := payment.Date
			if dueDate.Before(windowStart) {
				// Overdue slices stay visible at the window start instead of
				// vanishing behind it.
				dueDate = windowStart
			}
			if dueDate.After(windowEnd) {
				continue
			}
			projections = append(projections, models.CashflowProjection{
				CompanyID:       companyID,
				ProjectionDate:  dueDate,
				ProjectedAmount: sign * amount,
				Type:            cashflowType,
				Status:          models.StatusProjected,
				Confidence:      confidence,
				Description:     invoiceDescription(inv.InvoiceNumber, counterparty, payment.Description),
				InvoiceID:       &invoiceID,
			})
		}
	}

	return projections, rows.Err()
}

func decodeTerms(raw []byte, invoiceNumber string) (*models.PaymentTermsData, bool) {
	if len(raw) == 0 {
		return nil, true
	}
	var terms models.PaymentTermsData
	if err := json.Unmarshal(raw, &terms); err != nil {
		log.Printf("[PROJECTION] invoice %s has unreadable payment terms, assuming net 30: %v", invoiceNumber, err)
		return nil, false
	}
	return &terms, true
}

// invoiceConfidence scores how likely an invoice is to pay on schedule.
// Standard net 30 terms raise it, old or unusually large invoices lower it.
func invoiceConfidence(inv models.Invoice, terms *models.PaymentTermsData, today time.Time) float64 {
	confidence := 0.8

	if terms != nil && extractPaymentDays(terms.PaymentPeriod) == 30 {
		confidence += 0.1
	}
	if today.Sub(inv.InvoiceDate) > 90*24*time.Hour {
		confidence -= 0.2
	}
	if inv.Total > 100000 {
		confidence -= 0.1
	}

	if confidence < minProjectionConfidence {
		confidence = minProjectionConfidence
	}
	if confidence > maxProjectionConfidence {
		confidence = maxProjectionConfidence
	}
	return confidence
}

func invoiceDescription(invoiceNumber, counterparty, slice string) string {
	if counterparty == "" {
		return fmt.Sprintf("Invoice %s: %s", invoiceNumber, slice)
	}
	return fmt.Sprintf("Invoice %s (%s): %s", invoiceNumber, counterparty, slice)
}

// generateBankObligationProjections amortizes every facility account's most
// recent statement balance.
func (ps *ProjectionService) generateBankObligationProjections(ctx context.Context, companyID int, windowStart, windowEnd time.Time) ([]models.CashflowProjection, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT DISTINCT ON (s.account_number)
		       s.id, s.bank_name, s.account_number, s.account_type,
		       s.ending_balance, s.statement_period_end, s.tenor
		FROM bank_statements s
		INNER JOIN banks b ON s.bank_id = b.id
		WHERE b.company_id = $1
		ORDER BY s.account_number, s.statement_period_end DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("loading facility statements: %w", err)
	}
	defer rows.Close()

	projections := []models.CashflowProjection{}
	for rows.Next() {
		var st models.BankStatement
		err := rows.Scan(&st.ID, &st.BankName, &st.AccountNumber, &st.AccountType,
			&st.EndingBalance, &st.StatementPeriodEnd, &st.Tenor)
		if err != nil {
			return nil, err
		}
		projections = append(projections, GenerateRepaymentProjections(st, companyID, windowStart, windowEnd, ps.isFacility)...)
	}

	return projections, rows.Err()
}

// GetProjections lists stored projections for the company, optionally
// filtered by type, status and date range.
func (ps *ProjectionService) GetProjections(ctx context.Context, companyID int, filter ProjectionFilter) ([]models.CashflowProjection, error) {
	query := `
		SELECT id, company_id, projection_date, projected_amount, type, status,
		       confidence, description, invoice_id, recurring_payment_id, bank_statement_id
		FROM cashflow_projections
		WHERE company_id = $1`
	args := []any{companyID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += fmt.Sprintf(" AND projection_date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += fmt.Sprintf(" AND projection_date <= $%d", len(args))
	}
	query += " ORDER BY projection_date ASC, id ASC"

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projections for company %d: %w", companyID, err)
	}
	defer rows.Close()

	projections := []models.CashflowProjection{}
	for rows.Next() {
		var p models.CashflowProjection
		err := rows.Scan(&p.ID, &p.CompanyID, &p.ProjectionDate, &p.ProjectedAmount,
			&p.Type, &p.Status, &p.Confidence, &p.Description,
			&p.InvoiceID, &p.RecurringPaymentID, &p.BankStatementID)
		if err != nil {
			return nil, err
		}
		projections = append(projections, p)
	}

	return projections, rows.Err()
}
