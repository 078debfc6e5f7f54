package models

import (
	"time"
)

// CashflowType identifies the source category of a projected cash movement.
type CashflowType string

const (
	CashflowCustomerReceivable CashflowType = "CUSTOMER_RECEIVABLE"
	CashflowSupplierPayable    CashflowType = "SUPPLIER_PAYABLE"
	CashflowRecurringInflow    CashflowType = "RECURRING_INFLOW"
	CashflowRecurringOutflow   CashflowType = "RECURRING_OUTFLOW"
	CashflowBankObligation     CashflowType = "BANK_OBLIGATION"
)

// CashflowStatus marks whether a projection is still a forecast.
type CashflowStatus string

const (
	StatusProjected CashflowStatus = "PROJECTED"
	StatusConfirmed CashflowStatus = "CONFIRMED"
)

// RecurrenceFrequency of a recurring payment.
type RecurrenceFrequency string

const (
	FrequencyDaily        RecurrenceFrequency = "DAILY"
	FrequencyWeekly       RecurrenceFrequency = "WEEKLY"
	FrequencyBiweekly     RecurrenceFrequency = "BIWEEKLY"
	FrequencyMonthly      RecurrenceFrequency = "MONTHLY"
	FrequencyQuarterly    RecurrenceFrequency = "QUARTERLY"
	FrequencySemiannually RecurrenceFrequency = "SEMIANNUALLY"
	FrequencyAnnually     RecurrenceFrequency = "ANNUALLY"
)

// RecurringPayment is a company-scoped recurring cash-flow definition.
// NextDueDate is a stable anchor: projections recompute forward from it on
// every refresh, it is never auto-advanced.
type RecurringPayment struct {
	ID          int                 `json:"id" db:"id"`
	CompanyID   int                 `json:"company_id" db:"company_id"`
	Name        string              `json:"name" db:"name"`
	Amount      float64             `json:"amount" db:"amount"`
	Type        CashflowType        `json:"type" db:"type"`
	Frequency   RecurrenceFrequency `json:"frequency" db:"frequency"`
	StartDate   time.Time           `json:"start_date" db:"start_date"`
	EndDate     *time.Time          `json:"end_date,omitempty" db:"end_date"`
	NextDueDate time.Time           `json:"next_due_date" db:"next_due_date"`
	DayOfMonth  *int                `json:"day_of_month,omitempty" db:"day_of_month"`
	DayOfWeek   *int                `json:"day_of_week,omitempty" db:"day_of_week"`
	Confidence  float64             `json:"confidence" db:"confidence"`
	IsActive    bool                `json:"is_active" db:"is_active"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

// Invoice is read-only to the projection engine. Exactly one of CustomerID
// and SupplierID is set.
type Invoice struct {
	ID               int               `json:"id" db:"id"`
	CompanyID        int               `json:"company_id" db:"company_id"`
	InvoiceNumber    string            `json:"invoice_number" db:"invoice_number"`
	Total            float64           `json:"total" db:"total"`
	InvoiceDate      time.Time         `json:"invoice_date" db:"invoice_date"`
	CustomerID       *int              `json:"customer_id,omitempty" db:"customer_id"`
	SupplierID       *int              `json:"supplier_id,omitempty" db:"supplier_id"`
	CustomerName     string            `json:"customer_name,omitempty" db:"customer_name"`
	SupplierName     string            `json:"supplier_name,omitempty" db:"supplier_name"`
	Currency         string            `json:"currency,omitempty" db:"currency"`
	PaymentTermsData *PaymentTermsData `json:"payment_terms_data,omitempty" db:"payment_terms_data"`
}

// DownPaymentTerms describes an up-front portion of an invoice.
type DownPaymentTerms struct {
	Required   bool     `json:"required"`
	Percentage *float64 `json:"percentage,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
	DueDate    string   `json:"dueDate,omitempty"`
}

// InstallmentTerms describes one scheduled installment.
type InstallmentTerms struct {
	ID          string   `json:"id,omitempty"`
	DueDays     int      `json:"dueDays"`
	Percentage  *float64 `json:"percentage,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	Description string   `json:"description,omitempty"`
}

// PaymentTermsData is the structured payment-terms contract attached to a
// customer or supplier.
type PaymentTermsData struct {
	PaymentPeriod string             `json:"paymentPeriod"`
	DownPayment   *DownPaymentTerms  `json:"downPayment,omitempty"`
	Installments  []InstallmentTerms `json:"installments,omitempty"`
}

// PaymentKind classifies one entry of an expected payment schedule.
type PaymentKind string

const (
	PaymentDownPayment  PaymentKind = "down_payment"
	PaymentInstallment  PaymentKind = "installment"
	PaymentFinalPayment PaymentKind = "final_payment"
	PaymentFullPayment  PaymentKind = "full_payment"
)

// ExpectedPayment is one dated entry of a payment schedule produced from an
// invoice amount and its payment terms.
type ExpectedPayment struct {
	Date          time.Time   `json:"date"`
	Amount        float64     `json:"amount"`
	Description   string      `json:"description"`
	Kind          PaymentKind `json:"kind"`
	InstallmentID string      `json:"installment_id,omitempty"`
}

// CashflowProjection is a derived, rebuildable forecast row. Exactly one of
// InvoiceID, RecurringPaymentID and BankStatementID is set. ProjectedAmount
// is signed: positive means inflow.
type CashflowProjection struct {
	ID                 int            `json:"id" db:"id"`
	CompanyID          int            `json:"company_id" db:"company_id"`
	ProjectionDate     time.Time      `json:"projection_date" db:"projection_date"`
	ProjectedAmount    float64        `json:"projected_amount" db:"projected_amount"`
	Type               CashflowType   `json:"type" db:"type"`
	Status             CashflowStatus `json:"status" db:"status"`
	Confidence         float64        `json:"confidence" db:"confidence"`
	Description        string         `json:"description" db:"description"`
	InvoiceID          *int           `json:"invoice_id,omitempty" db:"invoice_id"`
	RecurringPaymentID *int           `json:"recurring_payment_id,omitempty" db:"recurring_payment_id"`
	BankStatementID    *int           `json:"bank_statement_id,omitempty" db:"bank_statement_id"`
}

// DailyCashPosition is one day of the projected cash position.
type DailyCashPosition struct {
	Date              string  `json:"date"`
	OpeningBalance    float64 `json:"openingBalance"`
	TotalInflows      float64 `json:"totalInflows"`
	TotalOutflows     float64 `json:"totalOutflows"`
	NetCashflow       float64 `json:"netCashflow"`
	ClosingBalance    float64 `json:"closingBalance"`
	ProjectionCount   int     `json:"projectionCount"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// CashPositionSummary aggregates a projection window.
type CashPositionSummary struct {
	AverageDailyBalance     float64 `json:"averageDailyBalance"`
	LowestProjectedBalance  float64 `json:"lowestProjectedBalance"`
	LowestBalanceDate       string  `json:"lowestBalanceDate"`
	HighestProjectedBalance float64 `json:"highestProjectedBalance"`
	HighestBalanceDate      string  `json:"highestBalanceDate"`
	CashPositiveDays        int     `json:"cashPositiveDays"`
	CashNegativeDays        int     `json:"cashNegativeDays"`
	TotalDays               int     `json:"totalDays"`
	StartingBalance         float64 `json:"startingBalance"`
	LatestBalanceDate       string  `json:"latestBalanceDate"`
	EffectiveStartDate      string  `json:"effectiveStartDate"`
}

// CashflowAlert flags a condition worth surfacing with the position report.
type CashflowAlert struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Severity       string  `json:"severity"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Date           string  `json:"date"`
	Amount         float64 `json:"amount,omitempty"`
	ActionRequired bool    `json:"actionRequired"`
}
