package models

import (
	"time"
)

// Bank is a company-scoped named institution. Names are matched
// case-insensitively during statement reconciliation, but duplicates with
// different ids may legitimately exist.
type Bank struct {
	ID        int       `json:"id" db:"id"`
	CompanyID int       `json:"company_id" db:"company_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// BankStatement is one declared reporting period for one account.
// statement_period_start <= statement_period_end always holds.
type BankStatement struct {
	ID                   int        `json:"id" db:"id"`
	BankID               int        `json:"bank_id" db:"bank_id"`
	BankName             string     `json:"bank_name" db:"bank_name"`
	AccountNumber        string     `json:"account_number" db:"account_number"`
	StatementPeriodStart time.Time  `json:"statement_period_start" db:"statement_period_start"`
	StatementPeriodEnd   time.Time  `json:"statement_period_end" db:"statement_period_end"`
	AccountType          string     `json:"account_type" db:"account_type"`
	AccountCurrency      string     `json:"account_currency" db:"account_currency"`
	StartingBalance      float64    `json:"starting_balance" db:"starting_balance"`
	EndingBalance        float64    `json:"ending_balance" db:"ending_balance"`
	Tenor                *string    `json:"tenor,omitempty" db:"tenor"`
	Validated            bool       `json:"validated" db:"validated"`
	ValidationStatus     string     `json:"validation_status" db:"validation_status"`
	ValidationNotes      *string    `json:"validation_notes,omitempty" db:"validation_notes"`
	ValidatedAt          *time.Time `json:"validated_at,omitempty" db:"validated_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
}

// Transaction is one ledger line owned by exactly one bank statement.
// At most one of CreditAmount/DebitAmount is meaningfully set; both may be
// nil when the source row carried no parseable amount.
type Transaction struct {
	ID              int       `json:"id" db:"id"`
	BankStatementID int       `json:"bank_statement_id" db:"bank_statement_id"`
	TransactionDate time.Time `json:"transaction_date" db:"transaction_date"`
	CreditAmount    *float64  `json:"credit_amount,omitempty" db:"credit_amount"`
	DebitAmount     *float64  `json:"debit_amount,omitempty" db:"debit_amount"`
	Description     string    `json:"description" db:"description"`
	Balance         *float64  `json:"balance,omitempty" db:"balance"`
	PageNumber      string    `json:"page_number" db:"page_number"`
	EntityName      string    `json:"entity_name" db:"entity_name"`
	Currency        string    `json:"currency,omitempty" db:"currency"`
}

// Validation status values for bank statements.
const (
	ValidationPending = "pending"
	ValidationPassed  = "passed"
	ValidationFailed  = "failed"
)
