package models

// The statement structuring pipeline (LLM-backed, external to this service)
// emits every field as a string. Amounts and dates are parsed defensively on
// ingest; a malformed value never aborts a whole statement import.

// StatementPeriod is the declared reporting window of an incoming statement.
type StatementPeriod struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// TransactionData is one raw ledger line as produced by the structuring
// pipeline.
type TransactionData struct {
	Date         string `json:"date"`
	CreditAmount string `json:"credit_amount"`
	DebitAmount  string `json:"debit_amount"`
	Description  string `json:"description"`
	Balance      string `json:"balance"`
	PageNumber   string `json:"page_number"`
	EntityName   string `json:"entity_name"`
}

// AccountStatement is the structured form of one parsed bank statement.
type AccountStatement struct {
	BankName        string            `json:"bank_name" validate:"required"`
	AccountNumber   string            `json:"account_number" validate:"required"`
	StatementPeriod StatementPeriod   `json:"statement_period" validate:"required"`
	AccountType     string            `json:"account_type"`
	AccountCurrency string            `json:"account_currency"`
	StartingBalance string            `json:"starting_balance"`
	EndingBalance   string            `json:"ending_balance"`
	Transactions    []TransactionData `json:"transactions"`
}
