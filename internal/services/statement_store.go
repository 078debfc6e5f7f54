package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/finflow/backend/internal/models"
)

// ErrStatementNotFound means the referenced bank statement does not exist.
var ErrStatementNotFound = errors.New("bank statement not found")

// StatementStore is the persistence port consumed by the reconciliation
// engine. MergeIntoStatement applies its transaction insert and period update
// as one atomic unit.
type StatementStore interface {
	FindStatementsByAccount(ctx context.Context, accountNumber string, companyID int) ([]models.BankStatement, error)
	ListStatements(ctx context.Context, companyID int) ([]models.BankStatement, error)
	FindBankByName(ctx context.Context, name string, companyID int) (*models.Bank, error)
	CreateBank(ctx context.Context, name string, companyID int) (*models.Bank, error)
	CreateStatementWithTransactions(ctx context.Context, statement models.BankStatement, rows []models.Transaction) (int, error)
	GetStatement(ctx context.Context, id int) (*models.BankStatement, error)
	MergeIntoStatement(ctx context.Context, statementID int, rows []models.Transaction, periodStart, periodEnd time.Time) error
	UpdateStatementAccountNumber(ctx context.Context, statementID int, accountNumber string) error
	AbsorbStatement(ctx context.Context, sourceID, targetID int, periodStart, periodEnd time.Time) error
	UpdateStatementBank(ctx context.Context, statementID, bankID int, bankName string) error
}

// PostgresStatementStore implements StatementStore over database/sql.
type PostgresStatementStore struct {
	db *sql.DB
}

func NewPostgresStatementStore(db *sql.DB) *PostgresStatementStore {
	return &PostgresStatementStore{db: db}
}

const statementColumns = `
	s.id, s.bank_id, s.bank_name, s.account_number,
	s.statement_period_start, s.statement_period_end,
	COALESCE(s.account_type, ''), COALESCE(s.account_currency, ''),
	s.starting_balance, s.ending_balance, s.tenor,
	s.validated, s.validation_status, s.validation_notes, s.validated_at, s.created_at`

func scanStatement(row interface{ Scan(...any) error }) (*models.BankStatement, error) {
	var st models.BankStatement
	err := row.Scan(
		&st.ID, &st.BankID, &st.BankName, &st.AccountNumber,
		&st.StatementPeriodStart, &st.StatementPeriodEnd,
		&st.AccountType, &st.AccountCurrency,
		&st.StartingBalance, &st.EndingBalance, &st.Tenor,
		&st.Validated, &st.ValidationStatus, &st.ValidationNotes, &st.ValidatedAt, &st.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FindStatementsByAccount returns all statements for the account number in
// the company, ordered by period start ascending. The ordering is load
// bearing: the resolver's first-match rule depends on it.
func (s *PostgresStatementStore) FindStatementsByAccount(ctx context.Context, accountNumber string, companyID int) ([]models.BankStatement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+statementColumns+`
		FROM bank_statements s
		INNER JOIN banks b ON s.bank_id = b.id
		WHERE s.account_number = $1 AND b.company_id = $2
		ORDER BY s.statement_period_start ASC
	`, accountNumber, companyID)
	if err != nil {
		return nil, fmt.Errorf("querying statements for account %s: %w", accountNumber, err)
	}
	defer rows.Close()

	statements := []models.BankStatement{}
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, *st)
	}

	return statements, rows.Err()
}

// ListStatements returns every statement in the company, newest period first.
func (s *PostgresStatementStore) ListStatements(ctx context.Context, companyID int) ([]models.BankStatement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT`+statementColumns+`
		FROM bank_statements s
		INNER JOIN banks b ON s.bank_id = b.id
		WHERE b.company_id = $1
		ORDER BY s.statement_period_end DESC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("listing statements for company %d: %w", companyID, err)
	}
	defer rows.Close()

	statements := []models.BankStatement{}
	for rows.Next() {
		st, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		statements = append(statements, *st)
	}

	return statements, rows.Err()
}

// FindBankByName looks up a bank by case-insensitive name within the company.
// Returns (nil, nil) when no bank matches.
func (s *PostgresStatementStore) FindBankByName(ctx context.Context, name string, companyID int) (*models.Bank, error) {
	var bank models.Bank
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, created_at FROM banks
		WHERE LOWER(name) = LOWER($1) AND company_id = $2
		LIMIT 1
	`, name, companyID).Scan(&bank.ID, &bank.CompanyID, &bank.Name, &bank.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up bank %q: %w", name, err)
	}

	return &bank, nil
}

func (s *PostgresStatementStore) CreateBank(ctx context.Context, name string, companyID int) (*models.Bank, error) {
	var bank models.Bank
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO banks (name, company_id, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, company_id, name, created_at
	`, name, companyID).Scan(&bank.ID, &bank.CompanyID, &bank.Name, &bank.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("creating bank %q: %w", name, err)
	}

	return &bank, nil
}

// CreateStatementWithTransactions inserts the statement and its transaction
// rows in one database transaction and returns the new statement id.
func (s *PostgresStatementStore) CreateStatementWithTransactions(ctx context.Context, statement models.BankStatement, rows []models.Transaction) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var statementID int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO bank_statements
		(bank_id, bank_name, account_number, statement_period_start, statement_period_end,
		 account_type, account_currency, starting_balance, ending_balance, tenor,
		 validated, validation_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, 'pending', NOW())
		RETURNING id
	`, statement.BankID, statement.BankName, statement.AccountNumber,
		statement.StatementPeriodStart, statement.StatementPeriodEnd,
		statement.AccountType, statement.AccountCurrency,
		statement.StartingBalance, statement.EndingBalance, statement.Tenor,
	).Scan(&statementID)
	if err != nil {
		return 0, fmt.Errorf("creating statement for account %s: %w", statement.AccountNumber, err)
	}

	if err := s.insertTransactionsTx(ctx, tx, statementID, rows); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing statement creation: %w", err)
	}

	return statementID, nil
}

func (s *PostgresStatementStore) GetStatement(ctx context.Context, id int) (*models.BankStatement, error) {
	st, err := scanStatement(s.db.QueryRowContext(ctx, `
		SELECT`+statementColumns+`
		FROM bank_statements s
		WHERE s.id = $1
	`, id))

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("statement %d: %w", id, ErrStatementNotFound)
		}
		return nil, fmt.Errorf("loading statement %d: %w", id, err)
	}

	return st, nil
}

// MergeIntoStatement appends rows to an existing statement, widens its period
// to the supplied expanded bounds and resets validation, all in one
// transaction. A partial commit that inserts rows without widening the period
// would corrupt the statement, so both changes stand or fall together.
func (s *PostgresStatementStore) MergeIntoStatement(ctx context.Context, statementID int, rows []models.Transaction, periodStart, periodEnd time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.insertTransactionsTx(ctx, tx, statementID, rows); err != nil {
		return err
	}

	if err := s.updatePeriodAndResetValidationTx(ctx, tx, statementID, periodStart, periodEnd); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateStatementAccountNumber rewrites the account number and resets
// validation so the checker revisits the statement.
func (s *PostgresStatementStore) UpdateStatementAccountNumber(ctx context.Context, statementID int, accountNumber string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bank_statements
		SET account_number = $1,
		    validated = false, validation_status = 'pending', validated_at = NULL
		WHERE id = $2
	`, accountNumber, statementID)
	if err != nil {
		return fmt.Errorf("updating account number for statement %d: %w", statementID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("statement %d: %w", statementID, ErrStatementNotFound)
	}

	return nil
}

// AbsorbStatement moves every transaction from source into target, widens the
// target period, deletes the now empty source statement and resets the
// target's validation. All of it commits together or not at all.
func (s *PostgresStatementStore) AbsorbStatement(ctx context.Context, sourceID, targetID int, periodStart, periodEnd time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE transactions SET bank_statement_id = $1 WHERE bank_statement_id = $2
	`, targetID, sourceID)
	if err != nil {
		return fmt.Errorf("moving transactions from statement %d to %d: %w", sourceID, targetID, err)
	}

	if err := s.updatePeriodAndResetValidationTx(ctx, tx, targetID, periodStart, periodEnd); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM bank_statements WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("deleting absorbed statement %d: %w", sourceID, err)
	}

	return tx.Commit()
}

// UpdateStatementBank reattaches a statement to a different bank and resets
// validation.
func (s *PostgresStatementStore) UpdateStatementBank(ctx context.Context, statementID, bankID int, bankName string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE bank_statements
		SET bank_id = $1, bank_name = $2,
		    validated = false, validation_status = 'pending', validated_at = NULL
		WHERE id = $3
	`, bankID, bankName, statementID)
	if err != nil {
		return fmt.Errorf("updating bank for statement %d: %w", statementID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("statement %d: %w", statementID, ErrStatementNotFound)
	}

	return nil
}

func (s *PostgresStatementStore) insertTransactionsTx(ctx context.Context, tx *sql.Tx, statementID int, rows []models.Transaction) error {
	for _, row := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions
			(bank_statement_id, transaction_date, credit_amount, debit_amount,
			 description, balance, page_number, entity_name, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, statementID, row.TransactionDate, row.CreditAmount, row.DebitAmount,
			row.Description, row.Balance, row.PageNumber, row.EntityName, row.Currency)
		if err != nil {
			return fmt.Errorf("inserting transaction for statement %d: %w", statementID, err)
		}
	}
	return nil
}

func (s *PostgresStatementStore) updatePeriodAndResetValidationTx(ctx context.Context, tx *sql.Tx, statementID int, periodStart, periodEnd time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE bank_statements
		SET statement_period_start = $1, statement_period_end = $2,
		    validated = false, validation_status = 'pending', validated_at = NULL
		WHERE id = $3
	`, periodStart, periodEnd, statementID)
	if err != nil {
		return fmt.Errorf("updating period for statement %d: %w", statementID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("statement %d: %w", statementID, ErrStatementNotFound)
	}

	return nil
}
