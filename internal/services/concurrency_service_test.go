package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow/backend/internal/models"
)

func statementRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "bank_id", "bank_name", "account_number",
		"statement_period_start", "statement_period_end",
		"account_type", "account_currency",
		"starting_balance", "ending_balance", "tenor",
		"validated", "validation_status", "validation_notes", "validated_at", "created_at",
	})
}

func bankRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "company_id", "name", "created_at"})
}

func incomingStatement(bank string) models.AccountStatement {
	return models.AccountStatement{
		BankName:        bank,
		AccountNumber:   "0011223344",
		AccountCurrency: "NGN",
	}
}

func TestConcurrencyResolverCheck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	resolver := NewConcurrencyResolver(NewPostgresStatementStore(db))

	jan1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	feb1 := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	feb29 := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	now := time.Now()

	t.Run("no existing statements and unknown bank creates new", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows())
		mock.ExpectQuery("SELECT id, company_id, name, created_at FROM banks").
			WithArgs("GTBank", 7).
			WillReturnRows(bankRows())

		result, err := resolver.Check(context.Background(), incomingStatement("GTBank"), jan1, jan31, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionCreateNew, result.Action)
		assert.Equal(t, ReasonNoAccountMatch, result.ReasonCode)
		assert.False(t, result.ReviewRecommended)
	})

	t.Run("no existing statements but bank exists attaches to it", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows())
		mock.ExpectQuery("SELECT id, company_id, name, created_at FROM banks").
			WithArgs("GTBank", 7).
			WillReturnRows(bankRows().AddRow(3, 7, "GTBank", now))

		result, err := resolver.Check(context.Background(), incomingStatement("GTBank"), jan1, jan31, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionAddToExisting, result.Action)
		assert.Equal(t, ReasonBankNameMatch, result.ReasonCode)
		assert.False(t, result.ReviewRecommended)
		require.NotNil(t, result.ExistingBankID)
		assert.Equal(t, 3, *result.ExistingBankID)
	})

	t.Run("identical period and bank is a duplicate", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows().AddRow(
				42, 3, "GTBank", "0011223344", jan1, jan31,
				"current", "NGN", 1000.0, 2000.0, nil,
				false, "pending", nil, nil, now,
			))

		result, err := resolver.Check(context.Background(), incomingStatement("gtbank"), jan1, jan31, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionSkipDuplicate, result.Action)
		assert.Equal(t, ReasonExactDuplicate, result.ReasonCode)
		require.NotNil(t, result.ExistingStatementID)
		assert.Equal(t, 42, *result.ExistingStatementID)
	})

	t.Run("other bank overlap does not preempt same bank duplicate", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows().
				AddRow(
					41, 2, "Zenith Bank", "0011223344", jan1, jan31,
					"current", "NGN", 500.0, 900.0, nil,
					false, "pending", nil, nil, now,
				).
				AddRow(
					42, 3, "GTBank", "0011223344", jan1, jan31,
					"current", "NGN", 1000.0, 2000.0, nil,
					false, "pending", nil, nil, now,
				))

		result, err := resolver.Check(context.Background(), incomingStatement("GTBank"), jan1, jan31, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionSkipDuplicate, result.Action)
		assert.Equal(t, ReasonExactDuplicate, result.ReasonCode)
		require.NotNil(t, result.ExistingStatementID)
		assert.Equal(t, 42, *result.ExistingStatementID)
		require.NotNil(t, result.ExistingBankID)
		assert.Equal(t, 3, *result.ExistingBankID)
	})

	t.Run("overlapping period same bank merges", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows().AddRow(
				42, 3, "GTBank", "0011223344", jan1, jan31,
				"current", "NGN", 1000.0, 2000.0, nil,
				false, "pending", nil, nil, now,
			))

		result, err := resolver.Check(context.Background(), incomingStatement("GTBank"), time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), feb29, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionMergeStatement, result.Action)
		assert.Equal(t, ReasonOverlapSameBank, result.ReasonCode)
		require.NotNil(t, result.ExistingStatementID)
		assert.Equal(t, 42, *result.ExistingStatementID)
	})

	t.Run("disjoint period same bank adds to bank", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows().AddRow(
				42, 3, "GTBank", "0011223344", jan1, jan31,
				"current", "NGN", 1000.0, 2000.0, nil,
				false, "pending", nil, nil, now,
			))

		result, err := resolver.Check(context.Background(), incomingStatement("GTBank"), feb1, feb29, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionAddToExisting, result.Action)
		assert.Equal(t, ReasonDisjointSameBank, result.ReasonCode)
		assert.False(t, result.ReviewRecommended)
	})

	t.Run("bank mismatch with unknown bank creates new with review", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows().AddRow(
				42, 3, "GTBank", "0011223344", jan1, jan31,
				"current", "NGN", 1000.0, 2000.0, nil,
				false, "pending", nil, nil, now,
			))
		mock.ExpectQuery("SELECT id, company_id, name, created_at FROM banks").
			WithArgs("Zenith Bank", 7).
			WillReturnRows(bankRows())

		result, err := resolver.Check(context.Background(), incomingStatement("Zenith Bank"), jan1, jan31, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionCreateNew, result.Action)
		assert.Equal(t, ReasonBankMismatch, result.ReasonCode)
		assert.True(t, result.ReviewRecommended)
		assert.Equal(t, "Zenith Bank", result.BankName)
	})

	t.Run("bank mismatch with known bank attaches with review", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnRows(statementRows().AddRow(
				42, 3, "GTBank", "0011223344", jan1, jan31,
				"current", "NGN", 1000.0, 2000.0, nil,
				false, "pending", nil, nil, now,
			))
		mock.ExpectQuery("SELECT id, company_id, name, created_at FROM banks").
			WithArgs("Zenith Bank", 7).
			WillReturnRows(bankRows().AddRow(5, 7, "Zenith Bank", now))

		result, err := resolver.Check(context.Background(), incomingStatement("Zenith Bank"), feb1, feb29, 7)
		require.NoError(t, err)

		assert.Equal(t, ActionAddToExisting, result.Action)
		assert.Equal(t, ReasonBankMismatch, result.ReasonCode)
		assert.True(t, result.ReviewRecommended)
		assert.Equal(t, "Zenith Bank", result.BankName)
		require.NotNil(t, result.ExistingBankID)
		assert.Equal(t, 5, *result.ExistingBankID)
	})

	t.Run("lookup failure propagates as an error", func(t *testing.T) {
		mock.ExpectQuery("SELECT(.|\n)+FROM bank_statements").
			WithArgs("0011223344", 7).
			WillReturnError(assert.AnError)

		_, err := resolver.Check(context.Background(), incomingStatement("GTBank"), jan1, jan31, 7)
		require.Error(t, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
