package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow/backend/internal/models"
)

func strp(s string) *string { return &s }

func TestParseTenor(t *testing.T) {
	cases := []struct {
		name  string
		tenor *string
		want  int
	}{
		{"nil defaults to a year", nil, 12},
		{"empty defaults to a year", strp(""), 12},
		{"twelve months", strp("12 months"), 12},
		{"one year", strp("1 year"), 12},
		{"two years", strp("2yrs"), 24},
		{"ninety days", strp("90 days"), 3},
		{"two weeks rounds up to the floor", strp("2 weeks"), 1},
		{"six months shorthand", strp("6mo"), 6},
		{"bare number up to twelve reads as months", strp("7"), 7},
		{"bare ninety reads as days", strp("90"), 3},
		{"bare eighteen reads as days", strp("18"), 1},
		{"bare large number reads as days", strp("500"), 16},
		{"absurd value clamps to ten years", strp("9999"), 120},
		{"no digits defaults to a year", strp("short term"), 12},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseTenor(tc.tenor))
		})
	}
}

func TestIsFacilityAccount(t *testing.T) {
	assert.True(t, IsFacilityAccount("Loan", 100))
	assert.True(t, IsFacilityAccount("term loan", -5000))
	assert.True(t, IsFacilityAccount("OVERDRAFT", 0))
	assert.True(t, IsFacilityAccount("Letter of Credit", 100))
	assert.True(t, IsFacilityAccount("revolving credit", 100))
	assert.True(t, IsFacilityAccount("Credit Line", 100))

	// Deposit accounts stay regular even when overdrawn.
	assert.False(t, IsFacilityAccount("current", -3000))
	assert.False(t, IsFacilityAccount("savings", 100))
	assert.False(t, IsFacilityAccount("Deposit Account", -1))

	// No usable type: the balance sign decides.
	assert.True(t, IsFacilityAccount("", -3000))
	assert.False(t, IsFacilityAccount("", 100))
	assert.True(t, IsFacilityAccount("Other", -3000))
	assert.False(t, IsFacilityAccount("Other", 100))
}

func TestGenerateRepaymentProjections(t *testing.T) {
	statement := models.BankStatement{
		ID:                 9,
		BankName:           "GTBank",
		AccountType:        "term loan",
		EndingBalance:      -120000,
		StatementPeriodEnd: day(2024, time.February, 29),
		Tenor:              strp("12 months"),
	}
	windowStart := day(2024, time.March, 1)
	windowEnd := day(2024, time.August, 31)

	t.Run("amortizes equally inside the window", func(t *testing.T) {
		projections := GenerateRepaymentProjections(statement, 7, windowStart, windowEnd, IsFacilityAccount)

		require.Len(t, projections, 6)
		first := projections[0]
		assert.Equal(t, day(2024, time.March, 29), first.ProjectionDate)
		assert.InDelta(t, -10000.0, first.ProjectedAmount, amountTolerance)
		assert.Equal(t, models.CashflowBankObligation, first.Type)
		assert.Equal(t, "GTBank term loan repayment (1/12)", first.Description)
		assert.Equal(t, 0.9, first.Confidence)
		require.NotNil(t, first.BankStatementID)
		assert.Equal(t, 9, *first.BankStatementID)
	})

	t.Run("non facility accounts are skipped", func(t *testing.T) {
		deposit := statement
		deposit.AccountType = "current"
		deposit.Tenor = nil
		assert.Empty(t, GenerateRepaymentProjections(deposit, 7, windowStart, windowEnd, IsFacilityAccount))
	})

	t.Run("deposit account with a tenor annotation still amortizes", func(t *testing.T) {
		annotated := statement
		annotated.AccountType = "current"
		projections := GenerateRepaymentProjections(annotated, 7, windowStart, windowEnd, IsFacilityAccount)
		require.NotEmpty(t, projections)
	})

	t.Run("positive balance yields nothing", func(t *testing.T) {
		repaid := statement
		repaid.EndingBalance = 120000
		assert.Empty(t, GenerateRepaymentProjections(repaid, 7, windowStart, windowEnd, IsFacilityAccount))
	})

	t.Run("zero balance yields nothing", func(t *testing.T) {
		cleared := statement
		cleared.EndingBalance = 0
		assert.Empty(t, GenerateRepaymentProjections(cleared, 7, windowStart, windowEnd, IsFacilityAccount))
	})

	t.Run("missing tenor amortizes over a year", func(t *testing.T) {
		noTenor := statement
		noTenor.Tenor = nil
		projections := GenerateRepaymentProjections(noTenor, 7, windowStart, windowEnd, IsFacilityAccount)

		require.NotEmpty(t, projections)
		assert.InDelta(t, -10000.0, projections[0].ProjectedAmount, amountTolerance)
	})
}
