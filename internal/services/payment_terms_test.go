package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow/backend/internal/models"
)

func pct(v float64) *float64 { return &v }

func TestExtractPaymentDays(t *testing.T) {
	assert.Equal(t, 0, extractPaymentDays("Due on receipt"))
	assert.Equal(t, 0, extractPaymentDays("due on receipt, thanks"))
	assert.Equal(t, 30, extractPaymentDays("Net 30"))
	assert.Equal(t, 45, extractPaymentDays("net45"))
	assert.Equal(t, 60, extractPaymentDays("NET 60 days"))
	assert.Equal(t, 30, extractPaymentDays(""))
	assert.Equal(t, 30, extractPaymentDays("end of quarter"))
}

func TestCalculateExpectedPayments(t *testing.T) {
	invoiceDate := day(2024, time.March, 1)

	t.Run("no terms falls due at net 30", func(t *testing.T) {
		payments := CalculateExpectedPayments(10000, invoiceDate, nil)

		require.Len(t, payments, 1)
		assert.Equal(t, models.PaymentFullPayment, payments[0].Kind)
		assert.Equal(t, day(2024, time.March, 31), payments[0].Date)
		assert.Equal(t, 10000.0, payments[0].Amount)
	})

	t.Run("due on receipt falls due immediately", func(t *testing.T) {
		terms := &models.PaymentTermsData{PaymentPeriod: "Due on receipt"}
		payments := CalculateExpectedPayments(10000, invoiceDate, terms)

		require.Len(t, payments, 1)
		assert.Equal(t, invoiceDate, payments[0].Date)
	})

	t.Run("down payment plus installments plus remainder conserves total", func(t *testing.T) {
		terms := &models.PaymentTermsData{
			PaymentPeriod: "Net 60",
			DownPayment:   &models.DownPaymentTerms{Required: true, Percentage: pct(20)},
			Installments: []models.InstallmentTerms{
				{ID: "inst-1", DueDays: 15, Percentage: pct(30)},
				{ID: "inst-2", DueDays: 30, Percentage: pct(30), Description: "Second tranche"},
			},
		}
		payments := CalculateExpectedPayments(10000, invoiceDate, terms)

		require.Len(t, payments, 4)
		assert.Equal(t, models.PaymentDownPayment, payments[0].Kind)
		assert.Equal(t, 2000.0, payments[0].Amount)
		assert.Equal(t, invoiceDate, payments[0].Date)

		assert.Equal(t, models.PaymentInstallment, payments[1].Kind)
		assert.Equal(t, "inst-1", payments[1].InstallmentID)
		assert.Equal(t, day(2024, time.March, 16), payments[1].Date)
		assert.Equal(t, 3000.0, payments[1].Amount)

		assert.Equal(t, "Second tranche", payments[2].Description)

		last := payments[3]
		assert.Equal(t, models.PaymentFinalPayment, last.Kind)
		assert.Equal(t, day(2024, time.April, 30), last.Date)
		assert.InDelta(t, 2000.0, last.Amount, amountTolerance)

		assert.InDelta(t, 10000.0, ScheduleTotal(payments), amountTolerance)
	})

	t.Run("fully allocated terms produce no final payment", func(t *testing.T) {
		terms := &models.PaymentTermsData{
			DownPayment: &models.DownPaymentTerms{Required: true, Percentage: pct(50)},
			Installments: []models.InstallmentTerms{
				{DueDays: 30, Percentage: pct(50)},
			},
		}
		payments := CalculateExpectedPayments(8000, invoiceDate, terms)

		require.Len(t, payments, 2)
		assert.InDelta(t, 8000.0, ScheduleTotal(payments), amountTolerance)
	})

	t.Run("fixed amounts are honored over percentages", func(t *testing.T) {
		terms := &models.PaymentTermsData{
			PaymentPeriod: "Net 30",
			Installments: []models.InstallmentTerms{
				{DueDays: 10, Amount: pct(1500)},
			},
		}
		payments := CalculateExpectedPayments(5000, invoiceDate, terms)

		require.Len(t, payments, 2)
		assert.Equal(t, 1500.0, payments[0].Amount)
		assert.InDelta(t, 3500.0, payments[1].Amount, amountTolerance)
	})

	t.Run("down payment due date phrases", func(t *testing.T) {
		netTerms := &models.PaymentTermsData{
			DownPayment: &models.DownPaymentTerms{Required: true, Percentage: pct(100), DueDate: "Net 30"},
		}
		payments := CalculateExpectedPayments(4000, invoiceDate, netTerms)
		require.Len(t, payments, 1)
		assert.Equal(t, day(2024, time.March, 31), payments[0].Date)

		signingTerms := &models.PaymentTermsData{
			DownPayment: &models.DownPaymentTerms{Required: true, Percentage: pct(100), DueDate: "Due on signing"},
		}
		payments = CalculateExpectedPayments(4000, invoiceDate, signingTerms)
		require.Len(t, payments, 1)
		assert.Equal(t, invoiceDate, payments[0].Date)

		garbledTerms := &models.PaymentTermsData{
			DownPayment: &models.DownPaymentTerms{Required: true, Percentage: pct(100), DueDate: "whenever works"},
		}
		payments = CalculateExpectedPayments(4000, invoiceDate, garbledTerms)
		require.Len(t, payments, 1)
		assert.Equal(t, invoiceDate, payments[0].Date)
	})
}

func TestValidatePaymentTerms(t *testing.T) {
	t.Run("nil terms are fine", func(t *testing.T) {
		assert.Empty(t, ValidatePaymentTerms(nil))
	})

	t.Run("well formed terms pass", func(t *testing.T) {
		terms := &models.PaymentTermsData{
			PaymentPeriod: "Net 30",
			DownPayment:   &models.DownPaymentTerms{Required: true, Percentage: pct(30)},
			Installments:  []models.InstallmentTerms{{DueDays: 30, Percentage: pct(70)}},
		}
		assert.Empty(t, ValidatePaymentTerms(terms))
	})

	t.Run("empty down payment flagged", func(t *testing.T) {
		terms := &models.PaymentTermsData{
			DownPayment: &models.DownPaymentTerms{Required: true},
		}
		problems := ValidatePaymentTerms(terms)
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0], "down payment")
	})

	t.Run("over allocation flagged", func(t *testing.T) {
		terms := &models.PaymentTermsData{
			DownPayment:  &models.DownPaymentTerms{Required: true, Percentage: pct(60)},
			Installments: []models.InstallmentTerms{{DueDays: 30, Percentage: pct(60)}},
		}
		problems := ValidatePaymentTerms(terms)
		require.NotEmpty(t, problems)
		assert.Contains(t, problems[len(problems)-1], "exceeding 100%")
	})

	t.Run("negative due days flagged", func(t *testing.T) {
		terms := &models.PaymentTermsData{
			Installments: []models.InstallmentTerms{{DueDays: -5, Percentage: pct(100)}},
		}
		problems := ValidatePaymentTerms(terms)
		require.Len(t, problems, 1)
		assert.Contains(t, problems[0], "negative due days")
	})
}

func TestPaymentTermsSummary(t *testing.T) {
	assert.Equal(t, "Net 30", PaymentTermsSummary(nil))

	terms := &models.PaymentTermsData{
		PaymentPeriod: "Net 60",
		DownPayment:   &models.DownPaymentTerms{Required: true, Percentage: pct(25)},
		Installments:  []models.InstallmentTerms{{DueDays: 30, Percentage: pct(25)}},
	}
	assert.Equal(t, "25% down, 1 installment(s), Net 60", PaymentTermsSummary(terms))
}
