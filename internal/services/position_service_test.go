package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow/backend/internal/config"
	"github.com/finflow/backend/internal/models"
)

func projection(date time.Time, amount, confidence float64) models.CashflowProjection {
	return models.CashflowProjection{
		ProjectionDate:  date,
		ProjectedAmount: amount,
		Confidence:      confidence,
	}
}

func TestBuildDailyPositions(t *testing.T) {
	windowStart := day(2024, time.March, 1)

	t.Run("balances propagate day to day", func(t *testing.T) {
		projections := []models.CashflowProjection{
			projection(day(2024, time.March, 3), 500, 0.9),
		}
		positions := BuildDailyPositions(1000, windowStart, projections, windowStart, day(2024, time.March, 3))

		require.Len(t, positions, 3)

		assert.Equal(t, "2024-03-01", positions[0].Date)
		assert.Equal(t, 1000.0, positions[0].OpeningBalance)
		assert.Equal(t, 1000.0, positions[0].ClosingBalance)
		assert.Equal(t, 0, positions[0].ProjectionCount)
		assert.Equal(t, 1.0, positions[0].AverageConfidence)

		assert.Equal(t, 1000.0, positions[1].OpeningBalance)
		assert.Equal(t, 1000.0, positions[1].ClosingBalance)

		last := positions[2]
		assert.Equal(t, "2024-03-03", last.Date)
		assert.Equal(t, 1000.0, last.OpeningBalance)
		assert.Equal(t, 500.0, last.TotalInflows)
		assert.Equal(t, 1500.0, last.ClosingBalance)
		assert.Equal(t, 1, last.ProjectionCount)
		assert.Equal(t, 0.9, last.AverageConfidence)
	})

	t.Run("inflows and outflows split on sign", func(t *testing.T) {
		d := day(2024, time.March, 2)
		projections := []models.CashflowProjection{
			projection(d, 800, 0.8),
			projection(d, -300, 0.6),
		}
		positions := BuildDailyPositions(100, windowStart, projections, windowStart, d)

		last := positions[len(positions)-1]
		assert.Equal(t, 800.0, last.TotalInflows)
		assert.Equal(t, 300.0, last.TotalOutflows)
		assert.Equal(t, 500.0, last.NetCashflow)
		assert.Equal(t, 600.0, last.ClosingBalance)
		assert.InDelta(t, 0.7, last.AverageConfidence, 0.001)
	})

	t.Run("stale window behind the balance date is skipped", func(t *testing.T) {
		balanceDate := day(2024, time.March, 5)
		positions := BuildDailyPositions(1000, balanceDate, nil, windowStart, day(2024, time.March, 7))

		require.Len(t, positions, 3)
		assert.Equal(t, "2024-03-05", positions[0].Date)
	})

	t.Run("window entirely before the balance date yields nothing", func(t *testing.T) {
		balanceDate := day(2024, time.June, 1)
		assert.Empty(t, BuildDailyPositions(1000, balanceDate, nil, windowStart, day(2024, time.March, 7)))
	})
}

func TestSummarizePositions(t *testing.T) {
	windowStart := day(2024, time.March, 1)
	projections := []models.CashflowProjection{
		projection(day(2024, time.March, 2), -1500, 0.9),
		projection(day(2024, time.March, 3), 2500, 0.9),
	}
	positions := BuildDailyPositions(1000, windowStart, projections, windowStart, day(2024, time.March, 3))
	summary := SummarizePositions(positions, 1000, windowStart, windowStart)

	assert.Equal(t, 3, summary.TotalDays)
	assert.Equal(t, -500.0, summary.LowestProjectedBalance)
	assert.Equal(t, "2024-03-02", summary.LowestBalanceDate)
	assert.Equal(t, 2000.0, summary.HighestProjectedBalance)
	assert.Equal(t, "2024-03-03", summary.HighestBalanceDate)
	assert.Equal(t, 2, summary.CashPositiveDays)
	assert.Equal(t, 1, summary.CashNegativeDays)
	assert.InDelta(t, (1000.0-500.0+2000.0)/3, summary.AverageDailyBalance, 0.001)
	assert.Equal(t, 1000.0, summary.StartingBalance)
	assert.Equal(t, "2024-03-01", summary.EffectiveStartDate)
}

func TestBuildAlerts(t *testing.T) {
	t.Run("long negative streak is critical", func(t *testing.T) {
		windowStart := day(2024, time.March, 1)
		projections := []models.CashflowProjection{
			projection(windowStart, -2000, 0.9),
		}
		positions := BuildDailyPositions(1000, windowStart, projections, windowStart, day(2024, time.March, 10))

		alerts := BuildAlerts(positions)
		require.Len(t, alerts, 1)
		alert := alerts[0]
		assert.Equal(t, "negative_balance", alert.Type)
		assert.Equal(t, "critical", alert.Severity)
		assert.True(t, alert.ActionRequired)
		assert.Equal(t, "2024-03-01", alert.Date)
		assert.Equal(t, -1000.0, alert.Amount)
		assert.NotEmpty(t, alert.ID)
	})

	t.Run("short negative dip is a warning", func(t *testing.T) {
		windowStart := day(2024, time.March, 1)
		projections := []models.CashflowProjection{
			projection(day(2024, time.March, 2), -1500, 0.9),
			projection(day(2024, time.March, 4), 2000, 0.9),
		}
		positions := BuildDailyPositions(1000, windowStart, projections, windowStart, day(2024, time.March, 5))

		alerts := BuildAlerts(positions)
		require.Len(t, alerts, 1)
		assert.Equal(t, "negative_balance", alerts[0].Type)
		assert.Equal(t, "warning", alerts[0].Severity)
		assert.False(t, alerts[0].ActionRequired)
	})

	t.Run("large outflow day is flagged", func(t *testing.T) {
		windowStart := day(2024, time.March, 1)
		projections := []models.CashflowProjection{
			projection(day(2024, time.March, 2), -60000, 0.9),
		}
		positions := BuildDailyPositions(100000, windowStart, projections, windowStart, day(2024, time.March, 3))

		alerts := BuildAlerts(positions)
		require.Len(t, alerts, 1)
		assert.Equal(t, "large_outflow", alerts[0].Type)
		assert.Equal(t, 60000.0, alerts[0].Amount)
	})

	t.Run("low confidence days aggregate into one alert", func(t *testing.T) {
		windowStart := day(2024, time.March, 1)
		projections := []models.CashflowProjection{
			projection(day(2024, time.March, 2), 100, 0.4),
			projection(day(2024, time.March, 3), 100, 0.5),
		}
		positions := BuildDailyPositions(1000, windowStart, projections, windowStart, day(2024, time.March, 4))

		alerts := BuildAlerts(positions)
		require.Len(t, alerts, 1)
		assert.Equal(t, "low_confidence", alerts[0].Type)
		assert.Equal(t, "info", alerts[0].Severity)
		assert.Equal(t, "2024-03-02", alerts[0].Date)
	})

	t.Run("healthy walk raises nothing", func(t *testing.T) {
		windowStart := day(2024, time.March, 1)
		positions := BuildDailyPositions(1000, windowStart, nil, windowStart, day(2024, time.March, 5))
		assert.Empty(t, BuildAlerts(positions))
	})
}

func TestCalculateCashPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cfg := &config.ProjectionConfig{WindowDays: 30}
	projectionSvc := NewProjectionService(db, cfg)
	svc := NewPositionService(db, projectionSvc, cfg)
	svc.now = func() time.Time { return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC) }

	t.Run("facility balances never anchor the walk", func(t *testing.T) {
		mock.ExpectQuery("FROM bank_statements").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"ending_balance", "statement_period_end", "account_type"}).
				AddRow(-50000.0, day(2024, time.February, 29), "term loan").
				AddRow(12000.0, day(2024, time.February, 20), "current"))

		mock.ExpectQuery("FROM cashflow_projections").
			WithArgs(7, day(2024, time.March, 1), day(2024, time.March, 31)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "company_id", "projection_date", "projected_amount", "type", "status",
				"confidence", "description", "invoice_id", "recurring_payment_id", "bank_statement_id",
			}).AddRow(
				1, 7, day(2024, time.March, 10), 5000.0, string(models.CashflowCustomerReceivable), string(models.StatusProjected),
				0.8, "Invoice INV-001: Full payment", 21, nil, nil,
			))

		report, err := svc.CalculateCashPosition(context.Background(), 7, 0)
		require.NoError(t, err)

		assert.Equal(t, 12000.0, report.Summary.StartingBalance)
		assert.Equal(t, "2024-02-20", report.Summary.LatestBalanceDate)
		assert.Equal(t, "2024-03-01", report.Summary.EffectiveStartDate)
		require.NotEmpty(t, report.Positions)
		assert.Equal(t, 12000.0, report.Positions[0].OpeningBalance)
		assert.Equal(t, 17000.0, report.Positions[len(report.Positions)-1].ClosingBalance)
	})

	t.Run("untyped negative balance never anchors the walk", func(t *testing.T) {
		mock.ExpectQuery("FROM bank_statements").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"ending_balance", "statement_period_end", "account_type"}).
				AddRow(-8000.0, day(2024, time.February, 28), "").
				AddRow(9000.0, day(2024, time.February, 10), "current"))

		mock.ExpectQuery("FROM cashflow_projections").
			WithArgs(7, day(2024, time.March, 1), day(2024, time.March, 31)).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "company_id", "projection_date", "projected_amount", "type", "status",
				"confidence", "description", "invoice_id", "recurring_payment_id", "bank_statement_id",
			}))

		report, err := svc.CalculateCashPosition(context.Background(), 7, 0)
		require.NoError(t, err)

		assert.Equal(t, 9000.0, report.Summary.StartingBalance)
		assert.Equal(t, "2024-02-10", report.Summary.LatestBalanceDate)
	})

	t.Run("no deposit statement is an error", func(t *testing.T) {
		mock.ExpectQuery("FROM bank_statements").
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"ending_balance", "statement_period_end", "account_type"}).
				AddRow(-50000.0, day(2024, time.February, 29), "overdraft"))

		_, err := svc.CalculateCashPosition(context.Background(), 7, 0)
		assert.ErrorIs(t, err, ErrNoBalanceBaseline)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
