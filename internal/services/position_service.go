package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/finflow/backend/internal/config"
	"github.com/finflow/backend/internal/models"
)

// Alert thresholds.
const (
	criticalNegativeStreakDays = 5
	largeOutflowThreshold      = 50000.0
	lowConfidenceThreshold     = 0.6
)

// ErrNoBalanceBaseline means no deposit account statement exists to anchor
// the position calculation on.
var ErrNoBalanceBaseline = errors.New("no deposit statement available as a balance baseline")

const dateLayout = "2006-01-02"

// CashPositionReport is the full projected position response.
type CashPositionReport struct {
	Positions []models.DailyCashPosition `json:"positions"`
	Summary   models.CashPositionSummary `json:"summary"`
	Alerts    []models.CashflowAlert     `json:"alerts"`
}

// PositionService turns stored projections into a day-by-day cash position.
type PositionService struct {
	db          *sql.DB
	projections *ProjectionService
	cfg         *config.ProjectionConfig
	now         func() time.Time
}

func NewPositionService(db *sql.DB, projections *ProjectionService, cfg *config.ProjectionConfig) *PositionService {
	if cfg == nil {
		cfg = config.LoadProjectionConfig()
	}
	return &PositionService{
		db:          db,
		projections: projections,
		cfg:         cfg,
		now:         time.Now,
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BuildDailyPositions rolls a starting balance forward through dated
// projections. The walk begins at the later of the window start and the
// balance date so a stale baseline never double counts days that already
// happened. Closing balances propagate: day n's closing is day n+1's opening.
func BuildDailyPositions(startingBalance float64, balanceDate time.Time, projections []models.CashflowProjection, windowStart, windowEnd time.Time) []models.DailyCashPosition {
	effectiveStart := truncateToDay(windowStart)
	if bd := truncateToDay(balanceDate); bd.After(effectiveStart) {
		effectiveStart = bd
	}
	end := truncateToDay(windowEnd)
	if end.Before(effectiveStart) {
		return nil
	}

	type bucket struct {
		inflows    float64
		outflows   float64
		count      int
		confidence float64
	}
	buckets := map[string]*bucket{}
	for _, p := range projections {
		key := truncateToDay(p.ProjectionDate).Format(dateLayout)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		if p.ProjectedAmount >= 0 {
			b.inflows += p.ProjectedAmount
		} else {
			b.outflows += -p.ProjectedAmount
		}
		b.count++
		b.confidence += p.Confidence
	}

	positions := []models.DailyCashPosition{}
	balance := startingBalance
	for d := effectiveStart; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		pos := models.DailyCashPosition{
			Date:              key,
			OpeningBalance:    balance,
			AverageConfidence: 1.0,
		}
		if b, ok := buckets[key]; ok {
			pos.TotalInflows = b.inflows
			pos.TotalOutflows = b.outflows
			pos.ProjectionCount = b.count
			pos.AverageConfidence = b.confidence / float64(b.count)
		}
		pos.NetCashflow = pos.TotalInflows - pos.TotalOutflows
		pos.ClosingBalance = pos.OpeningBalance + pos.NetCashflow
		balance = pos.ClosingBalance
		positions = append(positions, pos)
	}

	return positions
}

// SummarizePositions aggregates a daily walk into window-level figures.
func SummarizePositions(positions []models.DailyCashPosition, startingBalance float64, balanceDate, effectiveStart time.Time) models.CashPositionSummary {
	summary := models.CashPositionSummary{
		StartingBalance:    startingBalance,
		LatestBalanceDate:  truncateToDay(balanceDate).Format(dateLayout),
		EffectiveStartDate: truncateToDay(effectiveStart).Format(dateLayout),
		TotalDays:          len(positions),
	}
	if len(positions) == 0 {
		return summary
	}

	lowest := math.Inf(1)
	highest := math.Inf(-1)
	sum := 0.0
	for _, pos := range positions {
		sum += pos.ClosingBalance
		if pos.ClosingBalance < lowest {
			lowest = pos.ClosingBalance
			summary.LowestBalanceDate = pos.Date
		}
		if pos.ClosingBalance > highest {
			highest = pos.ClosingBalance
			summary.HighestBalanceDate = pos.Date
		}
		if pos.ClosingBalance >= 0 {
			summary.CashPositiveDays++
		} else {
			summary.CashNegativeDays++
		}
	}

	summary.AverageDailyBalance = sum / float64(len(positions))
	summary.LowestProjectedBalance = lowest
	summary.HighestProjectedBalance = highest
	return summary
}

// BuildAlerts scans a daily walk for conditions worth surfacing: negative
// balance streaks, unusually large single-day outflows and stretches of low
// confidence projections.
func BuildAlerts(positions []models.DailyCashPosition) []models.CashflowAlert {
	alerts := []models.CashflowAlert{}

	streakStart := -1
	lowestInStreak := 0.0
	flushStreak := func(endIdx int) {
		if streakStart < 0 {
			return
		}
		length := endIdx - streakStart
		severity := "warning"
		actionRequired := false
		if length > criticalNegativeStreakDays {
			severity = "critical"
			actionRequired = true
		}
		alerts = append(alerts, models.CashflowAlert{
			ID:             uuid.NewString(),
			Type:           "negative_balance",
			Severity:       severity,
			Title:          "Projected negative cash balance",
			Description:    fmt.Sprintf("Balance stays negative for %d day(s) from %s, bottoming out at %.2f", length, positions[streakStart].Date, lowestInStreak),
			Date:           positions[streakStart].Date,
			Amount:         lowestInStreak,
			ActionRequired: actionRequired,
		})
		streakStart = -1
	}

	lowConfidenceDays := 0
	firstLowConfidenceDate := ""
	for i, pos := range positions {
		if pos.ClosingBalance < 0 {
			if streakStart < 0 {
				streakStart = i
				lowestInStreak = pos.ClosingBalance
			} else if pos.ClosingBalance < lowestInStreak {
				lowestInStreak = pos.ClosingBalance
			}
		} else {
			flushStreak(i)
		}

		if pos.TotalOutflows > largeOutflowThreshold {
			alerts = append(alerts, models.CashflowAlert{
				ID:          uuid.NewString(),
				Type:        "large_outflow",
				Severity:    "warning",
				Title:       "Large projected outflow",
				Description: fmt.Sprintf("Outflows of %.2f projected on %s", pos.TotalOutflows, pos.Date),
				Date:        pos.Date,
				Amount:      pos.TotalOutflows,
			})
		}

		if pos.ProjectionCount > 0 && pos.AverageConfidence < lowConfidenceThreshold {
			lowConfidenceDays++
			if firstLowConfidenceDate == "" {
				firstLowConfidenceDate = pos.Date
			}
		}
	}
	flushStreak(len(positions))

	if lowConfidenceDays > 0 {
		alerts = append(alerts, models.CashflowAlert{
			ID:          uuid.NewString(),
			Type:        "low_confidence",
			Severity:    "info",
			Title:       "Low confidence projections",
			Description: fmt.Sprintf("%d day(s) rely on projections with confidence below %.0f%%, starting %s", lowConfidenceDays, lowConfidenceThreshold*100, firstLowConfidenceDate),
			Date:        firstLowConfidenceDate,
		})
	}

	return alerts
}

// CalculateCashPosition anchors the walk on the company's most recent
// deposit statement balance and rolls it through the stored projections.
func (ps *PositionService) CalculateCashPosition(ctx context.Context, companyID int, windowDays int) (*CashPositionReport, error) {
	if windowDays <= 0 {
		windowDays = ps.cfg.WindowDays
	}

	balance, balanceDate, err := ps.latestDepositBalance(ctx, companyID)
	if err != nil {
		return nil, err
	}

	today := truncateToDay(ps.now().UTC())
	windowEnd := today.AddDate(0, 0, windowDays)

	from := today
	to := windowEnd
	projections, err := ps.projections.GetProjections(ctx, companyID, ProjectionFilter{FromDate: &from, ToDate: &to})
	if err != nil {
		return nil, err
	}

	positions := BuildDailyPositions(balance, balanceDate, projections, today, windowEnd)
	effectiveStart := today
	if bd := truncateToDay(balanceDate); bd.After(effectiveStart) {
		effectiveStart = bd
	}

	return &CashPositionReport{
		Positions: positions,
		Summary:   SummarizePositions(positions, balance, balanceDate, effectiveStart),
		Alerts:    BuildAlerts(positions),
	}, nil
}

// latestDepositBalance finds the most recent statement of a non-facility
// account. Facility balances are debt, not cash, so they never anchor the
// walk.
func (ps *PositionService) latestDepositBalance(ctx context.Context, companyID int) (float64, time.Time, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT s.ending_balance, s.statement_period_end, COALESCE(s.account_type, '')
		FROM bank_statements s
		INNER JOIN banks b ON s.bank_id = b.id
		WHERE b.company_id = $1
		ORDER BY s.statement_period_end DESC
	`, companyID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("loading balance baseline for company %d: %w", companyID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var balance float64
		var periodEnd time.Time
		var accountType string
		if err := rows.Scan(&balance, &periodEnd, &accountType); err != nil {
			return 0, time.Time{}, err
		}
		if IsFacilityAccount(accountType, balance) {
			continue
		}
		return balance, periodEnd, rows.Err()
	}
	if err := rows.Err(); err != nil {
		return 0, time.Time{}, err
	}

	return 0, time.Time{}, ErrNoBalanceBaseline
}
