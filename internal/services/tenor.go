package services

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/finflow/backend/internal/models"
)

const (
	defaultTenorMonths = 12
	minTenorMonths     = 1
	maxTenorMonths     = 120
	avgDaysPerMonth    = 30.44
)

var tenorNumberPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseTenor normalizes a free-text facility tenor into months. The unit
// keyword wins when present; a bare number is interpreted by magnitude
// (1..12 reads as months, anything larger as days). The result is clamped to
// [1, 120] and a missing or unreadable tenor defaults to 12 months.
func ParseTenor(tenor *string) int {
	if tenor == nil {
		return defaultTenorMonths
	}

	text := strings.ToLower(strings.TrimSpace(*tenor))
	if text == "" {
		return defaultTenorMonths
	}

	match := tenorNumberPattern.FindString(text)
	if match == "" {
		return defaultTenorMonths
	}
	var value float64
	fmt.Sscanf(match, "%f", &value)
	if value <= 0 {
		return defaultTenorMonths
	}

	months := 0.0
	switch {
	case strings.Contains(text, "year") || strings.Contains(text, "yr"):
		months = value * 12
	case strings.Contains(text, "month") || strings.Contains(text, "mon") || strings.Contains(text, "mo"):
		months = value
	case strings.Contains(text, "week") || strings.Contains(text, "wk"):
		months = value * 7 / avgDaysPerMonth
	case strings.Contains(text, "day") || strings.Contains(text, "d"):
		months = value / avgDaysPerMonth
	default:
		// No unit. Up to 12 reads as months, anything larger as days; the
		// final clamp bounds absurdly large day counts.
		if value <= 12 {
			months = value
		} else {
			months = value / avgDaysPerMonth
		}
	}

	result := int(math.Round(months))
	if result < minTenorMonths {
		result = minTenorMonths
	}
	if result > maxTenorMonths {
		result = maxTenorMonths
	}
	return result
}

// GenerateRepaymentProjections amortizes an outstanding facility balance into
// equal monthly repayments starting one month after the statement period end.
// Repayments are negative bank obligations. Only accounts carrying debt
// participate: the ending balance must be negative, and the account must
// either classify as a facility or carry a tenor annotation.
func GenerateRepaymentProjections(statement models.BankStatement, companyID int, windowStart, windowEnd time.Time, isFacility func(string, float64) bool) []models.CashflowProjection {
	if statement.EndingBalance >= 0 {
		return nil
	}
	if isFacility != nil && !isFacility(statement.AccountType, statement.EndingBalance) && statement.Tenor == nil {
		return nil
	}

	outstanding := math.Abs(statement.EndingBalance)
	if outstanding < amountTolerance {
		return nil
	}

	tenorMonths := ParseTenor(statement.Tenor)
	monthly := outstanding / float64(tenorMonths)
	anchorDay := statement.StatementPeriodEnd.Day()

	projections := []models.CashflowProjection{}
	due := statement.StatementPeriodEnd
	for i := 1; i <= tenorMonths; i++ {
		due = addMonthsClamped(due, 1, anchorDay)
		if due.Before(windowStart) {
			continue
		}
		if due.After(windowEnd) {
			break
		}
		statementID := statement.ID
		projections = append(projections, models.CashflowProjection{
			CompanyID:       companyID,
			Type:            models.CashflowBankObligation,
			ProjectionDate:  due,
			ProjectedAmount: -monthly,
			Description:     fmt.Sprintf("%s %s repayment (%d/%d)", statement.BankName, FacilityDisplayType(statement.AccountType), i, tenorMonths),
			Confidence:      0.9,
			Status:          models.StatusProjected,
			BankStatementID: &statementID,
		})
	}

	return projections
}
