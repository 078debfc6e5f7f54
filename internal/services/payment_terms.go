package services

import (
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/finflow/backend/internal/models"
)

const defaultPaymentDays = 30

// amountsCloseEnough absorbs float accumulation across percentage splits.
const amountTolerance = 0.01

var netDaysPattern = regexp.MustCompile(`(?i)net\s*(\d+)`)

// extractPaymentDays parses a payment period phrase into days from invoice
// date. "Due on receipt" is day zero; unrecognized phrasing falls back to
// net 30.
func extractPaymentDays(paymentPeriod string) int {
	period := strings.TrimSpace(paymentPeriod)
	if period == "" {
		return defaultPaymentDays
	}

	if strings.Contains(strings.ToLower(period), "due on receipt") {
		return 0
	}

	if m := netDaysPattern.FindStringSubmatch(period); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil {
			return days
		}
	}

	log.Printf("[TERMS] unrecognized payment period %q, assuming net %d", period, defaultPaymentDays)
	return defaultPaymentDays
}

// downPaymentDate reads the due date as prose, the way terms are extracted:
// "Due on signing"/"Due on receipt" means the invoice date, "Net N" means N
// days after it. Anything else falls back to the invoice date.
func downPaymentDate(invoiceDate time.Time, dueDate string) time.Time {
	phrase := strings.ToLower(strings.TrimSpace(dueDate))
	if phrase == "" || strings.Contains(phrase, "signing") || strings.Contains(phrase, "receipt") {
		return invoiceDate
	}
	if m := netDaysPattern.FindStringSubmatch(phrase); m != nil {
		if days, err := strconv.Atoi(m[1]); err == nil {
			return invoiceDate.AddDate(0, 0, days)
		}
	}
	log.Printf("[TERMS] unrecognized down payment due date %q, using invoice date", dueDate)
	return invoiceDate
}

func portionAmount(total float64, percentage, amount *float64) float64 {
	if amount != nil {
		return *amount
	}
	if percentage != nil {
		return total * *percentage / 100
	}
	return 0
}

// CalculateExpectedPayments expands an invoice total and its payment terms
// into a dated schedule. The schedule always conserves the total: a remainder
// left after the down payment and installments becomes a final payment, and
// absent any terms the whole total falls due at the net period.
func CalculateExpectedPayments(total float64, invoiceDate time.Time, terms *models.PaymentTermsData) []models.ExpectedPayment {
	if terms == nil {
		terms = &models.PaymentTermsData{}
	}

	payments := []models.ExpectedPayment{}
	remaining := total

	if dp := terms.DownPayment; dp != nil && dp.Required {
		amount := portionAmount(total, dp.Percentage, dp.Amount)
		if amount > 0 {
			payments = append(payments, models.ExpectedPayment{
				Date:        downPaymentDate(invoiceDate, dp.DueDate),
				Amount:      amount,
				Description: "Down payment",
				Kind:        models.PaymentDownPayment,
			})
			remaining -= amount
		}
	}

	for i, inst := range terms.Installments {
		amount := portionAmount(total, inst.Percentage, inst.Amount)
		if amount <= 0 {
			continue
		}
		description := inst.Description
		if description == "" {
			description = fmt.Sprintf("Installment %d", i+1)
		}
		payments = append(payments, models.ExpectedPayment{
			Date:          invoiceDate.AddDate(0, 0, inst.DueDays),
			Amount:        amount,
			Description:   description,
			Kind:          models.PaymentInstallment,
			InstallmentID: inst.ID,
		})
		remaining -= amount
	}

	if remaining > amountTolerance {
		dueDate := invoiceDate.AddDate(0, 0, extractPaymentDays(terms.PaymentPeriod))
		kind := models.PaymentFinalPayment
		description := "Final payment"
		if len(payments) == 0 {
			kind = models.PaymentFullPayment
			description = "Full payment"
		}
		payments = append(payments, models.ExpectedPayment{
			Date:        dueDate,
			Amount:      remaining,
			Description: description,
			Kind:        kind,
		})
	}

	return payments
}

// ValidatePaymentTerms reports structural problems in a payment terms
// contract before it is attached to a customer or supplier.
func ValidatePaymentTerms(terms *models.PaymentTermsData) []string {
	if terms == nil {
		return nil
	}

	problems := []string{}
	allocated := 0.0

	if dp := terms.DownPayment; dp != nil && dp.Required {
		if dp.Percentage == nil && dp.Amount == nil {
			problems = append(problems, "down payment is required but has neither percentage nor amount")
		}
		if dp.Percentage != nil {
			if *dp.Percentage <= 0 || *dp.Percentage > 100 {
				problems = append(problems, "down payment percentage must be between 0 and 100")
			} else {
				allocated += *dp.Percentage
			}
		}
	}

	for i, inst := range terms.Installments {
		if inst.Percentage == nil && inst.Amount == nil {
			problems = append(problems, fmt.Sprintf("installment %d has neither percentage nor amount", i+1))
		}
		if inst.Percentage != nil {
			if *inst.Percentage <= 0 || *inst.Percentage > 100 {
				problems = append(problems, fmt.Sprintf("installment %d percentage must be between 0 and 100", i+1))
			} else {
				allocated += *inst.Percentage
			}
		}
		if inst.DueDays < 0 {
			problems = append(problems, fmt.Sprintf("installment %d has negative due days", i+1))
		}
	}

	if allocated > 100+amountTolerance {
		problems = append(problems, fmt.Sprintf("percentage allocations total %.2f%%, exceeding 100%%", allocated))
	}

	return problems
}

// PaymentTermsSummary renders terms as a short human readable line.
func PaymentTermsSummary(terms *models.PaymentTermsData) string {
	if terms == nil {
		return fmt.Sprintf("Net %d", defaultPaymentDays)
	}

	parts := []string{}
	if dp := terms.DownPayment; dp != nil && dp.Required {
		switch {
		case dp.Percentage != nil:
			parts = append(parts, fmt.Sprintf("%.0f%% down", *dp.Percentage))
		case dp.Amount != nil:
			parts = append(parts, fmt.Sprintf("%.2f down", *dp.Amount))
		}
	}
	if n := len(terms.Installments); n > 0 {
		parts = append(parts, fmt.Sprintf("%d installment(s)", n))
	}

	period := strings.TrimSpace(terms.PaymentPeriod)
	if period == "" {
		period = fmt.Sprintf("Net %d", defaultPaymentDays)
	}
	parts = append(parts, period)

	return strings.Join(parts, ", ")
}

// ScheduleTotal sums a payment schedule.
func ScheduleTotal(payments []models.ExpectedPayment) float64 {
	total := 0.0
	for _, p := range payments {
		total += p.Amount
	}
	return math.Round(total*100) / 100
}
