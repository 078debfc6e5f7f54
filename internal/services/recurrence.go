package services

import (
	"log"
	"time"

	"github.com/finflow/backend/internal/models"
)

// Iteration guards for the occurrence generator. A misconfigured payment
// whose anchor sits far in the past or whose frequency never reaches the
// window must not spin the refresh loop.
const (
	maxAdvanceIterations     = 1000
	maxOccurrencesPerPayment = 100
)

// Occurrence is one dated instance of a recurring payment. Amount is signed:
// outflows are negative.
type Occurrence struct {
	Date   time.Time
	Amount float64
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// addMonthsClamped advances by whole months keeping the anchor day of month,
// clamped to the target month's length. Jan 31 advances to Feb 29 in a leap
// year, not Mar 2.
func addMonthsClamped(t time.Time, months, anchorDay int) time.Time {
	year, month, _ := t.Date()
	month += time.Month(months)
	day := anchorDay
	if max := daysInMonth(year, month); day > max {
		day = max
	}
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// NextOccurrence returns the occurrence after current. anchorDay preserves
// the intended day of month across short months for month-granular
// frequencies.
func NextOccurrence(current time.Time, frequency models.RecurrenceFrequency, anchorDay int) time.Time {
	switch frequency {
	case models.FrequencyDaily:
		return current.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return current.AddDate(0, 0, 7)
	case models.FrequencyBiweekly:
		return current.AddDate(0, 0, 14)
	case models.FrequencyMonthly:
		return addMonthsClamped(current, 1, anchorDay)
	case models.FrequencyQuarterly:
		return addMonthsClamped(current, 3, anchorDay)
	case models.FrequencySemiannually:
		return addMonthsClamped(current, 6, anchorDay)
	case models.FrequencyAnnually:
		return addMonthsClamped(current, 12, anchorDay)
	default:
		log.Printf("[RECURRENCE] unknown frequency %q, treating as monthly", frequency)
		return addMonthsClamped(current, 1, anchorDay)
	}
}

// GenerateOccurrences expands a recurring payment into dated occurrences
// inside [windowStart, windowEnd]. The payment's NextDueDate is a stable
// anchor: the walk always restarts from it, so repeated refreshes produce
// identical schedules.
func GenerateOccurrences(payment models.RecurringPayment, windowStart, windowEnd time.Time) []Occurrence {
	if !payment.IsActive {
		return nil
	}

	anchorDay := payment.NextDueDate.Day()
	if payment.DayOfMonth != nil && *payment.DayOfMonth >= 1 && *payment.DayOfMonth <= 31 {
		anchorDay = *payment.DayOfMonth
	}

	amount := payment.Amount
	if payment.Type == models.CashflowRecurringOutflow {
		amount = -amount
	}

	current := payment.NextDueDate
	// Rows written outside the CRUD path can carry an anchor that predates the
	// payment itself; nothing falls due before the start date.
	if current.Before(payment.StartDate) {
		current = payment.StartDate
	}

	advances := 0
	for current.Before(windowStart) {
		if advances >= maxAdvanceIterations {
			log.Printf("[RECURRENCE] payment %d (%s) never reached the window after %d advances, skipping",
				payment.ID, payment.Name, maxAdvanceIterations)
			return nil
		}
		current = NextOccurrence(current, payment.Frequency, anchorDay)
		advances++
	}

	occurrences := []Occurrence{}
	for !current.After(windowEnd) {
		if payment.EndDate != nil && current.After(*payment.EndDate) {
			break
		}
		occurrences = append(occurrences, Occurrence{Date: current, Amount: amount})
		if len(occurrences) >= maxOccurrencesPerPayment {
			log.Printf("[RECURRENCE] payment %d (%s) capped at %d occurrences in window",
				payment.ID, payment.Name, maxOccurrencesPerPayment)
			break
		}
		current = NextOccurrence(current, payment.Frequency, anchorDay)
	}

	return occurrences
}
