package services

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// periodsOverlap reports whether [aStart,aEnd] and [bStart,bEnd] share at
// least one day. Symmetric in its arguments.
func periodsOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !aEnd.Before(bStart)
}

// periodsEqual reports whether two ranges have identical boundaries.
func periodsEqual(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Equal(bStart) && aEnd.Equal(bEnd)
}

// normalizeBankName prepares a bank name for case-insensitive comparison.
func normalizeBankName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var amountCleaner = regexp.MustCompile(`[^0-9.\-]`)

// ParseAmount converts a raw amount string from the structuring pipeline to a
// number. Currency symbols and thousands separators are stripped. Returns nil
// for empty or unparseable input; it never fails, so one malformed amount
// cannot abort a statement import.
func ParseAmount(raw string) *float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	cleaned := amountCleaner.ReplaceAllString(trimmed, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return nil
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		log.Printf("[PARSE] Unparseable amount %q, treating as null: %v", raw, err)
		return nil
	}

	return &value
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"02/01/2006",
	"01/02/2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// ParseDate parses a date string using the layouts seen in structured
// statement output.
func ParseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", raw)
}

// ParseTransactionDate parses a transaction date, falling back to the given
// statement date when the value is missing or malformed. The transaction is
// kept either way.
func ParseTransactionDate(raw string, fallback time.Time) time.Time {
	t, err := ParseDate(raw)
	if err != nil {
		log.Printf("[PARSE] Invalid transaction date %q, using statement date: %v", raw, err)
		return fallback
	}
	return t
}
