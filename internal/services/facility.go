package services

import "strings"

// Facility accounts carry bank money that must be repaid. Their balances are
// obligations, never available cash, so the position calculator excludes them
// and the amortizer only runs over them.
var facilityAccountTypes = map[string]string{
	"loan":             "loan",
	"term loan":        "term loan",
	"short-term loan":  "short-term loan",
	"stl":              "short-term loan",
	"long-term loan":   "long-term loan",
	"ltl":              "long-term loan",
	"overdraft":        "overdraft",
	"credit":           "credit facility",
	"credit facility":  "credit facility",
	"credit line":      "credit line",
	"line of credit":   "credit line",
	"letter of credit": "letter of credit",
	"lc":               "letter of credit",
	"invoice discount": "invoice discounting",
	"asset finance":    "asset finance",
}

// Deposit-style accounts are never facilities, even when overdrawn. An
// overdrawn checking account is a cash problem, not a loan to amortize.
var regularAccountTypes = []string{
	"checking",
	"savings",
	"business",
	"current",
	"deposit",
}

// IsFacilityAccount classifies an account as a borrowing facility. The
// annotated type decides when it is recognizable; an account with no usable
// type falls back to the sign of its ending balance.
func IsFacilityAccount(accountType string, endingBalance float64) bool {
	normalized := strings.ToLower(strings.TrimSpace(accountType))
	if normalized != "" {
		if _, ok := facilityAccountTypes[normalized]; ok {
			return true
		}
		for key := range facilityAccountTypes {
			if strings.Contains(normalized, key) {
				return true
			}
		}
		for _, key := range regularAccountTypes {
			if strings.Contains(normalized, key) {
				return false
			}
		}
	}
	return endingBalance < 0
}

// FacilityDisplayType maps an account type to its display name, falling back
// to the raw value.
func FacilityDisplayType(accountType string) string {
	normalized := strings.ToLower(strings.TrimSpace(accountType))
	if display, ok := facilityAccountTypes[normalized]; ok {
		return display
	}
	for key, display := range facilityAccountTypes {
		if strings.Contains(normalized, key) {
			return display
		}
	}
	if normalized == "" {
		return "facility"
	}
	return normalized
}
