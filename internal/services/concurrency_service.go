package services

import (
	"context"
	"fmt"
	"time"

	"github.com/finflow/backend/internal/models"
)

// ConcurrencyAction is the routing decision for an incoming statement.
type ConcurrencyAction string

const (
	ActionCreateNew      ConcurrencyAction = "create_new"
	ActionAddToExisting  ConcurrencyAction = "add_to_existing"
	ActionMergeStatement ConcurrencyAction = "merge_statement"
	ActionSkipDuplicate  ConcurrencyAction = "skip_duplicate"
)

// ReasonCode is the machine-readable explanation behind a routing decision.
type ReasonCode string

const (
	ReasonNoAccountMatch   ReasonCode = "no_account_match"
	ReasonBankNameMatch    ReasonCode = "bank_name_match"
	ReasonExactDuplicate   ReasonCode = "exact_duplicate"
	ReasonOverlapSameBank  ReasonCode = "overlap_same_bank"
	ReasonDisjointSameBank ReasonCode = "disjoint_same_bank"
	ReasonBankMismatch     ReasonCode = "bank_mismatch"
)

// ConcurrencyCheckResult carries the routing decision and enough context for
// the caller to act on it without re-querying.
type ConcurrencyCheckResult struct {
	Action              ConcurrencyAction `json:"action"`
	ReasonCode          ReasonCode        `json:"reason_code"`
	Reason              string            `json:"reason"`
	ReviewRecommended   bool              `json:"review_recommended"`
	BankName            string            `json:"bank_name"`
	ExistingBankID      *int              `json:"existing_bank_id,omitempty"`
	ExistingStatementID *int              `json:"existing_statement_id,omitempty"`
}

// ConcurrencyResolver decides how an incoming statement relates to what is
// already stored for the same account number.
type ConcurrencyResolver struct {
	store StatementStore
}

func NewConcurrencyResolver(store StatementStore) *ConcurrencyResolver {
	return &ConcurrencyResolver{store: store}
}

// Check walks the stored statements for the account in period order. Only
// statements under the same bank name decide the outcome; the first such
// match wins. When every stored statement names a different bank, the
// incoming bank name is resolved against the bank table instead, and the
// result is flagged for review because a silent bank-name change may hide a
// data problem. Store failures propagate as errors so a transient outage
// never turns into a duplicate write.
func (c *ConcurrencyResolver) Check(ctx context.Context, incoming models.AccountStatement, periodStart, periodEnd time.Time, companyID int) (ConcurrencyCheckResult, error) {
	existing, err := c.store.FindStatementsByAccount(ctx, incoming.AccountNumber, companyID)
	if err != nil {
		return ConcurrencyCheckResult{}, fmt.Errorf("loading existing statements for account %s: %w", incoming.AccountNumber, err)
	}

	if len(existing) == 0 {
		return c.resolveByBankName(ctx, incoming.BankName, companyID,
			ReasonNoAccountMatch, "no existing statements for this account number", false)
	}

	sameBank := func(st models.BankStatement) bool {
		return normalizeBankName(st.BankName) == normalizeBankName(incoming.BankName)
	}

	for i := range existing {
		st := existing[i]
		if !sameBank(st) {
			continue
		}

		if periodsEqual(periodStart, periodEnd, st.StatementPeriodStart, st.StatementPeriodEnd) {
			return ConcurrencyCheckResult{
				Action:              ActionSkipDuplicate,
				ReasonCode:          ReasonExactDuplicate,
				Reason:              fmt.Sprintf("identical period already stored for %s", st.BankName),
				BankName:            st.BankName,
				ExistingBankID:      &st.BankID,
				ExistingStatementID: &st.ID,
			}, nil
		}

		if periodsOverlap(periodStart, periodEnd, st.StatementPeriodStart, st.StatementPeriodEnd) {
			return ConcurrencyCheckResult{
				Action:              ActionMergeStatement,
				ReasonCode:          ReasonOverlapSameBank,
				Reason:              fmt.Sprintf("period overlaps existing %s statement, merging", st.BankName),
				BankName:            st.BankName,
				ExistingBankID:      &st.BankID,
				ExistingStatementID: &st.ID,
			}, nil
		}

		return ConcurrencyCheckResult{
			Action:         ActionAddToExisting,
			ReasonCode:     ReasonDisjointSameBank,
			Reason:         fmt.Sprintf("new period for account already tracked under %s", st.BankName),
			BankName:       st.BankName,
			ExistingBankID: &st.BankID,
		}, nil
	}

	// Account number matches but every stored statement names another bank.
	return c.resolveByBankName(ctx, incoming.BankName, companyID,
		ReasonBankMismatch,
		fmt.Sprintf("account previously seen under %s, but incoming statement names %s", existing[0].BankName, incoming.BankName),
		true)
}

// resolveByBankName is the shared tail of the ladder: attach to an existing
// bank of the same name when one exists, otherwise create a new one.
func (c *ConcurrencyResolver) resolveByBankName(ctx context.Context, bankName string, companyID int, code ReasonCode, reason string, review bool) (ConcurrencyCheckResult, error) {
	bank, err := c.store.FindBankByName(ctx, bankName, companyID)
	if err != nil {
		return ConcurrencyCheckResult{}, fmt.Errorf("looking up bank %q: %w", bankName, err)
	}

	if bank != nil {
		if code == ReasonNoAccountMatch {
			code = ReasonBankNameMatch
		}
		return ConcurrencyCheckResult{
			Action:            ActionAddToExisting,
			ReasonCode:        code,
			Reason:            reason + fmt.Sprintf("; bank %s already exists, attaching to it", bank.Name),
			ReviewRecommended: review,
			BankName:          bank.Name,
			ExistingBankID:    &bank.ID,
		}, nil
	}

	return ConcurrencyCheckResult{
		Action:            ActionCreateNew,
		ReasonCode:        code,
		Reason:            reason,
		ReviewRecommended: review,
		BankName:          bankName,
	}, nil
}
