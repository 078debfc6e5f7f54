package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finflow/backend/internal/audit"
	"github.com/finflow/backend/internal/middleware"
	"github.com/finflow/backend/internal/models"
)

// RefreshEnqueuer schedules a cashflow projection rebuild for a company.
// Enqueue is fire and forget; statement ingestion never blocks on it.
type RefreshEnqueuer interface {
	Enqueue(ctx context.Context, companyID int)
}

// ProcessingResult describes what happened to one incoming statement.
type ProcessingResult struct {
	Action            ConcurrencyAction `json:"action"`
	ReasonCode        ReasonCode        `json:"reason_code"`
	Reason            string            `json:"reason"`
	ReviewRecommended bool              `json:"review_recommended"`
	BankName          string            `json:"bank_name"`
	StatementID       int               `json:"statement_id,omitempty"`
	TransactionsAdded int               `json:"transactions_added"`
}

// StatementService ingests structured statements and maintains the
// statement and bank records they land in.
type StatementService struct {
	store     StatementStore
	resolver  *ConcurrencyResolver
	companies *CompanyService
	queue     RefreshEnqueuer
	validator *ValidationHelper
	audit     *audit.AuditLogger
}

func NewStatementService(store StatementStore, companies *CompanyService, queue RefreshEnqueuer) *StatementService {
	return &StatementService{
		store:     store,
		resolver:  NewConcurrencyResolver(store),
		companies: companies,
		queue:     queue,
		validator: NewValidationHelper(),
		audit:     audit.NewAuditLogger(),
	}
}

// ProcessStatement routes one parsed statement through the concurrency
// decision and applies it.
func (ss *StatementService) ProcessStatement(ctx context.Context, incoming models.AccountStatement, companyID int) (*ProcessingResult, error) {
	periodStart, err := ParseDate(incoming.StatementPeriod.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid statement period start %q: %w", incoming.StatementPeriod.StartDate, err)
	}
	periodEnd, err := ParseDate(incoming.StatementPeriod.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid statement period end %q: %w", incoming.StatementPeriod.EndDate, err)
	}
	if periodStart.After(periodEnd) {
		return nil, fmt.Errorf("statement period start %s is after end %s",
			incoming.StatementPeriod.StartDate, incoming.StatementPeriod.EndDate)
	}

	decision, err := ss.resolver.Check(ctx, incoming, periodStart, periodEnd, companyID)
	if err != nil {
		return nil, err
	}
	ss.audit.LogDecision(companyID, incoming.AccountNumber, string(decision.Action), string(decision.ReasonCode), decision.Reason)

	result := &ProcessingResult{
		Action:            decision.Action,
		ReasonCode:        decision.ReasonCode,
		Reason:            decision.Reason,
		ReviewRecommended: decision.ReviewRecommended,
		BankName:          decision.BankName,
	}

	switch decision.Action {
	case ActionSkipDuplicate:
		if decision.ExistingStatementID != nil {
			result.StatementID = *decision.ExistingStatementID
		}
		return result, nil

	case ActionMergeStatement:
		existing, err := ss.store.GetStatement(ctx, *decision.ExistingStatementID)
		if err != nil {
			return nil, err
		}
		expandedStart, expandedEnd := expandPeriod(existing.StatementPeriodStart, existing.StatementPeriodEnd, periodStart, periodEnd)
		rows := ss.buildTransactionRows(incoming, periodStart)
		if err := ss.store.MergeIntoStatement(ctx, existing.ID, rows, expandedStart, expandedEnd); err != nil {
			return nil, err
		}
		ss.audit.LogMerge(companyID, existing.ID, len(rows))
		result.StatementID = existing.ID
		result.TransactionsAdded = len(rows)
		return result, nil

	case ActionAddToExisting:
		return ss.createStatement(ctx, incoming, *decision.ExistingBankID, decision.BankName, periodStart, periodEnd, result)

	default: // ActionCreateNew
		bank, err := ss.findOrCreateBank(ctx, incoming.BankName, companyID)
		if err != nil {
			return nil, err
		}
		return ss.createStatement(ctx, incoming, bank.ID, bank.Name, periodStart, periodEnd, result)
	}
}

func (ss *StatementService) findOrCreateBank(ctx context.Context, name string, companyID int) (*models.Bank, error) {
	bank, err := ss.store.FindBankByName(ctx, name, companyID)
	if err != nil {
		return nil, err
	}
	if bank != nil {
		return bank, nil
	}
	return ss.store.CreateBank(ctx, name, companyID)
}

func (ss *StatementService) createStatement(ctx context.Context, incoming models.AccountStatement, bankID int, bankName string, periodStart, periodEnd time.Time, result *ProcessingResult) (*ProcessingResult, error) {
	statement := models.BankStatement{
		BankID:               bankID,
		BankName:             bankName,
		AccountNumber:        incoming.AccountNumber,
		StatementPeriodStart: periodStart,
		StatementPeriodEnd:   periodEnd,
		AccountType:          incoming.AccountType,
		AccountCurrency:      incoming.AccountCurrency,
	}
	if v := ParseAmount(incoming.StartingBalance); v != nil {
		statement.StartingBalance = *v
	}
	if v := ParseAmount(incoming.EndingBalance); v != nil {
		statement.EndingBalance = *v
	}

	rows := ss.buildTransactionRows(incoming, periodStart)
	id, err := ss.store.CreateStatementWithTransactions(ctx, statement, rows)
	if err != nil {
		return nil, err
	}

	result.StatementID = id
	result.TransactionsAdded = len(rows)
	return result, nil
}

// buildTransactionRows converts raw pipeline rows into ledger rows. Rows with
// unparseable dates fall back to the statement period start rather than being
// dropped.
func (ss *StatementService) buildTransactionRows(incoming models.AccountStatement, fallbackDate time.Time) []models.Transaction {
	rows := make([]models.Transaction, 0, len(incoming.Transactions))
	for _, raw := range incoming.Transactions {
		rows = append(rows, models.Transaction{
			TransactionDate: ParseTransactionDate(raw.Date, fallbackDate),
			CreditAmount:    ParseAmount(raw.CreditAmount),
			DebitAmount:     ParseAmount(raw.DebitAmount),
			Balance:         ParseAmount(raw.Balance),
			Description:     raw.Description,
			PageNumber:      raw.PageNumber,
			EntityName:      raw.EntityName,
			Currency:        incoming.AccountCurrency,
		})
	}
	return rows
}

func expandPeriod(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time) {
	start := aStart
	if bStart.Before(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.After(end) {
		end = bEnd
	}
	return start, end
}

// IngestStatements handles batch statement ingestion
// @Summary Ingest parsed bank statements
// @Description Routes each statement through duplicate and overlap detection; failures of one statement do not abort its siblings
// @Tags statements
// @Accept json
// @Produce json
// @Param batch body object true "Batch of parsed statements"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /statements/ingest [post]
func (ss *StatementService) IngestStatements(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Statements []models.AccountStatement `json:"statements"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if len(req.Statements) == 0 {
		SendErrorResponse(w, "No statements provided", http.StatusBadRequest, nil)
		return
	}

	companyID, err := ss.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	type itemResult struct {
		AccountNumber string            `json:"account_number"`
		Result        *ProcessingResult `json:"result,omitempty"`
		Error         string            `json:"error,omitempty"`
	}

	results := make([]itemResult, 0, len(req.Statements))
	succeeded := 0
	for _, incoming := range req.Statements {
		item := itemResult{AccountNumber: incoming.AccountNumber}
		if err := ss.validator.ValidateStruct(&incoming); err != nil {
			item.Error = fmt.Sprintf("validation failed: %v", err)
			results = append(results, item)
			continue
		}

		result, err := ss.ProcessStatement(r.Context(), incoming, companyID)
		if err != nil {
			log.Printf("[INGEST] statement for account %s failed: %v", incoming.AccountNumber, err)
			ss.audit.LogError(companyID, incoming.AccountNumber, err)
			item.Error = err.Error()
		} else {
			item.Result = result
			succeeded++
		}
		results = append(results, item)
	}

	if succeeded > 0 && ss.queue != nil {
		ss.queue.Enqueue(r.Context(), companyID)
	}

	SendJSONResponse(w, http.StatusOK, map[string]any{
		"processed": succeeded,
		"failed":    len(req.Statements) - succeeded,
		"results":   results,
	})
}

// ListStatements handles statement listing
// @Summary List bank statements for the caller's company
// @Tags statements
// @Produce json
// @Success 200 {array} models.BankStatement
// @Failure 500 {object} ErrorResponse
// @Router /statements [get]
func (ss *StatementService) ListStatements(w http.ResponseWriter, r *http.Request) {
	companyID, err := ss.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	statements, err := ss.store.ListStatements(r.Context(), companyID)
	if err != nil {
		log.Printf("[STATEMENTS] list failed for company %d: %v", companyID, err)
		SendErrorResponse(w, "Could not load statements", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, statements)
}

// GetStatementByID handles single statement retrieval
// @Summary Get one bank statement
// @Tags statements
// @Produce json
// @Param id path int true "Statement ID"
// @Success 200 {object} models.BankStatement
// @Failure 404 {object} ErrorResponse
// @Router /statements/{id} [get]
func (ss *StatementService) GetStatementByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid statement id", http.StatusBadRequest, nil)
		return
	}

	statement, err := ss.store.GetStatement(r.Context(), id)
	if err != nil {
		SendErrorResponse(w, "Statement not found", http.StatusNotFound, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, statement)
}

type updateAccountNumberRequest struct {
	AccountNumber string `json:"account_number" validate:"required"`
}

// UpdateAccountNumber handles account number corrections
// @Summary Correct the account number on a statement
// @Description When the corrected number collides with an overlapping statement of the same bank, the two statements are merged
// @Tags statements
// @Accept json
// @Produce json
// @Param id path int true "Statement ID"
// @Param body body updateAccountNumberRequest true "New account number"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /statements/{id}/account-number [put]
func (ss *StatementService) UpdateAccountNumber(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid statement id", http.StatusBadRequest, nil)
		return
	}

	var req updateAccountNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := ss.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	companyID, err := ss.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	statement, err := ss.store.GetStatement(r.Context(), id)
	if err != nil {
		SendErrorResponse(w, "Statement not found", http.StatusNotFound, nil)
		return
	}

	// A corrected number may land on an account we already track. If the
	// periods overlap and the bank matches, the statements describe the same
	// account and are collapsed into one.
	siblings, err := ss.store.FindStatementsByAccount(r.Context(), req.AccountNumber, companyID)
	if err != nil {
		SendErrorResponse(w, "Could not check existing statements", http.StatusInternalServerError, nil)
		return
	}

	for i := range siblings {
		target := siblings[i]
		if target.ID == statement.ID {
			continue
		}
		if normalizeBankName(target.BankName) != normalizeBankName(statement.BankName) {
			continue
		}
		if !periodsOverlap(statement.StatementPeriodStart, statement.StatementPeriodEnd, target.StatementPeriodStart, target.StatementPeriodEnd) {
			continue
		}

		expandedStart, expandedEnd := expandPeriod(
			target.StatementPeriodStart, target.StatementPeriodEnd,
			statement.StatementPeriodStart, statement.StatementPeriodEnd,
		)
		if err := ss.store.AbsorbStatement(r.Context(), statement.ID, target.ID, expandedStart, expandedEnd); err != nil {
			log.Printf("[STATEMENTS] absorb of %d into %d failed: %v", statement.ID, target.ID, err)
			SendErrorResponse(w, "Could not merge statements", http.StatusInternalServerError, nil)
			return
		}
		ss.audit.LogMerge(companyID, target.ID, 0)
		ss.enqueueRefresh(r.Context(), companyID)
		SendJSONResponse(w, http.StatusOK, map[string]any{
			"merged_into": target.ID,
			"message":     "statement merged into existing statement for the corrected account",
		})
		return
	}

	if err := ss.store.UpdateStatementAccountNumber(r.Context(), id, req.AccountNumber); err != nil {
		SendErrorResponse(w, "Could not update account number", http.StatusInternalServerError, nil)
		return
	}

	ss.enqueueRefresh(r.Context(), companyID)
	SendJSONResponse(w, http.StatusOK, map[string]any{
		"statement_id": id,
		"message":      "account number updated, validation reset",
	})
}

type updateBankRequest struct {
	BankName string `json:"bank_name" validate:"required"`
}

// UpdateBankAffiliation handles bank reassignment
// @Summary Move a statement to a different bank
// @Description Finds or creates the named bank within the company and reattaches the statement to it
// @Tags statements
// @Accept json
// @Produce json
// @Param id path int true "Statement ID"
// @Param body body updateBankRequest true "New bank name"
// @Success 200 {object} map[string]any
// @Failure 400 {object} ErrorResponse
// @Router /statements/{id}/bank [put]
func (ss *StatementService) UpdateBankAffiliation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid statement id", http.StatusBadRequest, nil)
		return
	}

	var req updateBankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := ss.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	companyID, err := ss.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	if _, err := ss.store.GetStatement(r.Context(), id); err != nil {
		SendErrorResponse(w, "Statement not found", http.StatusNotFound, nil)
		return
	}

	bank, err := ss.findOrCreateBank(r.Context(), req.BankName, companyID)
	if err != nil {
		SendErrorResponse(w, "Could not resolve bank", http.StatusInternalServerError, nil)
		return
	}

	if err := ss.store.UpdateStatementBank(r.Context(), id, bank.ID, bank.Name); err != nil {
		SendErrorResponse(w, "Could not update bank affiliation", http.StatusInternalServerError, nil)
		return
	}

	ss.enqueueRefresh(r.Context(), companyID)
	SendJSONResponse(w, http.StatusOK, map[string]any{
		"statement_id": id,
		"bank_id":      bank.ID,
		"bank_name":    bank.Name,
		"message":      "bank affiliation updated, validation reset",
	})
}

func (ss *StatementService) resolveCompany(r *http.Request) (int, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, fmt.Errorf("missing authenticated user")
	}
	return ss.companies.GetCompanyID(r.Context(), userID)
}

func (ss *StatementService) enqueueRefresh(ctx context.Context, companyID int) {
	if ss.queue != nil {
		ss.queue.Enqueue(ctx, companyID)
	}
}
