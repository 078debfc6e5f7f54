package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finflow/backend/internal/middleware"
	"github.com/finflow/backend/internal/models"
)

// ErrRecurringPaymentNotFound means the referenced recurring payment does
// not exist in the caller's company.
var ErrRecurringPaymentNotFound = errors.New("recurring payment not found")

// RecurringPaymentService manages recurring cash-flow definitions.
type RecurringPaymentService struct {
	db        *sql.DB
	companies *CompanyService
	queue     RefreshEnqueuer
	validator *ValidationHelper
	now       func() time.Time
}

func NewRecurringPaymentService(db *sql.DB, companies *CompanyService, queue RefreshEnqueuer) *RecurringPaymentService {
	return &RecurringPaymentService{
		db:        db,
		companies: companies,
		queue:     queue,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

type recurringPaymentRequest struct {
	Name       string   `json:"name" validate:"required"`
	Amount     float64  `json:"amount" validate:"required,gt=0"`
	Type       string   `json:"type" validate:"required,oneof=RECURRING_INFLOW RECURRING_OUTFLOW"`
	Frequency  string   `json:"frequency" validate:"required,oneof=DAILY WEEKLY BIWEEKLY MONTHLY QUARTERLY SEMIANNUALLY ANNUALLY"`
	StartDate  string   `json:"start_date" validate:"required"`
	EndDate    *string  `json:"end_date,omitempty"`
	DayOfMonth *int     `json:"day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	DayOfWeek  *int     `json:"day_of_week,omitempty" validate:"omitempty,min=0,max=6"`
	Confidence *float64 `json:"confidence,omitempty" validate:"omitempty,gt=0,lte=1"`
}

// calculateNextDueDate advances the anchor from the start date to the first
// occurrence not in the past. The result never precedes the start date.
func (rs *RecurringPaymentService) calculateNextDueDate(startDate time.Time, frequency models.RecurrenceFrequency, dayOfMonth *int) time.Time {
	today := truncateToDay(rs.now().UTC())
	anchorDay := startDate.Day()
	if dayOfMonth != nil && *dayOfMonth >= 1 && *dayOfMonth <= 31 {
		anchorDay = *dayOfMonth
	}

	next := startDate
	for i := 0; next.Before(today) && i < maxAdvanceIterations; i++ {
		next = NextOccurrence(next, frequency, anchorDay)
	}
	if next.Before(startDate) {
		return startDate
	}
	return next
}

func (rs *RecurringPaymentService) parseRequest(req recurringPaymentRequest) (*models.RecurringPayment, error) {
	startDate, err := ParseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", req.StartDate, err)
	}

	payment := &models.RecurringPayment{
		Name:       req.Name,
		Amount:     req.Amount,
		Type:       models.CashflowType(req.Type),
		Frequency:  models.RecurrenceFrequency(req.Frequency),
		StartDate:  startDate,
		DayOfMonth: req.DayOfMonth,
		DayOfWeek:  req.DayOfWeek,
		Confidence: 0.9,
		IsActive:   true,
	}
	if req.Confidence != nil {
		payment.Confidence = *req.Confidence
	}
	if req.EndDate != nil && *req.EndDate != "" {
		endDate, err := ParseDate(*req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end date %q: %w", *req.EndDate, err)
		}
		if endDate.Before(startDate) {
			return nil, fmt.Errorf("end date %s precedes start date %s", *req.EndDate, req.StartDate)
		}
		payment.EndDate = &endDate
	}

	payment.NextDueDate = rs.calculateNextDueDate(startDate, payment.Frequency, payment.DayOfMonth)
	return payment, nil
}

func (rs *RecurringPaymentService) create(ctx context.Context, payment *models.RecurringPayment) error {
	return rs.db.QueryRowContext(ctx, `
		INSERT INTO recurring_payments
		(company_id, name, amount, type, frequency, start_date, end_date,
		 next_due_date, day_of_month, day_of_week, confidence, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, true, NOW())
		RETURNING id, created_at
	`, payment.CompanyID, payment.Name, payment.Amount, payment.Type, payment.Frequency,
		payment.StartDate, payment.EndDate, payment.NextDueDate,
		payment.DayOfMonth, payment.DayOfWeek, payment.Confidence,
	).Scan(&payment.ID, &payment.CreatedAt)
}

func (rs *RecurringPaymentService) list(ctx context.Context, companyID int) ([]models.RecurringPayment, error) {
	rows, err := rs.db.QueryContext(ctx, `
		SELECT id, company_id, name, amount, type, frequency,
		       start_date, end_date, next_due_date, day_of_month, day_of_week,
		       confidence, is_active, created_at
		FROM recurring_payments
		WHERE company_id = $1
		ORDER BY next_due_date ASC, id ASC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("listing recurring payments for company %d: %w", companyID, err)
	}
	defer rows.Close()

	payments := []models.RecurringPayment{}
	for rows.Next() {
		var p models.RecurringPayment
		err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Amount, &p.Type, &p.Frequency,
			&p.StartDate, &p.EndDate, &p.NextDueDate, &p.DayOfMonth, &p.DayOfWeek,
			&p.Confidence, &p.IsActive, &p.CreatedAt)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

func (rs *RecurringPaymentService) update(ctx context.Context, companyID, id int, payment *models.RecurringPayment) error {
	result, err := rs.db.ExecContext(ctx, `
		UPDATE recurring_payments
		SET name = $1, amount = $2, type = $3, frequency = $4,
		    start_date = $5, end_date = $6, next_due_date = $7,
		    day_of_month = $8, day_of_week = $9, confidence = $10
		WHERE id = $11 AND company_id = $12
	`, payment.Name, payment.Amount, payment.Type, payment.Frequency,
		payment.StartDate, payment.EndDate, payment.NextDueDate,
		payment.DayOfMonth, payment.DayOfWeek, payment.Confidence,
		id, companyID)
	if err != nil {
		return fmt.Errorf("updating recurring payment %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecurringPaymentNotFound
	}
	return nil
}

// deactivate soft-deletes: historical projections may still reference the
// payment.
func (rs *RecurringPaymentService) deactivate(ctx context.Context, companyID, id int) error {
	result, err := rs.db.ExecContext(ctx, `
		UPDATE recurring_payments SET is_active = false
		WHERE id = $1 AND company_id = $2
	`, id, companyID)
	if err != nil {
		return fmt.Errorf("deactivating recurring payment %d: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecurringPaymentNotFound
	}
	return nil
}

func (rs *RecurringPaymentService) resolveCompany(r *http.Request) (int, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, fmt.Errorf("missing authenticated user")
	}
	return rs.companies.GetCompanyID(r.Context(), userID)
}

func (rs *RecurringPaymentService) enqueueRefresh(ctx context.Context, companyID int) {
	if rs.queue != nil {
		rs.queue.Enqueue(ctx, companyID)
	}
}

// CreateRecurringPayment handles recurring payment creation
// @Summary Create a recurring payment
// @Tags recurring
// @Accept json
// @Produce json
// @Param payment body recurringPaymentRequest true "Recurring payment"
// @Success 201 {object} models.RecurringPayment
// @Failure 400 {object} ErrorResponse
// @Router /recurring-payments [post]
func (rs *RecurringPaymentService) CreateRecurringPayment(w http.ResponseWriter, r *http.Request) {
	var req recurringPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := rs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	companyID, err := rs.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	payment, err := rs.parseRequest(req)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	payment.CompanyID = companyID

	if err := rs.create(r.Context(), payment); err != nil {
		log.Printf("[RECURRING] create failed for company %d: %v", companyID, err)
		SendErrorResponse(w, "Could not create recurring payment", http.StatusInternalServerError, nil)
		return
	}

	rs.enqueueRefresh(r.Context(), companyID)
	SendJSONResponse(w, http.StatusCreated, payment)
}

// ListRecurringPayments handles recurring payment listing
// @Summary List recurring payments
// @Tags recurring
// @Produce json
// @Success 200 {array} models.RecurringPayment
// @Router /recurring-payments [get]
func (rs *RecurringPaymentService) ListRecurringPayments(w http.ResponseWriter, r *http.Request) {
	companyID, err := rs.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	payments, err := rs.list(r.Context(), companyID)
	if err != nil {
		log.Printf("[RECURRING] list failed for company %d: %v", companyID, err)
		SendErrorResponse(w, "Could not load recurring payments", http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, payments)
}

// UpdateRecurringPayment handles recurring payment updates
// @Summary Update a recurring payment
// @Tags recurring
// @Accept json
// @Produce json
// @Param id path int true "Recurring payment ID"
// @Param payment body recurringPaymentRequest true "Recurring payment"
// @Success 200 {object} models.RecurringPayment
// @Failure 404 {object} ErrorResponse
// @Router /recurring-payments/{id} [put]
func (rs *RecurringPaymentService) UpdateRecurringPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid recurring payment id", http.StatusBadRequest, nil)
		return
	}

	var req recurringPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := rs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	companyID, err := rs.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	payment, err := rs.parseRequest(req)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	payment.ID = id
	payment.CompanyID = companyID

	if err := rs.update(r.Context(), companyID, id, payment); err != nil {
		if errors.Is(err, ErrRecurringPaymentNotFound) {
			SendErrorResponse(w, "Recurring payment not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Could not update recurring payment", http.StatusInternalServerError, nil)
		return
	}

	rs.enqueueRefresh(r.Context(), companyID)
	SendJSONResponse(w, http.StatusOK, payment)
}

// DeleteRecurringPayment handles recurring payment deactivation
// @Summary Deactivate a recurring payment
// @Tags recurring
// @Produce json
// @Param id path int true "Recurring payment ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /recurring-payments/{id} [delete]
func (rs *RecurringPaymentService) DeleteRecurringPayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid recurring payment id", http.StatusBadRequest, nil)
		return
	}

	companyID, err := rs.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	if err := rs.deactivate(r.Context(), companyID, id); err != nil {
		if errors.Is(err, ErrRecurringPaymentNotFound) {
			SendErrorResponse(w, "Recurring payment not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Could not deactivate recurring payment", http.StatusInternalServerError, nil)
		return
	}

	rs.enqueueRefresh(r.Context(), companyID)
	SendJSONResponse(w, http.StatusOK, map[string]any{
		"id":      id,
		"message": "recurring payment deactivated",
	})
}
