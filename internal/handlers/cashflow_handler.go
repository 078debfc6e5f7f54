package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/finflow/backend/internal/middleware"
	"github.com/finflow/backend/internal/services"
)

// CashflowHandler exposes projection and position endpoints over the
// underlying services.
type CashflowHandler struct {
	projections *services.ProjectionService
	positions   *services.PositionService
	companies   *services.CompanyService
	queue       services.RefreshEnqueuer
}

func NewCashflowHandler(projections *services.ProjectionService, positions *services.PositionService, companies *services.CompanyService, queue services.RefreshEnqueuer) *CashflowHandler {
	return &CashflowHandler{
		projections: projections,
		positions:   positions,
		companies:   companies,
		queue:       queue,
	}
}

func (h *CashflowHandler) resolveCompany(r *http.Request) (int, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, errors.New("missing authenticated user")
	}
	return h.companies.GetCompanyID(r.Context(), userID)
}

// RefreshProjections rebuilds the caller's projection window
// @Summary Rebuild cashflow projections
// @Description Clears the projection window and regenerates it from recurring payments, open invoices and facility balances
// @Tags projections
// @Produce json
// @Success 200 {object} services.RefreshSummary
// @Failure 500 {object} services.ErrorResponse
// @Router /projections/refresh [post]
func (h *CashflowHandler) RefreshProjections(w http.ResponseWriter, r *http.Request) {
	companyID, err := h.resolveCompany(r)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	summary, err := h.projections.RefreshProjections(r.Context(), companyID)
	if err != nil {
		log.Printf("[HANDLER] projection refresh failed for company %d: %v", companyID, err)
		services.SendErrorResponse(w, "Projection refresh failed", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSONResponse(w, http.StatusOK, summary)
}

// ListProjections lists stored projections
// @Summary List cashflow projections
// @Tags projections
// @Produce json
// @Param type query string false "Cashflow type filter"
// @Param status query string false "Status filter"
// @Param from query string false "Earliest projection date (YYYY-MM-DD)"
// @Param to query string false "Latest projection date (YYYY-MM-DD)"
// @Success 200 {array} models.CashflowProjection
// @Failure 400 {object} services.ErrorResponse
// @Router /projections [get]
func (h *CashflowHandler) ListProjections(w http.ResponseWriter, r *http.Request) {
	companyID, err := h.resolveCompany(r)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	filter := services.ProjectionFilter{
		Type:   r.URL.Query().Get("type"),
		Status: r.URL.Query().Get("status"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		parsed, err := services.ParseDate(from)
		if err != nil {
			services.SendErrorResponse(w, "Invalid from date", http.StatusBadRequest, nil)
			return
		}
		filter.FromDate = &parsed
	}
	if to := r.URL.Query().Get("to"); to != "" {
		parsed, err := services.ParseDate(to)
		if err != nil {
			services.SendErrorResponse(w, "Invalid to date", http.StatusBadRequest, nil)
			return
		}
		filter.ToDate = &parsed
	}

	projections, err := h.projections.GetProjections(r.Context(), companyID, filter)
	if err != nil {
		log.Printf("[HANDLER] projection listing failed for company %d: %v", companyID, err)
		services.SendErrorResponse(w, "Could not load projections", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSONResponse(w, http.StatusOK, projections)
}

// GetCashPosition returns the day-by-day projected position
// @Summary Projected daily cash position
// @Description Rolls the latest deposit balance through stored projections, with summary figures and alerts
// @Tags position
// @Produce json
// @Param days query int false "Window length in days"
// @Success 200 {object} services.CashPositionReport
// @Failure 404 {object} services.ErrorResponse
// @Router /cash-position [get]
func (h *CashflowHandler) GetCashPosition(w http.ResponseWriter, r *http.Request) {
	companyID, err := h.resolveCompany(r)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	windowDays := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 365 {
			services.SendErrorResponse(w, "days must be between 1 and 365", http.StatusBadRequest, nil)
			return
		}
		windowDays = parsed
	}

	report, err := h.positions.CalculateCashPosition(r.Context(), companyID, windowDays)
	if err != nil {
		if errors.Is(err, services.ErrNoBalanceBaseline) {
			services.SendErrorResponse(w, "No bank statements available to anchor the position", http.StatusNotFound, nil)
			return
		}
		log.Printf("[HANDLER] cash position failed for company %d: %v", companyID, err)
		services.SendErrorResponse(w, "Could not calculate cash position", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSONResponse(w, http.StatusOK, report)
}
