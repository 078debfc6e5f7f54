package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finflow/backend/internal/middleware"
	"github.com/finflow/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	companies *services.CompanyService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService, companies *services.CompanyService) *QRHandler {
	return &QRHandler{
		service:   service,
		companies: companies,
		validator: services.NewValidationHelper(),
	}
}

func (h *QRHandler) resolveCompany(r *http.Request) (int, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, errors.New("missing authenticated user")
	}
	return h.companies.GetCompanyID(r.Context(), userID)
}

// GeneratePaymentReference issues a payment reference QR for an invoice
// @Summary Generate invoice payment reference QR
// @Description Encodes the invoice identity and amount due into a scannable reference
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param id path int true "Invoice ID"
// @Success 200 {object} object{reference=string,qrImage=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /invoices/{id}/payment-reference [post]
func (h *QRHandler) GeneratePaymentReference(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid invoice id", http.StatusBadRequest, nil)
		return
	}

	companyID, err := h.resolveCompany(r)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	reference, qrImage, err := h.service.GeneratePaymentReference(r.Context(), companyID, invoiceID)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
		return
	}

	services.SendJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"reference": reference,
		"qrImage":   qrImage,
	})
}

// ResolvePaymentReference resolves a scanned payment reference
// @Summary Resolve a payment reference
// @Description Looks up a scanned reference and consumes it
// @Tags QR
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{reference=string} true "Scanned reference"
// @Success 200 {object} map[string]any
// @Failure 400 {object} services.ErrorResponse
// @Router /payment-references/resolve [post]
func (h *QRHandler) ResolvePaymentReference(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reference string `json:"reference" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if _, err := h.resolveCompany(r); err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	details, err := h.service.ResolvePaymentReference(r.Context(), req.Reference)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	services.SendJSONResponse(w, http.StatusOK, details)
}
