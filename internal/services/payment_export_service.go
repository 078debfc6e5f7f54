package services

import (
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"

	"github.com/finflow/backend/internal/middleware"
	"github.com/finflow/backend/internal/models"
)

// PaymentExportService renders projected supplier payables as pacs.008
// credit transfer instructions so a treasury system can pre-stage them.
type PaymentExportService struct {
	db          *sql.DB
	projections *ProjectionService
	companies   *CompanyService
	validator   *ValidationHelper
}

func NewPaymentExportService(db *sql.DB, projections *ProjectionService, companies *CompanyService) *PaymentExportService {
	return &PaymentExportService{
		db:          db,
		projections: projections,
		companies:   companies,
		validator:   NewValidationHelper(),
	}
}

// CreatePacs008 builds a pacs.008 FIToFICustomerCreditTransfer from projected
// supplier payments. Amounts are emitted positive; the projection sign only
// marks direction internally.
func (pe *PaymentExportService) CreatePacs008(payables []models.CashflowProjection, currency, debtorName string) (*pacs_v08.FIToFICustomerCreditTransferV08, error) {
	if len(payables) == 0 {
		return nil, fmt.Errorf("no supplier payables to export")
	}

	msgId := uuid.New().String()
	creDtTm := time.Now()

	total := 0.0
	for _, p := range payables {
		total += -p.ProjectedAmount
	}

	transactions := make([]pacs_v08.CreditTransferTransaction39, 0, len(payables))
	for _, p := range payables {
		settlementDate := p.ProjectionDate
		endToEnd := fmt.Sprintf("PROJ-%d", p.ID)
		transactions = append(transactions, pacs_v08.CreditTransferTransaction39{
			PmtId: pacs_v08.PaymentIdentification7{
				InstrId:    &[]common.Max35Text{common.Max35Text(endToEnd)}[0],
				EndToEndId: common.Max35Text(endToEnd),
				TxId:       &[]common.Max35Text{common.Max35Text(endToEnd)}[0],
			},
			IntrBkSttlmAmt: pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: -p.ProjectedAmount,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			ChrgBr:        "SLEV",
			DbtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{
					BICFI: &[]common.BICFIDec2014Identifier{common.BICFIDec2014Identifier("FINFLOW")}[0],
				},
			},
			Dbtr: pacs_v08.PartyIdentification135{
				Nm: &[]common.Max140Text{common.Max140Text(debtorName)}[0],
			},
			CdtrAgt: pacs_v08.BranchAndFinancialInstitutionIdentification6{
				FinInstnId: pacs_v08.FinancialInstitutionIdentification18{},
			},
			Cdtr: pacs_v08.PartyIdentification135{
				Nm: &[]common.Max140Text{common.Max140Text(p.Description)}[0],
			},
		})
	}

	settlementDate := payables[0].ProjectionDate
	doc := &pacs_v08.FIToFICustomerCreditTransferV08{
		GrpHdr: pacs_v08.GroupHeader93{
			MsgId:   common.Max35Text(msgId),
			CreDtTm: common.ISODateTime(creDtTm),
			NbOfTxs: common.Max15NumericText(fmt.Sprintf("%d", len(payables))),
			TtlIntrBkSttlmAmt: &pacs_v08.ActiveCurrencyAndAmount{
				Ccy:   common.ActiveCurrencyCode(currency),
				Value: total,
			},
			IntrBkSttlmDt: (*common.ISODate)(&settlementDate),
			SttlmInf: pacs_v08.SettlementInstruction7{
				SttlmMtd: "CLRG",
			},
		},
		CdtTrfTxInf: transactions,
	}

	return doc, nil
}

// ConvertToXML converts an ISO20022 document to an XML string
func (pe *PaymentExportService) ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

type exportRequest struct {
	Currency string `json:"currency" validate:"required,len=3"`
	Debtor   string `json:"debtor" validate:"required"`
	FromDate string `json:"from_date,omitempty"`
	ToDate   string `json:"to_date,omitempty"`
}

// ExportPaymentInstruction handles pacs.008 export of projected payables
// @Summary Export projected supplier payments as pacs.008
// @Description Collects SUPPLIER_PAYABLE projections in the date range and renders one credit transfer instruction
// @Tags export
// @Accept json
// @Produce json
// @Param request body exportRequest true "Export parameters"
// @Success 200 {object} object{status=string,messageType=string,xml=string}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /projections/export/pacs008 [post]
func (pe *PaymentExportService) ExportPaymentInstruction(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := pe.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	companyID, err := pe.resolveCompany(r)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusUnauthorized, nil)
		return
	}

	filter := ProjectionFilter{Type: string(models.CashflowSupplierPayable)}
	if req.FromDate != "" {
		from, err := ParseDate(req.FromDate)
		if err != nil {
			SendErrorResponse(w, "Invalid from_date", http.StatusBadRequest, nil)
			return
		}
		filter.FromDate = &from
	}
	if req.ToDate != "" {
		to, err := ParseDate(req.ToDate)
		if err != nil {
			SendErrorResponse(w, "Invalid to_date", http.StatusBadRequest, nil)
			return
		}
		filter.ToDate = &to
	}

	payables, err := pe.projections.GetProjections(r.Context(), companyID, filter)
	if err != nil {
		log.Printf("[EXPORT] loading payables for company %d failed: %v", companyID, err)
		SendErrorResponse(w, "Could not load projected payables", http.StatusInternalServerError, nil)
		return
	}
	if len(payables) == 0 {
		SendErrorResponse(w, "No projected supplier payments in range", http.StatusNotFound, nil)
		return
	}

	doc, err := pe.CreatePacs008(payables, req.Currency, req.Debtor)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	xmlData, err := pe.ConvertToXML(doc)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":      "exported",
		"messageType": "pacs.008.001.08",
		"count":       len(payables),
		"xml":         xmlData,
	})
}

func (pe *PaymentExportService) resolveCompany(r *http.Request) (int, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return 0, fmt.Errorf("missing authenticated user")
	}
	return pe.companies.GetCompanyID(r.Context(), userID)
}
