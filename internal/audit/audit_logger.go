package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	CompanyID   int       `json:"company_id"`
	StatementID int       `json:"statement_id,omitempty"`
	Account     string    `json:"account,omitempty"`
	Status      string    `json:"status"`
	Details     any       `json:"details"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// LogDecision records how an incoming statement was routed.
func (a *AuditLogger) LogDecision(companyID int, account, action, reasonCode, reason string) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "INGEST_DECISION",
		CompanyID: companyID,
		Account:   account,
		Status:    action,
		Details: map[string]string{
			"reason_code": reasonCode,
			"reason":      reason,
		},
	}
	a.log(event)
}

func (a *AuditLogger) LogMerge(companyID, statementID, rowsAdded int) {
	event := AuditEvent{
		Timestamp:   time.Now(),
		EventType:   "STATEMENT_MERGE",
		CompanyID:   companyID,
		StatementID: statementID,
		Status:      "SUCCESS",
		Details:     map[string]int{"rows_added": rowsAdded},
	}
	a.log(event)
}

func (a *AuditLogger) LogError(companyID int, account string, err error) {
	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		CompanyID: companyID,
		Account:   account,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
