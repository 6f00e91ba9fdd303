package sirw

import (
	"context"
	"time"
)

// DecisionEvent is published after a decision is committed, automatic or human.
// Consumers (mail, HR systems) must treat delivery as at-most-once.
type DecisionEvent struct {
	RequestID          string         `json:"request_id"`
	ReferenceNumber    string         `json:"reference_number"`
	EmployeeID         string         `json:"employee_id"`
	DestinationCountry string         `json:"destination_country"`
	StartDate          string         `json:"start_date"`
	EndDate            string         `json:"end_date"`
	Workdays           int            `json:"workdays"`
	Status             Status         `json:"status"`
	DecisionSource     DecisionSource `json:"decision_source,omitempty"`
	Flags              Flags          `json:"flags"`
	Reason             string         `json:"reason"`
	DecidedAt          time.Time      `json:"decided_at"`
}

// NewDecisionEvent snapshots a decided request.
func NewDecisionEvent(req Request, at time.Time) DecisionEvent {
	flags := req.Flags
	if flags == nil {
		flags = Flags{}
	}
	return DecisionEvent{
		RequestID:          req.ID,
		ReferenceNumber:    req.ReferenceNumber,
		EmployeeID:         req.EmployeeID,
		DestinationCountry: req.DestinationCountry,
		StartDate:          req.StartDate.String(),
		EndDate:            req.EndDate.String(),
		Workdays:           req.Workdays(),
		Status:             req.Status,
		DecisionSource:     req.DecisionSource,
		Flags:              flags,
		Reason:             req.DecisionReason,
		DecidedAt:          at,
	}
}

// DecisionPublisher delivers decision events outside the service.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event DecisionEvent) error
}
