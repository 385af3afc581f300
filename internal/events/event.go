// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"gigroute_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Routing Domain Events
// =============================================================================

// LeadSubmitted is published when a new booking inquiry enters the engine.
type LeadSubmitted struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	EventType string    `json:"eventType"`
	City      string    `json:"city"`
	State     string    `json:"state"`
	LeadScore int       `json:"leadScore"`
}

func (e LeadSubmitted) EventName() string { return "routing.lead.submitted" }

// RoutingStateChanged is published on every lead routing-state transition so
// CRM/dashboard collaborators can refresh.
type RoutingStateChanged struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	OldState string    `json:"oldState"`
	NewState string    `json:"newState"`
	Phase    string    `json:"phase,omitempty"`
}

func (e RoutingStateChanged) EventName() string { return "routing.lead.state_changed" }

// AssignmentOffered is published per created assignment; the notification
// module turns it into an outbox row for the external sender.
type AssignmentOffered struct {
	BaseEvent
	AssignmentID  uuid.UUID `json:"assignmentId"`
	LeadID        uuid.UUID `json:"leadId"`
	PerformerID   uuid.UUID `json:"performerId"`
	Phase         string    `json:"phase"`
	ExpiresAt     time.Time `json:"expiresAt"`
	ResponseToken string    `json:"responseToken"`

	// Lead summary for the notification body.
	EventType      string    `json:"eventType"`
	EventDate      time.Time `json:"eventDate"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	BudgetMidpoint float64   `json:"budgetMidpoint"`
	GuestCount     int       `json:"guestCount"`
}

func (e AssignmentOffered) EventName() string { return "routing.assignment.offered" }

// LeadAssigned is published when a performer wins a lead.
type LeadAssigned struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	PerformerID  uuid.UUID `json:"performerId"`
	AssignmentID uuid.UUID `json:"assignmentId"`
	Phase        string    `json:"phase"`
}

func (e LeadAssigned) EventName() string { return "routing.lead.assigned" }

// LeadExhausted is published when routing runs out of candidates or windows.
type LeadExhausted struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Reason string    `json:"reason"`
}

func (e LeadExhausted) EventName() string { return "routing.lead.exhausted" }

// LeadWithdrawn is published when the planner cancels a lead.
type LeadWithdrawn struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e LeadWithdrawn) EventName() string { return "routing.lead.withdrawn" }

// LeadConverted is published when a booking is confirmed out-of-band.
type LeadConverted struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	PerformerID uuid.UUID `json:"performerId"`
}

func (e LeadConverted) EventName() string { return "routing.lead.converted" }

// PerformerSuspended is published when the metrics store trips automatic
// suspension or an operator suspends manually.
type PerformerSuspended struct {
	BaseEvent
	PerformerID uuid.UUID `json:"performerId"`
	Reason      string    `json:"reason"`
}

func (e PerformerSuspended) EventName() string { return "performers.suspended" }
