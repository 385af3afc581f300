// Package domain provides core business rules for the lead routing bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoutingState is the lifecycle state of a lead inside the routing engine.
type RoutingState string

const (
	StatePending   RoutingState = "pending"
	StateRouting   RoutingState = "routing"
	StateAssigned  RoutingState = "assigned"
	StateExhausted RoutingState = "exhausted"
	StateConverted RoutingState = "converted"
	StateWithdrawn RoutingState = "withdrawn"
)

// Terminal reports whether the state admits no further transition at all.
// Exhausted is deliberately not terminal here: an operator may re-inject an
// exhausted lead, and assigned leads still await conversion.
func (s RoutingState) Terminal() bool {
	return s == StateConverted || s == StateWithdrawn
}

// CanWithdraw reports whether a planner cancellation is still possible.
func (s RoutingState) CanWithdraw() bool {
	return !s.Terminal()
}

// validTransitions encodes the routing-state machine.
var validTransitions = map[RoutingState][]RoutingState{
	StatePending:   {StateRouting, StateExhausted, StateWithdrawn},
	StateRouting:   {StateAssigned, StateExhausted, StateWithdrawn},
	StateAssigned:  {StateConverted, StateWithdrawn},
	StateExhausted: {StateRouting, StateWithdrawn}, // re-injection only
}

// CanTransition reports whether from→to is a legal state change.
func CanTransition(from, to RoutingState) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Lead is a booking inquiry moving through the routing engine. Terminal
// leads are immutable; only the lifecycle manager and outcome recorder
// mutate non-terminal ones.
type Lead struct {
	ID uuid.UUID

	EventType  string
	EventDate  time.Time
	City       string
	State      string
	VenueName  string
	GuestCount int

	BudgetMin      float64
	BudgetMax      float64
	BudgetMidpoint float64

	PlannerName     string
	PlannerEmail    string
	PlannerPhone    string
	SpecialRequests string

	IsLastMinute     bool
	LeadScore        int
	FormCompleteness int

	RoutingState    RoutingState
	CurrentPhase    *Phase
	PhaseExpiresAt  *time.Time
	AssignedPerformerID *uuid.UUID
	ExhaustedReason *string
	MultiInquiryID  *uuid.UUID

	RoutedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScoreInput captures the submission fields that drive the lead score.
type ScoreInput struct {
	Budget       float64
	EventType    string
	HasDate      bool
	HasVenue     bool
	HasPhone     bool
	GuestCount   int
	IsLastMinute bool
}

// ComputeLeadScore rates inquiry quality 0-100 from completeness, budget,
// event type, guest count, and urgency.
func ComputeLeadScore(in ScoreInput) int {
	score := 0

	// Budget (0-30)
	switch {
	case in.Budget >= 5000:
		score += 30
	case in.Budget >= 2500:
		score += 20
	case in.Budget >= 1000:
		score += 10
	case in.Budget >= 500:
		score += 5
	}

	// Event type (0-15)
	switch in.EventType {
	case "wedding":
		score += 15
	case "corporate":
		score += 10
	case "birthday":
		score += 8
	case "school_dance":
		score += 5
	}

	// Completeness (0-25)
	if in.HasDate {
		score += 10
	}
	if in.HasVenue {
		score += 10
	}
	if in.HasPhone {
		score += 5
	}

	// Guest count (0-5)
	switch {
	case in.GuestCount >= 200:
		score += 5
	case in.GuestCount >= 100:
		score += 3
	case in.GuestCount >= 50:
		score += 1
	}

	// Urgency (0-10)
	if in.IsLastMinute {
		score += 10
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// ComputeFormCompleteness returns the percentage of optional inquiry fields
// the planner filled in.
func ComputeFormCompleteness(hasDate, hasVenue, hasPhone, hasBudget, hasGuests bool) int {
	filled := 0
	for _, b := range []bool{hasDate, hasVenue, hasPhone, hasBudget, hasGuests} {
		if b {
			filled++
		}
	}
	return filled * 100 / 5
}

// Midpoint computes the budget midpoint from a possibly half-open range.
func Midpoint(min, max float64) float64 {
	if min <= 0 && max <= 0 {
		return 0
	}
	if min <= 0 {
		return max
	}
	if max <= 0 {
		return min
	}
	return (min + max) / 2
}
