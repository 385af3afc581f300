// Package notification turns routing events into outbox rows and composes
// the emails the scheduler worker delivers.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"gigroute_backend/internal/events"
	"gigroute_backend/internal/notification/outbox"
	"gigroute_backend/internal/notification/sender"
	"gigroute_backend/platform/config"
	"gigroute_backend/platform/logger"
)

// KindOfferEmail is the outbox kind for performer offer notifications.
const KindOfferEmail = "routing.offer_email"

// PerformerContact is the delivery address for one performer.
type PerformerContact struct {
	Name  string
	Email string
}

// ContactSource resolves performer delivery addresses.
type ContactSource interface {
	PerformerContact(ctx context.Context, performerID uuid.UUID) (PerformerContact, error)
}

// OfferEmailPayload is the outbox payload for one offer notification. It is
// self-contained so the worker never has to re-join lead and performer rows.
type OfferEmailPayload struct {
	AssignmentID uuid.UUID `json:"assignmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	PerformerID  uuid.UUID `json:"performerId"`

	To     string `json:"to"`
	ToName string `json:"toName"`

	Phase     string    `json:"phase"`
	ExpiresAt time.Time `json:"expiresAt"`

	EventType      string    `json:"eventType"`
	EventDate      time.Time `json:"eventDate"`
	City           string    `json:"city"`
	State          string    `json:"state"`
	BudgetMidpoint float64   `json:"budgetMidpoint,omitempty"`
	GuestCount     int       `json:"guestCount,omitempty"`

	OfferURL string `json:"offerUrl"`
}

// Module is the notification bounded context module.
type Module struct {
	repo     *outbox.Repository
	contacts ContactSource
	baseURL  string
	log      *logger.Logger
}

// NewModule creates the notification module.
func NewModule(pool *pgxpool.Pool, cfg config.NotificationConfig, contacts ContactSource, log *logger.Logger) *Module {
	return &Module{
		repo:     outbox.New(pool),
		contacts: contacts,
		baseURL:  cfg.GetAppBaseURL(),
		log:      log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// Outbox returns the outbox repository for the scheduler's dispatcher and
// worker.
func (m *Module) Outbox() *outbox.Repository {
	return m.repo
}

// RegisterHandlers subscribes to the routing events that produce emails.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.AssignmentOffered{}.EventName(), m)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.AssignmentOffered:
		return m.handleAssignmentOffered(ctx, e)
	default:
		return nil
	}
}

func (m *Module) handleAssignmentOffered(ctx context.Context, e events.AssignmentOffered) error {
	contact, err := m.contacts.PerformerContact(ctx, e.PerformerID)
	if err != nil {
		return fmt.Errorf("resolve performer contact: %w", err)
	}

	_, err = m.repo.Insert(ctx, outbox.InsertParams{
		Kind: KindOfferEmail,
		Payload: OfferEmailPayload{
			AssignmentID:   e.AssignmentID,
			LeadID:         e.LeadID,
			PerformerID:    e.PerformerID,
			To:             contact.Email,
			ToName:         contact.Name,
			Phase:          e.Phase,
			ExpiresAt:      e.ExpiresAt,
			EventType:      e.EventType,
			EventDate:      e.EventDate,
			City:           e.City,
			State:          e.State,
			BudgetMidpoint: e.BudgetMidpoint,
			GuestCount:     e.GuestCount,
			OfferURL:       fmt.Sprintf("%s/offers/%s", m.baseURL, e.ResponseToken),
		},
	})
	if err != nil {
		return fmt.Errorf("enqueue offer email: %w", err)
	}
	return nil
}

// BuildOfferEmail composes the plain-text offer notification.
func BuildOfferEmail(p OfferEmailPayload) sender.Message {
	body := fmt.Sprintf(
		"Hi %s,\n\n"+
			"A new %s gig in %s, %s is looking for a DJ.\n\n"+
			"Event date: %s\n",
		p.ToName, p.EventType, p.City, p.State,
		p.EventDate.Format("Monday, January 2, 2006"),
	)
	if p.GuestCount > 0 {
		body += fmt.Sprintf("Guests: %d\n", p.GuestCount)
	}
	if p.BudgetMidpoint > 0 {
		body += fmt.Sprintf("Budget: around $%.0f\n", p.BudgetMidpoint)
	}
	body += fmt.Sprintf(
		"\nThis offer expires %s.\n\n"+
			"View and respond here:\n%s\n",
		p.ExpiresAt.Format("Jan 2 at 3:04 PM MST"),
		p.OfferURL,
	)

	return sender.Message{
		To:       p.To,
		ToName:   p.ToName,
		Subject:  fmt.Sprintf("New gig offer: %s in %s", p.EventType, p.City),
		TextBody: body,
	}
}
