package publishers

import (
	"time"

	"github.com/google/uuid"
)

// EventContactEnriched is emitted after a profile URL was written back to the CRM.
const EventContactEnriched = "contact.enriched"

// Event represents the payload published downstream.
type Event struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	AccountDomain string    `json:"account_domain"`
	ContactID     int64     `json:"contact_id"`
	ContactName   string    `json:"contact_name,omitempty"`
	Email         string    `json:"email"`
	ProfileURL    string    `json:"profile_url"`
	EnrichedAt    time.Time `json:"enriched_at"`
}

// NewEnrichedEvent constructs the event for a freshly enriched contact.
func NewEnrichedEvent(accountDomain string, contactID int64, name, email, profileURL string) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          EventContactEnriched,
		AccountDomain: accountDomain,
		ContactID:     contactID,
		ContactName:   name,
		Email:         email,
		ProfileURL:    profileURL,
		EnrichedAt:    time.Now().UTC(),
	}
}

// attributes returns the routing attributes attached to queue/topic messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_id":       e.ID,
		"event_type":     e.Type,
		"account_domain": e.AccountDomain,
	}
}
