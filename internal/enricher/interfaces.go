package enricher

import (
	"context"

	"github.com/samvad-hq/samvad-contact-enricher/pkg/crm"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/publishers"
)

// ContactSource pages through and updates CRM contacts.
type ContactSource interface {
	AccountDomain(ctx context.Context) (string, error)
	ListContacts(ctx context.Context, page *crm.Page) ([]crm.Contact, *int, error)
	UpdateContact(ctx context.Context, id int64, fields map[string]any) (*crm.Response, error)
}

// ProfileResolver maps a work email to a profile lookup result.
type ProfileResolver interface {
	ResolveWorkEmail(ctx context.Context, workEmail string) (*httpclient.Result, error)
}

// EventPublisher publishes enrichment events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Checkpoint remembers processed contacts and where listing stopped.
type Checkpoint interface {
	Seen(key string) (bool, error)
	Mark(key string) error
	Cursor(scope string) (int, bool, error)
	SaveCursor(scope string, start int) error
	ClearCursor(scope string) error
}
