package enricher

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/samvad-hq/samvad-contact-enricher/internal/logger"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/crm"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/profiles"
	"github.com/samvad-hq/samvad-contact-enricher/pkg/publishers"
)

const defaultPageLimit = 100

// Options tunes a Service.
type Options struct {
	// LinkedInField is the CRM custom field key that receives the profile URL.
	LinkedInField string
	PageLimit     int
}

// Summary counts what a run did with the contacts it listed.
type Summary struct {
	Pages    int `json:"pages"`
	Scanned  int `json:"scanned"`
	Enriched int `json:"enriched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeEnriched
	outcomeFailed
)

// Service fills in missing profile URLs on CRM contacts.
type Service struct {
	contacts  ContactSource
	resolver  ProfileResolver
	publisher EventPublisher
	store     Checkpoint
	log       logger.Logger
	opts      Options
}

// NewService wires the enrichment pipeline. publisher and store may be nil.
func NewService(contacts ContactSource, resolver ProfileResolver, publisher EventPublisher, store Checkpoint, log logger.Logger, opts Options) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	return &Service{
		contacts:  contacts,
		resolver:  resolver,
		publisher: publisher,
		store:     store,
		log:       log,
		opts:      opts,
	}
}

// Run walks the contact list from the saved cursor to the end. A listing
// failure aborts the run; per-contact failures are collected and returned
// joined once the walk is over.
func (s *Service) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	if s == nil || s.contacts == nil || s.resolver == nil {
		return sum, fmt.Errorf("enricher service is not initialized")
	}
	if s.opts.LinkedInField == "" {
		return sum, fmt.Errorf("enricher requires the profile url field key")
	}

	domain, err := s.contacts.AccountDomain(ctx)
	if err != nil {
		return sum, fmt.Errorf("resolve account domain: %w", err)
	}

	start := s.resumeFrom(domain)
	var errs []error
	for {
		contacts, next, err := s.contacts.ListContacts(ctx, &crm.Page{Start: start, Limit: s.opts.PageLimit})
		if err != nil {
			errs = append(errs, fmt.Errorf("list contacts from %d: %w", start, err))
			return sum, errors.Join(errs...)
		}
		sum.Pages++

		for _, c := range contacts {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				return sum, errors.Join(errs...)
			}
			sum.Scanned++
			switch res, err := s.processContact(ctx, domain, c); res {
			case outcomeEnriched:
				sum.Enriched++
				if err != nil {
					errs = append(errs, err)
				}
			case outcomeFailed:
				sum.Failed++
				errs = append(errs, err)
			default:
				sum.Skipped++
			}
		}

		if next == nil {
			s.clearCursor(domain)
			break
		}
		if *next <= start {
			errs = append(errs, fmt.Errorf("contact cursor did not advance past %d", start))
			break
		}
		start = *next
		s.saveCursor(domain, start)
	}

	s.log.InfoObj("enrichment pass completed", "enrich_summary", map[string]any{
		"account_domain": domain,
		"summary":        sum,
		"errors":         len(errs),
	})
	return sum, errors.Join(errs...)
}

func (s *Service) processContact(ctx context.Context, domain string, c crm.Contact) (outcome, error) {
	key := domain + "/" + strconv.FormatInt(c.ID, 10)
	meta := map[string]any{"contact_id": c.ID, "account_domain": domain}

	if s.seen(key) {
		s.log.DebugObj("contact already processed", "contact_skip", meta)
		return outcomeSkipped, nil
	}
	if c.FieldString(s.opts.LinkedInField) != "" {
		s.log.DebugObj("contact already has a profile url", "contact_skip", meta)
		s.mark(key)
		return outcomeSkipped, nil
	}
	email := c.PrimaryEmail()
	if email == "" {
		s.log.DebugObj("contact has no email", "contact_skip", meta)
		return outcomeSkipped, nil
	}

	res, err := s.resolver.ResolveWorkEmail(ctx, email)
	if err != nil {
		return outcomeFailed, fmt.Errorf("resolve contact %d: %w", c.ID, err)
	}
	profileURL, err := profiles.ParseResolvedURL(res)
	if errors.Is(err, profiles.ErrNotFound) {
		s.log.InfoObj("no profile found for contact", "contact_skip", meta)
		s.mark(key)
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("resolve contact %d: %w", c.ID, err)
	}

	if _, err := s.contacts.UpdateContact(ctx, c.ID, map[string]any{s.opts.LinkedInField: profileURL}); err != nil {
		return outcomeFailed, fmt.Errorf("update contact %d: %w", c.ID, err)
	}
	s.mark(key)
	meta["profile_url"] = profileURL
	s.log.InfoObj("contact enriched", "contact_enriched", meta)

	if s.publisher == nil {
		return outcomeEnriched, nil
	}
	evt := publishers.NewEnrichedEvent(domain, c.ID, c.Name, email, profileURL)
	if _, err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.ErrorObj("failed to publish enrichment event", "publish_error", map[string]any{
			"contact_id": c.ID,
			"error":      err.Error(),
		})
		return outcomeEnriched, fmt.Errorf("publish contact %d: %w", c.ID, err)
	}
	return outcomeEnriched, nil
}

func (s *Service) resumeFrom(domain string) int {
	if s.store == nil {
		return 0
	}
	start, ok, err := s.store.Cursor(domain)
	if err != nil {
		s.log.WarnObj("failed to read contact cursor; starting over", "storage_error", map[string]any{
			"account_domain": domain,
			"error":          err.Error(),
		})
		return 0
	}
	if ok {
		s.log.InfoObj("resuming contact listing", "enrich_cursor", map[string]any{
			"account_domain": domain,
			"start":          start,
		})
	}
	return start
}

func (s *Service) saveCursor(domain string, start int) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveCursor(domain, start); err != nil {
		s.log.WarnObj("failed to save contact cursor", "storage_error", map[string]any{
			"account_domain": domain,
			"start":          start,
			"error":          err.Error(),
		})
	}
}

func (s *Service) clearCursor(domain string) {
	if s.store == nil {
		return
	}
	if err := s.store.ClearCursor(domain); err != nil {
		s.log.WarnObj("failed to clear contact cursor", "storage_error", map[string]any{
			"account_domain": domain,
			"error":          err.Error(),
		})
	}
}

// seen treats lookup errors as unseen so the contact is retried.
func (s *Service) seen(key string) bool {
	if s.store == nil {
		return false
	}
	ok, err := s.store.Seen(key)
	if err != nil {
		s.log.WarnObj("contact lookup failed", "storage_error", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return ok
}

func (s *Service) mark(key string) {
	if s.store == nil {
		return
	}
	if err := s.store.Mark(key); err != nil {
		s.log.WarnObj("failed to mark contact", "storage_error", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}
