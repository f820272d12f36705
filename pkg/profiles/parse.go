package profiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samvad-hq/samvad-contact-enricher/pkg/httpclient"
)

// ErrNotFound is returned when a lookup succeeded but matched nothing.
var ErrNotFound = errors.New("profile not found")

// APIError is an error answer from the profile-lookup API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("profile api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("profile api returned status %d: %s", e.StatusCode, e.Message)
}

// Experience is one position on a profile.
type Experience struct {
	Company string `json:"company"`
	Title   string `json:"title"`
}

// Profile holds the commonly used profile attributes.
type Profile struct {
	PublicIdentifier string       `json:"public_identifier"`
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	FullName         string       `json:"full_name"`
	Headline         string       `json:"headline"`
	Occupation       string       `json:"occupation"`
	City             string       `json:"city"`
	Country          string       `json:"country"`
	Experiences      []Experience `json:"experiences"`
}

// ParseProfile interprets a Profile result.
func ParseProfile(res *httpclient.Result) (*Profile, error) {
	if err := checkResult(res); err != nil {
		return nil, err
	}
	var p Profile
	if err := res.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}

// ParseResolvedURL interprets a ResolveWorkEmail result and returns the
// profile URL. ErrNotFound is returned when the email matched no profile.
func ParseResolvedURL(res *httpclient.Result) (string, error) {
	if err := checkResult(res); err != nil {
		return "", err
	}
	var body struct {
		URL        string `json:"url"`
		ProfileURL string `json:"linkedin_profile_url"`
	}
	if err := res.Decode(&body); err != nil {
		return "", fmt.Errorf("decode resolved url: %w", err)
	}
	u := strings.TrimSpace(body.URL)
	if u == "" {
		u = strings.TrimSpace(body.ProfileURL)
	}
	if u == "" {
		return "", ErrNotFound
	}
	return u, nil
}

func checkResult(res *httpclient.Result) error {
	switch {
	case res == nil:
		return errors.New("profile api returned no result")
	case res.Failed():
		return &httpclient.HealthError{Message: res.HealthError}
	case res.StatusCode == 404:
		return ErrNotFound
	case !res.Success():
		var body struct {
			Error       string `json:"error"`
			Description string `json:"description"`
		}
		if res.IsJSON() {
			_ = json.Unmarshal(res.Body, &body)
		}
		msg := body.Error
		if msg == "" {
			msg = body.Description
		}
		return &APIError{StatusCode: res.StatusCode, Message: msg}
	}
	return nil
}
