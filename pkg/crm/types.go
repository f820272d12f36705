package crm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Response is the envelope every CRM endpoint answers with.
type Response struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data,omitempty"`
	AdditionalData json.RawMessage `json:"additional_data,omitempty"`
	Error          string          `json:"error,omitempty"`
	ErrorInfo      string          `json:"error_info,omitempty"`
}

// Pagination mirrors additional_data.pagination of list endpoints.
type Pagination struct {
	Start                 int  `json:"start"`
	Limit                 int  `json:"limit"`
	MoreItemsInCollection bool `json:"more_items_in_collection"`
	NextStart             *int `json:"next_start,omitempty"`
}

// Pagination decodes additional_data.pagination. It returns nil when the
// response carries none.
func (r *Response) Pagination() (*Pagination, error) {
	if r == nil || isNullJSON(r.AdditionalData) {
		return nil, nil
	}
	var extra struct {
		Pagination *Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(r.AdditionalData, &extra); err != nil {
		// additional_data is not always an object (some endpoints send false)
		return nil, nil
	}
	return extra.Pagination, nil
}

// APIError is returned when the CRM answers with success=false.
type APIError struct {
	StatusCode int
	Message    string
	Info       string
}

func (e *APIError) Error() string {
	switch {
	case e.Message == "" && e.Info == "":
		return fmt.Sprintf("crm request failed with status %d", e.StatusCode)
	case e.Info == "":
		return e.Message
	case e.Message == "":
		return e.Info
	}
	return e.Message + "! " + e.Info
}

// LabeledValue is a multi-valued contact attribute such as an email or phone.
type LabeledValue struct {
	Label   string `json:"label,omitempty"`
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

// Contact is a CRM person. Fields keeps every attribute as received so
// custom fields can be read by key.
type Contact struct {
	ID      int64          `json:"id"`
	Name    string         `json:"name"`
	OrgName string         `json:"org_name,omitempty"`
	Emails  []LabeledValue `json:"email,omitempty"`
	Phones  []LabeledValue `json:"phone,omitempty"`

	Fields map[string]json.RawMessage `json:"-"`
	// Raw holds list elements that are not objects, exactly as received.
	Raw json.RawMessage `json:"-"`
}

func (c *Contact) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if !strings.HasPrefix(trimmed, "{") {
		*c = Contact{Raw: append(json.RawMessage(nil), data...)}
		var name string
		if json.Unmarshal(data, &name) == nil {
			c.Name = name
		}
		return nil
	}
	type plain Contact
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	p.Fields = fields
	*c = Contact(p)
	return nil
}

func (c Contact) MarshalJSON() ([]byte, error) {
	if c.Fields != nil {
		return json.Marshal(c.Fields)
	}
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	type plain Contact
	return json.Marshal(plain(c))
}

// PrimaryEmail returns the primary email, falling back to the first non-empty one.
func (c Contact) PrimaryEmail() string {
	fallback := ""
	for _, e := range c.Emails {
		v := strings.TrimSpace(e.Value)
		if v == "" {
			continue
		}
		if e.Primary {
			return v
		}
		if fallback == "" {
			fallback = v
		}
	}
	return fallback
}

// FieldString returns the trimmed string value of a raw field, or "" when
// the field is absent or not a string.
func (c Contact) FieldString(key string) string {
	raw, ok := c.Fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func isNullJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}
