package ingestion

import (
	"encoding/json"
	"strings"

	"recruitbase_backend/platform/apperr"
	"recruitbase_backend/platform/phone"
)

// unknownName is the sentinel used when a lead carries no name at all.
const unknownName = "Unknown"

// DeliveryPayload is the webhook delivery envelope.
type DeliveryPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one page entry inside a delivery envelope.
type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

// Change is one field change inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the lead identifiers. Providers are inconsistent about
// the identifier key, so all known aliases are accepted.
type ChangeValue struct {
	LeadgenID   string       `json:"leadgen_id"`
	LeadID      string       `json:"lead_id"`
	ID          string       `json:"id"`
	FormID      string       `json:"form_id"`
	PageID      string       `json:"page_id"`
	AdID        string       `json:"ad_id"`
	CreatedTime int64        `json:"created_time"`
	FieldData   []FieldEntry `json:"field_data"`
}

// FieldEntry is one name/values pair from a lead form submission.
type FieldEntry struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// leadIdentifier returns the external lead id under whichever alias it arrived.
func (v ChangeValue) leadIdentifier() string {
	if v.LeadgenID != "" {
		return v.LeadgenID
	}
	if v.LeadID != "" {
		return v.LeadID
	}
	return v.ID
}

// IncomingLead is one leadgen change extracted from a delivery envelope,
// together with its raw value for storage.
type IncomingLead struct {
	ExternalLeadID string
	FormID         string
	PageID         string
	AdID           string
	FieldData      []FieldEntry
	Raw            json.RawMessage
}

// ExtractLeads pulls all leadgen changes out of a delivery envelope. An
// unexpected object type fails the whole envelope; a change without a lead
// identifier is skipped so the remaining entries still process.
func ExtractLeads(payload DeliveryPayload) ([]IncomingLead, []string, error) {
	if payload.Object != "page" {
		return nil, nil, apperr.BadRequest("unexpected webhook object type: " + payload.Object)
	}

	var (
		leads   []IncomingLead
		skipped []string
	)
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" {
				continue
			}
			externalID := change.Value.leadIdentifier()
			if externalID == "" {
				skipped = append(skipped, "missing lead identifier in entry "+entry.ID)
				continue
			}

			raw, err := json.Marshal(change.Value)
			if err != nil {
				skipped = append(skipped, "unmarshalable change in entry "+entry.ID)
				continue
			}

			leads = append(leads, IncomingLead{
				ExternalLeadID: externalID,
				FormID:         change.Value.FormID,
				PageID:         change.Value.PageID,
				AdID:           change.Value.AdID,
				FieldData:      change.Value.FieldData,
				Raw:            raw,
			})
		}
	}
	return leads, skipped, nil
}

// NormalizedLead is the provider-agnostic view of one lead submission.
// It is derived on every processing attempt and never persisted.
type NormalizedLead struct {
	FullName  string
	FirstName string
	LastName  string
	Email     *string
	Phone     *string
	Country   *string
}

// fieldRule maps a normalized target field to the form-field aliases that may
// carry it. Rules are tried in order per field and the first alias present
// wins, so adding a provider means adding an alias, not a branch.
type fieldRule struct {
	target  string
	aliases []string
}

const (
	targetFullName = "fullName"
	targetEmail    = "email"
	targetPhone    = "phone"
)

var fieldRules = []fieldRule{
	{target: targetFullName, aliases: []string{"full_name", "full-name", "name", "your_name"}},
	{target: targetEmail, aliases: []string{"email", "email_address", "e-mail", "work_email"}},
	{target: targetPhone, aliases: []string{"phone_number", "phone", "mobile_number", "mobile", "contact_number", "whatsapp_number"}},
}

// Normalizer derives NormalizedLead values from raw form fields.
type Normalizer struct {
	defaultCallingCode string
}

// NewNormalizer creates a normalizer with the configured default calling code
// applied to bare national numbers.
func NewNormalizer(defaultCallingCode string) *Normalizer {
	return &Normalizer{defaultCallingCode: defaultCallingCode}
}

// Normalize extracts and canonicalizes the lead fields.
func (n *Normalizer) Normalize(fields []FieldEntry) NormalizedLead {
	values := make(map[string]string, len(fieldRules))
	for _, rule := range fieldRules {
		for _, alias := range rule.aliases {
			if v := firstValue(fields, alias); v != "" {
				values[rule.target] = v
				break
			}
		}
	}

	lead := NormalizedLead{FullName: strings.TrimSpace(values[targetFullName])}
	lead.FirstName, lead.LastName = splitName(lead.FullName)

	if email := strings.ToLower(strings.TrimSpace(values[targetEmail])); email != "" {
		lead.Email = &email
	}

	if normalized := phone.Normalize(values[targetPhone], n.defaultCallingCode); normalized != "" {
		lead.Phone = &normalized
		if region := phone.Region(normalized); region != "" {
			lead.Country = &region
		}
	}

	return lead
}

// firstValue returns the first value of the named form field, matching the
// field name case-insensitively.
func firstValue(fields []FieldEntry, name string) string {
	for _, field := range fields {
		if strings.EqualFold(strings.TrimSpace(field.Name), name) && len(field.Values) > 0 {
			return strings.TrimSpace(field.Values[0])
		}
	}
	return ""
}

// splitName splits a full name on whitespace: first token is the first name,
// the rest joined is the last name. An absent name yields the sentinel for
// both parts.
func splitName(full string) (first, last string) {
	tokens := strings.Fields(full)
	if len(tokens) == 0 {
		return unknownName, unknownName
	}
	if len(tokens) == 1 {
		return tokens[0], ""
	}
	return tokens[0], strings.Join(tokens[1:], " ")
}
