package ingestion

import (
	"testing"
)

func field(name string, values ...string) FieldEntry {
	return FieldEntry{Name: name, Values: values}
}

func TestNormalizeFullLead(t *testing.T) {
	n := NewNormalizer("+91")

	lead := n.Normalize([]FieldEntry{
		field("full_name", "John Doe"),
		field("email", "  John@Example.COM "),
		field("phone_number", "9876543210"),
	})

	if lead.FirstName != "John" || lead.LastName != "Doe" {
		t.Errorf("name split = %q/%q, want John/Doe", lead.FirstName, lead.LastName)
	}
	if lead.Email == nil || *lead.Email != "john@example.com" {
		t.Errorf("email = %v, want john@example.com", lead.Email)
	}
	if lead.Phone == nil || *lead.Phone != "+919876543210" {
		t.Errorf("phone = %v, want +919876543210", lead.Phone)
	}
	if lead.Country == nil || *lead.Country != "IN" {
		t.Errorf("country = %v, want IN", lead.Country)
	}
}

func TestNormalizeFieldAliases(t *testing.T) {
	n := NewNormalizer("+91")

	tests := []struct {
		name   string
		fields []FieldEntry
		want   string
	}{
		{name: "full_name", fields: []FieldEntry{field("full_name", "Jane Roe")}, want: "Jane Roe"},
		{name: "full-name", fields: []FieldEntry{field("full-name", "Jane Roe")}, want: "Jane Roe"},
		{name: "name", fields: []FieldEntry{field("name", "Jane Roe")}, want: "Jane Roe"},
		{name: "first alias wins", fields: []FieldEntry{field("name", "Loser"), field("full_name", "Winner")}, want: "Winner"},
		{name: "case insensitive", fields: []FieldEntry{field("Full_Name", "Jane Roe")}, want: "Jane Roe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if lead := n.Normalize(tt.fields); lead.FullName != tt.want {
				t.Errorf("FullName = %q, want %q", lead.FullName, tt.want)
			}
		})
	}
}

func TestNormalizeMissingNameUsesSentinel(t *testing.T) {
	n := NewNormalizer("+91")

	lead := n.Normalize([]FieldEntry{field("email", "a@b.com")})
	if lead.FirstName != "Unknown" || lead.LastName != "Unknown" {
		t.Errorf("name = %q/%q, want Unknown/Unknown", lead.FirstName, lead.LastName)
	}
}

func TestNormalizeMultiTokenLastName(t *testing.T) {
	n := NewNormalizer("+91")

	lead := n.Normalize([]FieldEntry{field("name", "Ana de la Cruz")})
	if lead.FirstName != "Ana" || lead.LastName != "de la Cruz" {
		t.Errorf("name = %q/%q, want Ana/de la Cruz", lead.FirstName, lead.LastName)
	}
}

func TestNormalizeNoIdentityStillProduced(t *testing.T) {
	n := NewNormalizer("+91")

	lead := n.Normalize([]FieldEntry{field("full_name", "Ghost Lead")})
	if lead.Email != nil || lead.Phone != nil || lead.Country != nil {
		t.Errorf("expected no identity fields, got email=%v phone=%v country=%v", lead.Email, lead.Phone, lead.Country)
	}
	if lead.FirstName != "Ghost" {
		t.Errorf("FirstName = %q, want Ghost", lead.FirstName)
	}
}

func TestExtractLeads(t *testing.T) {
	payload := DeliveryPayload{
		Object: "page",
		Entry: []Entry{
			{
				ID: "page-1",
				Changes: []Change{
					{Field: "leadgen", Value: ChangeValue{LeadgenID: "L1", FormID: "F1", PageID: "P1"}},
					{Field: "feed", Value: ChangeValue{ID: "ignored"}},
					{Field: "leadgen", Value: ChangeValue{}},
				},
			},
			{
				ID: "page-2",
				Changes: []Change{
					{Field: "leadgen", Value: ChangeValue{LeadID: "L2"}},
				},
			},
		},
	}

	leads, skipped, err := ExtractLeads(payload)
	if err != nil {
		t.Fatalf("ExtractLeads returned error: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("got %d leads, want 2", len(leads))
	}
	if leads[0].ExternalLeadID != "L1" || leads[0].FormID != "F1" {
		t.Errorf("lead[0] = %+v", leads[0])
	}
	if leads[1].ExternalLeadID != "L2" {
		t.Errorf("lead[1].ExternalLeadID = %q, want L2", leads[1].ExternalLeadID)
	}
	if len(skipped) != 1 {
		t.Errorf("got %d skipped, want 1", len(skipped))
	}
}

func TestExtractLeadsIdentifierAliases(t *testing.T) {
	tests := []struct {
		name  string
		value ChangeValue
		want  string
	}{
		{name: "leadgen_id", value: ChangeValue{LeadgenID: "A"}, want: "A"},
		{name: "lead_id", value: ChangeValue{LeadID: "B"}, want: "B"},
		{name: "id", value: ChangeValue{ID: "C"}, want: "C"},
		{name: "leadgen_id wins", value: ChangeValue{LeadgenID: "A", LeadID: "B", ID: "C"}, want: "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.leadIdentifier(); got != tt.want {
				t.Errorf("leadIdentifier() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractLeadsRejectsWrongObject(t *testing.T) {
	_, _, err := ExtractLeads(DeliveryPayload{Object: "user"})
	if err == nil {
		t.Fatal("expected error for non-page object")
	}
}
