package phone

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare ten digits get default calling code", raw: "9876543210", want: "+919876543210"},
		{name: "international number keeps plus and drops formatting", raw: "+44 20 7946 0958", want: "+442079460958"},
		{name: "leading zeros stripped before length check", raw: "09876543210", want: "+919876543210"},
		{name: "dashes and parens stripped", raw: "(987) 654-3210", want: "+919876543210"},
		{name: "non-ten-digit number kept bare", raw: "12345", want: "12345"},
		{name: "empty input", raw: "", want: ""},
		{name: "whitespace only", raw: "   ", want: ""},
		{name: "letters only", raw: "not a number", want: ""},
		{name: "lone plus", raw: "+", want: ""},
		{name: "zeros only", raw: "0000", want: ""},
		{name: "plus not at start is dropped", raw: "98+76543210", want: "+919876543210"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw, "+91"); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeRespectsConfiguredCallingCode(t *testing.T) {
	if got := Normalize("5551234567", "+1"); got != "+15551234567" {
		t.Errorf("Normalize with +1 = %q, want %q", got, "+15551234567")
	}
}

func TestRegion(t *testing.T) {
	tests := []struct {
		name       string
		normalized string
		want       string
	}{
		{name: "india", normalized: "+919876543210", want: "IN"},
		{name: "united kingdom", normalized: "+442079460958", want: "GB"},
		{name: "united states", normalized: "+15551234567", want: "US"},
		{name: "bare digits carry no region", normalized: "12345", want: ""},
		{name: "empty", normalized: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Region(tt.normalized); got != tt.want {
				t.Errorf("Region(%q) = %q, want %q", tt.normalized, got, tt.want)
			}
		})
	}
}
