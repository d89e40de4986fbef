package llm

import (
	"errors"
	"testing"

	"github.com/examforge/examforge/internal/apperr"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, false},
		{"prose prefix", `Sure! Here are your questions: {"a": 1}`, `{"a": 1}`, false},
		{"prose suffix", `{"a": 1} Hope this helps!`, `{"a": 1}`, false},
		{"markdown fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`, false},
		{"nested objects", `{"a": {"b": {"c": 1}}}`, `{"a": {"b": {"c": 1}}}`, false},
		{"braces inside strings", `{"text": "set {x} to }"}`, `{"text": "set {x} to }"}`, false},
		{"escaped quotes", `{"text": "he said \"hi\" {"}`, `{"text": "he said \"hi\" {"}`, false},
		{"second candidate valid", `{not json} then {"a": 1}`, `{"a": 1}`, false},
		{"empty input", ``, "", true},
		{"no object", `just some prose`, "", true},
		{"unterminated object", `{"a": 1`, "", true},
		{"only invalid candidates", `{oops} and {also bad`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.text)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractJSONObject(%q) = %q, want error", tt.text, got)
				}
				if !apperr.Is(err, apperr.KindValidation) {
					t.Errorf("error kind = %v, want validation", apperr.KindOf(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSONObject(%q): %v", tt.text, err)
			}
			if got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractJSONObjectRetainsRaw(t *testing.T) {
	_, err := ExtractJSONObject("no payload here")
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("expected *apperr.Error, got %T", err)
	}
	if ae.Raw != "no payload here" {
		t.Errorf("Raw = %q, want original text", ae.Raw)
	}
}
