package ops

import (
	"testing"

	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/suggest"
)

func TestParse(t *testing.T) {
	out, err := Parse(ParseInput{Text: breakdownReply})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if out.Found != 11 {
		t.Errorf("Found = %d, want 11", out.Found)
	}
	if out.Sections.SalePrice != "$85 DTC." {
		t.Errorf("SalePrice = %q", out.Sections.SalePrice)
	}
}

func TestParse_KeySubset(t *testing.T) {
	out, err := Parse(ParseInput{Text: breakdownReply, Keys: []string{"leadTime", " pricing "}})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if out.Found != 2 {
		t.Errorf("Found = %d, want 2", out.Found)
	}
	if out.Sections.Materials != "" {
		t.Errorf("Materials = %q, want empty outside the subset", out.Sections.Materials)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse(ParseInput{Text: "x", Keys: []string{"shipping"}})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestSection(t *testing.T) {
	tests := []struct {
		name      string
		input     SectionInput
		wantLabel string
		wantBody  string
		wantErr   bool
	}{
		{
			name:      "by label",
			input:     SectionInput{Text: breakdownReply, Label: "Margin Analysis"},
			wantLabel: "Margin Analysis",
			wantBody:  "74% gross margin at DTC.",
		},
		{
			name:      "by key uses alternate spelling",
			input:     SectionInput{Text: breakdownReply, Key: "materials"},
			wantLabel: "Materials",
			wantBody:  "Organic cotton fleece, 400 GSM.",
		},
		{
			name:      "missing label",
			input:     SectionInput{Text: breakdownReply, Label: "Care Instructions"},
			wantLabel: "Care Instructions",
		},
		{name: "both", input: SectionInput{Label: "a", Key: "materials"}, wantErr: true},
		{name: "neither", input: SectionInput{Text: "x"}, wantErr: true},
		{name: "unknown key", input: SectionInput{Key: "care"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Section(tt.input)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrInvalidRequest) {
					t.Fatalf("err = %v, want INVALID_REQUEST", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Section failed: %v", err)
			}
			if out.Label != tt.wantLabel || out.Body != tt.wantBody || out.Found != (tt.wantBody != "") {
				t.Errorf("got %+v", out)
			}
		})
	}
}

func TestColors(t *testing.T) {
	out, err := Colors(ColorsInput{Text: breakdownReply, Limit: 2})
	if err != nil {
		t.Fatalf("Colors failed: %v", err)
	}
	want := []suggest.Color{{Name: "Charcoal", Hex: "#36454F"}, {Name: "Oatmeal", Hex: "#E3D9C6"}}
	if out.Count != 2 || out.Colors[0] != want[0] || out.Colors[1] != want[1] {
		t.Errorf("Colors = %+v", out.Colors)
	}

	out, err = Colors(ColorsInput{Text: "no colors here"})
	if err != nil {
		t.Fatalf("Colors failed: %v", err)
	}
	if out.Colors == nil || out.Count != 0 {
		t.Errorf("want empty non-nil slice, got %#v", out.Colors)
	}

	if _, err := Colors(ColorsInput{Limit: -1}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("err = %v, want INVALID_REQUEST", err)
	}
}

func TestSanitize(t *testing.T) {
	if got := Sanitize("Cotton twill\n---\n⸻\n").Text; got != "Cotton twill" {
		t.Errorf("Sanitize = %q", got)
	}
}

func TestFingerprint(t *testing.T) {
	out := Fingerprint(hoodie())
	if out.Fingerprint != suggest.Fingerprint(hoodie()) {
		t.Errorf("Fingerprint = %q", out.Fingerprint)
	}
	if out.Keys["raw"] != "productBreakdownRawAnswer_"+out.Fingerprint {
		t.Errorf("raw key = %q", out.Keys["raw"])
	}
	if out.Keys["market"] != "marketAnalysisParsed_"+out.Fingerprint {
		t.Errorf("market key = %q", out.Keys["market"])
	}
	if out.Canonical == "" || out.Canonical == "{}" {
		t.Errorf("Canonical = %q", out.Canonical)
	}
}
