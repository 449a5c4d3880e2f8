package ops

import (
	"fmt"
	"strings"

	"github.com/formdepartment/capsule/internal/cache"
	"github.com/formdepartment/capsule/internal/errors"
	"github.com/formdepartment/capsule/internal/suggest"
)

// The operations below need neither the cache nor the generator.

// ParseInput contains parameters for the Parse operation.
type ParseInput struct {
	Text string
	Keys []string // optional subset of section keys; default all
}

// ParseOutput contains the result of the Parse operation.
type ParseOutput struct {
	Sections suggest.Record `json:"sections"`
	Found    int            `json:"found"`
}

// Parse extracts the known sections from a model reply.
func Parse(input ParseInput) (*ParseOutput, error) {
	keys, err := ResolveKeys(input.Keys)
	if err != nil {
		return nil, err
	}

	rec := suggest.ParseKeys(input.Text, keys...)
	found := 0
	for _, k := range keys {
		if rec.Get(k) != "" {
			found++
		}
	}
	return &ParseOutput{Sections: rec, Found: found}, nil
}

// ResolveKeys validates section key names. Empty means all keys.
func ResolveKeys(names []string) ([]suggest.SectionKey, error) {
	if len(names) == 0 {
		return suggest.Keys(), nil
	}
	keys := make([]suggest.SectionKey, 0, len(names))
	for _, n := range names {
		k := suggest.SectionKey(strings.TrimSpace(n))
		if !suggest.IsKnownKey(k) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown section key %q", n))
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// SectionInput contains parameters for the Section operation. Exactly one of
// Label or Key is set.
type SectionInput struct {
	Text  string
	Label string
	Key   string
}

// SectionOutput contains the result of the Section operation.
type SectionOutput struct {
	Label string `json:"label"`
	Body  string `json:"body"`
	Found bool   `json:"found"`
}

// Section extracts one section by label, or by key using the key's spellings.
func Section(input SectionInput) (*SectionOutput, error) {
	label := strings.TrimSpace(input.Label)
	key := strings.TrimSpace(input.Key)

	switch {
	case label != "" && key != "":
		return nil, errors.NewInvalidRequest("specify label or key, not both")
	case label != "":
		body := suggest.ExtractSection(input.Text, label)
		return &SectionOutput{Label: label, Body: body, Found: body != ""}, nil
	case key != "":
		k := suggest.SectionKey(key)
		if !suggest.IsKnownKey(k) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown section key %q", key))
		}
		body := suggest.ExtractFirst(input.Text, suggest.Labels(k)...)
		return &SectionOutput{Label: suggest.Title(k), Body: body, Found: body != ""}, nil
	}
	return nil, errors.NewInvalidRequest("label or key is required")
}

// ColorsInput contains parameters for the Colors operation.
type ColorsInput struct {
	Text  string
	Limit int // 0 means no limit
}

// ColorsOutput contains the result of the Colors operation.
type ColorsOutput struct {
	Colors []suggest.Color `json:"colors"`
	Count  int             `json:"count"`
}

// Colors extracts the named hex colors from text.
func Colors(input ColorsInput) (*ColorsOutput, error) {
	if input.Limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}
	colors := suggest.ExtractColors(input.Text)
	if input.Limit > 0 && len(colors) > input.Limit {
		colors = colors[:input.Limit]
	}
	return &ColorsOutput{Colors: colors, Count: len(colors)}, nil
}

// SanitizeOutput contains the result of the Sanitize operation.
type SanitizeOutput struct {
	Text string `json:"text"`
}

// Sanitize strips separator artifacts from text.
func Sanitize(text string) *SanitizeOutput {
	return &SanitizeOutput{Text: suggest.Sanitize(text)}
}

// FingerprintOutput contains the result of the Fingerprint operation.
type FingerprintOutput struct {
	Fingerprint string            `json:"fingerprint"`
	Canonical   string            `json:"canonical"`
	Keys        map[string]string `json:"keys"`
}

// Fingerprint returns the cache fingerprint of params and the store keys it
// addresses.
func Fingerprint(p suggest.Params) *FingerprintOutput {
	fp := suggest.Fingerprint(p)
	return &FingerprintOutput{
		Fingerprint: fp,
		Canonical:   p.Canonical(),
		Keys: map[string]string{
			"raw":       cache.Key(cache.KindRawAnswer, fp),
			"breakdown": cache.Key(cache.KindBreakdown, fp),
			"market":    cache.Key(cache.KindMarket, fp),
		},
	}
}
