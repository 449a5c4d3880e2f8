package suggest

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Params is everything the wizard collects about one product.
// Two Params with equal values always share a fingerprint.
type Params struct {
	Idea                    string            `json:"idea,omitempty"`
	BrandReference          string            `json:"brand_reference,omitempty"`
	ProductType             string            `json:"product_type,omitempty"`
	TargetPrice             string            `json:"target_price,omitempty"`
	Quantity                string            `json:"quantity,omitempty"`
	Category                string            `json:"category,omitempty"`
	KeyFeatures             string            `json:"key_features,omitempty"`
	MaterialPreference      string            `json:"material_preference,omitempty"`
	ManufacturingPreference []string          `json:"manufacturing_preference,omitempty"`
	Answers                 map[string]string `json:"answers,omitempty"`
}

// Manufacturing preference values offered by the wizard.
const (
	ManufacturingUSA           = "usa"
	ManufacturingInternational = "international"
)

// IsEmpty reports whether no product parameter was supplied.
func (p Params) IsEmpty() bool {
	return p.Canonical() == "{}"
}

// Canonical returns the serialization the fingerprint is computed over.
// Field order is fixed by the struct, manufacturing preferences are sorted and
// answer keys are sorted by encoding/json.
func (p Params) Canonical() string {
	c := p
	c.Idea = strings.TrimSpace(p.Idea)
	c.BrandReference = strings.TrimSpace(p.BrandReference)
	c.ProductType = strings.TrimSpace(p.ProductType)
	c.TargetPrice = strings.TrimSpace(p.TargetPrice)
	c.Quantity = strings.TrimSpace(p.Quantity)
	c.Category = strings.TrimSpace(p.Category)
	c.KeyFeatures = strings.TrimSpace(p.KeyFeatures)
	c.MaterialPreference = strings.TrimSpace(p.MaterialPreference)
	if len(p.ManufacturingPreference) > 0 {
		c.ManufacturingPreference = slices.Clone(p.ManufacturingPreference)
		slices.Sort(c.ManufacturingPreference)
	}

	// Only strings, a string slice and a string map: Marshal cannot fail.
	b, _ := json.Marshal(c)
	return string(b)
}

// Fingerprint returns a short deterministic key for p.
func Fingerprint(p Params) string {
	return strconv.FormatUint(xxhash.Sum64String(p.Canonical()), 36)
}
