package suggest

// SectionKey identifies one section of a product breakdown reply.
type SectionKey string

const (
	KeyMaterials        SectionKey = "materials"
	KeyColorPalette     SectionKey = "colorPalette"
	KeySalePrice        SectionKey = "salePrice"
	KeyProductionCost   SectionKey = "productionCost"
	KeyCompanionItems   SectionKey = "companionItems"
	KeyYieldConsumption SectionKey = "yieldConsumption"
	KeyLeadTime         SectionKey = "leadTime"
	KeyMarketExamples   SectionKey = "marketExamples"
	KeyTargetInsight    SectionKey = "targetInsight"
	KeyMarginAnalysis   SectionKey = "marginAnalysis"
	KeyPricing          SectionKey = "pricing"
)

// sectionSpec pairs a key with the heading spellings the model is known to use.
// Labels are tried in order; the first non-empty extraction wins.
type sectionSpec struct {
	key    SectionKey
	labels []string
}

// sectionSpecs lists every known section in display order.
var sectionSpecs = []sectionSpec{
	{KeyMaterials, []string{"Materials", "Suggested Materials", "Suggested Fabrics"}},
	{KeyColorPalette, []string{"Color Palette with HEX Codes", "Color Palette"}},
	{KeySalePrice, []string{"Suggested Sale Price", "Sale Price"}},
	{KeyProductionCost, []string{"Estimated Production Cost", "Production Cost"}},
	{KeyCompanionItems, []string{"Companion Items", "Suggested Items"}},
	{KeyYieldConsumption, []string{"Yield & Consumption", "Yield and Consumption"}},
	{KeyLeadTime, []string{"Production Lead Time", "Lead Time"}},
	{KeyMarketExamples, []string{"Comparable Market Examples"}},
	{KeyTargetInsight, []string{"Target Consumer Insight"}},
	{KeyMarginAnalysis, []string{"Margin Analysis"}},
	{KeyPricing, []string{"Wholesale vs. DTC Pricing", "Wholesale vs DTC Pricing", "Wholesale vs DTC"}},
}

// BreakdownKeys are the sections shown on the product breakdown screen.
var BreakdownKeys = []SectionKey{
	KeyMaterials,
	KeyColorPalette,
	KeySalePrice,
	KeyProductionCost,
	KeyCompanionItems,
	KeyYieldConsumption,
	KeyLeadTime,
}

// MarketKeys are the sections shown on the market and financial analysis screen.
var MarketKeys = []SectionKey{
	KeyMarketExamples,
	KeyTargetInsight,
	KeyMarginAnalysis,
	KeyPricing,
}

// Keys returns every known section key in display order.
func Keys() []SectionKey {
	keys := make([]SectionKey, len(sectionSpecs))
	for i, s := range sectionSpecs {
		keys[i] = s.key
	}
	return keys
}

// Labels returns the heading spellings for key, or nil for an unknown key.
func Labels(key SectionKey) []string {
	for _, s := range sectionSpecs {
		if s.key == key {
			return s.labels
		}
	}
	return nil
}

// Title returns the display heading for key (its preferred label).
func Title(key SectionKey) string {
	labels := Labels(key)
	if len(labels) == 0 {
		return string(key)
	}
	return labels[0]
}

// IsKnownKey reports whether key names a known section.
func IsKnownKey(key SectionKey) bool {
	return Labels(key) != nil
}

// Record is the structured form of one breakdown reply.
// Every field is always serialized; a missing section is the empty string.
type Record struct {
	Materials        string `json:"materials"`
	ColorPalette     string `json:"colorPalette"`
	SalePrice        string `json:"salePrice"`
	ProductionCost   string `json:"productionCost"`
	CompanionItems   string `json:"companionItems"`
	YieldConsumption string `json:"yieldConsumption"`
	LeadTime         string `json:"leadTime"`
	MarketExamples   string `json:"marketExamples"`
	TargetInsight    string `json:"targetInsight"`
	MarginAnalysis   string `json:"marginAnalysis"`
	Pricing          string `json:"pricing"`
}

// field returns a pointer to the field backing key, or nil for an unknown key.
func (r *Record) field(key SectionKey) *string {
	switch key {
	case KeyMaterials:
		return &r.Materials
	case KeyColorPalette:
		return &r.ColorPalette
	case KeySalePrice:
		return &r.SalePrice
	case KeyProductionCost:
		return &r.ProductionCost
	case KeyCompanionItems:
		return &r.CompanionItems
	case KeyYieldConsumption:
		return &r.YieldConsumption
	case KeyLeadTime:
		return &r.LeadTime
	case KeyMarketExamples:
		return &r.MarketExamples
	case KeyTargetInsight:
		return &r.TargetInsight
	case KeyMarginAnalysis:
		return &r.MarginAnalysis
	case KeyPricing:
		return &r.Pricing
	}
	return nil
}

// Get returns the body stored for key.
func (r Record) Get(key SectionKey) string {
	if f := r.field(key); f != nil {
		return *f
	}
	return ""
}

// Set stores body under key. Unknown keys are ignored.
func (r *Record) Set(key SectionKey, body string) {
	if f := r.field(key); f != nil {
		*f = body
	}
}

// HasAny reports whether any of keys has a non-empty body.
func (r Record) HasAny(keys ...SectionKey) bool {
	for _, k := range keys {
		if r.Get(k) != "" {
			return true
		}
	}
	return false
}

// Entry is one section of a record, ready for display.
type Entry struct {
	Key   SectionKey `json:"key"`
	Title string     `json:"title"`
	Body  string     `json:"body"`
}

// Entries returns the sections for keys in the given order, empty bodies included.
func (r Record) Entries(keys ...SectionKey) []Entry {
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Title: Title(k), Body: r.Get(k)})
	}
	return entries
}
