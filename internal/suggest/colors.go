package suggest

import (
	"fmt"
	"regexp"
	"strings"
)

// paletteLabel is the heading the palette section is requested under.
const paletteLabel = "Color Palette with HEX Codes"

// Color is one named swatch. Hex is always "#" followed by six uppercase hex digits.
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// colorPattern is one way a reply may pair a color name with its hex code.
type colorPattern struct {
	re   *regexp.Regexp
	name int // submatch index of the name
	hex  int // submatch index of the hex digits
}

// colorPatterns are tried in order; the first one with any match wins.
var colorPatterns = []colorPattern{
	// Midnight Blue (#1A2B3C)
	{regexp.MustCompile(`([a-zA-Z\s]+)\s*\(#?([0-9A-Fa-f]{6})\)`), 1, 2},
	// - Midnight Blue - HEX Code #1A2B3C / 1. Midnight Blue: #1A2B3C
	{regexp.MustCompile(`(?i)(?:[-*•]\s*|\d+\.\s*)([a-zA-Z\s]+)\s*[-:]\s*(?:HEX Code\s*:?\s*)?#?([0-9A-Fa-f]{6})`), 1, 2},
	// Midnight Blue: #1A2B3C / Midnight Blue #1A2B3C
	{regexp.MustCompile(`([a-zA-Z\s]+)[\s:]\s*#?([0-9A-Fa-f]{6})`), 1, 2},
	// #1A2B3C Midnight Blue / #1A2B3C: Midnight Blue
	{regexp.MustCompile(`#?([0-9A-Fa-f]{6})[\s:]+([a-zA-Z\s]+)`), 2, 1},
}

var (
	// bareHexPattern finds hex codes with no usable name.
	bareHexPattern = regexp.MustCompile(`#?\b([0-9A-Fa-f]{6})\b`)

	// hexDigits validates a six digit hex code without the leading '#'.
	hexDigits = regexp.MustCompile(`^[0-9A-Fa-f]{6}$`)

	// paletteLeadIn catches prose introductions to a color list so they are
	// treated as a palette heading.
	paletteLeadIn = regexp.MustCompile(`(?i)(in colors such as|the following are shades of[^:\n]*):`)
)

// NormalizeHex returns "#" plus the uppercased digits of a six digit hex code,
// with or without a leading '#'. ok is false for anything else.
func NormalizeHex(s string) (hex string, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if !hexDigits.MatchString(s) {
		return "", false
	}
	return "#" + strings.ToUpper(s), true
}

// ExtractColors returns the named hex colors in text, in order of appearance.
// When text holds a palette section only that section is scanned.
// Returns an empty, non-nil slice when no color is found.
func ExtractColors(text string) []Color {
	region := paletteRegion(text)

	for _, p := range colorPatterns {
		matches := p.re.FindAllStringSubmatch(region, -1)
		if len(matches) == 0 {
			continue
		}
		colors := make([]Color, 0, len(matches))
		for _, m := range matches {
			hex, ok := NormalizeHex(m[p.hex])
			if !ok {
				continue
			}
			name := colorName(m[p.name])
			if name == "" {
				name = fmt.Sprintf("Color %d", len(colors)+1)
			}
			colors = append(colors, Color{Name: name, Hex: hex})
		}
		return colors
	}

	matches := bareHexPattern.FindAllStringSubmatch(region, -1)
	colors := make([]Color, 0, len(matches))
	for i, m := range matches {
		hex, _ := NormalizeHex(m[1])
		colors = append(colors, Color{Name: fmt.Sprintf("Color %d", i+1), Hex: hex})
	}
	return colors
}

// paletteRegion returns the palette section body when present, else text.
func paletteRegion(text string) string {
	rewritten := paletteLeadIn.ReplaceAllLiteralString(text, "**"+paletteLabel+"**\n")
	if section := ExtractSection(rewritten, paletteLabel); section != "" {
		return section
	}
	return text
}

// colorName trims a captured name; multi-line captures keep their last line.
func colorName(raw string) string {
	name := strings.TrimSpace(raw)
	if i := strings.LastIndexAny(name, "\r\n"); i >= 0 {
		name = strings.TrimSpace(name[i+1:])
	}
	return name
}
