package suggest

import (
	"regexp"
	"strings"
)

// separatorGlyph is the three-em dash the model likes to put between sections.
const separatorGlyph = "⸻"

var (
	// separatorLinePattern matches a whole line of dashes or underscores, newline included.
	separatorLinePattern = regexp.MustCompile(`(?m)^[ \t]*[-–—_]+[ \t]*(?:\n|\z)`)

	// trailingRulePattern matches trailing lines made only of dashes, underscores or blanks.
	trailingRulePattern = regexp.MustCompile(`(?:(?:^|\n)[-–—_ \t]*)+$`)

	// trailingDashPattern matches a dash/whitespace run at the very end of the text.
	trailingDashPattern = regexp.MustCompile(`[-–—\s]+$`)
)

// Sanitize strips separator artifacts from a section body and trims it.
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(text string) string {
	// Each pass only deletes text, so repeating until nothing changes terminates.
	for {
		next := sanitizePass(text)
		if next == text {
			return next
		}
		text = next
	}
}

func sanitizePass(text string) string {
	text = strings.ReplaceAll(text, separatorGlyph, "")
	text = separatorLinePattern.ReplaceAllString(text, "")
	text = trailingRulePattern.ReplaceAllString(text, "")
	text = trailingDashPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
