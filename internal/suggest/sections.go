package suggest

import (
	"regexp"
	"strings"
	"sync"
)

// headingStrategy builds the heading pattern for one way of writing a label.
// Strategies are tried in order; the first one yielding a non-empty body wins.
type headingStrategy struct {
	name  string
	build func(quoted string) string
}

// headingStrategies lists the supported heading forms, preferred first.
// The model is asked for **Label** headings, so those come first; plain labels
// cover replies that ignore the instruction.
var headingStrategies = []headingStrategy{
	{
		// **Label** or **Label:** followed by a line break
		name: "emphasis-line",
		build: func(q string) string {
			return `(?i)\*\*[ \t]*` + q + `[ \t]*:?[ \t]*\*\*[ \t]*:?[ \t]*\r?\n`
		},
	},
	{
		// **Label** with the body on the same line
		name: "emphasis-inline",
		build: func(q string) string {
			return `(?i)\*\*[ \t]*` + q + `[ \t]*:?[ \t]*\*\*[ \t]*:?[ \t]*`
		},
	},
	{
		// Label: at the start of a line, optionally as a markdown heading or
		// list item ("1. Label", "- Label")
		name: "plain-line",
		build: func(q string) string {
			return `(?im)^[ \t]*(?:#{1,6}[ \t]*|(?:[-*•]|\d+[.)])[ \t]*)?` + q + `[ \t]*:?[ \t]*\r?\n`
		},
	},
}

// sectionEnd matches the start of whatever terminates a section body:
// the next emphasized heading, a markdown heading, or a separator line.
// Matched against "\n" + body, so a terminator on the first body line counts.
var sectionEnd = regexp.MustCompile(`\n(?:\*\*|#{1,6}[ \t]|[ \t]*⸻|[ \t]*[-–—_]{3,}[ \t]*(?:\r?\n|$))`)

// headingCache holds compiled heading patterns keyed by strategy and label.
var headingCache sync.Map

// headingPattern returns the compiled pattern for strategy s and label.
func headingPattern(s headingStrategy, label string) *regexp.Regexp {
	key := s.name + "\x00" + strings.ToLower(label)
	if re, ok := headingCache.Load(key); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(s.build(regexp.QuoteMeta(label)))
	headingCache.Store(key, re)
	return re
}

// ExtractSection returns the sanitized body of the section headed by label.
// Matching is case-insensitive. Returns "" when no heading form matches or every
// match has an empty body.
func ExtractSection(text, label string) string {
	label = strings.TrimSpace(label)
	if text == "" || label == "" {
		return ""
	}

	for _, s := range headingStrategies {
		loc := headingPattern(s, label).FindStringIndex(text)
		if loc == nil {
			continue
		}
		body := sectionBody(text[loc[1]:])
		if strings.TrimSpace(body) == "" {
			continue
		}
		return Sanitize(body)
	}
	return ""
}

// ExtractFirst tries each label in order and returns the first non-empty section.
func ExtractFirst(text string, labels ...string) string {
	for _, label := range labels {
		if body := ExtractSection(text, label); body != "" {
			return body
		}
	}
	return ""
}

// sectionBody cuts rest at the first section terminator.
func sectionBody(rest string) string {
	padded := "\n" + rest
	loc := sectionEnd.FindStringIndex(padded)
	if loc == nil {
		return rest
	}
	if loc[0] == 0 {
		return ""
	}
	return padded[1:loc[0]]
}
