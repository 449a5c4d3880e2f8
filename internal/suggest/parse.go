package suggest

// Parse extracts every known section from a raw breakdown reply.
// It never fails; sections that are not found are left empty.
func Parse(raw string) Record {
	return ParseKeys(raw, Keys()...)
}

// ParseKeys extracts only the given sections from raw. Unknown keys are ignored.
func ParseKeys(raw string, keys ...SectionKey) Record {
	var rec Record
	if raw == "" {
		return rec
	}
	for _, key := range keys {
		rec.Set(key, ExtractFirst(raw, Labels(key)...))
	}
	return rec
}
