package utils

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var labelCaser = cases.Title(language.English)

// FormatLabel turns a provider label id into a display name. System label ids
// arrive all-caps with underscores ("CATEGORY_UPDATES", "INBOX"); user labels
// keep whatever casing the user chose and pass through untouched.
func FormatLabel(label string) string {
	if label == "" {
		return ""
	}
	if !isSystemLabel(label) {
		return label
	}

	name := strings.TrimPrefix(label, "CATEGORY_")
	words := strings.Split(name, "_")
	for i, word := range words {
		words[i] = labelCaser.String(strings.ToLower(word))
	}
	return strings.Join(words, " ")
}

// FormatLabels formats every label in the slice for display
func FormatLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	result := make([]string, len(labels))
	for i, label := range labels {
		result[i] = FormatLabel(label)
	}
	return result
}

func isSystemLabel(label string) bool {
	for _, r := range label {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
