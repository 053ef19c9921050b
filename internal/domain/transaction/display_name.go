package transaction

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	referenceNoise = regexp.MustCompile(`(#\s*\d+|\b\d{4,}\b|\bX{2,}\d*\b)`)
	channelPrefix  = regexp.MustCompile(`(?i)^(pos|ach|debit card|dbt crd|checkcard|purchase)\s+(purchase\s+)?`)
	extraSpace     = regexp.MustCompile(`\s+`)
)

// SanitizeDisplayName turns a raw counterparty name into the name shown to
// users: card/reference numbers and channel prefixes are dropped and the
// result is title-cased. Falls back to the trimmed raw name when nothing is
// left after cleaning.
func SanitizeDisplayName(externalName string) string {
	raw := strings.TrimSpace(externalName)
	if raw == "" {
		return ""
	}

	name := channelPrefix.ReplaceAllString(raw, "")
	name = referenceNoise.ReplaceAllString(name, " ")
	name = strings.Trim(extraSpace.ReplaceAllString(name, " "), " -*")
	if name == "" {
		return raw
	}

	// Casers carry state, so one is built per call.
	return cases.Title(language.AmericanEnglish).String(strings.ToLower(name))
}
