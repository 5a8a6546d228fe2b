package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Locales the transcription backends accept, in matcher preference order.
// The matcher resolves bare language codes ("en") and close variants
// ("en-GB") to the nearest supported locale.
var supported = []language.Tag{
	language.MustParse("en-US"),
	language.MustParse("en-GB"),
	language.MustParse("es-ES"),
	language.MustParse("fr-FR"),
	language.MustParse("de-DE"),
	language.MustParse("it-IT"),
	language.MustParse("pt-BR"),
	language.MustParse("ja-JP"),
	language.MustParse("ko-KR"),
	language.MustParse("zh-CN"),
	language.MustParse("ru-RU"),
	language.MustParse("ar-SA"),
	language.MustParse("hi-IN"),
	language.MustParse("nl-NL"),
	language.MustParse("pl-PL"),
	language.MustParse("sv-SE"),
	language.MustParse("da-DK"),
	language.MustParse("nb-NO"),
	language.MustParse("fi-FI"),
}

var matcher = language.NewMatcher(supported)

// Word forms users type instead of codes.
var wordForms = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "nb",
	"finnish":    "fi",
}

// Canonical resolves user input ("en", "en-GB", "english") to the nearest
// supported locale tag like "en-US". Unrecognized input returns the empty
// string.
func Canonical(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if code, ok := wordForms[strings.ToLower(trimmed)]; ok {
		trimmed = code
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return ""
	}
	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return ""
	}
	return supported[index].String()
}

// NormalizeCandidates canonicalizes and deduplicates a candidate language
// list, dropping anything unrecognized.
func NormalizeCandidates(inputs []string) []string {
	if len(inputs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(inputs))
	out := make([]string, 0, len(inputs))
	for _, input := range inputs {
		canonical := Canonical(input)
		if canonical == "" {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Display returns a human-readable English name for a locale tag, or the
// input unchanged when it cannot be parsed.
func Display(tag string) string {
	parsed, err := language.Parse(strings.TrimSpace(tag))
	if err != nil {
		return tag
	}
	return display.English.Languages().Name(parsed)
}
