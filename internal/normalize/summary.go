package normalize

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MaxSummaryLength is the rune length a summary is clamped to before the ellipsis.
const MaxSummaryLength = 300

// minSummaryLength rejects fragments too short to describe anything.
const minSummaryLength = 10

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CleanSummary strips markup, collapses whitespace and rejects boilerplate such as
// "Comments" or "Read more". It is idempotent.
func CleanSummary(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// Escaped markup decodes into new markup. Each pass that changes the text
	// shortens it, so decoding until nothing shrinks reaches a fixed point.
	cleaned := stripMarkup(text)
	for {
		next := stripMarkup(cleaned)
		if len(next) >= len(cleaned) {
			break
		}
		cleaned = next
	}

	lower := strings.ToLower(cleaned)
	switch {
	case lower == "comments", lower == "read more":
		return ""
	case strings.HasPrefix(lower, "comments on"):
		return ""
	case len([]rune(lower)) < minSummaryLength:
		return ""
	}
	return cleaned
}

func stripMarkup(text string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return collapse(text)
	}
	return collapse(doc.Text())
}

// Truncate clamps s to max runes, appending "..." when it was cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// CleanTitle collapses whitespace, defaulting to "Untitled".
func CleanTitle(title, fallback string) string {
	if t := collapse(stripIfMarkup(title)); t != "" {
		return t
	}
	return fallback
}

func stripIfMarkup(s string) string {
	if strings.Contains(s, "<") {
		return stripMarkup(s)
	}
	return s
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}
