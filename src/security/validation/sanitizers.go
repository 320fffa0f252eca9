// backend/src/validation/sanitizers.go
package validation

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// Definition of strict sanitization policy
	strictHTMLPolicy *bluemonday.Policy
)

func init() {
	// Initialize strict policy once at startup
	strictHTMLPolicy = bluemonday.StrictPolicy() // Removes all HTML tags
}

// SanitizeText removes all HTML tags and attributes from an input string,
// preventing XSS before saving to the database.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// StripUnprintable removes non-printable characters, allowing common whitespace
// like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1 // Drop the rune
	}, s)
}

// CleanFreeText prepares stored broker free text (product names, references, venues) for display.
// Markup is dropped but entities such as "&" in "S&P 500" survive as plain text.
func CleanFreeText(s string) string {
	return strings.TrimSpace(StripUnprintable(html.UnescapeString(SanitizeText(s))))
}
