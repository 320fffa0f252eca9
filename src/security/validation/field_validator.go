// backend/src/security/validation/field_validator.go
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrValidationFailed = errors.New("validation failed")

// FieldError carries a message fit for showing to the uploader.
type FieldError struct {
	msg string
}

func (e *FieldError) Error() string { return e.msg }

func (e *FieldError) Unwrap() error { return ErrValidationFailed }

func fieldError(format string, args ...any) error {
	return &FieldError{msg: fmt.Sprintf(format, args...)}
}

var (
	dateRegex     = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	timeRegex     = regexp.MustCompile(`^\d{2}:\d{2}$`)
	quantityRegex = regexp.MustCompile(`^-?\d+([,.]\d+)?$`)
	moneyRegex    = regexp.MustCompile(`^-?\d+(,\d+)?$`)
)

// --- String Validators ---

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, label string) error {
	if strings.TrimSpace(s) == "" {
		return fieldError("%s is required.", label)
	}
	return nil
}

// ValidateStringMinLength checks the UTF-8 character count of a string.
func ValidateStringMinLength(s string, minLength int, label string) error {
	if n := utf8.RuneCountInString(s); n < minLength {
		return fieldError("%s must be at least %d characters long. Value: '%s' (length: %d).", label, minLength, s, n)
	}
	return nil
}

// --- Date and Time Validators ---

// ValidateDateString checks if a string is a real calendar date in "DD-MM-YYYY" format.
func ValidateDateString(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if !dateRegex.MatchString(trimmed) {
		return time.Time{}, fieldError("Invalid date format. Expected DD-MM-YYYY format. Value: '%s'.", s)
	}
	t, err := time.Parse("02-01-2006", trimmed)
	if err != nil {
		return time.Time{}, fieldError("Invalid date format. Expected DD-MM-YYYY format. Value: '%s'.", s)
	}
	return t, nil
}

// ValidateTimeString checks a 24h "HH:MM" time.
func ValidateTimeString(s string) error {
	trimmed := strings.TrimSpace(s)
	if !timeRegex.MatchString(trimmed) {
		return fieldError("Invalid time format. Expected HH:MM format. Value: '%s'.", s)
	}
	if _, err := time.Parse("15:04", trimmed); err != nil {
		return fieldError("Invalid time format. Expected HH:MM format. Value: '%s'.", s)
	}
	return nil
}

// --- Numeric Validators ---

// ValidateQuantityString accepts signed decimals with either separator, zero included.
func ValidateQuantityString(s, label string) error {
	if !quantityRegex.MatchString(strings.TrimSpace(s)) {
		return fieldError("%s '%s' must be a valid number.", label, s)
	}
	return nil
}

// ValidateMoneyString accepts signed amounts using a comma as the decimal separator.
// what names the offending thing in the message, e.g. "format" or "price format".
func ValidateMoneyString(s, what string) error {
	if !moneyRegex.MatchString(strings.TrimSpace(s)) {
		return fieldError("Invalid %s. Expected numeric value with comma as decimal separator. Value: '%s'.", what, s)
	}
	return nil
}

// --- Specific Format Validators ---

// CurrencySet is a whitelist of upper-case ISO 4217 codes.
type CurrencySet map[string]struct{}

// NewCurrencySet builds a whitelist; codes are upper-cased and blanks ignored.
func NewCurrencySet(codes []string) CurrencySet {
	set := make(CurrencySet, len(codes))
	for _, c := range codes {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// Contains matches case-insensitively.
func (c CurrencySet) Contains(code string) bool {
	_, ok := c[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// ValidateCurrencyCode checks a code against the whitelist.
func ValidateCurrencyCode(s string, allowed CurrencySet) error {
	if !allowed.Contains(s) {
		return fieldError("Invalid currency code. Value: '%s'.", s)
	}
	return nil
}
