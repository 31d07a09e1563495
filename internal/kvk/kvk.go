// Package kvk normalizes Dutch Chamber of Commerce (KvK) registry
// numbers and builds the registry page URLs keyed by them.
package kvk

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// DefaultBaseURL is the registry page prefix a Number is appended to.
const DefaultBaseURL = "https://opencorporates.com/companies/nl/"

// ErrInvalid reports input that does not normalize to an 8-digit number.
var ErrInvalid = errors.New("invalid kvk number")

// Number is a normalized 8-digit KvK registry number.
type Number string

// Normalize extracts the digits from raw, strips leading zeros and
// re-pads to 8 digits. Inputs whose digit form does not fit 8 digits
// are rejected. Spreadsheet exports often carry numbers as floats
// ("81234567.0"), so a trailing ".0" fraction is dropped before the
// digit scan.
func Normalize(raw string) (Number, error) {
	s := strings.TrimSpace(raw)
	if dot := strings.IndexByte(s, '.'); dot >= 0 && isZeroFraction(s[dot+1:]) {
		s = s[:dot]
	}

	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case unicode.IsLetter(r):
			// Letters mean the field holds something other than a KvK
			// number (VAT strings like "NL 12 34..."); padding whatever
			// digits remain would fabricate a plausible-looking key.
			return "", fmt.Errorf("%w: %q contains letters", ErrInvalid, raw)
		}
	}
	if digits.Len() == 0 {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalid, raw)
	}

	n, err := strconv.ParseUint(digits.String(), 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalid, raw, err)
	}

	cleaned := fmt.Sprintf("%08d", n)
	if len(cleaned) != 8 {
		return "", fmt.Errorf("%w: %q normalizes to %d digits", ErrInvalid, raw, len(cleaned))
	}
	return Number(cleaned), nil
}

// String returns the normalized digit form.
func (n Number) String() string { return string(n) }

// PageURL joins the number onto the registry base URL. An empty base
// falls back to DefaultBaseURL.
func (n Number) PageURL(base string) string {
	if base == "" {
		base = DefaultBaseURL
	}
	return base + string(n)
}

func isZeroFraction(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '0' {
			return false
		}
	}
	return true
}
