package booking

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// 18-digit resident ID (last char may be X) or the legacy 15-digit form.
var idNumberRe = regexp.MustCompile(`\b(?:[0-9]{17}[0-9Xx]|[0-9]{15})\b`)

// MaskIDNumber keeps the first and last four characters of an identity
// document number. Short numbers are masked entirely.
func MaskIDNumber(id string) string {
	r := []rune(id)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}

// HashIDNumber returns the hex SHA-256 of an identity number, for correlating
// log lines without exposing the number.
func HashIDNumber(id string) string {
	h := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x", h)
}

// ScrubIDNumbers masks resident ID numbers embedded in free text such as
// API error messages.
func ScrubIDNumbers(text string) string {
	return idNumberRe.ReplaceAllStringFunc(text, MaskIDNumber)
}
