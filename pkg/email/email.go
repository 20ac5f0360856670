// Package email holds presentation helpers for outbound messages addressed
// by email.
package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail guesses a first and last name from the local part,
// splitting on '.', '_', '-' and '+'. Missing parts come back as "User".
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

// Greeting renders the salutation line used at the top of notifications.
func Greeting(address string) string {
	first, _ := DeriveNameFromEmail(address)
	if first == "User" {
		return "Hello,"
	}
	return "Hello " + first + ","
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
