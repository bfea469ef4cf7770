package phone

import (
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
	"github.com/talkincode/wamux/internal/domain"
)

const sessionPrefix = "session_"

// Normalize validates an E.164 phone number in any common notation and
// returns its digits without the leading '+'.
func Normalize(input string) (string, error) {
	var b strings.Builder
	for _, r := range input {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 7 || len(digits) > 15 || digits[0] == '0' {
		return "", domain.ErrInvalidPhoneNumber
	}
	num, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return "", domain.ErrInvalidPhoneNumber.With(err)
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", domain.ErrInvalidPhoneNumber
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}

// SessionID derives the stable tenant id from normalized digits.
func SessionID(digits string) string {
	return sessionPrefix + digits
}

// FromSessionID extracts the digits of a tenant id.
func FromSessionID(id string) (string, bool) {
	if !strings.HasPrefix(id, sessionPrefix) {
		return "", false
	}
	digits := strings.TrimPrefix(id, sessionPrefix)
	if !IsDigits(digits) {
		return "", false
	}
	return digits, true
}

// IsDigits reports whether s is a non-empty ASCII digit string.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
