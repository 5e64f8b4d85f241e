package content

import (
	"regexp"
	"strings"

	"neonchat/internal/models"

	"github.com/microcosm-cc/bluemonday"
)

const (
	minPasswordLen = 6
	phonePrefix    = "+998"
)

var (
	policy     = bluemonday.StrictPolicy()
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Sanitize strips all HTML from user-supplied text (message bodies,
// display names) before it reaches either store.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// ValidateEmail checks the rough shape of an email address. Real
// deliverability is the credential service's problem.
func ValidateEmail(email string) error {
	if email == "" {
		return &models.ValidationError{Field: "email", Reason: "required"}
	}
	if !emailRegex.MatchString(email) {
		return &models.ValidationError{Field: "email", Reason: "not a valid address"}
	}
	return nil
}

// ValidatePassword enforces the minimum length.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return &models.ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	return nil
}

// ValidatePhone requires the fixed country-code prefix.
func ValidatePhone(phone string) error {
	if phone == "" {
		return &models.ValidationError{Field: "phone", Reason: "required"}
	}
	if !strings.HasPrefix(phone, phonePrefix) {
		return &models.ValidationError{Field: "phone", Reason: "must start with " + phonePrefix}
	}
	return nil
}
