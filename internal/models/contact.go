package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 13
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ContactData is what a user leaves so an expert can reach them.
type ContactData struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	WhatsAppNumber string `json:"whatsapp_number"`
}

// ValidationError carries one message per rejected field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid contact data: " + strings.Join(parts, "; ")
}

// Normalize trims surrounding whitespace from every field.
func (c ContactData) Normalize() ContactData {
	return ContactData{
		Name:           strings.TrimSpace(c.Name),
		Email:          strings.TrimSpace(c.Email),
		WhatsAppNumber: strings.TrimSpace(c.WhatsAppNumber),
	}
}

// Validate checks required fields, email shape and phone digit count.
// It returns nil or a *ValidationError.
func (c ContactData) Validate() error {
	c = c.Normalize()
	fields := make(map[string]string)

	if c.Name == "" {
		fields["name"] = "required"
	}

	switch {
	case c.Email == "":
		fields["email"] = "required"
	case !emailPattern.MatchString(c.Email):
		fields["email"] = "invalid format"
	}

	switch digits := countDigits(c.WhatsAppNumber); {
	case c.WhatsAppNumber == "":
		fields["whatsapp_number"] = "required"
	case digits < minPhoneDigits || digits > maxPhoneDigits:
		fields["whatsapp_number"] = fmt.Sprintf("must contain between %d and %d digits", minPhoneDigits, maxPhoneDigits)
	case strings.IndexFunc(c.WhatsAppNumber, notPhoneRune) >= 0:
		fields["whatsapp_number"] = "contains invalid characters"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

func notPhoneRune(r rune) bool {
	return !unicode.IsDigit(r) && !strings.ContainsRune("+-() ", r)
}
