// Package validate implements per-field cleaning and validation for scraped
// school records. Every function is total and idempotent: bad input passes
// through or reports false, it never panics.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
)

// ErrEmptyName signals that a record has no usable name after cleaning.
// It is the only condition that fails entity-level validation outright.
var ErrEmptyName = errors.New("school name is empty after cleaning")

var (
	nonDigitRe   = regexp.MustCompile(`\D`)
	namePrefixRe = regexp.MustCompile(`(?i)^(Rijschool|Autorijschool|Verkeersschool)\s+`)
	emailRe      = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	urlRe        = regexp.MustCompile(`(?i)^https?://` +
		`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|` +
		`localhost|` +
		`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
		`(?::\d+)?` +
		`(?:/?|[/?]\S+)$`)
)

// Dutch area codes that appear in the national 10-digit form.
var areaPrefixes = []string{"020", "030", "040", "050", "070", "010"}

// NormalizePhone reformats recognized Dutch numbers into the canonical
// grouped "+31 ..." representation. Shapes it does not recognize pass
// through unchanged, which makes the function idempotent.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	digits := nonDigitRe.ReplaceAllString(phone, "")

	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "06"):
		return fmt.Sprintf("+31 6 %s %s %s %s", digits[2:4], digits[4:6], digits[6:8], digits[8:])
	case len(digits) == 10 && hasAreaPrefix(digits):
		area := digits[:3]
		number := digits[3:]
		return fmt.Sprintf("+31 %s %s %s", area[1:], number[:3], number[3:])
	case len(digits) == 11 && strings.HasPrefix(digits, "316"):
		return fmt.Sprintf("+31 6 %s %s %s %s", digits[3:5], digits[5:7], digits[7:9], digits[9:])
	case len(digits) == 12 && strings.HasPrefix(digits, "31"):
		if digits[2] == '6' {
			return fmt.Sprintf("+31 6 %s %s %s %s", digits[4:6], digits[6:8], digits[8:10], digits[10:])
		}
		area := digits[2:5]
		if isTwoDigitArea(digits[2:4]) {
			area = digits[2:4]
		}
		rest := digits[len(area)+2:]
		return fmt.Sprintf("+31 %s %s %s", area, rest[:3], rest[3:])
	}
	return phone
}

// ValidPhone reports whether the value looks like a Dutch phone number:
// 10 national digits with a mobile or known area prefix, or the +31
// international forms. An empty value is invalid.
func ValidPhone(phone string) bool {
	if phone == "" {
		return false
	}
	digits := nonDigitRe.ReplaceAllString(phone, "")
	switch len(digits) {
	case 10:
		return strings.HasPrefix(digits, "06") || hasAreaPrefix(digits)
	case 11:
		return strings.HasPrefix(digits, "316")
	case 12:
		return strings.HasPrefix(digits, "31")
	}
	return false
}

// ValidEmail reports whether the value is shaped like an email address.
func ValidEmail(email string) bool {
	return email != "" && emailRe.MatchString(email)
}

// ValidURL reports whether the value is an absolute http(s) URL.
func ValidURL(raw string) bool {
	return raw != "" && urlRe.MatchString(raw)
}

// ValidRating reports whether a rating is within [0,5]. Absence is valid.
func ValidRating(rating *float64) bool {
	if rating == nil {
		return true
	}
	return *rating >= 0 && *rating <= 5
}

// ValidSuccessRate reports whether a slagingspercentage is within [0,100].
// Absence is valid.
func ValidSuccessRate(rate *int) bool {
	if rate == nil {
		return true
	}
	return *rate >= 0 && *rate <= 100
}

// CleanName collapses whitespace and strips the generic business-type
// prefixes so that different sources' naming conventions converge.
func CleanName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	name = namePrefixRe.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

// CleanAddress collapses whitespace and title-cases each token.
func CleanAddress(address string) string {
	words := strings.Fields(address)
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

// Validator applies the entity-level cleaning pass. Invalid enrichment
// fields are cleared and logged rather than failing the record.
type Validator struct {
	logger *zap.Logger
}

// New builds a Validator. A nil logger falls back to a no-op.
func New(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// Apply cleans and validates a record in place. It returns ErrEmptyName if
// the name is empty after cleaning; every other problem clears the
// offending field and keeps the record.
func (v *Validator) Apply(s *school.School) error {
	s.Name = CleanName(s.Name)
	if s.Name == "" {
		return ErrEmptyName
	}
	s.Address = CleanAddress(s.Address)

	if s.Phone != "" {
		if !ValidPhone(s.Phone) {
			v.logger.Warn("clearing invalid phone", zap.String("school", s.Name), zap.String("phone", s.Phone))
			s.Phone = ""
		} else {
			s.Phone = NormalizePhone(s.Phone)
		}
	}
	if s.Email != "" && !ValidEmail(s.Email) {
		v.logger.Warn("clearing invalid email", zap.String("school", s.Name), zap.String("email", s.Email))
		s.Email = ""
	}
	if s.Website != "" && !strings.HasPrefix(s.Website, "http://") && !strings.HasPrefix(s.Website, "https://") {
		s.Website = "https://" + s.Website
	}
	if s.Website != "" && !ValidURL(s.Website) {
		v.logger.Warn("clearing invalid website", zap.String("school", s.Name), zap.String("website", s.Website))
		s.Website = ""
	}
	if !ValidRating(s.Rating) {
		v.logger.Warn("clearing out-of-range rating", zap.String("school", s.Name), zap.Float64p("rating", s.Rating))
		s.Rating = nil
	}
	if !ValidSuccessRate(s.SuccessRate) {
		v.logger.Warn("clearing out-of-range success rate", zap.String("school", s.Name), zap.Intp("success_rate", s.SuccessRate))
		s.SuccessRate = nil
	}
	return nil
}

func hasAreaPrefix(digits string) bool {
	for _, p := range areaPrefixes {
		if strings.HasPrefix(digits, p) {
			return true
		}
	}
	return false
}

func isTwoDigitArea(s string) bool {
	switch s {
	case "20", "30", "40", "50", "70", "10":
		return true
	}
	return false
}

func capitalize(w string) string {
	runes := []rune(strings.ToLower(w))
	if len(runes) == 0 {
		return w
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
