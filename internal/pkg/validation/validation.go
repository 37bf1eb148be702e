package validation

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Display names: letters, digits, spaces, hyphens, apostrophes and dots.
var displayNameRe = regexp.MustCompile(`^[\p{L}\d\s\-'.]+$`)

var (
	ErrNotANumber   = errors.New("must be a number")
	ErrNotFinite    = errors.New("must be a finite number")
	ErrNotPositive  = errors.New("must be greater than zero")
	ErrMissingValue = errors.New("is required")
)

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

// IsValidPassword requires at least 8 characters with a letter, a digit and a symbol.
func IsValidPassword(password string) bool {
	if len(password) < 8 {
		return false
	}
	hasLetter, hasDigit, hasSpecial := false, false, false
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	return hasLetter && hasDigit && hasSpecial
}

func IsValidDisplayName(name string) bool {
	return strings.TrimSpace(name) != "" && len(name) <= 80 && displayNameRe.MatchString(name)
}

// ParseNumber accepts a JSON number or a numeric string (form fields arrive as text)
// and rejects anything that is not a finite float.
func ParseNumber(v interface{}) (float64, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, ErrMissingValue
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, ErrNotANumber
		}
		f = parsed
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, ErrMissingValue
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, ErrNotANumber
		}
		f = parsed
	default:
		return 0, ErrNotANumber
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, ErrNotFinite
	}
	return f, nil
}

// ParsePositive is ParseNumber plus a > 0 check.
func ParsePositive(v interface{}) (float64, error) {
	f, err := ParseNumber(v)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, ErrNotPositive
	}
	return f, nil
}
