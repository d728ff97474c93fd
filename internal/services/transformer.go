package services

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"multi-org-integration-platform/internal/models"

	"golang.org/x/text/unicode/norm"
)

// TransformFunc converts one field value. Implementations never fail: malformed
// input is returned unchanged.
type TransformFunc func(value interface{}) interface{}

// Transformer dispatches transformation rules to their value functions
type Transformer struct {
	funcs map[models.TransformationRule]TransformFunc
}

// NewTransformer creates a transformer with the built-in rule table
func NewTransformer() *Transformer {
	return &Transformer{
		funcs: map[models.TransformationRule]TransformFunc{
			models.TransformDirect:   Direct,
			models.TransformPhone:    FormatPhone,
			models.TransformEmail:    NormalizeEmail,
			models.TransformDate:     FormatDate,
			models.TransformCurrency: FormatCurrency,
			models.TransformName:     NormalizeName,
		},
	}
}

// Apply runs the function registered for rule. An empty rule is treated as direct.
func (t *Transformer) Apply(rule models.TransformationRule, value interface{}) (interface{}, error) {
	if rule == "" {
		rule = models.TransformDirect
	}
	fn, ok := t.funcs[rule]
	if !ok {
		return value, &TransformError{Rule: string(rule), Value: value, Err: errors.New("unknown transformation rule")}
	}
	return fn(value), nil
}

// Direct returns the value unchanged
func Direct(value interface{}) interface{} {
	return value
}

// FormatPhone formats 10 digit numbers as (XXX) XXX-XXXX and 11 digit numbers
// with a leading 1 as +1 (XXX) XXX-XXXX
func FormatPhone(value interface{}) interface{} {
	s, ok := scalarString(value)
	if !ok {
		return value
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	switch {
	case len(digits) == 10:
		return "(" + digits[0:3] + ") " + digits[3:6] + "-" + digits[6:10]
	case len(digits) == 11 && digits[0] == '1':
		return "+1 (" + digits[1:4] + ") " + digits[4:7] + "-" + digits[7:11]
	}
	return value
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	return strings.ToLower(strings.TrimSpace(s))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// parseDate parses the date formats the connectors are known to emit
func parseDate(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(value interface{}) interface{} {
	t, ok := parseDate(value)
	if !ok {
		return value
	}
	return t.Format("2006-01-02")
}

// FormatCurrency rounds an amount half-up to two decimal places
func FormatCurrency(value interface{}) interface{} {
	f, ok := toFloat(value)
	if !ok {
		if s, isString := value.(string); isString {
			cleaned := strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", "")
			parsed, err := strconv.ParseFloat(cleaned, 64)
			if err != nil {
				return value
			}
			f = parsed
		} else {
			return value
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return value
	}
	return roundCents(f)
}

// roundCents rounds half away from zero on the amount's shortest decimal form,
// so 1.005 becomes 1.01 even though its binary value sits just below
func roundCents(f float64) float64 {
	digits := strconv.FormatFloat(math.Abs(f), 'f', -1, 64)
	whole, frac, found := strings.Cut(digits, ".")
	if !found || len(frac) <= 2 {
		return f
	}

	cents, err := strconv.ParseInt(whole+frac[:2], 10, 64)
	if err != nil {
		return math.Round(f*100) / 100
	}
	if frac[2] >= '5' {
		cents++
	}

	rounded := float64(cents) / 100
	if f < 0 {
		return -rounded
	}
	return rounded
}

// NormalizeName trims a name and collapses internal whitespace runs
func NormalizeName(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	return strings.Join(strings.FieldsFunc(norm.NFC.String(s), unicode.IsSpace), " ")
}

// scalarString renders strings and integral numbers as text
func scalarString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}

// toFloat converts numeric values to float64
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
