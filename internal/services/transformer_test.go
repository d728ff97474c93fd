package services

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-org-integration-platform/internal/models"
)

func TestTransformer_Apply(t *testing.T) {
	transformer := NewTransformer()

	tests := []struct {
		name     string
		rule     models.TransformationRule
		input    interface{}
		expected interface{}
	}{
		{"direct passes value through", models.TransformDirect, "As Is", "As Is"},
		{"empty rule is direct", "", 42, 42},
		{"ten digit phone", models.TransformPhone, "5551234567", "(555) 123-4567"},
		{"punctuated phone", models.TransformPhone, "555.123.4567", "(555) 123-4567"},
		{"eleven digit phone with country code", models.TransformPhone, "1-555-123-4567", "+1 (555) 123-4567"},
		{"short phone unchanged", models.TransformPhone, "12345", "12345"},
		{"numeric phone", models.TransformPhone, int64(5551234567), "(555) 123-4567"},
		{"email lowercased and trimmed", models.TransformEmail, "  John.Doe@Example.COM ", "john.doe@example.com"},
		{"non-string email unchanged", models.TransformEmail, 12, 12},
		{"iso timestamp to date", models.TransformDate, "2024-03-15T10:30:00Z", "2024-03-15"},
		{"us date to date", models.TransformDate, "03/15/2024", "2024-03-15"},
		{"time value to date", models.TransformDate, time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC), "2024-03-15"},
		{"unparseable date unchanged", models.TransformDate, "someday", "someday"},
		{"currency rounds half up", models.TransformCurrency, "19.999", 20.0},
		{"currency strips symbol and separators", models.TransformCurrency, "$1,234.5", 1234.5},
		{"numeric currency", models.TransformCurrency, 10.004, 10.0},
		{"currency half cent rounds up", models.TransformCurrency, "1.005", 1.01},
		{"numeric half cent rounds up", models.TransformCurrency, 2.675, 2.68},
		{"negative currency rounds away from zero", models.TransformCurrency, -1.005, -1.01},
		{"integer currency", models.TransformCurrency, 7, 7.0},
		{"non-numeric currency unchanged", models.TransformCurrency, "abc", "abc"},
		{"name whitespace collapsed", models.TransformName, "  Ada   \t Lovelace ", "Ada Lovelace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := transformer.Apply(tt.rule, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTransformer_UnknownRule(t *testing.T) {
	result, err := NewTransformer().Apply("uppercase", "value")

	var transformErr *TransformError
	require.ErrorAs(t, err, &transformErr)
	assert.Equal(t, "uppercase", transformErr.Rule)
	assert.Equal(t, "value", result)
}

var nameFragments = []string{"Ada", "Lovelace", " ", "\t", "\n", "e\u0301", "José"}

func TestTransformer_Properties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("email normalisation is idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizeEmail(s)
			return NormalizeEmail(once) == once
		},
		gen.AlphaString(),
	))

	properties.Property("name normalisation is idempotent", prop.ForAll(
		func(s string) bool {
			once := NormalizeName(s)
			return NormalizeName(once) == once
		},
		gen.SliceOf(gen.IntRange(0, len(nameFragments)-1)).Map(func(picks []int) string {
			var b strings.Builder
			for _, i := range picks {
				b.WriteString(nameFragments[i])
			}
			return b.String()
		}),
	))

	properties.Property("currency rounding moves an amount by at most half a cent", prop.ForAll(
		func(mills int64) bool {
			amount := float64(mills) / 1000
			rounded := FormatCurrency(amount).(float64)
			diff := rounded - amount
			return diff <= 0.005+1e-9 && diff >= -0.005-1e-9
		},
		gen.Int64Range(-1_000_000_000, 1_000_000_000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
