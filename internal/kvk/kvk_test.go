package kvk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize_Valid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want Number
	}{
		{"plain", "12345678", "12345678"},
		{"float export", "81234567.0", "81234567"},
		{"float export long fraction", "81234567.000", "81234567"},
		{"leading zeros kept short", "00000001", "00000001"},
		{"short number repadded", "1234", "00001234"},
		{"whitespace", "  12345678 ", "12345678"},
		{"separators", "12.34.56-78", "12345678"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Normalize(tc.raw)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
	}{
		{"vat style", "NL 12 34"},
		{"letters", "KVK12345678"},
		{"nine digits", "123456789"},
		{"empty", ""},
		{"no digits", "---"},
		{"nonzero fraction", "81234567.5"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Normalize(tc.raw)
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestNumber_PageURL(t *testing.T) {
	t.Parallel()

	n := Number("12345678")
	require.Equal(t, "https://opencorporates.com/companies/nl/12345678", n.PageURL(""))
	require.Equal(t, "http://localhost:1234/nl/12345678", n.PageURL("http://localhost:1234/nl/"))
}
