package jurisdiction

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferColumn(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		hint    string
		want    string
	}{
		{"hint present", []string{"state", "st_custom"}, "st_custom", "st_custom"},
		{"hint absent falls back", []string{"zip", "State"}, "region", "State"},
		{"first alias wins", []string{"jurisdiction", "state"}, "", "state"},
		{"upper case", []string{"STATE_NAME", "zip"}, "", "STATE_NAME"},
		{"code alias", []string{"state_code"}, "", "state_code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InferColumn("in.csv", tt.columns, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferColumn_None(t *testing.T) {
	_, err := InferColumn("data/raw/waits.csv", []string{"zip", "dtot", "States"}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoColumn))
	assert.Contains(t, err.Error(), "data/raw/waits.csv")

	_, err = InferColumn("b.csv", []string{"zip"}, "region")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"region"`)
}

// mangle produces a case/whitespace variant of s.
func mangle(s string, variant int) string {
	switch variant % 4 {
	case 0:
		return s
	case 1:
		return "  " + strings.ToLower(s) + "\t"
	case 2:
		return strings.ReplaceAll(strings.Title(strings.ToLower(s)), " ", "   ") //nolint:staticcheck
	default:
		var b strings.Builder
		for i, r := range s {
			if i%2 == 0 {
				b.WriteString(strings.ToLower(string(r)))
			} else {
				b.WriteRune(r)
			}
		}
		return " " + b.String() + " "
	}
}

func TestNormalize_AllCodesAndNames(t *testing.T) {
	n := Normalizer{}
	for code, name := range names {
		for v := 0; v < 4; v++ {
			got, ok := n.Normalize(mangle(code, v))
			assert.True(t, ok, "code %q variant %d", code, v)
			assert.Equal(t, code, got, "code %q variant %d", code, v)

			got, ok = n.Normalize(mangle(name, v))
			assert.True(t, ok, "name %q variant %d", name, v)
			assert.Equal(t, code, got, "name %q variant %d", name, v)
		}
	}
}

func TestNormalize_Precedence(t *testing.T) {
	n := Normalizer{}
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"", "", false},
		{"   ", "", false},
		{"mo", "MO", true},
		{"Kansas City, MO 64128", "MO", true},
		{"St. Louis (Missouri)", "MO", true},
		{"VAMC-Columbia-MO", "MO", true},
		{"west virginia", "WV", true},
		{"District of Columbia", "DC", true},
		{"Puerto Rico", "PR", true},
		{"state of kansas", "KS", true},
		{"Mississippi River", "MS", true},
		{"Missou", "MISSOU", false},
		{"29", "29", false},
		{"n/a", "N/A", false},
	}
	for _, tt := range tests {
		got, ok := n.Normalize(tt.raw)
		assert.Equal(t, tt.ok, ok, "raw %q", tt.raw)
		assert.Equal(t, tt.want, got, "raw %q", tt.raw)
	}
}

func TestNormalize_FIPS(t *testing.T) {
	n := Normalizer{AcceptFIPS: true}
	assert.Equal(t, "MO", n.Code("29"))
	assert.Equal(t, "MO", n.Code(" 029 "))
	assert.Equal(t, "CA", n.Code("6"))
	assert.Equal(t, Unrecognized, n.Code("3"), "3 is not an assigned state FIPS code")
	assert.Equal(t, Unrecognized, n.Code("12345"))
	assert.Equal(t, Unrecognized, Normalizer{}.Code("29"))
}

func TestFIPS_SameInBothModes(t *testing.T) {
	n := Normalizer{AcceptFIPS: true}
	m := NewMembership("MO")
	for _, raw := range []string{"29", "029", "29.0", " 29.00 ", "29."} {
		assert.Equal(t, "MO", n.Code(raw), raw)
		assert.True(t, m.Contains(raw), raw)
	}
	for _, raw := range []string{"29.5", "2.9e1", "0x1d", "0029", "-29", ".0"} {
		assert.Equal(t, Unrecognized, n.Code(raw), raw)
		assert.False(t, m.Contains(raw), raw)
	}
}

func TestNormalize_UnrecognizedText(t *testing.T) {
	n := Normalizer{AcceptFIPS: true}
	for _, raw := range []string{"unknown", "N/A", "--", "Ontario", "XX", "Q1", "1234567", "Zz top"} {
		assert.Equal(t, Unrecognized, n.Code(raw), raw)
	}
}

func TestMembership(t *testing.T) {
	m := NewMembership("MO")
	for _, raw := range []string{"MO", " mo ", "Missouri", "MISSOURI", "29", "029", "29.0"} {
		assert.True(t, m.Contains(raw), raw)
	}
	for _, raw := range []string{"", "KS", "Kansas City, MO", "20", "29.5", "Missou"} {
		assert.False(t, m.Contains(raw), raw)
	}

	code, ok := NewMembership("mo", "ks").Match("kansas")
	require.True(t, ok)
	assert.Equal(t, "KS", code)

	assert.ElementsMatch(t, []string{"MO", "MISSOURI", "29"}, m.Synonyms())
}

func TestPostalRange(t *testing.T) {
	r, ok := ProxyRange("mo")
	require.True(t, ok)
	assert.Equal(t, "63000-65899", r.String())

	for _, z := range []string{"63000", "63101", "65899", "65201-1234", "64128.0"} {
		assert.True(t, r.Contains(z), z)
	}
	for _, z := range []string{"62999", "65900", "", "abc", "6310100", "-1"} {
		assert.False(t, r.Contains(z), z)
	}

	_, ok = ProxyRange("KS")
	assert.False(t, ok)
}

func TestParseZIP(t *testing.T) {
	z, ok := ParseZIP("02108")
	require.True(t, ok)
	assert.Equal(t, 2108, z)

	_, ok = ParseZIP("ABCDE")
	assert.False(t, ok)
}

func TestTables(t *testing.T) {
	assert.Len(t, Codes(), 52)
	assert.Len(t, fips, len(names))

	name, ok := Name("MO")
	require.True(t, ok)
	assert.Equal(t, "MISSOURI", name)

	f, ok := FIPS("MO")
	require.True(t, ok)
	assert.Equal(t, 29, f)
	assert.True(t, IsCode("DC"))
	assert.False(t, IsCode("mo"))
}
