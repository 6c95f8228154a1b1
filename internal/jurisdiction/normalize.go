package jurisdiction

import (
	"strconv"
	"strings"
	"unicode"
)

// Unrecognized is the code reported for values that name no jurisdiction.
const Unrecognized = ""

// Normalizer maps raw cell text to a canonical two-letter code.
type Normalizer struct {
	// AcceptFIPS also recognizes bare numeric state FIPS codes ("29", "029").
	AcceptFIPS bool
}

// Normalize returns the canonical code for raw and true, or the trimmed
// upper-case input and false when nothing matched. The unmatched text is
// returned so callers can report what they could not recognize.
//
// Precedence, first match wins:
//  1. empty input
//  2. the whole value is a code
//  3. any word is a code; else any run of words is a full name
//  4. the whole value is a full name
//  5. the whole value is a FIPS code (when enabled)
func (n Normalizer) Normalize(raw string) (string, bool) {
	up := strings.ToUpper(strings.TrimSpace(raw))
	if up == "" {
		return Unrecognized, false
	}
	if IsCode(up) {
		return up, true
	}

	tokens := strings.FieldsFunc(up, func(r rune) bool {
		return r > unicode.MaxASCII || !unicode.IsLetter(r)
	})
	for _, t := range tokens {
		if IsCode(t) {
			return t, true
		}
	}
	if code, ok := matchNameRun(tokens); ok {
		return code, true
	}

	if code, ok := codeByName[up]; ok {
		return code, true
	}

	if n.AcceptFIPS {
		if code, ok := fipsCode(up); ok {
			return code, true
		}
	}
	return up, false
}

// Code is Normalize without the unmatched text.
func (n Normalizer) Code(raw string) string {
	code, ok := n.Normalize(raw)
	if !ok {
		return Unrecognized
	}
	return code
}

// matchNameRun scans word runs, longest first at each position, so that
// "WEST VIRGINIA" resolves before its trailing "VIRGINIA".
func matchNameRun(tokens []string) (string, bool) {
	for i := range tokens {
		for w := min(maxNameWords, len(tokens)-i); w >= 1; w-- {
			if code, ok := codeByName[strings.Join(tokens[i:i+w], " ")]; ok {
				return code, true
			}
		}
	}
	return "", false
}

func fipsCode(s string) (string, bool) {
	n, ok := parseFIPS(s)
	if !ok {
		return "", false
	}
	code, ok := codeByFIPS[n]
	return code, ok
}

// parseFIPS reads a state FIPS number of up to three digits. An integral
// decimal ("29.0"), as float-typed extracts render the column, is accepted.
func parseFIPS(s string) (int, bool) {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		if strings.Trim(s[i+1:], "0") != "" {
			return 0, false
		}
		s = s[:i]
	}
	if s == "" || len(s) > 3 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
