package jurisdiction

import (
	"strconv"
	"strings"
)

// Membership is an equality matcher over a small synonym set: the code, the
// full name and the FIPS code of each member. It does not tokenize.
type Membership struct {
	words map[string]string
	fips  map[int]string
}

// NewMembership builds a matcher for the given canonical codes. Unknown
// codes are matched literally.
func NewMembership(codes ...string) Membership {
	m := Membership{words: make(map[string]string), fips: make(map[int]string)}
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		m.words[c] = c
		if name, ok := names[c]; ok {
			m.words[name] = c
		}
		if f, ok := fips[c]; ok {
			m.fips[f] = c
		}
	}
	return m
}

// Match returns the member code raw equals, if any.
func (m Membership) Match(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	if c, ok := m.words[s]; ok {
		return c, true
	}
	if n, ok := parseFIPS(s); ok {
		c, ok := m.fips[n]
		return c, ok
	}
	return "", false
}

// Contains reports whether raw names a member.
func (m Membership) Contains(raw string) bool {
	_, ok := m.Match(raw)
	return ok
}

// Synonyms lists the accepted spellings for the provenance note.
func (m Membership) Synonyms() []string {
	out := make([]string, 0, len(m.words)+len(m.fips))
	for w := range m.words {
		out = append(out, w)
	}
	for f := range m.fips {
		out = append(out, strconv.Itoa(f))
	}
	return out
}
