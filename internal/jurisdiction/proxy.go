package jurisdiction

import (
	"strconv"
	"strings"
)

// PostalRange is a half-open range of five-digit ZIP codes used as a coarse
// stand-in for a state when the state column is unusable. It is a heuristic,
// not a validated mapping.
type PostalRange struct {
	Min int // inclusive
	Max int // exclusive
}

// postalRanges holds the proxies known for single-state fallback.
var postalRanges = map[string]PostalRange{
	"MO": {Min: 63000, Max: 65900},
}

// ProxyRange returns the ZIP proxy for a code.
func ProxyRange(code string) (PostalRange, bool) {
	r, ok := postalRanges[strings.ToUpper(code)]
	return r, ok
}

// Contains reports whether a raw ZIP value falls in the range. ZIP+4 values
// and float renderings ("63101.0") are reduced to their five-digit prefix.
func (r PostalRange) Contains(raw string) bool {
	z, ok := ParseZIP(raw)
	return ok && z >= r.Min && z < r.Max
}

func (r PostalRange) String() string {
	return strconv.Itoa(r.Min) + "-" + strconv.Itoa(r.Max-1)
}

// ParseZIP extracts the numeric five-digit ZIP from raw text.
func ParseZIP(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "-."); i >= 0 {
		s = s[:i]
	}
	if s == "" || len(s) > 5 {
		return 0, false
	}
	z, err := strconv.Atoi(s)
	if err != nil || z < 0 {
		return 0, false
	}
	return z, true
}
