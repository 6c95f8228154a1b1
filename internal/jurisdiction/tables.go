// Package jurisdiction recognizes US state and territory identifiers in the
// many spellings found across extracts: postal codes, full names, FIPS codes
// and free text that mentions one of them.
package jurisdiction

// names maps each canonical two-letter code to its upper-case full name.
var names = map[string]string{
	"AL": "ALABAMA",
	"AK": "ALASKA",
	"AZ": "ARIZONA",
	"AR": "ARKANSAS",
	"CA": "CALIFORNIA",
	"CO": "COLORADO",
	"CT": "CONNECTICUT",
	"DE": "DELAWARE",
	"FL": "FLORIDA",
	"GA": "GEORGIA",
	"HI": "HAWAII",
	"ID": "IDAHO",
	"IL": "ILLINOIS",
	"IN": "INDIANA",
	"IA": "IOWA",
	"KS": "KANSAS",
	"KY": "KENTUCKY",
	"LA": "LOUISIANA",
	"ME": "MAINE",
	"MD": "MARYLAND",
	"MA": "MASSACHUSETTS",
	"MI": "MICHIGAN",
	"MN": "MINNESOTA",
	"MS": "MISSISSIPPI",
	"MO": "MISSOURI",
	"MT": "MONTANA",
	"NE": "NEBRASKA",
	"NV": "NEVADA",
	"NH": "NEW HAMPSHIRE",
	"NJ": "NEW JERSEY",
	"NM": "NEW MEXICO",
	"NY": "NEW YORK",
	"NC": "NORTH CAROLINA",
	"ND": "NORTH DAKOTA",
	"OH": "OHIO",
	"OK": "OKLAHOMA",
	"OR": "OREGON",
	"PA": "PENNSYLVANIA",
	"RI": "RHODE ISLAND",
	"SC": "SOUTH CAROLINA",
	"SD": "SOUTH DAKOTA",
	"TN": "TENNESSEE",
	"TX": "TEXAS",
	"UT": "UTAH",
	"VT": "VERMONT",
	"VA": "VIRGINIA",
	"WA": "WASHINGTON",
	"WV": "WEST VIRGINIA",
	"WI": "WISCONSIN",
	"WY": "WYOMING",
	"DC": "DISTRICT OF COLUMBIA",
	"PR": "PUERTO RICO",
}

// fips maps each canonical code to its numeric state FIPS code.
var fips = map[string]int{
	"AL": 1, "AK": 2, "AZ": 4, "AR": 5, "CA": 6, "CO": 8, "CT": 9, "DE": 10,
	"DC": 11, "FL": 12, "GA": 13, "HI": 15, "ID": 16, "IL": 17, "IN": 18, "IA": 19,
	"KS": 20, "KY": 21, "LA": 22, "ME": 23, "MD": 24, "MA": 25, "MI": 26, "MN": 27,
	"MS": 28, "MO": 29, "MT": 30, "NE": 31, "NV": 32, "NH": 33, "NJ": 34, "NM": 35,
	"NY": 36, "NC": 37, "ND": 38, "OH": 39, "OK": 40, "OR": 41, "PA": 42, "RI": 44,
	"SC": 45, "SD": 46, "TN": 47, "TX": 48, "UT": 49, "VT": 50, "VA": 51, "WA": 53,
	"WV": 54, "WI": 55, "WY": 56, "PR": 72,
}

var (
	codeByName = invert(names)
	codeByFIPS = invertFIPS(fips)
)

// maxNameWords is the longest full name in words ("DISTRICT OF COLUMBIA").
const maxNameWords = 3

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

func invertFIPS(m map[string]int) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// IsCode reports whether s is a canonical two-letter code.
func IsCode(s string) bool {
	_, ok := names[s]
	return ok
}

// Name returns the upper-case full name for a canonical code.
func Name(code string) (string, bool) {
	n, ok := names[code]
	return n, ok
}

// FIPS returns the numeric FIPS code for a canonical code.
func FIPS(code string) (int, bool) {
	f, ok := fips[code]
	return f, ok
}

// Codes returns every canonical code.
func Codes() []string {
	out := make([]string, 0, len(names))
	for c := range names {
		out = append(out, c)
	}
	return out
}
