package jurisdiction

import (
	"slices"

	"github.com/rotisserie/eris"
)

// ErrNoColumn is returned when no jurisdiction column can be found in a header.
var ErrNoColumn = eris.New("no jurisdiction column")

// ColumnAliases lists the header spellings tried, in order, when no explicit
// column is configured. Matching is case-sensitive.
var ColumnAliases = []string{
	"state", "State", "STATE",
	"state_abbrev", "state_abbreviation", "State Abbreviation",
	"state_code", "State Code", "state_cd",
	"st", "ST",
	"jurisdiction", "Jurisdiction",
	"state_name", "State Name", "STATE_NAME",
}

// InferColumn returns the jurisdiction column for a source header. A hint
// present in the header wins; otherwise the first alias present is used.
func InferColumn(source string, columns []string, hint string) (string, error) {
	if hint != "" && slices.Contains(columns, hint) {
		return hint, nil
	}
	for _, alias := range ColumnAliases {
		if slices.Contains(columns, alias) {
			return alias, nil
		}
	}
	if hint != "" {
		return "", eris.Wrapf(ErrNoColumn, "%s: column %q not in header and no known alias found", source, hint)
	}
	return "", eris.Wrapf(ErrNoColumn, "%s: pass --state-col to name it", source)
}
