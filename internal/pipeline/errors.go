package pipeline

import (
	"errors"

	"github.com/sells-group/waitprep/internal/config"
	"github.com/sells-group/waitprep/internal/fetcher"
	"github.com/sells-group/waitprep/internal/filter"
	"github.com/sells-group/waitprep/internal/jurisdiction"
	"github.com/sells-group/waitprep/internal/sink"
)

// fatal lists the configuration and schema errors that stop a run before or
// during streaming. Anything else is a per-source problem.
var fatal = []error{
	config.ErrInvalid,
	fetcher.ErrNoInput,
	jurisdiction.ErrNoColumn,
	filter.ErrMissingColumn,
	sink.ErrUnknownFormat,
}

// OutputError wraps a failed write to the output target. Output failures
// abort the run since every later source would fail the same way.
type OutputError struct {
	Err error
}

func (e *OutputError) Error() string { return "output: " + e.Err.Error() }

func (e *OutputError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	var oe *OutputError
	if errors.As(err, &oe) {
		return true
	}
	for _, target := range fatal {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
