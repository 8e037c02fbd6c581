package tracker

import (
	"runtime/debug"

	"github.com/rs/zerolog"
)

// recoverUnit must be deferred directly. It turns a panic in one creator or
// item into a logged failure so the other units of the run still complete.
func recoverUnit(logger zerolog.Logger, onPanic func()) {
	if rec := recover(); rec != nil {
		logger.Error().
			Interface("panic", rec).
			Str("stack", string(debug.Stack())).
			Msg("Recovered from panic in worker")
		onPanic()
	}
}
