package sim

import (
	"log"
)

// A LogHook is a hook that is resonsible for recording information from the
// components
type LogHook interface {
	Hook
}

// LogHookBase proovides the common logic for all LogHooks
type LogHookBase struct {
	*log.Logger
}

// NewLogHookBase wraps a logger. A nil logger falls back to the standard
// logger of the log package.
func NewLogHookBase(logger *log.Logger) LogHookBase {
	if logger == nil {
		logger = log.Default()
	}

	return LogHookBase{Logger: logger}
}
