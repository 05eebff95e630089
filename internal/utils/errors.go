package utils

import (
	"fmt"

	"github.com/the127/resumable/internal/logging"
)

func IgnoreError(f func() error) {
	_ = f()
}

func PanicOnError(f func() error, message string) {
	err := f()
	if err != nil {
		logging.Logger.Panic(fmt.Errorf("%s: %w", message, err))
	}
}

// LogOnError runs f and only logs a failure. Used for best effort cleanup.
func LogOnError(f func() error, message string) {
	err := f()
	if err != nil {
		logging.Logger.Warnf("%s: %v", message, err)
	}
}
