package monitor

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/pidpatrol/pidpatrol/internal/monitor/names"
)

// ValidationError is a rejected mutation.  The monitor state is unchanged when
// one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalid(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

const (
	// MinInterval is the shortest allowed pause between cycles, in seconds.
	MinInterval = 1.0
	// DefaultInterval is used until an interval is set.
	DefaultInterval = 5.0
	// MaxInterval is the longest pause a time.Duration can hold, in whole
	// seconds.
	MaxInterval = float64(math.MaxInt64 / int64(time.Second))
)

// Messages used for rejected input
const (
	MsgInvalidInterval = "invalid interval"
	MsgIntervalTooLow  = "interval must be >= 1.0"
	MsgIntervalTooHigh = "interval is too large"
)

// ValidateInterval checks that seconds is a finite number between
// MinInterval and MaxInterval.
func ValidateInterval(seconds float64) error {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return invalid(MsgInvalidInterval)
	}
	if seconds < MinInterval {
		return invalid(MsgIntervalTooLow)
	}
	if seconds > MaxInterval {
		return invalid(MsgIntervalTooHigh)
	}
	return nil
}

func fromNamesErr(err error) error {
	switch err.(type) {
	case names.ErrNoNames, names.ErrBlankName:
		return invalid(err.Error())
	}
	return err
}
