package exam

import "github.com/pkg/errors"

var (
	ErrNotFound         = errors.New("exam not found")
	ErrAttenderNotFound = errors.New("attender state not found")
	ErrAlreadyFinished  = errors.New("exam already finished")
	ErrAlreadyCancelled = errors.New("exam already cancelled")
	ErrAlreadyComplete  = errors.New("attempt already complete")
	ErrForbidden        = errors.New("permission denied")
	ErrOutOfTimeRange   = errors.New("outside of the exam time range")
	ErrPastDeadline     = errors.New("attempt deadline has passed")

	// ErrStateConflict is returned by stores when saving an exam that is no longer ongoing.
	ErrStateConflict = errors.New("exam state changed concurrently")
)

// IsNotFound reports whether err is one of the not found errors.
func IsNotFound(err error) bool {
	switch errors.Cause(err) {
	case ErrNotFound, ErrAttenderNotFound:
		return true
	}
	return false
}

func terminalErr(e Exam) error {
	switch e.State {
	case StateFinished:
		return ErrAlreadyFinished
	case StateCancelled:
		return ErrAlreadyCancelled
	}
	return nil
}
