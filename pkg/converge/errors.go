package converge

import "errors"

// Sentinel errors for orchestrator outcomes.
var (
	// ErrTokensPending is returned by a TokenSource while the provider has
	// created the identity but not yet populated tokens. Expected for the
	// first several fetches after identity creation; not a failure.
	ErrTokensPending = errors.New("converge: tokens not yet available")

	// ErrBudgetExceeded marks a run that timed out waiting for either
	// token generation or propagation. Retriable by operator rerun.
	ErrBudgetExceeded = errors.New("converge: wait budget exceeded")

	// ErrVerificationFailed marks a run where the mail provider reported
	// the domain verification as failed.
	ErrVerificationFailed = errors.New("converge: provider reported verification failed")
)

// PermanentError marks a provider error that retrying cannot fix, such as
// an authentication failure or a missing domain identity. The poller aborts
// the run immediately instead of retrying within the budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the poller treats it as non-retriable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked
// permanent via Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
