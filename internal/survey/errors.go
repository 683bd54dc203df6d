package survey

import "errors"

var (
	// ErrResumeNotFound means no stored response carries the derived participant id.
	ErrResumeNotFound = errors.New("no saved responses match the given name, birth year and phone")
	// ErrWrongStep means the action does not apply to the session's current screen.
	ErrWrongStep = errors.New("action not allowed at the current step")
	// ErrInstructionsPending means some instruction statement is not yet acknowledged.
	ErrInstructionsPending = errors.New("every instruction must be acknowledged first")
	// ErrInvalidRating means the rating is outside the 7-point scale.
	ErrInvalidRating = errors.New("rating must be between 1 and 7")
	// ErrPaused is returned under the blocking expiry policy while the timer is paused.
	ErrPaused = errors.New("survey is paused")
	// ErrTimeExpired is only returned under the blocking expiry policy.
	ErrTimeExpired = errors.New("survey time limit reached")
)
