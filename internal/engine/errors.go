package engine

import "errors"

// Configuration errors. A session is never created when one of these applies.
var (
	ErrNoQuestions       = errors.New("exam has no questions")
	ErrInvalidDuration   = errors.New("exam duration must be positive")
	ErrDuplicateQuestion = errors.New("duplicate question id")
	ErrInvalidThreshold  = errors.New("focus loss threshold must be positive")
)

// Invalid input errors. Session state is unchanged when one of these is returned.
var (
	ErrNotInProgress      = errors.New("session is not in progress")
	ErrNotStarted         = errors.New("session has already left the instructions phase")
	ErrUnknownQuestion    = errors.New("unknown question id")
	ErrInvalidAnswer      = errors.New("answer does not fit the question kind")
	ErrNotAtLastQuestion  = errors.New("submit is only available on the last question")
	ErrNotAwaiting        = errors.New("session is not awaiting evaluation")
	ErrScoreOutOfRange    = errors.New("evaluator score must be between 0 and 100")
	ErrCredentialRequired = errors.New("evaluator credential is required")
	ErrAlreadyLocked      = errors.New("session is already locked")
	ErrTimerRunning       = errors.New("timer already started")
	ErrRunnerStopped      = errors.New("session runner has stopped")
)
