package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"
	ErrTakerAccessOnly  ErrCode = "TAKER_ACCESS_ONLY"
	ErrStaffAccessOnly  ErrCode = "STAFF_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exam sessions ─────────────────────────────────────────────────
	ErrExamNotConfigured   ErrCode = "EXAM_NOT_CONFIGURED"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"
	ErrInvalidQuestion     ErrCode = "INVALID_QUESTION"
	ErrSessionNotFound     ErrCode = "SESSION_NOT_FOUND"
	ErrSessionExpired      ErrCode = "SESSION_EXPIRED"
	ErrActiveSessionExists ErrCode = "ACTIVE_SESSION_EXISTS"
	ErrRetakeNotAllowed    ErrCode = "RETAKE_NOT_ALLOWED"
	ErrAlreadyStarted      ErrCode = "ALREADY_STARTED"
	ErrNotInProgress       ErrCode = "NOT_IN_PROGRESS"
	ErrInvalidAnswer       ErrCode = "INVALID_ANSWER"
	ErrUnknownQuestion     ErrCode = "UNKNOWN_QUESTION"
	ErrNotAtLastQuestion   ErrCode = "NOT_AT_LAST_QUESTION"

	// ─── Evaluation ────────────────────────────────────────────────────
	ErrNotAwaitingEvaluation ErrCode = "NOT_AWAITING_EVALUATION"
	ErrScoreOutOfRange       ErrCode = "SCORE_OUT_OF_RANGE"
	ErrCredentialRequired    ErrCode = "CREDENTIAL_REQUIRED"
	ErrInvalidCredential     ErrCode = "INVALID_EVALUATOR_CREDENTIAL"
	ErrAlreadyLocked         ErrCode = "ALREADY_LOCKED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal           ErrCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrCode = "SERVICE_UNAVAILABLE"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Incorrect email or password."
	case ErrSessionInvalidated:
		return "You signed in on another device. Please sign in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."
	case ErrPermissionDenied:
		return "Permission denied."
	case ErrTakerAccessOnly:
		return "This resource is only available to exam takers."
	case ErrStaffAccessOnly:
		return "This resource is only available to administrators and leaders."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."
	case ErrActionForbidden:
		return "This action is not allowed."

	// ─── Exam sessions ─────────────────────────────────────────────────
	case ErrExamNotConfigured:
		return "This exam category has not been configured."
	case ErrNoQuestions:
		return "This exam category has no questions."
	case ErrInvalidQuestion:
		return "The question is not valid for its kind."
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrSessionExpired:
		return "This exam session can no longer be resumed. Contact your leader."
	case ErrActiveSessionExists:
		return "You already have an exam session in progress."
	case ErrRetakeNotAllowed:
		return "You have already taken this exam."
	case ErrAlreadyStarted:
		return "The exam has already started."
	case ErrNotInProgress:
		return "The exam is not in progress."
	case ErrInvalidAnswer:
		return "The answer does not fit the question."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."
	case ErrNotAtLastQuestion:
		return "The exam can only be submitted from the last question."

	// ─── Evaluation ────────────────────────────────────────────────────
	case ErrNotAwaitingEvaluation:
		return "The exam is not awaiting evaluation."
	case ErrScoreOutOfRange:
		return "The score must be between 0 and 100."
	case ErrCredentialRequired:
		return "The evaluator credential is required."
	case ErrInvalidCredential:
		return "The evaluator credential is not valid."
	case ErrAlreadyLocked:
		return "The result has already been locked."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	case ErrServiceUnavailable:
		return "A backing store is unreachable."
	default:
		return "An unexpected error occurred."
	}
}
