package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrMaxIterations    = fmt.Errorf("agent reached max iterations")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")

	// Orchestration errors.
	ErrAudioNotFound      = fmt.Errorf("audio file not found")
	ErrTranscriptionEmpty = fmt.Errorf("transcription returned no text")
	ErrUnknownAgent       = fmt.Errorf("unknown agent")
	ErrMalformedPlan      = fmt.Errorf("malformed coordinator response")
	ErrWorkerFailed       = fmt.Errorf("worker invocation failed")

	// Side-effect errors.
	ErrReminderStore = fmt.Errorf("reminder store failed")
	ErrEmailSend     = fmt.Errorf("email send failed")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Orchestrator.Execute")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "reminder", "agent"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown               ErrorCode = "UNKNOWN"
	CodeProviderNotFound      ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound          ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure           ErrorCode = "TOOL_FAILURE"
	CodeMaxIterations         ErrorCode = "MAX_ITERATIONS"
	CodeConfigLoad            ErrorCode = "CONFIG_LOAD"
	CodeDecryption            ErrorCode = "DECRYPTION"
	CodeAudioNotFound         ErrorCode = "AUDIO_NOT_FOUND"
	CodeTranscriptionEmpty    ErrorCode = "TRANSCRIPTION_EMPTY"
	CodeUnknownAgent          ErrorCode = "UNKNOWN_AGENT"
	CodeMalformedPlan         ErrorCode = "MALFORMED_PLAN"
	CodeWorkerFailed          ErrorCode = "WORKER_FAILED"
	CodeReminderStore         ErrorCode = "REMINDER_STORE"
	CodeEmailSend             ErrorCode = "EMAIL_SEND"
	CodeContextOverflow       ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit             ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid           ErrorCode = "AUTH_INVALID"
	CodeAgentNotFound         ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentDuplicate        ErrorCode = "AGENT_DUPLICATE"
	CodeReminderNotFound      ErrorCode = "REMINDER_NOT_FOUND"
	CodeEmailLimit            ErrorCode = "EMAIL_LIMIT"
	CodeTranscriptionProvider ErrorCode = "TRANSCRIPTION_PROVIDER"

	// Category error codes, used when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeDisabled         ErrorCode = "DISABLED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrProviderNotFound:   CodeProviderNotFound,
	ErrToolNotFound:       CodeToolNotFound,
	ErrToolFailure:        CodeToolFailure,
	ErrMaxIterations:      CodeMaxIterations,
	ErrConfigLoad:         CodeConfigLoad,
	ErrDecryption:         CodeDecryption,
	ErrAudioNotFound:      CodeAudioNotFound,
	ErrTranscriptionEmpty: CodeTranscriptionEmpty,
	ErrUnknownAgent:       CodeUnknownAgent,
	ErrMalformedPlan:      CodeMalformedPlan,
	ErrWorkerFailed:       CodeWorkerFailed,
	ErrReminderStore:      CodeReminderStore,
	ErrEmailSend:          CodeEmailSend,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"agent":    CodeAgentNotFound,
		"reminder": CodeReminderNotFound,
	},
	ErrDuplicate: {
		"agent": CodeAgentDuplicate,
	},
	ErrLimitReached: {
		"email": CodeEmailLimit,
	},
	ErrProviderError: {
		"transcription": CodeTranscriptionProvider,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		for sentinel, subsysMap := range subSystemCodeMap {
			if code, ok := subsysMap[e.SubSystem]; ok && errors.Is(e.Err, sentinel) {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
