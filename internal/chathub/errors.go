package chathub

import "errors"

// Error codes sent in errorMessage.code. They double as localization keys.
const (
	CodeInvalidPayload     = "InvalidPayload"
	CodePersistenceFailure = "PersistenceFailure"
	CodeAIUnavailable      = "AiUnavailable"
	CodeAnalysisFailed     = "AnalysisFailed"
	CodeDispatchFailure    = "DispatchFailure"
	CodeUnknownEvent       = "UnknownEvent"
)

var (
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrAIUnavailable      = errors.New("ai unavailable")
	ErrAnalysisFailed     = errors.New("analysis failed")
	ErrDispatchFailure    = errors.New("dispatch failure")
	ErrUnknownEvent       = errors.New("unknown event")
)

// ErrorCode maps a pipeline error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPayload):
		return CodeInvalidPayload
	case errors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure
	case errors.Is(err, ErrAIUnavailable):
		return CodeAIUnavailable
	case errors.Is(err, ErrAnalysisFailed):
		return CodeAnalysisFailed
	case errors.Is(err, ErrDispatchFailure):
		return CodeDispatchFailure
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent
	}
	return CodePersistenceFailure
}
