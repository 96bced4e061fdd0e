package core

import "errors"

// Error codes for domain errors. They travel to clients verbatim.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotJoined    = "not_joined"
	ErrCodeBadRequest   = "bad_request"
	ErrCodePersistence  = "persistence"
	ErrCodeTransport    = "transport"
	ErrCodeTimeout      = "timeout"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeUnknownConn  = "unknown_connection"
)

// Sentinels for errors.Is; matching is by code.
var (
	ErrUnauthorized = &CoreError{Code: ErrCodeUnauthorized, Message: "not a party to this conversation"}
	ErrNotJoined    = &CoreError{Code: ErrCodeNotJoined, Message: "conversation not joined"}
	ErrValidation   = &CoreError{Code: ErrCodeBadRequest, Message: "bad request"}
	ErrPersistence  = &CoreError{Code: ErrCodePersistence, Message: "message store unavailable", Retryable: true}
	ErrTransport    = &CoreError{Code: ErrCodeTransport, Message: "connection unavailable"}
	ErrTimeout      = &CoreError{Code: ErrCodeTimeout, Message: "timed out", Retryable: true}
	ErrUnknownConn  = &CoreError{Code: ErrCodeUnknownConn, Message: "unknown connection"}
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *CoreError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

// Is matches any CoreError carrying the same code.
func (e *CoreError) Is(target error) bool {
	t, ok := target.(*CoreError)
	return ok && t.Code == e.Code
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// wrap derives a CoreError from a sentinel, attaching the cause.
func wrap(sentinel *CoreError, cause error) *CoreError {
	return &CoreError{Code: sentinel.Code, Message: sentinel.Message, Retryable: sentinel.Retryable, Err: cause}
}

// AsCoreError extracts the CoreError from err, if any.
func AsCoreError(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
