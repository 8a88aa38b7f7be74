package imagegen

import (
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ErrorType categorizes generation failures.
type ErrorType int

const (
	// ErrTypeUnknown indicates an unclassified failure.
	ErrTypeUnknown ErrorType = iota
	// ErrTypeInvalidRequest indicates the model rejected the request content.
	ErrTypeInvalidRequest
	// ErrTypeAuth indicates the API key is invalid, expired, or lacks permissions.
	ErrTypeAuth
	// ErrTypeQuota indicates the quota or rate limit was exceeded.
	ErrTypeQuota
	// ErrTypeServer indicates a 5xx from the model service.
	ErrTypeServer
	// ErrTypeNetwork indicates a connectivity problem.
	ErrTypeNetwork
	// ErrTypeEmptyResult indicates the response carried no image.
	ErrTypeEmptyResult
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeAuth:
		return "auth"
	case ErrTypeQuota:
		return "quota"
	case ErrTypeServer:
		return "server_error"
	case ErrTypeNetwork:
		return "network_error"
	case ErrTypeEmptyResult:
		return "empty_result"
	default:
		return "unknown"
	}
}

// Error is a classified generation failure.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps err to an *Error. Errors that are already classified are
// returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr.Code, apiErr.Message, err)
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		return &Error{Type: ErrTypeAuth, Message: "Gemini API key is invalid or has been revoked", Err: err}

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return &Error{Type: ErrTypeQuota, Message: "Gemini quota exceeded or rate limited", Err: err}

	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "deadline exceeded") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		return &Error{Type: ErrTypeNetwork, Message: "network error calling Gemini", Err: err}

	default:
		return &Error{Type: ErrTypeUnknown, Message: "image generation failed", Err: err}
	}
}

func classifyAPIError(code int, message string, err error) *Error {
	switch code {
	case 400:
		return &Error{Type: ErrTypeInvalidRequest, Message: "Gemini rejected the request", Err: err}
	case 401, 403:
		return &Error{Type: ErrTypeAuth, Message: "Gemini API key is invalid, expired, or lacks permissions", Err: err}
	case 429:
		return &Error{Type: ErrTypeQuota, Message: "Gemini rate limit exceeded", Err: err}
	case 500, 502, 503, 504:
		return &Error{Type: ErrTypeServer, Message: "Gemini server error", Err: err}
	default:
		log.Debug().Int("code", code).Str("message", message).Msg("Unclassified Gemini API error")
		if message == "" {
			message = "image generation failed"
		}
		return &Error{Type: ErrTypeUnknown, Message: message, Err: err}
	}
}
