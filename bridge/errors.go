package bridge

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Class buckets tool invocation failures for callers that branch on the
// failure kind rather than the message.
type Class string

const (
	// ClassAuthentication covers rejected or missing credentials.
	ClassAuthentication Class = "authentication"
	// ClassNotFound covers unknown tools or resources.
	ClassNotFound Class = "not_found"
	// ClassRateLimited covers throttling by the remote server.
	ClassRateLimited Class = "rate_limited"
	// ClassValidation covers arguments rejected before any network call.
	ClassValidation Class = "validation"
	// ClassGeneric covers everything else.
	ClassGeneric Class = "generic"
)

// Error is a classified tool invocation failure. Message is human-readable
// and names the tool; it never contains credentials.
type Error struct {
	Class   Class
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ClassOf returns the failure class of err, ClassGeneric when unclassified.
func ClassOf(err error) Class {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Class
	}
	return ClassGeneric
}

var classPatterns = []struct {
	class    Class
	keywords []string
}{
	{ClassAuthentication, []string{"401", "unauthorized", "unauthenticated", "authentication", "forbidden", "permission denied", "invalid api key", "invalid token"}},
	{ClassNotFound, []string{"404", "not found", "unknown tool", "no such tool", "does not exist"}},
	{ClassRateLimited, []string{"429", "rate limit", "too many requests", "quota exceeded", "throttl"}},
	{ClassValidation, []string{"-32602", "invalid params", "invalid argument", "validation"}},
}

// classify wraps cause into a classified Error by inspecting the remote
// message. Remote servers do not agree on error codes, so substring
// matching is the only portable signal.
func classify(tool, message string, cause error) *Error {
	lower := strings.ToLower(message)
	class := ClassGeneric
	for _, p := range classPatterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				class = p.class
				break
			}
		}
		if class != ClassGeneric {
			break
		}
	}
	return &Error{
		Class:   class,
		Message: cause.Error(),
		Cause:   cause,
	}
}
