// errors.go — the dispatcher's error taxonomy, surfaced uniformly to the
// MCP layer. A stable snake_case code plus a human message, so callers can
// classify failures without string-matching on Error() text.
package dispatch

import "fmt"

// Error codes.
const (
	CodeConnectionNotAvailable = "connection_not_available"
	CodeRequestTimeout         = "request_timeout"
	CodeConnectionClosed       = "connection_closed"
	CodeInvalidRequest         = "invalid_request"
	CodeBrowserExtensionError  = "browser_extension_error"
	CodeTabNotFound            = "tab_not_found"
	CodeInvalidParameters      = "invalid_parameters"
	CodeInternalError          = "internal_error"
	CodeResourceNotFound       = "resource_not_found"
)

// Error is the uniform error shape surfaced by the dispatcher.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func errConnectionNotAvailable(tabID uint32) *Error {
	return newError(CodeConnectionNotAvailable, "no connection bound to tab %d", tabID)
}

func errRequestTimeout(seconds float64) *Error {
	return newError(CodeRequestTimeout, "request timed out after %.0fs", seconds)
}

func errConnectionClosed() *Error {
	return newError(CodeConnectionClosed, "connection closed before response arrived")
}

func errBrowserExtension(msg string) *Error {
	return newError(CodeBrowserExtensionError, "%s", msg)
}

func errTabNotFound(tabID uint32) *Error {
	return newError(CodeTabNotFound, "tab %d not found", tabID)
}

func errInvalidParameters(msg string) *Error {
	return newError(CodeInvalidParameters, "%s", msg)
}

func errInternal(msg string) *Error {
	return newError(CodeInternalError, "%s", msg)
}

func errResourceNotFound(uri string) *Error {
	return newError(CodeResourceNotFound, "resource %q not found", uri)
}
