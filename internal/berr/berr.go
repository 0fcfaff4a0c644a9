// Package berr implements the error taxonomy of spec §7 as a typed error
// carrying the HTTP status each code maps to, so internal/httpapi never has
// to pattern-match error strings to pick a response.
package berr

import "fmt"

type Code string

const (
	Config     Code = "CONFIG"
	Auth       Code = "AUTH"
	BadRequest Code = "BAD_REQUEST"
	HSAPI      Code = "HS_API"
	SimAPI     Code = "SIM_API"
	NotEnabled Code = "NOT_ENABLED"
	Validation Code = "VALIDATION"
	Unexpected Code = "UNEXPECTED"
)

// Error is the error type every engine method in internal/{hsclient,
// simclient,puppet,relay,admin} returns instead of a bare error.
type Error struct {
	Code    Code
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newf(code Code, status int, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Configf(format string, args ...interface{}) *Error {
	return newf(Config, 0, nil, format, args...)
}

func Authf(format string, args ...interface{}) *Error {
	return newf(Auth, 401, nil, format, args...)
}

func BadRequestf(format string, args ...interface{}) *Error {
	return newf(BadRequest, 400, nil, format, args...)
}

func HSAPIf(cause error, format string, args ...interface{}) *Error {
	return newf(HSAPI, 500, cause, format, args...)
}

func SimAPIf(cause error, format string, args ...interface{}) *Error {
	return newf(SimAPI, 500, cause, format, args...)
}

func NotEnabledf(format string, args ...interface{}) *Error {
	return newf(NotEnabled, 500, nil, format, args...)
}

func Validationf(format string, args ...interface{}) *Error {
	return newf(Validation, 400, nil, format, args...)
}

// As unwraps err into a *berr.Error, returning nil, false if it isn't one.
func As(err error) (*Error, bool) {
	be, ok := err.(*Error)
	return be, ok
}
