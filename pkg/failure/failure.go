// Package failure maps pipeline failures onto the closed set of error codes
// exposed to callers.
package failure

import (
	"errors"
	"fmt"
)

type Code string

const (
	InvalidCredentials Code = "INVALID_CREDENTIALS"
	CaptchaRequired    Code = "CAPTCHA_REQUIRED"
	AccountBlocked     Code = "ACCOUNT_BLOCKED"
	ServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	Timeout            Code = "TIMEOUT"
	NavigationError    Code = "NAVIGATION_ERROR"
	NoData             Code = "NO_DATA"
	Unknown            Code = "UNKNOWN"
)

var messages = map[Code]string{
	InvalidCredentials: "The portal rejected the taxpayer id or password. Check your credentials.",
	CaptchaRequired:    "The portal requested a human verification challenge. Try again later.",
	AccountBlocked:     "The portal reports the account as blocked. Contact the tax authority.",
	ServiceUnavailable: "The portal could not be reached. Try again later.",
	Timeout:            "The portal took too long to respond. Try again, possibly later.",
	NavigationError:    "An expected step of the portal could not be found. Try again.",
	NoData:             "No invoices matched the given filters.",
	Unknown:            "An unexpected error occurred. Try again and report it if it persists.",
}

// Describe returns the caller-facing message for c.
func Describe(c Code) string {
	if m, ok := messages[c]; ok {
		return m
	}
	return messages[Unknown]
}

// Error is raised by pipeline stages when they already know which code
// applies. Step names the state or navigation step that failed.
type Error struct {
	Code Code
	Step string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Step != "" {
		msg = fmt.Sprintf("%s at %s", msg, e.Step)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, step string, err error) *Error {
	return &Error{Code: code, Step: step, Err: err}
}

// Navigation wraps err as a NAVIGATION_ERROR unless it already carries a
// code or is a timeout, which keeps its own classification.
func Navigation(step string, err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	if isTimeout(err) {
		return New(Timeout, step, err)
	}
	if isNetwork(err) {
		return New(ServiceUnavailable, step, err)
	}
	return New(NavigationError, step, err)
}
