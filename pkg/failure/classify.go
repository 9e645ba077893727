package failure

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
)

type Classification struct {
	Code    Code   `json:"errorCode"`
	Message string `json:"error"`
}

var blockedPhrases = []string{
	"bloquead",
	"inhabilitad",
	"suspendid",
	"deshabilitad",
	"blocked",
	"disabled",
}

var invalidPhrases = []string{
	"clave o usuario incorrect",
	"usuario o clave incorrect",
	"clave incorrecta",
	"contraseña incorrecta",
	"número de cuit/cuil incorrecto",
	"cuit/cuil incorrecto",
	"datos incorrectos",
	"no es válid",
	"no es valid",
	"invalid credentials",
	"incorrect password",
}

var timeoutPhrases = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"context deadline",
}

var networkPhrases = []string{
	"net::err_",
	"connection refused",
	"connection reset",
	"econnrefused",
	"econnreset",
	"enotfound",
	"no such host",
	"network is unreachable",
}

// Classify maps a failure and, optionally, text scraped from the portal onto
// a Code. It has no side effects and always returns a classification.
func Classify(err error, text string) Classification {
	code := classify(err, text)
	return Classification{Code: code, Message: Describe(code)}
}

func classify(err error, text string) Code {
	var fe *Error
	if errors.As(err, &fe) && fe.Code != "" {
		return fe.Code
	}
	if c, ok := ClassifyText(text); ok {
		return c
	}
	if err == nil {
		return Unknown
	}
	if isTimeout(err) {
		return Timeout
	}
	if isNetwork(err) {
		return ServiceUnavailable
	}
	if c, ok := ClassifyText(err.Error()); ok {
		return c
	}
	return Unknown
}

// ClassifyText looks for blocked-account or invalid-credential phrasing in
// text scraped from the portal.
func ClassifyText(text string) (Code, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return "", false
	}
	if containsAny(t, blockedPhrases) {
		return AccountBlocked, true
	}
	if containsAny(t, invalidPhrases) {
		return InvalidCredentials, true
	}
	return "", false
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), timeoutPhrases)
}

func isNetwork(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), networkPhrases)
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
