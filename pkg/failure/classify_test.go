package failure_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/denysvitali/comprobantes-backend/pkg/failure"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		text string
		want failure.Code
	}{
		{"nil error, no text", nil, "", failure.Unknown},
		{"typed error wins", failure.New(failure.CaptchaRequired, "login", nil), "clave incorrecta", failure.CaptchaRequired},
		{"wrapped typed error", fmt.Errorf("auth: %w", failure.New(failure.NavigationError, "select", nil)), "", failure.NavigationError},
		{"invalid credentials text", errors.New("login failed"), "Clave o usuario incorrecto", failure.InvalidCredentials},
		{"blocked text", errors.New("login failed"), "La clave se encuentra BLOQUEADA", failure.AccountBlocked},
		{"blocked beats invalid", nil, "Datos incorrectos. Usuario bloqueado", failure.AccountBlocked},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), "", failure.Timeout},
		{"timeout phrasing", errors.New("Timeout 30000ms exceeded"), "", failure.Timeout},
		{"chromium network error", errors.New("navigate: net::ERR_NAME_NOT_RESOLVED"), "", failure.ServiceUnavailable},
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connect: connection refused"), "", failure.ServiceUnavailable},
		{"dns error", &net.DNSError{Err: "no such host", Name: "auth.example"}, "", failure.ServiceUnavailable},
		{"unmatched", errors.New("something odd"), "welcome", failure.Unknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := failure.Classify(tc.err, tc.text)
			assert.Equal(t, tc.want, c.Code)
			assert.Equal(t, failure.Describe(tc.want), c.Message)
		})
	}
}

func TestClassify_NeverLeaksRawText(t *testing.T) {
	c := failure.Classify(errors.New("panic: runtime error at 0xdeadbeef"), "")
	assert.NotContains(t, c.Message, "0xdeadbeef")
}

func TestNavigation(t *testing.T) {
	err := failure.Navigation("service-link", errors.New("element not found"))
	var fe *failure.Error
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, failure.NavigationError, fe.Code)
	assert.Equal(t, "service-link", fe.Step)

	err = failure.Navigation("service-link", context.DeadlineExceeded)
	assert.Equal(t, failure.Timeout, failure.Classify(err, "").Code)

	blocked := failure.New(failure.AccountBlocked, "verify", nil)
	assert.Same(t, blocked, failure.Navigation("other", blocked))
}
