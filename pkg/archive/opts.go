package archive

import (
	"net/http"
	"time"
)

func WithUsername(username string) Option {
	return func(a *Archive) {
		a.username = username
	}
}

func WithPassword(password string) Option {
	return func(a *Archive) {
		a.password = password
	}
}

func WithSkipTLS() Option {
	return func(a *Archive) {
		a.insecureSkipVerify = true
	}
}

// WithCAPath trusts only the CA certificates in the PEM file at path.
func WithCAPath(path string) Option {
	return func(a *Archive) {
		a.caPath = path
	}
}

func WithIndex(index string) Option {
	return func(a *Archive) {
		if index != "" {
			a.index = index
		}
	}
}

// WithTransport overrides the HTTP transport. WithCAPath and WithSkipTLS are
// ignored when set.
func WithTransport(transport http.RoundTripper) Option {
	return func(a *Archive) {
		a.transport = transport
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Archive) {
		a.now = now
	}
}
