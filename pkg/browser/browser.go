// Package browser drives a single isolated headless browser session.
//
// The pipeline stages only see the Page interface, which keeps them
// independent of the underlying automation library.
package browser

import (
	"context"
	"errors"
)

var ErrNoDownload = errors.New("no download started")

// Page is the subset of browser interactions the portal automation needs.
// Every method is bounded by the session's per-operation timeout.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() (string, error)
	// Has reports whether selector currently matches, without waiting.
	Has(ctx context.Context, selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string) error
	Text(ctx context.Context, selector string) (string, error)
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the n-th (zero based) element matching selector.
	ClickNth(ctx context.Context, selector string, n int) error
	// Fill selects the current content of the field and types value over it.
	Fill(ctx context.Context, selector string, value string) error
	SelectOption(ctx context.Context, selector string, label string) error
	ScrollIntoView(ctx context.Context, selector string) error
	// WaitSettled waits until the page has no in-flight network requests.
	WaitSettled(ctx context.Context) error
	HTML(ctx context.Context) (string, error)

	// The Expect* methods must be called before the action that triggers the
	// event. The returned function blocks until the event or until ctx is done.
	ExpectNavigation(ctx context.Context) func() error
	ExpectNewTab(ctx context.Context) func() (Page, error)
	ExpectDownload(ctx context.Context, dir string) func() (string, error)
}

type Session interface {
	Page() Page
	Close() error
}

type Opener interface {
	Open(ctx context.Context) (Session, error)
}
