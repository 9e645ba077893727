// Package portal automates the tax portal's invoice queries through a
// browser session: login, company selection, query filters, result
// extraction and attachment downloads.
package portal

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/browser"
	"github.com/denysvitali/comprobantes-backend/pkg/gate"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/scratch"
)

var log = logrus.StandardLogger().WithField("package", "portal")

type Scraper struct {
	opener      browser.Opener
	gate        *gate.Gate
	selectors   Selectors
	columns     Columns
	timeouts    Timeouts
	loginURL    string
	serviceName string

	scratchOnce sync.Once
	scratch     *scratch.Store
	scratchErr  error
}

type Option func(*Scraper)

func WithSelectors(s Selectors) Option {
	return func(sc *Scraper) {
		sc.selectors = s
	}
}

func WithColumns(c Columns) Option {
	return func(sc *Scraper) {
		sc.columns = c
	}
}

func WithTimeouts(t Timeouts) Option {
	return func(sc *Scraper) {
		sc.timeouts = t
	}
}

func WithLoginURL(u string) Option {
	return func(sc *Scraper) {
		if u != "" {
			sc.loginURL = u
		}
	}
}

// WithServiceName sets the query typed into the portal search box when the
// service link is not shown.
func WithServiceName(name string) Option {
	return func(sc *Scraper) {
		if name != "" {
			sc.serviceName = name
		}
	}
}

// WithScratch sets where attachments are downloaded to. Without it a
// temporary directory is created on the first download.
func WithScratch(s *scratch.Store) Option {
	return func(sc *Scraper) {
		sc.scratch = s
	}
}

func New(opener browser.Opener, g *gate.Gate, opts ...Option) *Scraper {
	s := &Scraper{
		opener:      opener,
		gate:        g,
		selectors:   DefaultSelectors(),
		columns:     DefaultColumns(),
		timeouts:    DefaultTimeouts(),
		loginURL:    DefaultLoginURL,
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gate == nil {
		s.gate = gate.New()
	}
	return s
}

// FetchRequest describes one invoice query.
type FetchRequest struct {
	Credentials         models.Credentials
	CompanyIndex        int
	Filters             models.QueryFilters
	DownloadAttachments bool
}

// run is the state of one pipeline run. Its stages execute sequentially on
// the current page, which may change when the portal opens a new tab.
type run struct {
	id          string
	log         *logrus.Entry
	page        browser.Page
	sel         Selectors
	cols        Columns
	t           Timeouts
	loginURL    string
	serviceName string
	taxpayerId  string

	// companyButtons is set when the portal showed a company selection
	// control, as opposed to landing directly on the query screen.
	companyButtons bool

	scratch    *scratch.Store
	scratchDir string
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats reports the occupancy of the gate the scraper runs under.
func (s *Scraper) Stats() gate.Snapshot {
	return s.gate.Stats()
}
