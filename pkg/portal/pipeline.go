package portal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/failure"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/scratch"
)

// DiscoverCompanies logs in and lists the companies the account can act
// for, without selecting one. The returned error is only set when the run
// could not start: *gate.BusyError or a context error.
func (s *Scraper) DiscoverCompanies(ctx context.Context, creds models.Credentials) (*models.DiscoveryResult, error) {
	var companies []models.Company
	c, err := s.execute(ctx, "discover", creds, func(ctx context.Context, r *run) error {
		if err := r.login(ctx, creds); err != nil {
			return err
		}
		if err := r.openService(ctx); err != nil {
			return err
		}
		var err error
		companies, err = r.discoverCompanies(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if c != nil {
		return &models.DiscoveryResult{
			Success:   false,
			Companies: []models.Company{},
			Error:     c.Message,
			ErrorCode: c.Code,
		}, nil
	}
	return &models.DiscoveryResult{Success: true, Companies: companies}, nil
}

// FetchInvoices runs the whole pipeline for one company. Portal failures are
// reported in the result; the returned error is only set when the run could
// not start: *gate.BusyError or a context error.
func (s *Scraper) FetchInvoices(ctx context.Context, req FetchRequest) (*models.PipelineResult, error) {
	var result *models.PipelineResult
	c, err := s.execute(ctx, "fetch", req.Credentials, func(ctx context.Context, r *run) error {
		if err := r.login(ctx, req.Credentials); err != nil {
			return err
		}
		if err := r.openService(ctx); err != nil {
			return err
		}
		companies, err := r.discoverCompanies(ctx)
		if err != nil {
			return err
		}
		company, err := r.selectCompany(ctx, companies, req.CompanyIndex)
		if err != nil {
			return err
		}
		if err := r.applyFilters(ctx, req.Filters); err != nil {
			return err
		}
		records, err := r.extractRows(ctx)
		if err != nil {
			return err
		}
		if req.DownloadAttachments && len(records) > 0 {
			if err := r.prepareScratch(s); err != nil {
				r.log.Warnf("skipping attachments: %v", err)
			} else {
				r.fetchAttachments(ctx, records)
			}
		}
		result = models.SucceededResult(company, companies, records)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c != nil {
		return models.FailedResult(*c), nil
	}
	return result, nil
}

// execute holds a gate slot for the whole run and classifies whatever the
// run fails with. A nil classification means fn succeeded.
func (s *Scraper) execute(ctx context.Context, kind string, creds models.Credentials, fn func(ctx context.Context, r *run) error) (*failure.Classification, error) {
	var c *failure.Classification
	err := s.gate.Run(ctx, func(ctx context.Context) error {
		r := &run{
			id:          uuid.NewString(),
			sel:         s.selectors,
			cols:        s.columns,
			t:           s.timeouts,
			loginURL:    s.loginURL,
			serviceName: s.serviceName,
			taxpayerId:  creds.TaxpayerId,
		}
		r.log = log.WithFields(logrus.Fields{
			"run":      r.id,
			"kind":     kind,
			"taxpayer": models.MaskTaxpayerId(creds.TaxpayerId),
		})

		if err := s.runSession(ctx, r, fn); err != nil {
			classified := failure.Classify(err, "")
			r.log.WithField("code", classified.Code).Warnf("run failed: %v", err)
			c = &classified
			return nil
		}
		r.log.Infof("run completed")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// runSession is the single place that opens and tears down the browser
// session of a run.
func (s *Scraper) runSession(ctx context.Context, r *run, fn func(ctx context.Context, r *run) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeouts.Run)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("run panicked: %v", p)
			err = failure.New(failure.Unknown, "", fmt.Errorf("panic: %v", p))
		}
	}()
	defer func() {
		if r.scratch != nil {
			if err := r.scratch.RemoveRun(r.id); err != nil {
				r.log.Warnf("unable to remove scratch files: %v", err)
			}
		}
	}()

	sess, err := s.opener.Open(ctx)
	if err != nil {
		return fmt.Errorf("unable to open browser session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			r.log.Warnf("unable to close browser session: %v", err)
		}
	}()
	r.page = sess.Page()

	return fn(ctx, r)
}

func (r *run) prepareScratch(s *Scraper) error {
	store, err := s.scratchStore()
	if err != nil {
		return err
	}
	dir, err := store.RunDir(r.id)
	if err != nil {
		return err
	}
	r.scratch = store
	r.scratchDir = dir
	return nil
}

func (s *Scraper) scratchStore() (*scratch.Store, error) {
	s.scratchOnce.Do(func() {
		if s.scratch == nil {
			s.scratch, s.scratchErr = scratch.New("")
		}
	})
	return s.scratch, s.scratchErr
}
