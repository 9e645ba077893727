package portal

import (
	"context"
	"errors"
	"fmt"

	"github.com/denysvitali/comprobantes-backend/pkg/browser"
	"github.com/denysvitali/comprobantes-backend/pkg/failure"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/race"
)

// step is one named navigation step. A failing step is reported by name so
// that layout drift shows up at a single, identifiable place.
type step struct {
	name string
	run  func(ctx context.Context) error
}

func (r *run) steps(ctx context.Context, steps ...step) error {
	for _, s := range steps {
		r.log.Debugf("navigation step %q", s.name)
		if err := s.run(ctx); err != nil {
			r.log.Warnf("navigation step %q failed: %v", s.name, err)
			return failure.Navigation(s.name, err)
		}
	}
	return nil
}

// openService moves from the portal home to the invoice service, through
// the direct link when shown or through the portal search box otherwise.
func (r *run) openService(ctx context.Context) error {
	r.settle(ctx)
	hasLink, err := r.page.Has(ctx, r.sel.ServiceLink)
	if err != nil {
		return failure.Navigation("find service link", err)
	}
	if hasLink {
		return r.steps(ctx, step{"open service link", func(ctx context.Context) error {
			return r.clickFollowingTab(ctx, r.sel.ServiceLink)
		}})
	}

	r.log.Debugf("service link not shown, using the search box")
	return r.steps(ctx,
		step{"wait search box", func(ctx context.Context) error {
			return r.page.WaitVisible(ctx, r.sel.SearchBox)
		}},
		step{"search service", func(ctx context.Context) error {
			return r.page.Fill(ctx, r.sel.SearchBox, r.serviceName)
		}},
		step{"wait search result", func(ctx context.Context) error {
			return r.page.WaitVisible(ctx, r.sel.SearchResult)
		}},
		step{"open search result", func(ctx context.Context) error {
			return r.clickFollowingTab(ctx, r.sel.SearchResult)
		}},
	)
}

// clickFollowingTab clicks the first element matching selector and keeps
// working on the tab it opens, or on the current page if none opens.
func (r *run) clickFollowingTab(ctx context.Context, selector string) error {
	tabCtx, cancel := context.WithTimeout(ctx, r.t.NewTab)
	defer cancel()
	newTab := r.page.ExpectNewTab(tabCtx)

	if err := r.page.ClickNth(ctx, selector, 0); err != nil {
		return err
	}

	out := race.First(tabCtx, r.t.NewTab, "same-page",
		race.Branch[browser.Page]{Tag: "new-tab", Wait: func(ctx context.Context) (browser.Page, error) {
			return newTab()
		}},
	)
	if out.Tag == "new-tab" && out.Value != nil {
		r.log.Debugf("continuing on the new tab")
		r.page = out.Value
	} else {
		r.log.Debugf("no new tab opened, continuing on the current page")
	}
	r.settle(ctx)
	return nil
}

// discoverCompanies lists the companies the account can act for. Accounts
// acting for themselves only land directly on the query screen, in which
// case the account holder is the single company.
func (r *run) discoverCompanies(ctx context.Context) ([]models.Company, error) {
	out := race.First(ctx, r.t.Step, "none",
		race.Branch[struct{}]{Tag: "companies", Wait: r.visible(r.sel.CompanyButton)},
		race.Branch[struct{}]{Tag: "query-form", Wait: r.visible(r.sel.QueryForm)},
	)
	if out.Tag == "none" {
		err := errors.New("neither a company selection nor the query form showed up")
		if out.TimedOut {
			return nil, failure.New(failure.Timeout, "discover companies", err)
		}
		return nil, failure.New(failure.NavigationError, "discover companies", err)
	}

	html, err := r.page.HTML(ctx)
	if err != nil {
		return nil, failure.Navigation("discover companies", err)
	}
	companies, holder, err := ParseCompanies(html, r.sel)
	if err != nil {
		return nil, failure.Navigation("discover companies", err)
	}

	if len(companies) > 0 {
		r.companyButtons = true
		r.log.Infof("found %d company(ies)", len(companies))
		return companies, nil
	}

	if out.Tag != "query-form" {
		if has, err := r.page.Has(ctx, r.sel.QueryForm); err != nil || !has {
			return nil, failure.New(failure.NavigationError, "discover companies", errors.New("no company could be found"))
		}
	}
	id := holder.TaxpayerId
	if id == "" {
		id = r.taxpayerId
	}
	r.log.Infof("no company selection shown, using the account holder")
	return []models.Company{{TaxpayerId: id, Name: holder.Name, Index: 0}}, nil
}

// selectCompany enters the query screen for the company at index.
func (r *run) selectCompany(ctx context.Context, companies []models.Company, index int) (models.Company, error) {
	if index < 0 || index >= len(companies) {
		return models.Company{}, failure.New(failure.NavigationError, "select company",
			fmt.Errorf("company index %d out of range, %d available", index, len(companies)))
	}
	company := companies[index]

	var steps []step
	if r.companyButtons {
		steps = append(steps, step{"select company", func(ctx context.Context) error {
			if err := r.page.ClickNth(ctx, r.sel.CompanyButton, index); err != nil {
				return err
			}
			r.settle(ctx)
			return nil
		}})
	}
	steps = append(steps, step{"open queries", r.openQueries})
	if err := r.steps(ctx, steps...); err != nil {
		return models.Company{}, err
	}
	r.log.Infof("selected company %d (%s)", index, company.Name)
	return company, nil
}

func (r *run) openQueries(ctx context.Context) error {
	if has, err := r.page.Has(ctx, r.sel.QueryForm); err == nil && has {
		return nil
	}
	if err := r.page.Click(ctx, r.sel.QueriesLink); err != nil {
		return err
	}
	return r.page.WaitVisible(ctx, r.sel.QueryForm)
}

// settle waits for network idleness; not settling is only logged.
func (r *run) settle(ctx context.Context) {
	if err := r.page.WaitSettled(ctx); err != nil {
		r.log.Debugf("page did not settle: %v", err)
	}
}
