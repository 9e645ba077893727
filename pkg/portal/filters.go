package portal

import (
	"context"

	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

const portalDateLayout = "02/01/2006"

// applyFilters fills the query form and submits it. It returns once the
// results had time to render.
func (r *run) applyFilters(ctx context.Context, f models.QueryFilters) error {
	steps := []step{
		{"fill date from", func(ctx context.Context) error {
			return r.page.Fill(ctx, r.sel.DateFrom, f.DateFrom.Format(portalDateLayout))
		}},
		{"fill date to", func(ctx context.Context) error {
			return r.page.Fill(ctx, r.sel.DateTo, f.DateTo.Format(portalDateLayout))
		}},
	}
	if f.PointOfSale != "" {
		steps = append(steps, step{"select point of sale", func(ctx context.Context) error {
			return r.page.SelectOption(ctx, r.sel.PointOfSale, f.PointOfSale)
		}})
	}
	if f.DocumentType != "" {
		steps = append(steps, step{"select document type", func(ctx context.Context) error {
			return r.page.SelectOption(ctx, r.sel.DocumentType, f.DocumentType)
		}})
	}
	if radio := r.roleRadio(f.Role); radio != "" {
		steps = append(steps, step{"select role", func(ctx context.Context) error {
			return r.page.Click(ctx, radio)
		}})
	}
	steps = append(steps, step{"search", func(ctx context.Context) error {
		return r.page.Click(ctx, r.sel.SearchButton)
	}})

	if err := r.steps(ctx, steps...); err != nil {
		return err
	}
	r.log.Debugf("search submitted for %s..%s (%s)",
		f.DateFrom.Format(portalDateLayout), f.DateTo.Format(portalDateLayout), f.Role)

	if err := r.page.WaitSettled(ctx); err != nil {
		r.log.Warnf("results did not reach network idle: %v", err)
	}
	// the table keeps re-rendering for a moment after the network is idle
	return sleep(ctx, r.t.Settle)
}

func (r *run) roleRadio(role models.Role) string {
	switch role {
	case models.RoleIssued:
		return r.sel.RoleIssued
	case models.RoleReceived:
		return r.sel.RoleReceived
	}
	return ""
}
