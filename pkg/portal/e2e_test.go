package portal_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/comprobantes-backend/pkg/browser"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/portal"
)

func liveScraper(t *testing.T) (*portal.Scraper, models.Credentials) {
	t.Helper()
	if os.Getenv("E2E_TEST") != "true" {
		t.Skip("E2E_TEST not set, skipping test")
	}
	creds := models.Credentials{
		TaxpayerId: os.Getenv("PORTAL_TAXPAYER_ID"),
		Password:   os.Getenv("PORTAL_PASSWORD"),
	}
	if creds.TaxpayerId == "" || creds.Password == "" {
		t.Skip("PORTAL_TAXPAYER_ID or PORTAL_PASSWORD not set, skipping test")
	}
	launcher := browser.NewLauncher(
		browser.WithBin(os.Getenv("BROWSER_BIN")),
		browser.WithNoSandbox(),
	)
	return portal.New(launcher, nil), creds
}

func TestLive_DiscoverCompanies(t *testing.T) {
	s, creds := liveScraper(t)
	res, err := s.DiscoverCompanies(context.Background(), creds)
	require.NoError(t, err)
	require.True(t, res.Success, "%s: %s", res.ErrorCode, res.Error)
	assert.NotEmpty(t, res.Companies)
}

func TestLive_FetchInvoices(t *testing.T) {
	s, creds := liveScraper(t)
	now := time.Now()
	res, err := s.FetchInvoices(context.Background(), portal.FetchRequest{
		Credentials: creds,
		Filters: models.QueryFilters{
			DateFrom: now.AddDate(0, -1, 0),
			DateTo:   now,
			Role:     models.RoleReceived,
		},
	})
	require.NoError(t, err)
	require.True(t, res.Success, "%s: %s", res.ErrorCode, res.Error)
	require.NotNil(t, res.Company)
	for _, r := range res.Invoices {
		assert.Equal(t, models.FormatFullNumber(r.PointOfSale, r.Number), r.FullNumber)
	}
}
