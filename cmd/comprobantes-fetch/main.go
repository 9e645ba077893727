package main

// Runs a single discovery or invoice fetch against the portal and prints the
// result as JSON. Results written with --output can later be archived with
// comprobantes-archive.

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/browser"
	"github.com/denysvitali/comprobantes-backend/pkg/cli"
	"github.com/denysvitali/comprobantes-backend/pkg/logutils"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/portal"
)

var args struct {
	TaxpayerId string `arg:"--taxpayer-id,required,env:PORTAL_TAXPAYER_ID"`
	Password   string `arg:"--password,required,env:PORTAL_PASSWORD" help:"May be keychain:<element>"`

	Discover            bool   `arg:"--discover" help:"Only list the companies available to the account"`
	CompanyIndex        int    `arg:"-c,--company-index"`
	DateFrom            string `arg:"--from" help:"YYYY-MM-DD, defaults to the first day of the current month"`
	DateTo              string `arg:"--to" help:"YYYY-MM-DD, defaults to today"`
	Role                string `arg:"--role" default:"received" help:"issued or received"`
	PointOfSale         string `arg:"--point-of-sale"`
	DocumentType        string `arg:"--document-type"`
	DownloadAttachments bool   `arg:"-a,--attachments"`
	Output              string `arg:"-o,--output" help:"Write the result to this file instead of stdout"`

	BrowserBin     string        `arg:"--browser-bin,env:BROWSER_BIN"`
	BrowserHeadful bool          `arg:"--browser-headful"`
	LogLevel       string        `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	LoginURL       string        `arg:"--login-url,env:PORTAL_LOGIN_URL"`
	RunTimeout     time.Duration `arg:"--run-timeout" default:"3m"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	logutils.SetLoggerLevel(args.LogLevel)

	timeouts := portal.DefaultTimeouts()
	timeouts.Run = args.RunTimeout
	scraper := portal.New(
		browser.NewLauncher(
			browser.WithBin(args.BrowserBin),
			browser.WithHeadless(!args.BrowserHeadful),
		),
		nil,
		portal.WithLoginURL(args.LoginURL),
		portal.WithTimeouts(timeouts),
	)
	creds := models.Credentials{TaxpayerId: args.TaxpayerId, Password: args.Password}

	var result any
	var success bool
	ctx := context.Background()
	if args.Discover {
		res, err := scraper.DiscoverCompanies(ctx, creds)
		if err != nil {
			log.Fatalf("discover companies: %v", err)
		}
		result, success = res, res.Success
	} else {
		filters, err := getFilters()
		if err != nil {
			log.Fatalf("invalid filters: %v", err)
		}
		res, err := scraper.FetchInvoices(ctx, portal.FetchRequest{
			Credentials:         creds,
			CompanyIndex:        args.CompanyIndex,
			Filters:             filters,
			DownloadAttachments: args.DownloadAttachments,
		})
		if err != nil {
			log.Fatalf("fetch invoices: %v", err)
		}
		result, success = res, res.Success
	}

	if err := write(result); err != nil {
		log.Fatalf("write result: %v", err)
	}
	if !success {
		os.Exit(2)
	}
}

func getFilters() (models.QueryFilters, error) {
	now := time.Now()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	var err error
	if args.DateFrom != "" {
		if from, err = time.Parse(time.DateOnly, args.DateFrom); err != nil {
			return models.QueryFilters{}, err
		}
	}
	if args.DateTo != "" {
		if to, err = time.Parse(time.DateOnly, args.DateTo); err != nil {
			return models.QueryFilters{}, err
		}
	}
	role, err := models.ParseRole(args.Role)
	if err != nil {
		return models.QueryFilters{}, err
	}
	return models.QueryFilters{
		DateFrom:     from,
		DateTo:       to,
		Role:         role,
		PointOfSale:  args.PointOfSale,
		DocumentType: args.DocumentType,
	}, nil
}

func write(result any) error {
	var w io.Writer = os.Stdout
	if args.Output != "" {
		f, err := os.Create(args.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
