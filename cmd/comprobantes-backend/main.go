package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	backend "github.com/denysvitali/comprobantes-backend"
	"github.com/denysvitali/comprobantes-backend/pkg/archive"
	"github.com/denysvitali/comprobantes-backend/pkg/browser"
	"github.com/denysvitali/comprobantes-backend/pkg/cli"
	"github.com/denysvitali/comprobantes-backend/pkg/crypt"
	"github.com/denysvitali/comprobantes-backend/pkg/gate"
	"github.com/denysvitali/comprobantes-backend/pkg/logutils"
	"github.com/denysvitali/comprobantes-backend/pkg/portal"
	"github.com/denysvitali/comprobantes-backend/pkg/reference"
	"github.com/denysvitali/comprobantes-backend/pkg/scratch"
)

var args struct {
	BrowserBin           string        `arg:"--browser-bin,env:BROWSER_BIN" help:"Path to a Chromium binary, downloaded when empty"`
	BrowserHeadful       bool          `arg:"--browser-headful,env:BROWSER_HEADFUL" help:"Show the browser window"`
	BrowserNoSandbox     bool          `arg:"--browser-no-sandbox,env:BROWSER_NO_SANDBOX" help:"Disable the Chromium sandbox (containers)"`
	GateCapacity         int           `arg:"--gate-capacity,env:GATE_CAPACITY" default:"1" help:"Browser sessions allowed at the same time"`
	GateMaxWait          time.Duration `arg:"--gate-max-wait,env:GATE_MAX_WAIT" default:"60s"`
	ListenAddr           string        `arg:"-L,--listen-addr,env:LISTEN_ADDR" default:"127.0.0.1:8085"`
	LoginURL             string        `arg:"--login-url,env:PORTAL_LOGIN_URL"`
	LogFormat            string        `arg:"--log-format,env:LOG_FORMAT" default:"text"`
	LogLevel             string        `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	OsAddr               string        `arg:"--opensearch-addr,env:OPENSEARCH_ADDR" help:"Archive successful fetches when set"`
	OsCaPath             string        `arg:"--opensearch-ca-path,env:OPENSEARCH_CA_PATH"`
	OsIndex              string        `arg:"--opensearch-index,env:OPENSEARCH_INDEX" default:"comprobantes"`
	OsInsecureSkipVerify bool          `arg:"--opensearch-insecure-skip-verify,env:OPENSEARCH_SKIP_TLS"`
	OsPassword           string        `arg:"--opensearch-password,env:OPENSEARCH_PASSWORD"`
	OsUsername           string        `arg:"--opensearch-username,env:OPENSEARCH_USERNAME"`
	OsWorkers            int           `arg:"--opensearch-workers,env:OPENSEARCH_WORKERS" default:"2"`
	Passphrase           string        `arg:"--passphrase,required,env:PASSPHRASE" help:"Passphrase of the credentials envelope, may be keychain:<element>"`
	RatesURL             string        `arg:"--rates-url,env:RATES_URL" default:"https://www.bna.com.ar/Personas"`
	RunTimeout           time.Duration `arg:"--run-timeout,env:RUN_TIMEOUT" default:"3m"`
	ScratchDir           string        `arg:"--scratch-dir,env:SCRATCH_DIR" help:"Directory for downloaded attachments, a temporary one when empty"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	logutils.SetLoggerLevel(args.LogLevel)
	logutils.SetLoggerFormat(args.LogFormat)

	c, err := crypt.New(args.Passphrase)
	if err != nil {
		log.Fatalf("create crypt: %v", err)
	}

	store, err := scratch.New(args.ScratchDir)
	if err != nil {
		log.Fatalf("create scratch store: %v", err)
	}

	timeouts := portal.DefaultTimeouts()
	timeouts.Run = args.RunTimeout
	scraper := portal.New(
		browser.NewLauncher(browserOptions()...),
		gate.New(gate.WithCapacity(args.GateCapacity), gate.WithMaxWait(args.GateMaxWait)),
		portal.WithLoginURL(args.LoginURL),
		portal.WithTimeouts(timeouts),
		portal.WithScratch(store),
	)

	rates, err := reference.New(args.RatesURL)
	if err != nil {
		log.Fatalf("create exchange rate client: %v", err)
	}
	opts := []backend.Option{backend.WithRates(rates)}

	var wg sync.WaitGroup
	var jobs chan archive.Job
	if args.OsAddr != "" {
		a := getArchive()
		jobs = make(chan archive.Job, 16)
		for i := 0; i < max(args.OsWorkers, 1); i++ {
			wg.Add(1)
			go archive.NewWorker(i, jobs, a).Start(&wg)
		}
		opts = append(opts, backend.WithArchive(a, jobs))
	}

	s, err := backend.New(scraper, c, opts...)
	if err != nil {
		log.Fatalf("create backend: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(args.ListenAddr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err = <-errCh:
		log.Errorf("listen: %v", err)
	case <-sig:
		log.Infof("shutting down")
	}

	if jobs != nil {
		close(jobs)
		wg.Wait()
	}
	if err := store.Cleanup(); err != nil {
		log.Warnf("unable to clean up scratch directory: %v", err)
	}
	if err != nil {
		os.Exit(1)
	}
}

func browserOptions() []browser.Option {
	opts := []browser.Option{
		browser.WithBin(args.BrowserBin),
		browser.WithHeadless(!args.BrowserHeadful),
	}
	if args.BrowserNoSandbox {
		opts = append(opts, browser.WithNoSandbox())
	}
	return opts
}

func getArchive() *archive.Archive {
	opts := []archive.Option{
		archive.WithIndex(args.OsIndex),
		archive.WithUsername(args.OsUsername),
		archive.WithPassword(args.OsPassword),
		archive.WithCAPath(args.OsCaPath),
	}
	if args.OsInsecureSkipVerify {
		opts = append(opts, archive.WithSkipTLS())
	}
	a, err := archive.New(args.OsAddr, opts...)
	if err != nil {
		log.Fatalf("create archive: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		log.Fatalf("ping opensearch: %v", err)
	}
	if err := a.EnsureIndex(ctx); err != nil {
		log.Fatalf("create index: %v", err)
	}
	return a
}
