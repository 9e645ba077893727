package main

// Archives fetch results saved with comprobantes-fetch --output, for example
// to rebuild the index after a mapping change.

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/archive"
	"github.com/denysvitali/comprobantes-backend/pkg/cli"
	"github.com/denysvitali/comprobantes-backend/pkg/logutils"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

var args struct {
	InputDir string `arg:"positional,required"`

	LogLevel                     string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	OpenSearchAddr               string `arg:"-a,--os-address,env:OPENSEARCH_ADDR,required"`
	OpenSearchCaPath             string `arg:"--os-ca-path,env:OPENSEARCH_CA_PATH"`
	OpenSearchIndex              string `arg:"--os-index,env:OPENSEARCH_INDEX" default:"comprobantes"`
	OpenSearchInsecureSkipVerify bool   `arg:"--insecure,env:OPENSEARCH_INSECURE_SKIP_VERIFY"`
	OpenSearchPassword           string `arg:"-p,--os-password,env:OPENSEARCH_PASSWORD"`
	OpenSearchUsername           string `arg:"-u,--os-username,env:OPENSEARCH_USERNAME"`
	Workers                      int    `arg:"-w" default:"4"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}
	logutils.SetLoggerLevel(args.LogLevel)

	if args.Workers <= 0 {
		args.Workers = 4
		log.Warnf("workers cannot be <= 0, resetting value to %d", args.Workers)
	}

	opts := []archive.Option{
		archive.WithIndex(args.OpenSearchIndex),
		archive.WithUsername(args.OpenSearchUsername),
		archive.WithPassword(args.OpenSearchPassword),
		archive.WithCAPath(args.OpenSearchCaPath),
	}
	if args.OpenSearchInsecureSkipVerify {
		opts = append(opts, archive.WithSkipTLS())
	}
	a, err := archive.New(args.OpenSearchAddr, opts...)
	if err != nil {
		log.Fatalf("unable to create archive: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		log.Fatalf("unable to ping OpenSearch: %v", err)
	}
	if err := a.EnsureIndex(ctx); err != nil {
		log.Fatalf("unable to create index: %v", err)
	}

	ch := make(chan archive.Job)
	wg := sync.WaitGroup{}
	for i := 0; i < args.Workers; i++ {
		wg.Add(1)
		go archive.NewWorker(i, ch, a).Start(&wg)
	}

	for _, file := range listFiles(args.InputDir) {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}
		job, err := readResult(filepath.Join(args.InputDir, file.Name()))
		if err != nil {
			log.Errorf("skipping %s: %v", file.Name(), err)
			continue
		}
		ch <- *job
	}
	close(ch)
	wg.Wait()
	log.Infof("done")
}

func readResult(path string) (*archive.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var res models.PipelineResult
	if err := json.NewDecoder(f).Decode(&res); err != nil {
		return nil, err
	}
	if !res.Success || res.Company == nil {
		return nil, os.ErrInvalid
	}
	return &archive.Job{Company: *res.Company, Invoices: res.Invoices}, nil
}

func listFiles(dir string) []os.DirEntry {
	d, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("unable to read directory: %v", err)
	}
	return d
}
