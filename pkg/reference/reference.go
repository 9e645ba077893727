// Package reference reads the public exchange-rate table published by the
// national bank. It does not go through the browser gate.
package reference

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/portal"
)

const (
	DefaultEndpoint = "https://www.bna.com.ar/Personas"
	DefaultTable    = "#billetes"
	DefaultTTL      = 5 * time.Minute
)

var log = logrus.StandardLogger().WithField("package", "reference")

type Rate struct {
	Currency string          `json:"currency"`
	Name     string          `json:"name"`
	Buy      decimal.Decimal `json:"buy"`
	Sell     decimal.Decimal `json:"sell"`
}

type Table struct {
	// Date is the publication date as printed on the page.
	Date      string    `json:"date,omitempty"`
	Rates     []Rate    `json:"rates"`
	FetchedAt time.Time `json:"fetchedAt"`
}

type Client struct {
	http     *http.Client
	endpoint *url.URL
	table    string
	ttl      time.Duration
	now      func() time.Time

	mutex  sync.Mutex
	cached *Table
}

type Option func(*Client)

func WithTable(selector string) Option {
	return func(c *Client) {
		if selector != "" {
			c.table = selector
		}
	}
}

// WithTTL sets how long a fetched table is served from memory. Zero disables
// caching.
func WithTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.ttl = ttl
	}
}

func WithHttpClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scheme %s is not supported", u.Scheme)
	}

	c := &Client{
		http:     &http.Client{Timeout: 15 * time.Second},
		endpoint: u,
		table:    DefaultTable,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Rates returns the current table, from memory when it is fresh enough.
func (c *Client) Rates(ctx context.Context) (*Table, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.cached != nil && c.ttl > 0 && c.now().Sub(c.cached.FetchedAt) < c.ttl {
		return c.cached, nil
	}

	t, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = t
	return t, nil
}

func (c *Client) fetch(ctx context.Context) (*Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to perform HTTP request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to parse page: %w", err)
	}
	t, err := ParseTable(doc.Selection, c.table)
	if err != nil {
		return nil, err
	}
	t.FetchedAt = c.now()
	log.Debugf("fetched %d exchange rates", len(t.Rates))
	return t, nil
}

// ParseTable reads a three-column currency/buy/sell table found under
// selector. Rows whose amounts cannot be parsed are skipped.
func ParseTable(doc *goquery.Selection, selector string) (*Table, error) {
	container := doc.Find(selector).First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("exchange rate table %s not found", selector)
	}

	t := &Table{
		Date:  strings.TrimSpace(container.Find("thead th").First().Text()),
		Rates: []Rate{},
	}
	container.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		name := strings.Join(strings.Fields(cells.Eq(0).Text()), " ")
		buy, err := portal.ParseAmount(cells.Eq(1).Text())
		if err != nil {
			log.Debugf("skipping rate row %d: %v", i, err)
			return
		}
		sell, err := portal.ParseAmount(cells.Eq(2).Text())
		if err != nil {
			log.Debugf("skipping rate row %d: %v", i, err)
			return
		}
		t.Rates = append(t.Rates, Rate{
			Currency: portal.CurrencyCode(name),
			Name:     name,
			Buy:      buy,
			Sell:     sell,
		})
	})
	if len(t.Rates) == 0 {
		return nil, fmt.Errorf("exchange rate table %s has no rates", selector)
	}
	return t, nil
}
