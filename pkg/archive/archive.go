// Package archive keeps a searchable copy of fetched invoices in OpenSearch.
package archive

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go"
	"github.com/opensearch-project/opensearch-go/opensearchapi"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/comprobantes-backend/pkg/caroundtripper"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

const (
	DefaultIndex      = "comprobantes"
	DefaultSearchSize = 50
)

var log = logrus.StandardLogger().WithField("package", "archive")

// Invoice is the stored document: the record plus the company it was fetched for.
type Invoice struct {
	models.InvoiceRecord
	Company   models.Company `json:"company"`
	IndexedAt time.Time      `json:"indexedAt"`
}

type Hit struct {
	Id     string  `json:"id"`
	Score  float64 `json:"score"`
	Source Invoice `json:"invoice"`
}

type Archive struct {
	addr               string
	username           string
	password           string
	insecureSkipVerify bool
	caPath             string
	index              string
	transport          http.RoundTripper
	now                func() time.Time

	client *opensearch.Client
}

type Option func(*Archive)

func New(addr string, opts ...Option) (*Archive, error) {
	a := &Archive{
		addr:  addr,
		index: DefaultIndex,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	transport := a.transport
	switch {
	case transport != nil:
	case a.caPath != "":
		ca, err := caroundtripper.New(a.caPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load CA: %w", err)
		}
		transport = ca
	case a.insecureSkipVerify:
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	default:
		transport = http.DefaultTransport
	}

	var err error
	a.client, err = opensearch.NewClient(opensearch.Config{
		Addresses: []string{a.addr},
		Username:  a.username,
		Password:  a.password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create opensearch client: %w", err)
	}
	return a, nil
}

func (a *Archive) Index() string {
	return a.index
}

func (a *Archive) Ping(ctx context.Context) error {
	req := opensearchapi.PingRequest{}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("unable to ping opensearch: %s", res.Status())
	}
	return nil
}

// EnsureIndex creates the index. An existing index is not an error.
func (a *Archive) EnsureIndex(ctx context.Context) error {
	req := opensearchapi.IndicesCreateRequest{
		Index: a.index,
		Body:  strings.NewReader(indexMapping),
	}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusBadRequest {
		// Index already exists
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("unable to create index %s: %s: %s", a.index, res.Status(), decodeError(res.Body))
	}
	return nil
}

// DocumentId identifies a record across fetches so that re-fetching the same
// range overwrites instead of duplicating.
func DocumentId(company models.Company, r models.InvoiceRecord) string {
	owner := company.TaxpayerId
	if owner == "" {
		owner = strings.ReplaceAll(strings.ToLower(company.Name), " ", "-")
	}
	return fmt.Sprintf("%s_%s_%d", owner, r.FullNumber, r.DocumentType.Code)
}

// Store indexes records in a single bulk request.
func (a *Archive) Store(ctx context.Context, company models.Company, records []models.InvoiceRecord) error {
	if len(records) == 0 {
		return nil
	}

	body := bytes.NewBuffer(nil)
	enc := json.NewEncoder(body)
	indexedAt := a.now().UTC()
	for _, r := range records {
		action := map[string]any{
			"index": map[string]any{"_id": DocumentId(company, r)},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("unable to encode bulk action: %w", err)
		}
		if err := enc.Encode(Invoice{InvoiceRecord: r, Company: company, IndexedAt: indexedAt}); err != nil {
			return fmt.Errorf("unable to encode invoice %s: %w", r.FullNumber, err)
		}
	}

	req := opensearchapi.BulkRequest{Index: a.index, Body: body}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return fmt.Errorf("unable to index invoices: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("opensearch returned an invalid status %s: %s", res.Status(), decodeError(res.Body))
	}

	var bulk bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulk); err != nil {
		return fmt.Errorf("unable to decode bulk response: %w", err)
	}
	if bulk.Errors {
		failed := 0
		var first string
		for _, item := range bulk.Items {
			for _, result := range item {
				if result.Status < 200 || result.Status > 299 {
					failed++
					if first == "" {
						first = result.Error.Reason
					}
				}
			}
		}
		return fmt.Errorf("%d of %d invoices were not indexed: %s", failed, len(records), first)
	}
	log.Debugf("indexed %d invoices for %s", len(records), models.MaskTaxpayerId(company.TaxpayerId))
	return nil
}

// Search runs a full text query over the archive. An empty company id searches
// every company.
func (a *Archive) Search(ctx context.Context, term string, companyTaxpayerId string, size int) ([]Hit, error) {
	if size <= 0 {
		size = DefaultSearchSize
	}
	query := map[string]any{
		"bool": map[string]any{
			"must": []any{
				map[string]any{
					"query_string": map[string]any{
						"query":            term,
						"default_operator": "AND",
					},
				},
			},
		},
	}
	if companyTaxpayerId != "" {
		query["bool"].(map[string]any)["filter"] = []any{
			map[string]any{"term": map[string]any{"company.taxpayerId": companyTaxpayerId}},
		}
	}
	searchContent := map[string]any{
		"size":  size,
		"query": query,
		"sort": []any{
			map[string]any{"issueDate": map[string]any{"order": "desc"}},
			"_score",
		},
	}

	jsonBody, err := json.Marshal(searchContent)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal JSON: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{a.index},
		Body:  bytes.NewReader(jsonBody),
	}
	res, err := req.Do(ctx, a.client)
	if err != nil {
		return nil, fmt.Errorf("unable to perform search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("unable to perform search: %s: %s", res.Status(), decodeError(res.Body))
	}

	var docs struct {
		Hits struct {
			Hits []struct {
				Id     string   `json:"_id"`
				Score  *float64 `json:"_score"`
				Source Invoice  `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&docs); err != nil {
		return nil, fmt.Errorf("unable to decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(docs.Hits.Hits))
	for _, h := range docs.Hits.Hits {
		hit := Hit{Id: h.Id, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Id     string `json:"_id"`
		Status int    `json:"status"`
		Error  struct {
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func decodeError(body io.Reader) string {
	raw, err := io.ReadAll(body)
	if err != nil || len(raw) == 0 {
		return ""
	}
	var errorMessage struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &errorMessage); err != nil || len(errorMessage.Error) == 0 {
		return string(raw)
	}
	var reason struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(errorMessage.Error, &reason); err == nil && reason.Reason != "" {
		return reason.Reason
	}
	if s, err := strconv.Unquote(string(errorMessage.Error)); err == nil {
		return s
	}
	return string(errorMessage.Error)
}

const indexMapping = `{
  "mappings": {
    "properties": {
      "issueDate": {"type": "date", "format": "yyyy-MM-dd"},
      "fullNumber": {"type": "keyword"},
      "currency": {"type": "keyword"},
      "netAmount": {"type": "scaled_float", "scaling_factor": 100},
      "taxAmount": {"type": "scaled_float", "scaling_factor": 100},
      "totalAmount": {"type": "scaled_float", "scaling_factor": 100},
      "authorizationCode": {"type": "keyword"},
      "issuer": {"properties": {"taxpayerId": {"type": "keyword"}, "name": {"type": "text"}}},
      "receiver": {"properties": {"taxpayerId": {"type": "keyword"}, "name": {"type": "text"}}},
      "company": {"properties": {"taxpayerId": {"type": "keyword"}, "name": {"type": "text"}}},
      "indexedAt": {"type": "date"}
    }
  }
}`
