package archive_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/comprobantes-backend/pkg/archive"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

const opensearchAddr = "http://opensearch.test:9200"

var company = models.Company{TaxpayerId: "20123456789", Name: "PEREZ JUAN"}

func records() []models.InvoiceRecord {
	return []models.InvoiceRecord{
		{
			IssueDate:    "2024-03-15",
			DocumentType: models.DocumentType{Code: 1, Name: "Factura A"},
			PointOfSale:  3,
			Number:       45,
			FullNumber:   "00003-00000045",
			Issuer:       models.Party{TaxpayerId: "30700000007", Name: "GLOBEX SRL"},
			TotalAmount:  decimal.RequireFromString("121"),
			Currency:     "ARS",
		},
		{
			IssueDate:    "2024-03-16",
			DocumentType: models.DocumentType{Code: 11, Name: "Factura C"},
			PointOfSale:  1,
			Number:       7,
			FullNumber:   "00001-00000007",
			TotalAmount:  decimal.RequireFromString("10"),
			Currency:     "ARS",
		},
	}
}

func newArchive(t *testing.T) *archive.Archive {
	t.Helper()
	t.Cleanup(gock.Off)
	gock.New(opensearchAddr).
		Persist().
		Get("/").
		Reply(http.StatusOK).
		JSON(map[string]any{"version": map[string]any{"number": "2.11.0", "distribution": "opensearch"}})

	a, err := archive.New(opensearchAddr,
		archive.WithClock(func() time.Time { return time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	return a
}

func TestDocumentId(t *testing.T) {
	r := records()[0]
	assert.Equal(t, "20123456789_00003-00000045_1", archive.DocumentId(company, r))
	assert.Equal(t, "acme-sa_00003-00000045_1", archive.DocumentId(models.Company{Name: "ACME SA"}, r))
}

func TestEnsureIndex_AlreadyExists(t *testing.T) {
	a := newArchive(t)
	gock.New(opensearchAddr).
		Put("/comprobantes").
		Reply(http.StatusBadRequest).
		JSON(map[string]any{"error": map[string]any{"type": "resource_already_exists_exception"}})

	assert.NoError(t, a.EnsureIndex(context.Background()))
}

func TestEnsureIndex_Error(t *testing.T) {
	a := newArchive(t)
	gock.New(opensearchAddr).
		Put("/comprobantes").
		Reply(http.StatusForbidden).
		JSON(map[string]any{"error": map[string]any{"reason": "no permissions"}})

	err := a.EnsureIndex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no permissions")
}

func TestStore(t *testing.T) {
	a := newArchive(t)
	var body string
	gock.New(opensearchAddr).
		Post("/comprobantes/_bulk").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			raw, err := io.ReadAll(req.Body)
			body = string(raw)
			return err == nil, err
		}).
		Reply(http.StatusOK).
		JSON(map[string]any{
			"errors": false,
			"items": []any{
				map[string]any{"index": map[string]any{"_id": "20123456789_00003-00000045_1", "status": 201}},
				map[string]any{"index": map[string]any{"_id": "20123456789_00001-00000007_11", "status": 201}},
			},
		})

	require.NoError(t, a.Store(context.Background(), company, records()))
	assert.Contains(t, body, `{"index":{"_id":"20123456789_00003-00000045_1"}}`)
	assert.Contains(t, body, `{"index":{"_id":"20123456789_00001-00000007_11"}}`)
	assert.Contains(t, body, `"company":{"taxpayerId":"20123456789","name":"PEREZ JUAN","index":0}`)
	assert.Contains(t, body, `"indexedAt":"2024-03-20T12:00:00Z"`)
	assert.Contains(t, body, `"fullNumber":"00003-00000045"`)
}

func TestStore_PartialFailure(t *testing.T) {
	a := newArchive(t)
	gock.New(opensearchAddr).
		Post("/comprobantes/_bulk").
		Reply(http.StatusOK).
		JSON(map[string]any{
			"errors": true,
			"items": []any{
				map[string]any{"index": map[string]any{"_id": "a", "status": 201}},
				map[string]any{"index": map[string]any{"_id": "b", "status": 400, "error": map[string]any{"reason": "mapper_parsing_exception"}}},
			},
		})

	err := a.Store(context.Background(), company, records())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestStore_Empty(t *testing.T) {
	a := newArchive(t)
	assert.NoError(t, a.Store(context.Background(), company, nil))
}

func TestSearch(t *testing.T) {
	a := newArchive(t)
	var body string
	gock.New(opensearchAddr).
		Post("/comprobantes/_search").
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			raw, err := io.ReadAll(req.Body)
			body = string(raw)
			return err == nil, err
		}).
		Reply(http.StatusOK).
		JSON(map[string]any{
			"hits": map[string]any{
				"hits": []any{
					map[string]any{
						"_id":    "20123456789_00003-00000045_1",
						"_score": 1.5,
						"_source": map[string]any{
							"fullNumber":  "00003-00000045",
							"totalAmount": "121",
							"issuer":      map[string]any{"taxpayerId": "30700000007", "name": "GLOBEX SRL"},
							"company":     map[string]any{"taxpayerId": "20123456789", "name": "PEREZ JUAN"},
						},
					},
				},
			},
		})

	hits, err := a.Search(context.Background(), "GLOBEX", "20123456789", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "20123456789_00003-00000045_1", hits[0].Id)
	assert.Equal(t, 1.5, hits[0].Score)
	assert.Equal(t, "GLOBEX SRL", hits[0].Source.Issuer.Name)
	assert.True(t, hits[0].Source.TotalAmount.Equal(decimal.NewFromInt(121)))
	assert.Equal(t, "20123456789", hits[0].Source.Company.TaxpayerId)

	assert.Contains(t, body, `"query":"GLOBEX"`)
	assert.Contains(t, body, `"company.taxpayerId":"20123456789"`)
	assert.Contains(t, body, `"size":50`)
}

func TestSearch_Error(t *testing.T) {
	a := newArchive(t)
	gock.New(opensearchAddr).
		Post("/comprobantes/_search").
		Reply(http.StatusBadRequest).
		JSON(map[string]any{"error": map[string]any{"reason": "failed to parse query"}})

	_, err := a.Search(context.Background(), "a:(", "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse query")
}

type recordingStorer struct {
	mu   sync.Mutex
	jobs []archive.Job
}

func (s *recordingStorer) Store(_ context.Context, company models.Company, records []models.InvoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, archive.Job{Company: company, Invoices: records})
	return nil
}

func TestWorker(t *testing.T) {
	storer := &recordingStorer{}
	ch := make(chan archive.Job, 2)
	w := archive.NewWorker(1, ch, storer)

	var wg sync.WaitGroup
	wg.Add(1)
	go w.Start(&wg)

	ch <- archive.Job{Company: company, Invoices: records()}
	ch <- archive.Job{Company: models.Company{Name: "ACME SA", Index: 1}, Invoices: records()[:1]}
	close(ch)
	wg.Wait()

	require.Len(t, storer.jobs, 2)
	assert.Len(t, storer.jobs[0].Invoices, 2)
	assert.Equal(t, "ACME SA", storer.jobs[1].Company.Name)
}

func TestNew_MissingCA(t *testing.T) {
	_, err := archive.New(opensearchAddr, archive.WithCAPath("/nonexistent/ca.pem"))
	assert.Error(t, err)
}
