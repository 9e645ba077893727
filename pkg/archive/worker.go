package archive

import (
	"context"
	"sync"
	"time"

	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

const DefaultStoreTimeout = 30 * time.Second

// Job is one successful fetch waiting to be archived.
type Job struct {
	Company  models.Company
	Invoices []models.InvoiceRecord
}

type Storer interface {
	Store(ctx context.Context, company models.Company, records []models.InvoiceRecord) error
}

// Worker drains a job channel into the archive so that HTTP responses never
// wait on OpenSearch.
type Worker struct {
	id      int
	ch      chan Job
	storer  Storer
	timeout time.Duration
}

func NewWorker(id int, ch chan Job, storer Storer) *Worker {
	return &Worker{id: id, ch: ch, storer: storer, timeout: DefaultStoreTimeout}
}

func (w *Worker) do(job Job) {
	log.Debugf("[W%d]: archiving %d invoices", w.id, len(job.Invoices))

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	if err := w.storer.Store(ctx, job.Company, job.Invoices); err != nil {
		log.Errorf("[W%d]: unable to archive invoices for %s: %v", w.id, models.MaskTaxpayerId(job.Company.TaxpayerId), err)
		return
	}

	log.Debugf("[W%d]: archived %d invoices", w.id, len(job.Invoices))
}

// Start processes jobs until ch is closed.
func (w *Worker) Start(wg *sync.WaitGroup) {
	defer wg.Done()
	if w.storer == nil {
		log.Errorf("unable to start worker: storer is nil")
		for range w.ch {
		}
		return
	}
	for job := range w.ch {
		w.do(job)
	}
	log.Infof("[W%d]: done archiving", w.id)
}
