package portal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/denysvitali/comprobantes-backend/pkg/failure"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/race"
)

const minCells = 8

var (
	errShortRow       = errors.New("row has too few cells")
	documentTypeRe    = regexp.MustCompile(`^\s*(\d+)\s*-\s*(.+?)\s*$`)
	cuitRe            = regexp.MustCompile(`\b(\d{2})-?(\d{8})-?(\d)\b`)
	portalDateLayouts = []string{"02/01/2006", "2006-01-02", "02-01-2006"}
)

// extractRows reads the results table once the search has settled.
func (r *run) extractRows(ctx context.Context) ([]models.InvoiceRecord, error) {
	out := race.First(ctx, r.t.Step, "none",
		race.Branch[struct{}]{Tag: "empty", Wait: r.visible(r.sel.NoResults)},
		race.Branch[struct{}]{Tag: "table", Wait: r.visible(r.sel.ResultsTable)},
	)
	switch out.Tag {
	case "empty":
		r.log.Infof("the portal reports no results")
		return []models.InvoiceRecord{}, nil
	case "none":
		err := fmt.Errorf("results did not show up within %s", r.t.Step)
		if out.TimedOut {
			return nil, failure.New(failure.Timeout, "wait for results", err)
		}
		return nil, failure.New(failure.NavigationError, "wait for results", errors.Join(out.Errs...))
	}

	// the marker lives inside the table on some layouts
	if empty, err := r.page.Has(ctx, r.sel.NoResults); err == nil && empty {
		r.log.Infof("the portal reports no results")
		return []models.InvoiceRecord{}, nil
	}

	if err := r.page.ScrollIntoView(ctx, r.sel.ResultsTable); err != nil {
		return nil, failure.Navigation("scroll results", err)
	}
	html, err := r.page.HTML(ctx)
	if err != nil {
		return nil, failure.Navigation("read results", err)
	}

	batch, err := ParseRows(html, r.sel.ResultRows, r.cols)
	if err != nil {
		return nil, failure.Navigation("parse results", err)
	}
	for _, f := range batch.Failed() {
		r.log.Warnf("skipping row %d: %v", f.Index, f.Err)
	}
	records := batch.Values()
	r.log.Infof("extracted %d record(s), skipped %d row(s)", len(records), len(batch.Failed()))
	return records, nil
}

// visible returns a race branch that resolves once selector is visible.
func (r *run) visible(selector string) func(ctx context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.page.WaitVisible(ctx, selector)
	}
}

// ParseRows parses the rows matched by rowSelector in html. Rows that cannot
// be parsed are reported as failed items of the batch.
func ParseRows(html string, rowSelector string, cols Columns) (Batch[models.InvoiceRecord], error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("unable to parse html: %w", err)
	}

	var batch Batch[models.InvoiceRecord]
	doc.Find(rowSelector).Each(func(i int, row *goquery.Selection) {
		rec, err := parseRow(row.Find("td"), cols)
		batch = append(batch, Result[models.InvoiceRecord]{Index: i, Value: rec, Err: err})
	})
	return batch, nil
}

func parseRow(cells *goquery.Selection, cols Columns) (models.InvoiceRecord, error) {
	var rec models.InvoiceRecord
	n := cells.Length()
	if n < minCells {
		return rec, fmt.Errorf("%w: %d", errShortRow, n)
	}
	for _, idx := range []int{cols.Date, cols.Type, cols.Number, cols.Authorization, cols.Issuer, cols.Receiver, cols.Currency, cols.Total} {
		if idx < 0 || idx >= n {
			return rec, fmt.Errorf("%w: column %d missing", errShortRow, idx)
		}
	}
	text := func(idx int) string {
		return cleanText(cells.Eq(idx).Text())
	}

	date, err := parsePortalDate(text(cols.Date))
	if err != nil {
		return rec, err
	}
	rec.IssueDate = date

	rec.DocumentType, err = parseDocumentType(text(cols.Type))
	if err != nil {
		return rec, err
	}

	pos, number, err := models.ParseFullNumber(text(cols.Number))
	if err != nil {
		return rec, err
	}
	rec.PointOfSale = pos
	rec.Number = number
	rec.FullNumber = models.FormatFullNumber(pos, number)

	rec.AuthorizationCode = text(cols.Authorization)
	rec.Issuer = parseParty(text(cols.Issuer))
	rec.Receiver = parseParty(text(cols.Receiver))

	totalCell := cells.Eq(cols.Total)
	total, err := ParseAmount(totalCell.Text())
	if err != nil {
		return rec, err
	}
	rec.TotalAmount = total
	rec.NetAmount, rec.TaxAmount = SplitTax(total)

	currency, rate := ParseTooltip(tooltip(totalCell))
	if currency == "" {
		currency, rate = ParseTooltip(tooltip(cells.Eq(cols.Currency)))
	}
	if currency == "" {
		currency = CurrencyCode(text(cols.Currency))
	}
	if currency == "" {
		currency = "ARS"
	}
	rec.Currency = currency
	rec.ExchangeRate = rate
	return rec, nil
}

func tooltip(s *goquery.Selection) string {
	for _, attr := range []string{"title", "data-original-title", "data-bs-original-title"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
		if v, ok := s.Find("[" + attr + "]").First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parsePortalDate(s string) (string, error) {
	for _, layout := range portalDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", s)
}

func parseDocumentType(s string) (models.DocumentType, error) {
	if s == "" {
		return models.DocumentType{}, errors.New("empty document type")
	}
	m := documentTypeRe.FindStringSubmatch(s)
	if m == nil {
		return models.DocumentType{Name: s}, nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return models.DocumentType{}, err
	}
	return models.DocumentType{Code: code, Name: m[2]}, nil
}

// parseParty splits "<id> - <name>" on the first separator.
func parseParty(s string) models.Party {
	id, name, found := strings.Cut(s, " - ")
	if !found {
		if cuitRe.MatchString(s) && len(strings.TrimSpace(s)) <= 13 {
			return models.Party{TaxpayerId: normalizeCuit(s)}
		}
		return models.Party{Name: strings.TrimSpace(s)}
	}
	return models.Party{
		TaxpayerId: normalizeCuit(id),
		Name:       strings.TrimSpace(name),
	}
}

func normalizeCuit(s string) string {
	m := cuitRe.FindStringSubmatch(s)
	if m == nil {
		return strings.TrimSpace(s)
	}
	return m[1] + m[2] + m[3]
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
