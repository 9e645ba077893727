package portal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/denysvitali/comprobantes-backend/pkg/failure"
	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/race"
)

const numberPlaceholder = "{number}"

// attachmentField is looked up independently of the others, either as an
// element or as an attribute under any of its names.
type attachmentField struct {
	element   *regexp.Regexp
	attribute *regexp.Regexp
}

func newAttachmentField(names ...string) attachmentField {
	alt := strings.Join(names, "|")
	return attachmentField{
		element:   regexp.MustCompile(`(?is)<(?:[\w-]+:)?(?:` + alt + `)\b[^>]*>\s*([^<]*?)\s*</`),
		attribute: regexp.MustCompile(`(?i)\b(?:` + alt + `)\s*=\s*"([^"]*)"`),
	}
}

func (f attachmentField) find(content string) string {
	if m := f.element.FindStringSubmatch(content); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	if m := f.attribute.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var (
	fieldType         = newAttachmentField("tipoCbte", "tipoComprobante", "cbteTipo", "codTipoCmp")
	fieldPointOfSale  = newAttachmentField("ptoVta", "puntoVenta", "nroPtoVta")
	fieldNumber       = newAttachmentField("nroCbte", "numeroComprobante", "cbteDesde", "nroCmp")
	fieldDate         = newAttachmentField("fechaEmision", "cbteFch", "fechaCbte", "fecha")
	fieldAmount       = newAttachmentField("importeTotal", "impTotal", "total")
	fieldCurrency     = newAttachmentField("codMoneda", "monId", "moneda")
	fieldIssuerId     = newAttachmentField("cuitEmisor", "nroDocEmisor", "cuit")
	fieldReceiverId   = newAttachmentField("cuitReceptor", "nroDocReceptor", "docNro", "nroDocRec")
	fieldAuthCode     = newAttachmentField("codAutorizacion", "codAut", "cae", "cai")
	fieldExchangeRate = newAttachmentField("cotizacion", "monCotiz", "ctz", "tipoCambio")
)

// ParseAttachment extracts whatever fields it recognizes in an attachment.
// Missing or malformed fields are left empty.
func ParseAttachment(content []byte) models.AttachmentData {
	s := string(content)
	data := models.AttachmentData{
		Type:              fieldType.find(s),
		PointOfSale:       fieldPointOfSale.find(s),
		Number:            fieldNumber.find(s),
		Date:              fieldDate.find(s),
		Currency:          CurrencyCode(fieldCurrency.find(s)),
		IssuerId:          normalizeCuit(fieldIssuerId.find(s)),
		ReceiverId:        normalizeCuit(fieldReceiverId.find(s)),
		AuthorizationCode: fieldAuthCode.find(s),
	}
	if v := fieldAmount.find(s); v != "" {
		if amount, err := ParseAmount(v); err == nil {
			data.Amount = &amount
		}
	}
	if v := fieldExchangeRate.find(s); v != "" {
		if rate, err := ParseAmount(v); err == nil {
			data.ExchangeRate = &rate
		}
	}
	return data
}

// fetchAttachments downloads and merges the attachment of every record.
// A failed download leaves its record with the table fields only.
func (r *run) fetchAttachments(ctx context.Context, records []models.InvoiceRecord) Batch[models.AttachmentData] {
	batch := make(Batch[models.AttachmentData], 0, len(records))
	for i := range records {
		if i > 0 {
			if err := sleep(ctx, r.t.AttachmentPacing); err != nil {
				for j := i; j < len(records); j++ {
					batch = append(batch, Result[models.AttachmentData]{Index: j, Err: err})
				}
				break
			}
		}
		data, err := r.fetchAttachment(ctx, records[i])
		if err != nil {
			r.log.Warnf("attachment of %s not available: %v", records[i].FullNumber, err)
		} else {
			records[i].Merge(data)
		}
		batch = append(batch, Result[models.AttachmentData]{Index: i, Value: data, Err: err})
	}
	r.log.Infof("fetched %d of %d attachment(s)", len(batch.Values()), len(records))
	return batch
}

func (r *run) fetchAttachment(ctx context.Context, rec models.InvoiceRecord) (models.AttachmentData, error) {
	ctx, cancel := context.WithTimeout(ctx, r.t.Download)
	defer cancel()

	selector := strings.ReplaceAll(r.sel.DownloadButton, numberPlaceholder, rec.FullNumber)
	downloaded := r.page.ExpectDownload(ctx, r.scratchDir)
	if err := r.page.Click(ctx, selector); err != nil {
		return models.AttachmentData{}, fmt.Errorf("unable to click download control: %w", err)
	}

	out := race.First(ctx, r.t.Download, "no-download",
		race.Branch[string]{Tag: "download", Wait: func(ctx context.Context) (string, error) {
			return downloaded()
		}},
	)
	if out.Tag != "download" {
		if out.TimedOut {
			return models.AttachmentData{}, failure.New(failure.Timeout, "download attachment",
				fmt.Errorf("no download within %s", r.t.Download))
		}
		return models.AttachmentData{}, errors.Join(out.Errs...)
	}

	path := out.Value
	defer func() {
		if err := r.scratch.Remove(path); err != nil {
			r.log.Warnf("unable to remove %s: %v", path, err)
		}
	}()
	content, err := r.scratch.Read(path)
	if err != nil {
		return models.AttachmentData{}, fmt.Errorf("unable to read attachment: %w", err)
	}
	data := ParseAttachment(content)
	if data.IsEmpty() {
		return data, errors.New("attachment contains no known field")
	}
	return data, nil
}
