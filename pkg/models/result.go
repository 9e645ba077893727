package models

import "github.com/denysvitali/comprobantes-backend/pkg/failure"

// PipelineResult is the terminal output of a single pipeline run.
type PipelineResult struct {
	Success            bool            `json:"success"`
	Invoices           []InvoiceRecord `json:"invoices"`
	Total              int             `json:"total"`
	Company            *Company        `json:"company,omitempty"`
	AvailableCompanies []Company       `json:"availableCompanies,omitempty"`
	Error              string          `json:"error,omitempty"`
	ErrorCode          failure.Code    `json:"errorCode,omitempty"`
}

// DiscoveryResult is returned by the discover-only flow.
type DiscoveryResult struct {
	Success   bool         `json:"success"`
	Companies []Company    `json:"companies"`
	Error     string       `json:"error,omitempty"`
	ErrorCode failure.Code `json:"errorCode,omitempty"`
}

func FailedResult(c failure.Classification) *PipelineResult {
	return &PipelineResult{
		Success:   false,
		Error:     c.Message,
		ErrorCode: c.Code,
	}
}

func SucceededResult(company Company, companies []Company, invoices []InvoiceRecord) *PipelineResult {
	if invoices == nil {
		invoices = []InvoiceRecord{}
	}
	r := &PipelineResult{
		Success:  true,
		Invoices: invoices,
		Total:    len(invoices),
		Company:  &company,
	}
	if len(companies) > 1 {
		r.AvailableCompanies = companies
	}
	if len(invoices) == 0 {
		r.ErrorCode = failure.NoData
		r.Error = failure.Describe(failure.NoData)
	}
	return r
}
