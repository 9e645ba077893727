package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleIssued   Role = "issued"
	RoleReceived Role = "received"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleIssued, RoleReceived:
		return Role(s), nil
	case "":
		return RoleReceived, nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// QueryFilters are submitted to the portal's query form as-is. The date range
// is validated by the caller.
type QueryFilters struct {
	DateFrom     time.Time `json:"dateFrom"`
	DateTo       time.Time `json:"dateTo"`
	Role         Role      `json:"role"`
	PointOfSale  string    `json:"pointOfSale,omitempty"`
	DocumentType string    `json:"documentType,omitempty"`
}

type DocumentType struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

type Party struct {
	TaxpayerId string `json:"taxpayerId"`
	Name       string `json:"name"`
}

type InvoiceRecord struct {
	IssueDate         string           `json:"issueDate"`
	DocumentType      DocumentType     `json:"documentType"`
	PointOfSale       int              `json:"pointOfSale"`
	Number            int64            `json:"number"`
	FullNumber        string           `json:"fullNumber"`
	Issuer            Party            `json:"issuer"`
	Receiver          Party            `json:"receiver"`
	NetAmount         decimal.Decimal  `json:"netAmount"`
	TaxAmount         decimal.Decimal  `json:"taxAmount"`
	TotalAmount       decimal.Decimal  `json:"totalAmount"`
	Currency          string           `json:"currency"`
	ExchangeRate      *decimal.Decimal `json:"exchangeRate,omitempty"`
	AuthorizationCode string           `json:"authorizationCode,omitempty"`
	Attachment        *AttachmentData  `json:"attachment,omitempty"`
}

// FormatFullNumber renders the portal's composite invoice number.
func FormatFullNumber(pointOfSale int, number int64) string {
	return fmt.Sprintf("%05d-%08d", pointOfSale, number)
}

var fullNumberRe = regexp.MustCompile(`^\s*(\d{1,5})\s*-\s*(\d{1,8})\s*$`)

// ParseFullNumber splits a composite number such as "00002-00000123" into
// its point of sale and sequence number.
func ParseFullNumber(s string) (int, int64, error) {
	m := fullNumberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid invoice number %q", s)
	}
	pos, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return pos, n, nil
}

// AttachmentData holds the fields recovered from a record's XML attachment.
// Every field is optional since the attachment is parsed leniently.
type AttachmentData struct {
	Type              string           `json:"type,omitempty"`
	PointOfSale       string           `json:"pointOfSale,omitempty"`
	Number            string           `json:"number,omitempty"`
	Date              string           `json:"date,omitempty"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	Currency          string           `json:"currency,omitempty"`
	IssuerId          string           `json:"issuerId,omitempty"`
	ReceiverId        string           `json:"receiverId,omitempty"`
	AuthorizationCode string           `json:"authorizationCode,omitempty"`
	ExchangeRate      *decimal.Decimal `json:"exchangeRate,omitempty"`
}

func (a AttachmentData) IsEmpty() bool {
	return a == AttachmentData{}
}

// Merge enriches the record with attachment fields. The attachment is
// authoritative for the exchange rate and the authorization code; table
// derived fields are otherwise kept.
func (r *InvoiceRecord) Merge(a AttachmentData) {
	data := a
	r.Attachment = &data
	if a.ExchangeRate != nil {
		rate := *a.ExchangeRate
		r.ExchangeRate = &rate
	}
	if a.AuthorizationCode != "" {
		r.AuthorizationCode = a.AuthorizationCode
	}
	if r.Currency == "" && a.Currency != "" {
		r.Currency = a.Currency
	}
}
