package portal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// TaxRate is the fixed rate used to approximate net and tax amounts from
// the total, as the results table only shows totals.
var TaxRate = decimal.RequireFromString("0.21")

var tooltipRe = regexp.MustCompile(`(?i)^\s*(.+?)\s*-\s*Cotizaci[oó]n\s*:?\s*\$?\s*([\d.,]+)`)

var currencyNames = map[string]string{
	"peso argentino":       "ARS",
	"pesos argentinos":     "ARS",
	"pesos":                "ARS",
	"dolar estadounidense": "USD",
	"dólar estadounidense": "USD",
	"dolar u.s.a":          "USD",
	"dólar u.s.a":          "USD",
	"dolar":                "USD",
	"dólar":                "USD",
	"dolares":              "USD",
	"dólares":              "USD",
	"euro":                 "EUR",
	"euros":                "EUR",
	"real":                 "BRL",
	"reales":               "BRL",
	"libra esterlina":      "GBP",
	"franco suizo":         "CHF",
	"yen":                  "JPY",
}

// the portal's own currency codes, as found in the table and attachments
var currencySymbols = map[string]string{
	"$":   "ARS",
	"ARS": "ARS",
	"PES": "ARS",
	"US$": "USD",
	"U$S": "USD",
	"USD": "USD",
	"DOL": "USD",
	"EUR": "EUR",
	"060": "EUR",
	"€":   "EUR",
	"BRL": "BRL",
	"012": "BRL",
	"GBP": "GBP",
	"021": "GBP",
	"CHF": "CHF",
	"009": "CHF",
	"JPY": "JPY",
	"019": "JPY",
}

// ParseAmount parses an amount using either a comma or a dot as decimal
// separator. When both appear, the last one is the decimal separator; a
// separator repeated more than once is a thousands separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	v := b.String()
	if v == "" || v == "-" {
		return decimal.Zero, fmt.Errorf("no amount in %q", s)
	}

	commas := strings.Count(v, ",")
	dots := strings.Count(v, ".")
	switch {
	case commas > 0 && dots > 0:
		if strings.LastIndex(v, ",") > strings.LastIndex(v, ".") {
			v = strings.ReplaceAll(v, ".", "")
			v = strings.Replace(v, ",", ".", 1)
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	case commas > 1:
		v = strings.ReplaceAll(v, ",", "")
	case commas == 1:
		v = strings.Replace(v, ",", ".", 1)
	case dots > 1:
		v = strings.ReplaceAll(v, ".", "")
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParseTooltip reads the amount tooltip, "<currency> - Cotizacion: $<rate>".
// Without a Cotizacion segment the whole text is the currency and no rate
// is returned.
func ParseTooltip(s string) (currency string, rate *decimal.Decimal) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	m := tooltipRe.FindStringSubmatch(s)
	if m == nil {
		return CurrencyCode(s), nil
	}
	currency = CurrencyCode(m[1])
	r, err := ParseAmount(strings.TrimRight(m[2], ".,"))
	if err != nil {
		return currency, nil
	}
	return currency, &r
}

// CurrencyCode maps currency names and portal codes onto ISO 4217 codes.
// Unknown values are returned trimmed and upper-cased.
func CurrencyCode(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if c, ok := currencyNames[strings.ToLower(s)]; ok {
		return c
	}
	if c, ok := currencySymbols[strings.ToUpper(s)]; ok {
		return c
	}
	return strings.ToUpper(s)
}

// SplitTax approximates the net and tax amounts of total with TaxRate.
func SplitTax(total decimal.Decimal) (net decimal.Decimal, tax decimal.Decimal) {
	net = total.Div(decimal.NewFromInt(1).Add(TaxRate)).Round(2)
	return net, total.Sub(net)
}
