package portal

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/denysvitali/comprobantes-backend/pkg/models"
)

var idLabelRe = regexp.MustCompile(`(?i)\bcui[tl]\b\s*:?`)

// AccountHolder is the logged-in person as shown in the portal header.
type AccountHolder struct {
	TaxpayerId string
	Name       string
}

// ParseAccountHolder reads a header line such as "20-12345678-9 PEREZ JUAN"
// or "PEREZ JUAN [20123456789]".
func ParseAccountHolder(text string) AccountHolder {
	text = cleanText(idLabelRe.ReplaceAllString(text, " "))
	var h AccountHolder
	if loc := cuitRe.FindStringIndex(text); loc != nil {
		h.TaxpayerId = normalizeCuit(text[loc[0]:loc[1]])
		text = text[:loc[0]] + " " + text[loc[1]:]
	}
	h.Name = strings.Trim(cleanText(text), "-|:[]() ")
	return h
}

// ParseCompanies lists the companies offered by the selection buttons in
// html. The header's taxpayer id is attached to the button whose label is
// the account holder's own name, since the portal shows no id for the
// other companies.
func ParseCompanies(html string, sel Selectors) ([]models.Company, AccountHolder, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, AccountHolder{}, fmt.Errorf("unable to parse html: %w", err)
	}

	holder := ParseAccountHolder(doc.Find(sel.AccountHeader).First().Text())

	companies := []models.Company{}
	doc.Find(sel.CompanyButton).Each(func(i int, s *goquery.Selection) {
		label, ok := s.Attr("value")
		if !ok || strings.TrimSpace(label) == "" {
			label = s.Text()
		}
		c := models.Company{
			Name:  cleanText(label),
			Index: i,
		}
		if holder.Name != "" && sameName(c.Name, holder.Name) {
			c.TaxpayerId = holder.TaxpayerId
		}
		companies = append(companies, c)
	})
	return companies, holder, nil
}

func sameName(a, b string) bool {
	return strings.EqualFold(normalizeName(a), normalizeName(b))
}

var accents = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
	"Á", "A", "É", "E", "Í", "I", "Ó", "O", "Ú", "U", "Ü", "U",
	",", " ", ".", " ",
)

func normalizeName(s string) string {
	return cleanText(accents.Replace(s))
}
