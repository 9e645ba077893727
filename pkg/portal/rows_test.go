package portal_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/comprobantes-backend/pkg/models"
	"github.com/denysvitali/comprobantes-backend/pkg/portal"
)

func TestParseRows(t *testing.T) {
	batch, err := portal.ParseRows(resultsHTML, sel.ResultRows, portal.DefaultColumns())
	require.NoError(t, err)
	require.Len(t, batch, 4)

	failed := batch.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Index)

	records := batch.Values()
	require.Len(t, records, 3)

	usd := records[1]
	assert.Equal(t, "2024-03-16", usd.IssueDate)
	assert.Equal(t, models.DocumentType{Code: 1, Name: "Factura A"}, usd.DocumentType)
	assert.Equal(t, 3, usd.PointOfSale)
	assert.Equal(t, int64(45), usd.Number)
	assert.Equal(t, "00003-00000045", usd.FullNumber)
	assert.Equal(t, "74123456789013", usd.AuthorizationCode)
	assert.Equal(t, models.Party{TaxpayerId: "30700000007", Name: "GLOBEX SRL"}, usd.Issuer)
	assert.Equal(t, models.Party{TaxpayerId: "20123456789", Name: "PEREZ JUAN"}, usd.Receiver)
	assert.True(t, usd.TotalAmount.Equal(decimal.RequireFromString("1234.5")))
	assert.True(t, usd.NetAmount.Add(usd.TaxAmount).Equal(usd.TotalAmount))
	assert.Equal(t, "USD", usd.Currency)
	require.NotNil(t, usd.ExchangeRate)

	plain := records[2]
	assert.Equal(t, "ARS", plain.Currency)
	assert.Nil(t, plain.ExchangeRate)
	assert.True(t, plain.NetAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, plain.TaxAmount.Equal(decimal.NewFromInt(21)))
}

func TestParseRows_FullNumberMatchesParts(t *testing.T) {
	batch, err := portal.ParseRows(resultsHTML, sel.ResultRows, portal.DefaultColumns())
	require.NoError(t, err)
	for _, r := range batch.Values() {
		assert.Equal(t, models.FormatFullNumber(r.PointOfSale, r.Number), r.FullNumber)
	}
}

func TestParseRows_ShortRowsDoNotStopExtraction(t *testing.T) {
	html := `<table id="tablaDataTables"><tbody>
<tr><td>a</td><td>b</td><td>c</td><td>d</td><td>e</td><td>f</td><td>g</td></tr>
<tr><td>01/02/2024</td><td>11 - Factura C</td><td>00001-00000001</td><td></td><td>20111111112 - UNO</td><td>20222222223 - DOS</td><td>$</td><td>10,00</td></tr>
<tr></tr>
<tr><td>02/02/2024</td><td>11 - Factura C</td><td>00001-00000002</td><td></td><td>20111111112 - UNO</td><td>20222222223 - DOS</td><td>$</td><td>20,00</td></tr>
</tbody></table>`
	batch, err := portal.ParseRows(html, sel.ResultRows, portal.DefaultColumns())
	require.NoError(t, err)
	assert.Len(t, batch.Failed(), 2)
	records := batch.Values()
	require.Len(t, records, 2)
	assert.Equal(t, "00001-00000001", records[0].FullNumber)
	assert.Equal(t, "00001-00000002", records[1].FullNumber)
	assert.Empty(t, records[0].AuthorizationCode)
}

func TestParseRows_BadCellSkipsRow(t *testing.T) {
	html := `<table id="tablaDataTables"><tbody>
<tr><td>01/02/2024</td><td>11 - Factura C</td><td>not-a-number</td><td></td><td>x</td><td>y</td><td>$</td><td>10,00</td></tr>
<tr><td>01/02/2024</td><td>11 - Factura C</td><td>00001-00000003</td><td></td><td>x</td><td>y</td><td>$</td><td>-</td></tr>
<tr><td>01/02/2024</td><td>11 - Factura C</td><td>00001-00000004</td><td></td><td>UNO SA</td><td>20222222223</td><td>$</td><td>10,00</td></tr>
</tbody></table>`
	batch, err := portal.ParseRows(html, sel.ResultRows, portal.DefaultColumns())
	require.NoError(t, err)
	assert.Len(t, batch.Failed(), 2)
	records := batch.Values()
	require.Len(t, records, 1)
	assert.Equal(t, models.Party{Name: "UNO SA"}, records[0].Issuer)
	assert.Equal(t, models.Party{TaxpayerId: "20222222223"}, records[0].Receiver)
}

func TestParseRows_NoRows(t *testing.T) {
	batch, err := portal.ParseRows(`<table id="tablaDataTables"><tbody></tbody></table>`, sel.ResultRows, portal.DefaultColumns())
	require.NoError(t, err)
	assert.Empty(t, batch.Values())
}
