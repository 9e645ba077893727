package portal_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/comprobantes-backend/pkg/portal"
)

func TestParseAttachment_Elements(t *testing.T) {
	content := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<ns2:comprobante xmlns:ns2="http://portal.test/cmp">
  <ns2:tipoCbte>11</ns2:tipoCbte>
  <ns2:ptoVta>2</ns2:ptoVta>
  <ns2:nroCbte>123</ns2:nroCbte>
  <ns2:fechaEmision>2024-03-15</ns2:fechaEmision>
  <ns2:importeTotal>1234.50</ns2:importeTotal>
  <ns2:codMoneda>DOL</ns2:codMoneda>
  <ns2:cotizacion>912.5</ns2:cotizacion>
  <ns2:cuitEmisor>30-70000000-7</ns2:cuitEmisor>
  <ns2:nroDocReceptor>20123456789</ns2:nroDocReceptor>
  <ns2:codAutorizacion>74123456789013</ns2:codAutorizacion>
</ns2:comprobante>`)

	data := portal.ParseAttachment(content)
	assert.Equal(t, "11", data.Type)
	assert.Equal(t, "2", data.PointOfSale)
	assert.Equal(t, "123", data.Number)
	assert.Equal(t, "2024-03-15", data.Date)
	require.NotNil(t, data.Amount)
	assert.True(t, data.Amount.Equal(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "USD", data.Currency)
	require.NotNil(t, data.ExchangeRate)
	assert.True(t, data.ExchangeRate.Equal(decimal.RequireFromString("912.5")))
	assert.Equal(t, "30700000007", data.IssuerId)
	assert.Equal(t, "20123456789", data.ReceiverId)
	assert.Equal(t, "74123456789013", data.AuthorizationCode)
}

func TestParseAttachment_Attributes(t *testing.T) {
	data := portal.ParseAttachment([]byte(`<comprobante cuit="20123456789" cuitReceptor="30700000007" ptoVta="3" ctz="1,5" cae="71000000000001" />`))
	assert.Equal(t, "20123456789", data.IssuerId)
	assert.Equal(t, "30700000007", data.ReceiverId)
	assert.Equal(t, "3", data.PointOfSale)
	assert.Equal(t, "71000000000001", data.AuthorizationCode)
	require.NotNil(t, data.ExchangeRate)
	assert.True(t, data.ExchangeRate.Equal(decimal.RequireFromString("1.5")))
	assert.Nil(t, data.Amount)
}

func TestParseAttachment_Tolerant(t *testing.T) {
	data := portal.ParseAttachment([]byte(`<comprobante><importeTotal>n/a</importeTotal><cae>7100</cae><broken`))
	assert.Nil(t, data.Amount)
	assert.Equal(t, "7100", data.AuthorizationCode)

	assert.True(t, portal.ParseAttachment([]byte("not an attachment")).IsEmpty())
	assert.True(t, portal.ParseAttachment(nil).IsEmpty())
}
