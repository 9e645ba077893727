package portal_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/comprobantes-backend/pkg/portal"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"6551,06", "6551.06"},
		{"6551.06", "6551.06"},
		{"6.551,06", "6551.06"},
		{"6,551.06", "6551.06"},
		{"$ 1.234.567,89", "1234567.89"},
		{"1,234,567.89", "1234567.89"},
		{"1.234.567", "1234567"},
		{"US$ 12,5", "12.5"},
		{"-121,00", "-121"},
		{"0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := portal.ParseAmount(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseAmount_SeparatorsAreEquivalent(t *testing.T) {
	for _, pair := range [][2]string{
		{"6551,06", "6551.06"},
		{"0,5", "0.5"},
		{"1.000,25", "1,000.25"},
	} {
		a, err := portal.ParseAmount(pair[0])
		require.NoError(t, err)
		b, err := portal.ParseAmount(pair[1])
		require.NoError(t, err)
		assert.True(t, a.Equal(b), "%s != %s", pair[0], pair[1])
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "-", "n/a", "$"} {
		_, err := portal.ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestParseTooltip(t *testing.T) {
	currency, rate := portal.ParseTooltip("Dólar Estadounidense - Cotizacion: $1.050,25")
	assert.Equal(t, "USD", currency)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(decimal.RequireFromString("1050.25")))

	currency, rate = portal.ParseTooltip("Euro - Cotización: 990.5")
	assert.Equal(t, "EUR", currency)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(decimal.RequireFromString("990.5")))

	currency, rate = portal.ParseTooltip("Pesos Argentinos")
	assert.Equal(t, "ARS", currency)
	assert.Nil(t, rate)

	currency, rate = portal.ParseTooltip("")
	assert.Empty(t, currency)
	assert.Nil(t, rate)
}

func TestParseTooltip_RecoversRate(t *testing.T) {
	for _, r := range []string{"1", "912,50", "1050.25", "0,0012"} {
		want, err := portal.ParseAmount(r)
		require.NoError(t, err)
		_, rate := portal.ParseTooltip("Dolar Estadounidense - Cotizacion: $" + r)
		require.NotNil(t, rate, r)
		assert.True(t, rate.Equal(want), r)
	}
}

func TestCurrencyCode(t *testing.T) {
	assert.Equal(t, "ARS", portal.CurrencyCode("$"))
	assert.Equal(t, "ARS", portal.CurrencyCode("PES"))
	assert.Equal(t, "USD", portal.CurrencyCode("DOL"))
	assert.Equal(t, "USD", portal.CurrencyCode("dólar estadounidense"))
	assert.Equal(t, "XYZ", portal.CurrencyCode(" xyz "))
	assert.Empty(t, portal.CurrencyCode(""))
}

func TestSplitTax(t *testing.T) {
	net, tax := portal.SplitTax(decimal.RequireFromString("121"))
	assert.True(t, net.Equal(decimal.RequireFromString("100")), net.String())
	assert.True(t, tax.Equal(decimal.RequireFromString("21")), tax.String())

	total := decimal.RequireFromString("6551.06")
	net, tax = portal.SplitTax(total)
	assert.True(t, net.Add(tax).Equal(total))
	assert.True(t, net.Equal(decimal.RequireFromString("5414.1")), net.String())
}
