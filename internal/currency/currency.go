package currency

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Converter normalizes amounts into USD minor units. The engine stores
// and reasons in USD only; the original amount and currency are kept
// for display.
type Converter interface {
	ConvertToUSD(amountMinor int64, currencyCode string) (int64, error)
}

// FixedRateConverter converts with a static USD rate table. Rates are
// USD per one unit of the source currency.
type FixedRateConverter struct {
	rates map[string]decimal.Decimal
}

func NewFixedRateConverter() *FixedRateConverter {
	return &FixedRateConverter{
		rates: map[string]decimal.Decimal{
			"USD": decimal.NewFromInt(1),
			"EUR": mustRate("1.08"),
			"GBP": mustRate("1.27"),
			"NGN": mustRate("0.00065"),
		},
	}
}

func (c *FixedRateConverter) ConvertToUSD(amountMinor int64, currencyCode string) (int64, error) {
	rate, ok := c.rates[strings.ToUpper(strings.TrimSpace(currencyCode))]
	if !ok {
		return 0, ErrUnsupportedCurrency
	}
	converted := decimal.NewFromInt(amountMinor).Mul(rate).RoundBank(0)
	return converted.IntPart(), nil
}

func mustRate(raw string) decimal.Decimal {
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		panic(err)
	}
	return rate
}
