package enums

import (
	"fmt"
	"slices"
	"strings"
)

// Currency is the ISO-4217 code a tender's offers are priced in. Offers in
// one tender always share its currency; there is no conversion.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyMXN Currency = "MXN"
)

var supportedCurrencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyMXN}

func (c Currency) String() string { return string(c) }

func (c Currency) IsValid() bool {
	return slices.Contains(supportedCurrencies, c)
}

// ParseCurrency is case-insensitive: "usd" parses as CurrencyUSD.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("unsupported currency %q", value)
	}
	return c, nil
}
