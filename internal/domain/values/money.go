package values

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with currency and precision handling
type Money struct {
	amount   decimal.Decimal
	currency string
}

// Currency codes (ISO 4217) used for cost-of-inaction reporting
const (
	EUR = "EUR"
	USD = "USD"
	GBP = "GBP"
	CHF = "CHF"
	SEK = "SEK"
	DKK = "DKK"
	NOK = "NOK"
	PLN = "PLN"
)

// NewMoney creates a new Money value object
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if err := validateCurrency(currency); err != nil {
		return Money{}, err
	}

	return Money{
		amount:   amount,
		currency: currency,
	}, nil
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// String returns formatted money string (e.g., "€123.45")
func (m Money) String() string {
	return getCurrencySymbol(m.currency) + m.amount.StringFixed(2)
}

// IsSupportedCurrency reports whether costs can be reported in the currency
func IsSupportedCurrency(currency string) bool {
	return validateCurrency(strings.ToUpper(strings.TrimSpace(currency))) == nil
}

// Helper functions

func validateCurrency(currency string) error {
	if currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}

	if len(currency) != 3 {
		return fmt.Errorf("currency code must be 3 characters")
	}

	validCurrencies := map[string]bool{
		EUR: true, USD: true, GBP: true, CHF: true,
		SEK: true, DKK: true, NOK: true, PLN: true,
	}

	if !validCurrencies[currency] {
		return fmt.Errorf("unsupported currency: %s", currency)
	}

	return nil
}

func getCurrencySymbol(currency string) string {
	symbols := map[string]string{
		EUR: "€",
		USD: "$",
		GBP: "£",
		CHF: "CHF ",
	}

	if symbol, ok := symbols[currency]; ok {
		return symbol
	}
	return currency + " "
}
