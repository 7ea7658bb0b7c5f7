// Package money converts user supplied amounts into exact integer minor units
// and back. Nothing in this package touches floating point.
package money

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("money: invalid amount")
	ErrAmountTooSmall  = errors.New("money: amount must be positive")
	ErrInvalidCurrency = errors.New("money: invalid currency")
)

// DefaultDecimals applies to currency codes missing from the precision table.
const DefaultDecimals = 2

var currencyDecimals = map[string]int{
	"USD": 2, "EUR": 2, "GBP": 2, "CAD": 2, "AUD": 2, "CHF": 2, "MXN": 2,
	"BRL": 2, "INR": 2, "CNY": 2, "SGD": 2, "NZD": 2, "ZAR": 2, "SEK": 2,
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0,
	"KWD": 3, "BHD": 3, "OMR": 3,
	"BTC": 8, "LTC": 8, "BCH": 8, "DOGE": 8,
	"ETH": 18, "DAI": 18, "MATIC": 18,
}

var (
	currencyPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	decimalPattern  = regexp.MustCompile(`^([+-]?)(\d+)(?:\.(\d+))?$`)
	minorPattern    = regexp.MustCompile(`^\d+$`)
)

// Input carries either a major-unit decimal string or a minor-unit integer
// string. AmountMinor wins when both are set.
type Input struct {
	Amount      string
	AmountMinor string
}

func (in Input) IsZero() bool {
	return strings.TrimSpace(in.Amount) == "" && strings.TrimSpace(in.AmountMinor) == ""
}

// NormalizeCurrency upper-cases and validates a currency code.
func NormalizeCurrency(currency string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if !currencyPattern.MatchString(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, currency)
	}
	return code, nil
}

// Decimals returns the fixed number of fractional digits for currency.
func Decimals(currency string) int {
	if places, ok := currencyDecimals[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return places
	}
	return DefaultDecimals
}

// ToMinorUnits resolves in to a positive minor-unit integer for currency.
func ToMinorUnits(in Input, currency string) (*big.Int, error) {
	if minor := strings.TrimSpace(in.AmountMinor); minor != "" {
		return ParseMinor(minor)
	}
	return MajorToMinor(in.Amount, currency)
}

// MajorToMinor scales a decimal string by 10^decimals using integer math.
// Exponent notation and excess fractional digits are rejected.
func MajorToMinor(amount string, currency string) (*big.Int, error) {
	raw := strings.TrimSpace(amount)
	if raw == "" {
		return nil, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if strings.ContainsAny(raw, "eE") {
		return nil, fmt.Errorf("%w: exponent notation is not accepted: %q", ErrInvalidAmount, amount)
	}
	parts := decimalPattern.FindStringSubmatch(raw)
	if parts == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	places := Decimals(currency)
	if len(parts[3]) > places {
		return nil, fmt.Errorf(
			"%w: %q has %d fractional digits, %s allows %d",
			ErrInvalidAmount, amount, len(parts[3]), strings.ToUpper(currency), places,
		)
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	minor := value.Shift(int32(places)).BigInt()
	if minor.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrAmountTooSmall, amount)
	}
	return minor, nil
}

// ParseMinor parses an unsigned integer string of minor units.
func ParseMinor(value string) (*big.Int, error) {
	raw := strings.TrimSpace(value)
	if !minorPattern.MatchString(raw) {
		return nil, fmt.Errorf("%w: minor units must be an unsigned integer: %q", ErrInvalidAmount, value)
	}
	minor, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if minor.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", ErrAmountTooSmall, value)
	}
	return minor, nil
}

// ToMajorString renders minor units as a plain decimal string. Trailing zero
// fraction digits are trimmed; scientific notation is never produced.
func ToMajorString(minor *big.Int, currency string) string {
	if minor == nil {
		return "0"
	}
	return decimal.NewFromBigInt(minor, -int32(Decimals(currency))).String()
}
