package pricing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units (cents).
type Money int64

var hundred = decimal.NewFromInt(100)

// ErrInvalidAmount is returned when a configured amount cannot be represented as Money.
var ErrInvalidAmount = errors.New("pricing: invalid amount")

// ParseMoney converts a decimal string such as "12.15" into Money. At most two
// fractional digits are accepted and the value must not be negative.
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(strings.ReplaceAll(value, ",", "."))
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, value)
	}
	if !d.Equal(d.Round(2)) {
		return 0, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidAmount, value)
	}
	return Money(d.Mul(hundred).IntPart()), nil
}

// MustParseMoney behaves like ParseMoney but panics on error. Intended for constants and tests.
func MustParseMoney(value string) Money {
	m, err := ParseMoney(value)
	if err != nil {
		panic(err)
	}
	return m
}

// Decimal returns the amount as a decimal in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String formats the amount with two fractional digits, e.g. "677.50".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON renders the amount as a JSON number with two fractional digits.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMoney(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Config holds the process-wide unit prices and unit cost.
type Config struct {
	PricePerKit1Person Money `json:"pricePerKit1Person"`
	PricePerKit2Person Money `json:"pricePerKit2Person"`
	CostPerKit         Money `json:"costPerKit"`
}

// DefaultConfig mirrors the published price list: 14 € and 22 € HT per kit, 12.15 € cost.
func DefaultConfig() Config {
	return Config{
		PricePerKit1Person: 1400,
		PricePerKit2Person: 2200,
		CostPerKit:         1215,
	}
}

// Result aggregates the computed amounts for one simulation.
type Result struct {
	Revenue   Money `json:"revenue"`
	TotalCost Money `json:"totalCost"`
	NetProfit Money `json:"netProfit"`
}

// MaxKitCount bounds each kit volume so amounts stay exact in int64 cents.
const MaxKitCount = 1_000_000

// Compute calculates revenue, total cost and net profit for the given kit volumes.
// Counts are clamped to [0, MaxKitCount].
func Compute(kit1Person, kit2Person int, cfg Config) Result {
	kit1Person = clampCount(kit1Person)
	kit2Person = clampCount(kit2Person)
	k1 := Money(kit1Person)
	k2 := Money(kit2Person)
	revenue := k1*cfg.PricePerKit1Person + k2*cfg.PricePerKit2Person
	cost := (k1 + k2) * cfg.CostPerKit
	return Result{
		Revenue:   revenue,
		TotalCost: cost,
		NetProfit: revenue - cost,
	}
}

func clampCount(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxKitCount:
		return MaxKitCount
	}
	return n
}
