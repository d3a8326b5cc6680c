package domain

import (
	"encoding/json"
	"fmt"

	customError "github.com/segyhp/payroll-loans/pkg/errors"

	"github.com/shopspring/decimal"
)

// MinorUnitDigits is the number of fractional digits carried by Money.
const MinorUnitDigits = 2

var minorUnitScale = decimal.New(1, MinorUnitDigits)

// Money is an amount in minor currency units (cents). All arithmetic on
// principals and installments is done on Money so sums stay exact.
type Money int64

// MoneyFromDecimal converts a display amount into minor units. Amounts with
// more fractional digits than MinorUnitDigits are rejected, never rounded.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	scaled := d.Mul(minorUnitScale)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), MinorUnitDigits)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return Money(scaled.IntPart()), nil
}

// ParseMoney parses a decimal string such as "1500.25".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return MoneyFromDecimal(d)
}

// Decimal returns the display value of m.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MinorUnitDigits)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(MinorUnitDigits)
}

func (m Money) IsPositive() bool {
	return m > 0
}

// Abs returns the absolute value of m.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts both "12.34" and 12.34. Errors carry no field; the
// enclosing decoder names it.
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return customError.WrapInvalidAmount("", err.Error())
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return customError.WrapInvalidAmount("", err.Error())
	}
	*m = v
	return nil
}
