package types

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Epsilon is the largest tolerated difference between two totals.
var Epsilon = Amount{d: decimal.New(1, -2)}

// Amount is an exact decimal monetary value.
// The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// NewAmount wraps a decimal value.
func NewAmount(d decimal.Decimal) Amount { return Amount{d: d} }

// AmountFromInt returns a whole currency unit amount.
func AmountFromInt(v int64) Amount { return Amount{d: decimal.NewFromInt(v)} }

// AmountFromCents returns an amount given in hundredths.
func AmountFromCents(c int64) Amount { return Amount{d: decimal.New(c, -2)} }

// ParseAmount parses a numeric cell value.
//
// An empty value is zero. With decimalComma set, "1.234,56" is read as
// 1234.56; otherwise "," is treated as a thousands separator.
func ParseAmount(s string, decimalComma bool) (Amount, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\u00a0", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, "€")
	if s == "" || s == "-" {
		return Amount{}, nil
	}
	if decimalComma {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }
func (a Amount) Neg() Amount         { return Amount{d: a.d.Neg()} }
func (a Amount) Abs() Amount         { return Amount{d: a.d.Abs()} }
func (a Amount) Cmp(b Amount) int    { return a.d.Cmp(b.d) }
func (a Amount) Equal(b Amount) bool { return a.d.Equal(b.d) }
func (a Amount) IsZero() bool        { return a.d.IsZero() }

// Decimal exposes the underlying value.
func (a Amount) Decimal() decimal.Decimal { return a.d }

// Within reports whether |a-b| <= eps.
func (a Amount) Within(b, eps Amount) bool {
	return a.d.Sub(b.d).Abs().LessThanOrEqual(eps.d)
}

// Cents returns the value in hundredths, rounded half away from zero.
func (a Amount) Cents() int64 {
	return a.d.Shift(2).Round(0).IntPart()
}

// Float64 is for display math only (shares, percentages).
func (a Amount) Float64() float64 { return a.d.InexactFloat64() }

// String renders the amount with two fraction digits.
func (a Amount) String() string { return a.d.StringFixed(2) }

// Display formats the amount for humans in the given ISO currency.
func (a Amount) Display(currency string) string {
	if money.GetCurrency(currency) == nil {
		return a.String() + " " + currency
	}
	return money.New(a.Cents(), currency).Display()
}

// MarshalJSON emits the amount as a plain JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.d.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimals.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		a.d = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", b, err)
	}
	a.d = d
	return nil
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	var total Amount
	for _, v := range amounts {
		total = total.Add(v)
	}
	return total
}
