package ledger

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits every stored amount carries.
const Scale = 2

// MaxDigits is the number of integer digits a stored amount may carry,
// matching NUMERIC(18,2).
const MaxDigits = 16

// Amounts with more fractional digits than this are rejected before rounding.
const maxFractionDigits = 30

var (
	roundUpUnit = decimal.NewFromInt(100)
	loanRatio   = decimal.New(5, -1)
	// maxAmount is the first value that no longer fits NUMERIC(18,2).
	maxAmount = decimal.New(1, MaxDigits)
)

// Normalize rounds an amount to Scale digits, half away from zero.
func Normalize(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(Scale)
}

// positiveAmount validates a caller supplied amount and rounds it to Scale.
// The exponent is checked before anything rescales the value.
func positiveAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if exp := amount.Exponent(); exp >= MaxDigits || exp < -maxFractionDigits {
		return decimal.Zero, failf(ErrInvalidAmount, "amount is out of range")
	}
	if amount.IsPositive() && amount.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, failf(ErrInvalidAmount, "amount must be below %s", maxAmount.String())
	}
	n := Normalize(amount)
	if !n.IsPositive() {
		return decimal.Zero, failf(ErrInvalidAmount, "amount must be greater than zero, got %s", amount.String())
	}
	if n.GreaterThanOrEqual(maxAmount) {
		return decimal.Zero, failf(ErrInvalidAmount, "amount must be below %s", maxAmount.String())
	}
	return n, nil
}

// fits reports whether a balance can be stored without overflow.
func fits(balance decimal.Decimal) error {
	if balance.Abs().GreaterThanOrEqual(maxAmount) {
		return failf(ErrInvalidAmount, "resulting balance %s exceeds the storable range", balance.StringFixed(Scale))
	}
	return nil
}

// roundUpOf returns the slice of balance moved to the accrued balance after
// a payment: the remainder of the post-payment balance modulo 100.
func roundUpOf(balance decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.Zero
	}
	return Normalize(balance.Mod(roundUpUnit))
}

// borrowCapacity is what an owner may still borrow given the accrued balance
// and the current (non-positive) borrowed balance, truncated to cents. It is
// never reported below zero.
func borrowCapacity(accrued, borrowed decimal.Decimal) decimal.Decimal {
	available := accrued.Mul(loanRatio).Sub(borrowed.Abs())
	if available.IsNegative() {
		return decimal.Zero
	}
	return available.Truncate(Scale)
}
