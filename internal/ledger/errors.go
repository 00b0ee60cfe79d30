package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount is returned for non-positive amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotFound is returned when an owner or one of its balances does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrLimitExceeded is returned when a borrow request exceeds the remaining capacity.
	// The concrete error is a *LimitExceededError.
	ErrLimitExceeded = errors.New("loan limit exceeded")

	// ErrOverpayment is returned when a repayment exceeds the outstanding debt.
	ErrOverpayment = errors.New("repayment exceeds outstanding debt")

	// ErrStoreUnavailable signals the atomic scope could not be acquired or committed.
	// It is the only failure a caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrSameOwner is returned for transfers whose sender is also the recipient.
	ErrSameOwner = errors.New("sender and recipient must differ")

	// ErrInvalidFilter is returned for unknown wallet or transaction types in queries.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrOwnerExists is returned when registering a username that is taken.
	ErrOwnerExists = errors.New("owner already exists")
)

// LimitExceededError reports how much more an owner may still borrow.
type LimitExceededError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("requested loan amount exceeds the allowable limit, you can only borrow up to %s more",
		e.Available.StringFixed(Scale))
}

// Is makes errors.Is(err, ErrLimitExceeded) match.
func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// Retryable reports whether err is a transient store failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsBusiness reports whether err is a deterministic rule violation.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrNotFound, ErrInsufficientFunds, ErrLimitExceeded,
		ErrOverpayment, ErrSameOwner, ErrInvalidFilter, ErrOwnerExists,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func failf(kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// classify turns transient driver failures into ErrStoreUnavailable and
// passes everything else through.
func classify(err error) error {
	if err == nil || IsBusiness(err) || Retryable(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return unavailable(err)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return unavailable(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "53300", "57P01":
			return unavailable(err)
		case "22003":
			return fmt.Errorf("%w: %w", ErrInvalidAmount, err)
		}
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrOverpayment):
		return "overpayment"
	case errors.Is(err, ErrSameOwner):
		return "same_owner"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
