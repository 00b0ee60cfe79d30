package ledger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jitta-card/jitta_card/internal/metrics"
	"github.com/jitta-card/jitta_card/internal/notification"
	"github.com/shopspring/decimal"
)

const notifyTimeout = 5 * time.Second

// Engine applies the money movement rules on top of a Store. Every operation
// runs inside exactly one atomic scope and never retries on its own.
type Engine struct {
	store    Store
	logger   *slog.Logger
	metrics  metrics.Collector
	notifier notification.Notifier
	now      func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(collector metrics.Collector) Option {
	return func(e *Engine) { e.metrics = collector }
}

// WithNotifier publishes an event for every committed entry.
func WithNotifier(notifier notification.Notifier) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:  metrics.NoOpCollector{},
		notifier: notification.Nop{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Deposit credits the owner's spendable balance with money entering the ledger.
func (e *Engine) Deposit(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (CashResult, error) {
	amount, err := positiveAmount(amount)
	if err != nil {
		return CashResult{}, e.reject(OpDeposit, err)
	}

	var res CashResult
	err = e.execute(ctx, OpDeposit, ownerID, func(ctx context.Context, tx Tx) ([]Entry, error) {
		key := BalanceKey{OwnerID: ownerID, Kind: KindSpendable}
		locked, err := tx.Lock(ctx, key)
		if err != nil {
			return nil, err
		}
		main, err := require(locked, key)
		if err != nil {
			return nil, err
		}

		main.Amount = Normalize(main.Amount.Add(amount))
		if err := fits(main.Amount); err != nil {
			return nil, err
		}
		if err := tx.UpdateBalance(ctx, main.ID, main.Amount); err != nil {
			return nil, err
		}
		entry, err := tx.Append(ctx, e.entry(nil, &main.ID, amount, OpDeposit, "Deposit into MAIN wallet"))
		if err != nil {
			return nil, err
		}
		res = CashResult{Balance: main, Entry: entry}
		return []Entry{entry}, nil
	})
	return res, err
}

// Withdraw debits the owner's spendable balance with money leaving the ledger.
func (e *Engine) Withdraw(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (CashResult, error) {
	amount, err := positiveAmount(amount)
	if err != nil {
		return CashResult{}, e.reject(OpWithdraw, err)
	}

	var res CashResult
	err = e.execute(ctx, OpWithdraw, ownerID, func(ctx context.Context, tx Tx) ([]Entry, error) {
		key := BalanceKey{OwnerID: ownerID, Kind: KindSpendable}
		locked, err := tx.Lock(ctx, key)
		if err != nil {
			return nil, err
		}
		main, err := require(locked, key)
		if err != nil {
			return nil, err
		}
		if err := cover(main, amount); err != nil {
			return nil, err
		}

		main.Amount = Normalize(main.Amount.Sub(amount))
		if err := tx.UpdateBalance(ctx, main.ID, main.Amount); err != nil {
			return nil, err
		}
		entry, err := tx.Append(ctx, e.entry(&main.ID, nil, amount, OpWithdraw, "Withdrawal from MAIN wallet"))
		if err != nil {
			return nil, err
		}
		res = CashResult{Balance: main, Entry: entry}
		return []Entry{entry}, nil
	})
	return res, err
}

// Spend pays amount out of the spendable balance. When the owner has round-up
// enabled, the remainder of the new balance modulo 100 is swept into the
// accrued balance before the payment entry is written.
func (e *Engine) Spend(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (SpendResult, error) {
	amount, err := positiveAmount(amount)
	if err != nil {
		return SpendResult{}, e.reject(OpPayment, err)
	}

	var res SpendResult
	err = e.execute(ctx, OpPayment, ownerID, func(ctx context.Context, tx Tx) ([]Entry, error) {
		owner, err := tx.Owner(ctx, ownerID)
		if err != nil {
			return nil, err
		}

		mainKey := BalanceKey{OwnerID: ownerID, Kind: KindSpendable}
		earnKey := BalanceKey{OwnerID: ownerID, Kind: KindAccrued}
		locked, err := tx.Lock(ctx, mainKey, earnKey)
		if err != nil {
			return nil, err
		}
		main, err := require(locked, mainKey)
		if err != nil {
			return nil, err
		}
		earn, err := require(locked, earnKey)
		if err != nil {
			return nil, err
		}
		if err := cover(main, amount); err != nil {
			return nil, err
		}

		main.Amount = Normalize(main.Amount.Sub(amount))
		roundUp := decimal.Zero
		if owner.RoundUp {
			roundUp = roundUpOf(main.Amount)
		}

		var entries []Entry
		if roundUp.IsPositive() {
			main.Amount = Normalize(main.Amount.Sub(roundUp))
			earn.Amount = Normalize(earn.Amount.Add(roundUp))
			if err := fits(earn.Amount); err != nil {
				return nil, err
			}
			if err := tx.UpdateBalance(ctx, earn.ID, earn.Amount); err != nil {
				return nil, err
			}
			entry, err := tx.Append(ctx, e.entry(&main.ID, &earn.ID, roundUp, OpRoundUp, "Round-up from payment"))
			if err != nil {
				return nil, err
			}
			entries = append(entries, entry)
		}
		if err := tx.UpdateBalance(ctx, main.ID, main.Amount); err != nil {
			return nil, err
		}
		entry, err := tx.Append(ctx, e.entry(&main.ID, nil, amount, OpPayment, "Payment for external services"))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)

		res = SpendResult{
			Spendable: main.Amount,
			Accrued:   earn.Amount,
			RoundUp:   roundUp,
			Entries:   entries,
		}
		return entries, nil
	})
	return res, err
}

// Transfer moves amount between the spendable balances of two different owners.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount decimal.Decimal) (TransferResult, error) {
	amount, err := positiveAmount(amount)
	if err != nil {
		return TransferResult{}, e.reject(OpTransfer, err)
	}
	if senderID == recipientID {
		return TransferResult{}, e.reject(OpTransfer, failf(ErrSameOwner, "cannot transfer to own wallet"))
	}

	var res TransferResult
	err = e.execute(ctx, OpTransfer, senderID, func(ctx context.Context, tx Tx) ([]Entry, error) {
		fromKey := BalanceKey{OwnerID: senderID, Kind: KindSpendable}
		toKey := BalanceKey{OwnerID: recipientID, Kind: KindSpendable}
		locked, err := tx.Lock(ctx, fromKey, toKey)
		if err != nil {
			return nil, err
		}
		from, err := require(locked, fromKey)
		if err != nil {
			return nil, err
		}
		if err := cover(from, amount); err != nil {
			return nil, err
		}
		to, err := require(locked, toKey)
		if err != nil {
			return nil, err
		}

		from.Amount = Normalize(from.Amount.Sub(amount))
		to.Amount = Normalize(to.Amount.Add(amount))
		if err := fits(to.Amount); err != nil {
			return nil, err
		}
		if err := tx.UpdateBalance(ctx, from.ID, from.Amount); err != nil {
			return nil, err
		}
		if err := tx.UpdateBalance(ctx, to.ID, to.Amount); err != nil {
			return nil, err
		}
		entry, err := tx.Append(ctx, e.entry(&from.ID, &to.ID, amount, OpTransfer, "Transfer to other"))
		if err != nil {
			return nil, err
		}
		res = TransferResult{
			SenderSpendable:    from.Amount,
			RecipientSpendable: to.Amount,
			Entry:              entry,
		}
		return []Entry{entry}, nil
	})
	return res, err
}

// Borrow lends requested against half of the accrued balance, net of what is
// already borrowed.
func (e *Engine) Borrow(ctx context.Context, ownerID uuid.UUID, requested decimal.Decimal) (LoanResult, error) {
	requested, err := positiveAmount(requested)
	if err != nil {
		return LoanResult{}, e.reject(OpBorrow, err)
	}

	var res LoanResult
	err = e.execute(ctx, OpBorrow, ownerID, func(ctx context.Context, tx Tx) ([]Entry, error) {
		mainKey := BalanceKey{OwnerID: ownerID, Kind: KindSpendable}
		earnKey := BalanceKey{OwnerID: ownerID, Kind: KindAccrued}
		loanKey := BalanceKey{OwnerID: ownerID, Kind: KindBorrowed}
		locked, err := tx.Lock(ctx, mainKey, earnKey, loanKey)
		if err != nil {
			return nil, err
		}
		earn, err := require(locked, earnKey)
		if err != nil {
			return nil, err
		}
		if !earn.Amount.IsPositive() {
			return nil, failf(ErrInsufficientFunds, "no borrowing capacity, EARN balance is %s", earn.Amount.StringFixed(Scale))
		}
		loan, err := require(locked, loanKey)
		if err != nil {
			return nil, err
		}
		available := borrowCapacity(earn.Amount, loan.Amount)
		if requested.GreaterThan(available) {
			return nil, &LimitExceededError{Requested: requested, Available: available}
		}
		main, err := require(locked, mainKey)
		if err != nil {
			return nil, err
		}

		main.Amount = Normalize(main.Amount.Add(requested))
		loan.Amount = Normalize(loan.Amount.Sub(requested))
		if err := fits(main.Amount); err != nil {
			return nil, err
		}
		if err := tx.UpdateBalance(ctx, main.ID, main.Amount); err != nil {
			return nil, err
		}
		if err := tx.UpdateBalance(ctx, loan.ID, loan.Amount); err != nil {
			return nil, err
		}
		entry, err := tx.Append(ctx, e.entry(&loan.ID, &main.ID, requested, OpBorrow, "Loan to MAIN wallet"))
		if err != nil {
			return nil, err
		}
		res = LoanResult{Spendable: main.Amount, Borrowed: loan.Amount, Amount: requested, Entry: entry}
		return []Entry{entry}, nil
	})
	return res, err
}

// Repay moves amount from the spendable balance toward the outstanding debt.
func (e *Engine) Repay(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (LoanResult, error) {
	amount, err := positiveAmount(amount)
	if err != nil {
		return LoanResult{}, e.reject(OpRepay, err)
	}

	var res LoanResult
	err = e.execute(ctx, OpRepay, ownerID, func(ctx context.Context, tx Tx) ([]Entry, error) {
		mainKey := BalanceKey{OwnerID: ownerID, Kind: KindSpendable}
		loanKey := BalanceKey{OwnerID: ownerID, Kind: KindBorrowed}
		locked, err := tx.Lock(ctx, mainKey, loanKey)
		if err != nil {
			return nil, err
		}
		main, err := require(locked, mainKey)
		if err != nil {
			return nil, err
		}
		if err := cover(main, amount); err != nil {
			return nil, err
		}
		loan, err := require(locked, loanKey)
		if err != nil {
			return nil, err
		}
		if owed := loan.Amount.Abs(); owed.LessThan(amount) {
			return nil, failf(ErrOverpayment, "outstanding debt is %s, cannot repay %s", owed.StringFixed(Scale), amount.StringFixed(Scale))
		}

		main.Amount = Normalize(main.Amount.Sub(amount))
		loan.Amount = Normalize(loan.Amount.Add(amount))
		if err := tx.UpdateBalance(ctx, main.ID, main.Amount); err != nil {
			return nil, err
		}
		if err := tx.UpdateBalance(ctx, loan.ID, loan.Amount); err != nil {
			return nil, err
		}
		entry, err := tx.Append(ctx, e.entry(&main.ID, &loan.ID, amount, OpRepay, "Payment towards LOAN wallet"))
		if err != nil {
			return nil, err
		}
		res = LoanResult{Spendable: main.Amount, Borrowed: loan.Amount, Amount: amount, Entry: entry}
		return []Entry{entry}, nil
	})
	return res, err
}

func (e *Engine) entry(src, dst *uuid.UUID, amount decimal.Decimal, op Operation, remarks string) Entry {
	return Entry{
		ID:            uuid.New(),
		SourceID:      src,
		DestinationID: dst,
		Amount:        amount,
		Operation:     op,
		Status:        StatusCompleted,
		CreatedAt:     e.now(),
		Remarks:       remarks,
	}
}

func (e *Engine) execute(ctx context.Context, op Operation, ownerID uuid.UUID, fn func(ctx context.Context, tx Tx) ([]Entry, error)) error {
	start := time.Now()
	var entries []Entry
	err := e.store.Atomic(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		entries, err = fn(ctx, tx)
		return err
	})
	e.metrics.RecordOperation(string(op), outcome(err), time.Since(start))

	if err != nil {
		level := slog.LevelDebug
		if !IsBusiness(err) {
			level = slog.LevelError
		}
		e.logger.LogAttrs(ctx, level, "ledger operation failed",
			slog.String("operation", string(op)),
			slog.String("owner_id", ownerID.String()),
			slog.Any("error", err),
		)
		return err
	}

	e.logger.LogAttrs(ctx, slog.LevelDebug, "ledger operation committed",
		slog.String("operation", string(op)),
		slog.String("owner_id", ownerID.String()),
		slog.Int("entries", len(entries)),
	)
	e.publish(ctx, ownerID, entries)
	return nil
}

func (e *Engine) reject(op Operation, err error) error {
	e.metrics.RecordOperation(string(op), outcome(err), 0)
	return err
}

func (e *Engine) publish(ctx context.Context, ownerID uuid.UUID, entries []Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	for _, entry := range entries {
		event := notification.Event{
			EntryID:             entry.ID,
			Operation:           string(entry.Operation),
			OwnerID:             ownerID,
			Amount:              entry.Amount.StringFixed(Scale),
			SourceWalletID:      entry.SourceID,
			DestinationWalletID: entry.DestinationID,
			OccurredAt:          entry.CreatedAt,
		}
		if err := e.notifier.Send(ctx, event); err != nil {
			e.logger.Warn("ledger event not delivered",
				slog.String("entry_id", entry.ID.String()),
				slog.Any("error", err),
			)
		}
	}
}

func require(locked map[BalanceKey]Balance, key BalanceKey) (Balance, error) {
	b, ok := locked[key]
	if !ok {
		return Balance{}, failf(ErrNotFound, "%s wallet not found for owner %s", key.Kind, key.OwnerID)
	}
	return b, nil
}

func cover(b Balance, amount decimal.Decimal) error {
	if b.Amount.LessThan(amount) {
		return failf(ErrInsufficientFunds, "%s balance %s is less than %s",
			b.Kind, b.Amount.StringFixed(Scale), amount.StringFixed(Scale))
	}
	return nil
}
