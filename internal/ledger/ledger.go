package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind names one of the balances every owner holds.
type Kind string

const (
	// KindSpendable is the owner's spendable balance.
	KindSpendable Kind = "MAIN"
	// KindAccrued collects round-ups and backs borrowing capacity.
	KindAccrued Kind = "EARN"
	// KindBorrowed tracks outstanding debt as a value <= 0.
	KindBorrowed Kind = "LOAN"
	// KindAll is accepted by read filters and matches every kind.
	KindAll Kind = "ALL"
)

var kinds = []Kind{KindSpendable, KindAccrued, KindBorrowed}

// Kinds returns the balance kinds created for every owner, in canonical order.
func Kinds() []Kind {
	return append([]Kind(nil), kinds...)
}

func (k Kind) rank() int {
	switch k {
	case KindSpendable:
		return 0
	case KindAccrued:
		return 1
	case KindBorrowed:
		return 2
	default:
		return 3
	}
}

// Valid reports whether k is one of the concrete balance kinds.
func (k Kind) Valid() bool {
	return k.rank() < len(kinds)
}

// ParseKind parses a wallet type filter. An empty string means KindAll.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if k == "" || k == KindAll {
		return KindAll, nil
	}
	if !k.Valid() {
		return "", failf(ErrInvalidFilter, "unknown wallet type %q", s)
	}
	return k, nil
}

// Operation is the kind of money movement a ledger entry records.
type Operation string

const (
	OpDeposit  Operation = "deposit"
	OpWithdraw Operation = "withdraw"
	OpRoundUp  Operation = "round_up"
	OpPayment  Operation = "payment"
	OpTransfer Operation = "transfer"
	OpBorrow   Operation = "borrow"
	OpRepay    Operation = "repay"
)

var operations = map[Operation]struct{}{
	OpDeposit: {}, OpWithdraw: {}, OpRoundUp: {}, OpPayment: {},
	OpTransfer: {}, OpBorrow: {}, OpRepay: {},
}

// legacy type names still sent by older clients
var operationAliases = map[Operation]Operation{
	"loan":   OpBorrow,
	"settle": OpRepay,
}

// ParseOperation parses a transaction type filter. An empty string means no restriction.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if op == "" {
		return "", nil
	}
	if alias, ok := operationAliases[op]; ok {
		return alias, nil
	}
	if _, ok := operations[op]; !ok {
		return "", failf(ErrInvalidFilter, "unknown transaction type %q", s)
	}
	return op, nil
}

// StatusCompleted is the only status an entry is ever written with.
const StatusCompleted = "completed"

// Owner is a registered person holding balances.
type Owner struct {
	ID        uuid.UUID
	Username  string
	RoundUp   bool
	CreatedAt time.Time
}

// Balance is the amount held by one owner for one kind.
type Balance struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Kind    Kind
	Amount  decimal.Decimal
}

// BalanceKey addresses a balance by owner and kind.
type BalanceKey struct {
	OwnerID uuid.UUID
	Kind    Kind
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%s/%s", k.OwnerID, k.Kind)
}

// SortKeys orders keys by owner then kind. Balances are always locked in this
// order so two operations touching the same balances cannot deadlock.
func SortKeys(keys []BalanceKey) []BalanceKey {
	sorted := append([]BalanceKey(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := strings.Compare(a.OwnerID.String(), b.OwnerID.String()); c != 0 {
			return c < 0
		}
		return a.Kind.rank() < b.Kind.rank()
	})
	out := sorted[:0]
	for i, k := range sorted {
		if i > 0 && k == sorted[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Entry is an immutable record of one money movement between at most two balances.
// A nil SourceID is money entering the ledger, a nil DestinationID money leaving it.
type Entry struct {
	ID            uuid.UUID
	Sequence      int64
	SourceID      *uuid.UUID
	DestinationID *uuid.UUID
	Amount        decimal.Decimal
	Operation     Operation
	Status        string
	CreatedAt     time.Time
	Remarks       string
}

// EntryFilter narrows a history query. Zero values mean no restriction.
type EntryFilter struct {
	Kind      Kind
	Operation Operation
	From      time.Time
	To        time.Time
}

// Store is the durable home of owners, balances and the entry log.
type Store interface {
	// Atomic runs fn in a single atomic scope: it commits when fn returns nil
	// and rolls back every write otherwise.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Balances lists the owner's balances, all kinds when kind is KindAll.
	Balances(ctx context.Context, ownerID uuid.UUID, kind Kind) ([]Balance, error)
	// Entries lists entries touching the owner's balances, most recent first.
	Entries(ctx context.Context, ownerID uuid.UUID, filter EntryFilter) ([]Entry, error)
}

// Tx is the view of the store inside an atomic scope.
type Tx interface {
	CreateOwner(ctx context.Context, owner Owner) error
	Owner(ctx context.Context, id uuid.UUID) (Owner, error)
	OwnerByUsername(ctx context.Context, username string) (Owner, error)
	SetRoundUp(ctx context.Context, id uuid.UUID, enabled bool) (Owner, error)
	CreateBalance(ctx context.Context, balance Balance) error
	// Lock reads the requested balances and holds them until the scope ends.
	// Keys without a balance are absent from the result.
	Lock(ctx context.Context, keys ...BalanceKey) (map[BalanceKey]Balance, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	// Append writes an entry and returns it with its sequence assigned.
	Append(ctx context.Context, entry Entry) (Entry, error)
}

// SpendResult is the outcome of a payment.
type SpendResult struct {
	Spendable decimal.Decimal
	Accrued   decimal.Decimal
	RoundUp   decimal.Decimal
	Entries   []Entry
}

// CashResult is the outcome of a deposit or withdrawal.
type CashResult struct {
	Balance Balance
	Entry   Entry
}

// TransferResult is the outcome of a peer transfer.
type TransferResult struct {
	SenderSpendable    decimal.Decimal
	RecipientSpendable decimal.Decimal
	Entry              Entry
}

// LoanResult is the outcome of a borrow or a repayment.
type LoanResult struct {
	Spendable decimal.Decimal
	Borrowed  decimal.Decimal
	Amount    decimal.Decimal
	Entry     Entry
}
