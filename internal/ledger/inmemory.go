package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InMemoryStore keeps everything in process memory. A single mutex is held
// for the whole atomic scope; writes are staged and applied on commit.
type InMemoryStore struct {
	mu        sync.Mutex
	owners    map[uuid.UUID]Owner
	usernames map[string]uuid.UUID
	balances  map[BalanceKey]Balance
	byID      map[uuid.UUID]BalanceKey
	entries   []Entry
	seq       int64
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		owners:    make(map[uuid.UUID]Owner),
		usernames: make(map[string]uuid.UUID),
		balances:  make(map[BalanceKey]Balance),
		byID:      make(map[uuid.UUID]BalanceKey),
	}
}

func (s *InMemoryStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:    s,
		owners:   make(map[uuid.UUID]Owner),
		balances: make(map[BalanceKey]Balance),
		amounts:  make(map[uuid.UUID]decimal.Decimal),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	tx.commit()
	return nil
}

func (s *InMemoryStore) Balances(ctx context.Context, ownerID uuid.UUID, kind Kind) ([]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Balance
	for _, k := range kinds {
		if kind != KindAll && kind != k {
			continue
		}
		if b, ok := s.balances[BalanceKey{OwnerID: ownerID, Kind: k}]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Entries(ctx context.Context, ownerID uuid.UUID, filter EntryFilter) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scope := make(map[uuid.UUID]struct{})
	for _, k := range kinds {
		if filter.Kind != "" && filter.Kind != KindAll && filter.Kind != k {
			continue
		}
		if b, ok := s.balances[BalanceKey{OwnerID: ownerID, Kind: k}]; ok {
			scope[b.ID] = struct{}{}
		}
	}
	if len(scope) == 0 {
		return nil, nil
	}

	var out []Entry
	for _, e := range s.entries {
		if filter.matches(e, scope) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Sequence > out[j].Sequence
	})
	return out, nil
}

// memTx stages writes until the scope commits.
type memTx struct {
	store    *InMemoryStore
	owners   map[uuid.UUID]Owner
	balances map[BalanceKey]Balance
	amounts  map[uuid.UUID]decimal.Decimal
	entries  []Entry
}

func (tx *memTx) CreateOwner(ctx context.Context, owner Owner) error {
	owner.Username = strings.ToLower(owner.Username)
	if _, err := tx.OwnerByUsername(ctx, owner.Username); err == nil {
		return failf(ErrOwnerExists, "username %s is already registered", owner.Username)
	}
	if _, err := tx.Owner(ctx, owner.ID); err == nil {
		return failf(ErrOwnerExists, "owner %s already exists", owner.ID)
	}
	tx.owners[owner.ID] = owner
	return nil
}

func (tx *memTx) Owner(_ context.Context, id uuid.UUID) (Owner, error) {
	if o, ok := tx.owners[id]; ok {
		return o, nil
	}
	if o, ok := tx.store.owners[id]; ok {
		return o, nil
	}
	return Owner{}, failf(ErrNotFound, "owner %s not found", id)
}

func (tx *memTx) OwnerByUsername(ctx context.Context, username string) (Owner, error) {
	username = strings.ToLower(username)
	for _, o := range tx.owners {
		if o.Username == username {
			return o, nil
		}
	}
	if id, ok := tx.store.usernames[username]; ok {
		return tx.Owner(ctx, id)
	}
	return Owner{}, failf(ErrNotFound, "user %s not found", username)
}

func (tx *memTx) SetRoundUp(ctx context.Context, id uuid.UUID, enabled bool) (Owner, error) {
	o, err := tx.Owner(ctx, id)
	if err != nil {
		return Owner{}, err
	}
	o.RoundUp = enabled
	tx.owners[id] = o
	return o, nil
}

func (tx *memTx) CreateBalance(_ context.Context, b Balance) error {
	key := BalanceKey{OwnerID: b.OwnerID, Kind: b.Kind}
	if !b.Kind.Valid() {
		return fmt.Errorf("create balance: unknown kind %q", b.Kind)
	}
	if _, ok := tx.balances[key]; ok {
		return failf(ErrOwnerExists, "%s wallet already exists for owner %s", b.Kind, b.OwnerID)
	}
	if _, ok := tx.store.balances[key]; ok {
		return failf(ErrOwnerExists, "%s wallet already exists for owner %s", b.Kind, b.OwnerID)
	}
	b.Amount = Normalize(b.Amount)
	tx.balances[key] = b
	return nil
}

func (tx *memTx) Lock(_ context.Context, keys ...BalanceKey) (map[BalanceKey]Balance, error) {
	out := make(map[BalanceKey]Balance, len(keys))
	for _, key := range SortKeys(keys) {
		b, ok := tx.balances[key]
		if !ok {
			b, ok = tx.store.balances[key]
		}
		if !ok {
			continue
		}
		if amount, staged := tx.amounts[b.ID]; staged {
			b.Amount = amount
		}
		out[key] = b
	}
	return out, nil
}

func (tx *memTx) UpdateBalance(_ context.Context, id uuid.UUID, amount decimal.Decimal) error {
	if !tx.known(id) {
		return failf(ErrNotFound, "wallet %s not found", id)
	}
	tx.amounts[id] = Normalize(amount)
	return nil
}

func (tx *memTx) Append(_ context.Context, e Entry) (Entry, error) {
	if e.SourceID == nil && e.DestinationID == nil {
		return Entry{}, fmt.Errorf("append entry %s: source and destination are both empty", e.ID)
	}
	if e.Amount.IsNegative() {
		return Entry{}, fmt.Errorf("append entry %s: negative amount %s", e.ID, e.Amount)
	}
	e.Amount = Normalize(e.Amount)
	e.Sequence = tx.store.seq + int64(len(tx.entries)) + 1
	tx.entries = append(tx.entries, e)
	return e, nil
}

func (tx *memTx) known(id uuid.UUID) bool {
	if _, ok := tx.store.byID[id]; ok {
		return true
	}
	for _, b := range tx.balances {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (tx *memTx) commit() {
	s := tx.store
	for id, o := range tx.owners {
		s.owners[id] = o
		s.usernames[o.Username] = id
	}
	for key, b := range tx.balances {
		s.balances[key] = b
		s.byID[b.ID] = key
	}
	for id, amount := range tx.amounts {
		key := s.byID[id]
		b := s.balances[key]
		b.Amount = amount
		s.balances[key] = b
	}
	s.entries = append(s.entries, tx.entries...)
	s.seq += int64(len(tx.entries))
}
