package ledger

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jitta-card/jitta_card/internal/infra"
	"github.com/shopspring/decimal"
)

// newPostgresStore connects to LEDGER_TEST_DATABASE_URL and applies the schema.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	return NewPostgresStore(newTestPool(t, 8), 2*time.Second)
}

func newTestPool(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infra.NewPostgresPool(ctx, url, infra.PoolOptions{MaxConns: maxConns})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := infra.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func registerPG(t *testing.T, s Store) Owner {
	t.Helper()
	owner := Owner{ID: uuid.New(), Username: "pg-" + uuid.NewString(), RoundUp: true, CreatedAt: time.Now().UTC()}
	err := s.Atomic(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.CreateOwner(ctx, owner); err != nil {
			return err
		}
		for _, k := range Kinds() {
			if err := tx.CreateBalance(ctx, Balance{ID: uuid.New(), OwnerID: owner.ID, Kind: k, Amount: decimal.Zero}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return owner
}

func TestPostgresStore_SpendAndHistory(t *testing.T) {
	s := newPostgresStore(t)
	e := NewEngine(s)
	ctx := context.Background()
	owner := registerPG(t, s)

	if _, err := e.Deposit(ctx, owner.ID, dec("350")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	res, err := e.Spend(ctx, owner.ID, dec("100"))
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	assertAmount(t, "spendable", res.Spendable, "200.00")
	assertAmount(t, "accrued", res.Accrued, "50.00")

	entries, err := e.Transactions(ctx, owner.ID, EntryFilter{})
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	earn, err := e.Transactions(ctx, owner.ID, EntryFilter{Kind: KindAccrued})
	if err != nil || len(earn) != 1 || earn[0].Operation != OpRoundUp {
		t.Fatalf("expected the round-up only, got %+v (%v)", earn, err)
	}
}

func TestPostgresStore_DuplicateUsername(t *testing.T) {
	s := newPostgresStore(t)
	owner := registerPG(t, s)

	err := s.Atomic(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateOwner(ctx, Owner{ID: uuid.New(), Username: owner.Username, CreatedAt: time.Now()})
	})
	if !errors.Is(err, ErrOwnerExists) {
		t.Fatalf("expected ErrOwnerExists, got %v", err)
	}
}

func TestPostgresStore_ConcurrentTransfersConserve(t *testing.T) {
	s := newPostgresStore(t)
	e := NewEngine(s)
	ctx := context.Background()
	a := registerPG(t, s)
	b := registerPG(t, s)
	for _, o := range []Owner{a, b} {
		if _, err := e.Deposit(ctx, o.ID, dec("100")); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := e.Transfer(ctx, a.ID, b.ID, dec("3")); err != nil {
				t.Errorf("a -> b: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := e.Transfer(ctx, b.ID, a.ID, dec("1")); err != nil {
				t.Errorf("b -> a: %v", err)
			}
		}()
	}
	wg.Wait()

	assertAmount(t, "a", balanceOf(t, e, a.ID, KindSpendable), "80.00")
	assertAmount(t, "b", balanceOf(t, e, b.ID, KindSpendable), "120.00")
}

func TestPostgresStore_ReadsBoundedByAcquireTimeout(t *testing.T) {
	pool := newTestPool(t, 1)
	s := NewPostgresStore(pool, 200*time.Millisecond)
	owner := registerPG(t, s)
	ctx := context.Background()

	held, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer held.Release()

	start := time.Now()
	if _, err := s.Balances(ctx, owner.ID, KindAll); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("balances: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := s.Entries(ctx, owner.ID, EntryFilter{}); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("entries: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Atomic(ctx, func(context.Context, Tx) error { return nil }); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("atomic: expected ErrStoreUnavailable, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("reads waited %s on a saturated pool", elapsed)
	}
}

func TestPostgresStore_NumericOverflowIsInvalidAmount(t *testing.T) {
	s := newPostgresStore(t)
	owner := registerPG(t, s)

	err := s.Atomic(context.Background(), func(ctx context.Context, tx Tx) error {
		key := BalanceKey{OwnerID: owner.ID, Kind: KindSpendable}
		locked, err := tx.Lock(ctx, key)
		if err != nil {
			return err
		}
		return tx.UpdateBalance(ctx, locked[key].ID, dec("1e17"))
	})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
