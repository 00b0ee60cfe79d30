package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedOwner is a test helper that registers an owner with zero balances of every kind.
func SeedOwner(s *InMemoryStore, username string, roundUp bool) Owner {
	owner := Owner{ID: uuid.New(), Username: strings.ToLower(username), RoundUp: roundUp, CreatedAt: time.Now().UTC()}
	err := s.Atomic(context.Background(), func(ctx context.Context, tx Tx) error {
		if err := tx.CreateOwner(ctx, owner); err != nil {
			return err
		}
		for _, k := range kinds {
			if err := tx.CreateBalance(ctx, Balance{ID: uuid.New(), OwnerID: owner.ID, Kind: k, Amount: decimal.Zero}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic("seed owner: " + err.Error())
	}
	return owner
}

// SeedBalance is a test helper that overwrites a balance amount without writing an entry.
func SeedBalance(s *InMemoryStore, ownerID uuid.UUID, kind Kind, amount string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := BalanceKey{OwnerID: ownerID, Kind: kind}
	b, ok := s.balances[key]
	if !ok {
		panic("seed balance: no " + key.String())
	}
	b.Amount = Normalize(decimal.RequireFromString(amount))
	s.balances[key] = b
}
