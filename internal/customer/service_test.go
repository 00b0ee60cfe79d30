package customer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jitta-card/jitta_card/internal/ledger"
)

func TestRegisterAndLogin(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store)
	ctx := context.Background()

	profile, err := svc.Register(ctx, "  Alice ")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.Owner.Username != "alice" || !profile.Owner.RoundUp {
		t.Fatalf("unexpected owner %+v", profile.Owner)
	}
	if len(profile.Balances) != 3 {
		t.Fatalf("expected MAIN, EARN and LOAN balances, got %d", len(profile.Balances))
	}

	balances, err := store.Balances(ctx, profile.Owner.ID, ledger.KindAll)
	if err != nil || len(balances) != 3 {
		t.Fatalf("balances not persisted: %+v (%v)", balances, err)
	}
	for _, b := range balances {
		if !b.Amount.IsZero() {
			t.Fatalf("%s should start at zero, got %s", b.Kind, b.Amount)
		}
	}

	owner, err := svc.Login(ctx, "ALICE")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if owner.ID != profile.Owner.ID {
		t.Fatalf("login returned a different owner")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := NewService(ledger.NewInMemory())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, "BOB"); !errors.Is(err, ledger.ErrOwnerExists) {
		t.Fatalf("expected ErrOwnerExists, got %v", err)
	}
	if _, err := svc.Register(ctx, "   "); !errors.Is(err, ErrUsernameRequired) {
		t.Fatalf("expected ErrUsernameRequired, got %v", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc := NewService(ledger.NewInMemory())
	if _, err := svc.Login(context.Background(), "ghost"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRoundUp(t *testing.T) {
	svc := NewService(ledger.NewInMemory())
	ctx := context.Background()
	profile, err := svc.Register(ctx, "carol")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	owner, err := svc.SetRoundUp(ctx, profile.Owner.ID, false)
	if err != nil {
		t.Fatalf("set round-up: %v", err)
	}
	if owner.RoundUp {
		t.Fatalf("expected round-up disabled")
	}
	again, _ := svc.Login(ctx, "carol")
	if again.RoundUp {
		t.Fatalf("preference not persisted")
	}

	if _, err := svc.SetRoundUp(ctx, uuid.New(), true); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
