package customer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jitta-card/jitta_card/internal/ledger"
	"github.com/shopspring/decimal"
)

// ErrUsernameRequired is returned when a username is blank.
var ErrUsernameRequired = errors.New("userName is required")

// Service manages owner registration and preferences.
type Service struct {
	store ledger.Store
	now   func() time.Time
}

// NewService creates a customer service over store.
func NewService(store ledger.Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Profile is an owner together with its balances.
type Profile struct {
	Owner    ledger.Owner
	Balances []ledger.Balance
}

// Register creates an owner with round-up enabled and zero MAIN, EARN and LOAN balances.
func (s *Service) Register(ctx context.Context, username string) (Profile, error) {
	username, err := normalize(username)
	if err != nil {
		return Profile{}, err
	}

	profile := Profile{Owner: ledger.Owner{
		ID:        uuid.New(),
		Username:  username,
		RoundUp:   true,
		CreatedAt: s.now(),
	}}
	err = s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.CreateOwner(ctx, profile.Owner); err != nil {
			return err
		}
		for _, kind := range ledger.Kinds() {
			b := ledger.Balance{ID: uuid.New(), OwnerID: profile.Owner.ID, Kind: kind, Amount: decimal.Zero}
			if err := tx.CreateBalance(ctx, b); err != nil {
				return err
			}
			profile.Balances = append(profile.Balances, b)
		}
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Login looks an owner up by username.
func (s *Service) Login(ctx context.Context, username string) (ledger.Owner, error) {
	username, err := normalize(username)
	if err != nil {
		return ledger.Owner{}, err
	}
	var owner ledger.Owner
	err = s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		owner, err = tx.OwnerByUsername(ctx, username)
		return err
	})
	return owner, err
}

// SetRoundUp switches the owner's round-up preference.
func (s *Service) SetRoundUp(ctx context.Context, ownerID uuid.UUID, enabled bool) (ledger.Owner, error) {
	var owner ledger.Owner
	err := s.store.Atomic(ctx, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		owner, err = tx.SetRoundUp(ctx, ownerID, enabled)
		return err
	})
	return owner, err
}

func normalize(username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return "", ErrUsernameRequired
	}
	return username, nil
}
