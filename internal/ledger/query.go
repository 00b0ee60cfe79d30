package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Balances returns the owner's balances of kind, or all of them for KindAll,
// ordered MAIN, EARN, LOAN. An empty result is not an error.
func (e *Engine) Balances(ctx context.Context, ownerID uuid.UUID, kind Kind) ([]Balance, error) {
	if kind == "" {
		kind = KindAll
	}
	if kind != KindAll && !kind.Valid() {
		return nil, failf(ErrInvalidFilter, "unknown wallet type %q", kind)
	}
	return e.store.Balances(ctx, ownerID, kind)
}

// Transactions returns the distinct entries touching the owner's balances that
// match every set field of filter, most recent first.
func (e *Engine) Transactions(ctx context.Context, ownerID uuid.UUID, filter EntryFilter) ([]Entry, error) {
	if filter.Kind == KindAll {
		filter.Kind = ""
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, failf(ErrInvalidFilter, "unknown wallet type %q", filter.Kind)
	}
	if filter.Operation != "" {
		if _, ok := operations[filter.Operation]; !ok {
			return nil, failf(ErrInvalidFilter, "unknown transaction type %q", filter.Operation)
		}
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, failf(ErrInvalidFilter, "start date %s is after end date %s",
			filter.From.Format(time.RFC3339), filter.To.Format(time.RFC3339))
	}
	return e.store.Entries(ctx, ownerID, filter)
}

// matches reports whether entry satisfies filter given the ids of the owner's
// balances that are in scope.
func (f EntryFilter) matches(entry Entry, scope map[uuid.UUID]struct{}) bool {
	touches := false
	if entry.SourceID != nil {
		_, touches = scope[*entry.SourceID]
	}
	if !touches && entry.DestinationID != nil {
		_, touches = scope[*entry.DestinationID]
	}
	if !touches {
		return false
	}
	if f.Operation != "" && entry.Operation != f.Operation {
		return false
	}
	if !f.From.IsZero() && entry.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && entry.CreatedAt.After(f.To) {
		return false
	}
	return true
}
