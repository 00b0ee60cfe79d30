package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event describes a committed ledger entry.
type Event struct {
	EntryID             uuid.UUID  `json:"entry_id"`
	Operation           string     `json:"operation"`
	OwnerID             uuid.UUID  `json:"owner_id"`
	Amount              string     `json:"amount"`
	SourceWalletID      *uuid.UUID `json:"source_wallet_id"`
	DestinationWalletID *uuid.UUID `json:"destination_wallet_id"`
	OccurredAt          time.Time  `json:"occurred_at"`
}

// Notifier delivers ledger events to downstream systems.
// Delivery is best effort; callers log failures and move on.
type Notifier interface {
	Send(ctx context.Context, event Event) error
}

// LoggerNotifier writes events to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, event Event) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.LogAttrs(ctx, slog.LevelInfo, "ledger event",
		slog.String("entry_id", event.EntryID.String()),
		slog.String("operation", event.Operation),
		slog.String("owner_id", event.OwnerID.String()),
		slog.String("amount", event.Amount),
	)
	return nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
