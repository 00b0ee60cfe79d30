package transaction

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jitta-card/jitta_card/internal/ledger"
	"github.com/jitta-card/jitta_card/internal/response"
)

const dateOnly = "2006-01-02"

// History reads the entry log of an owner.
type History interface {
	Transactions(ctx context.Context, ownerID uuid.UUID, filter ledger.EntryFilter) ([]ledger.Entry, error)
}

// Handler exposes transaction history endpoints.
type Handler struct {
	history History
}

// NewHandler constructs a transaction history handler.
func NewHandler(history History) *Handler {
	return &Handler{history: history}
}

type entryResponse struct {
	ID              string  `json:"id"`
	FromWalletID    *string `json:"fromWalletId"`
	ToWalletID      *string `json:"toWalletId"`
	Amount          string  `json:"amount"`
	Type            string  `json:"type"`
	Status          string  `json:"status"`
	TransactionDate string  `json:"transactionDate"`
	Remarks         string  `json:"remarks"`
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// List returns the entries of :userId filtered by walletType, transactionType,
// startDate and endDate, most recent first.
func (h *Handler) List(c *fiber.Ctx) error {
	ownerID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "userId must be a valid UUID")
	}

	var filter ledger.EntryFilter
	if filter.Kind, err = ledger.ParseKind(c.Query("walletType")); err != nil {
		return response.Error(err)
	}
	if filter.Operation, err = ledger.ParseOperation(c.Query("transactionType")); err != nil {
		return response.Error(err)
	}
	if filter.From, err = parseDate(c.Query("startDate"), false); err != nil {
		return fiber.NewError(http.StatusBadRequest, "startDate: "+err.Error())
	}
	if filter.To, err = parseDate(c.Query("endDate"), true); err != nil {
		return fiber.NewError(http.StatusBadRequest, "endDate: "+err.Error())
	}

	entries, err := h.history.Transactions(c.UserContext(), ownerID, filter)
	if err != nil {
		return response.Error(err)
	}
	if len(entries) == 0 {
		return fiber.NewError(http.StatusNotFound, "No transactions found for the user")
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:              e.ID.String(),
			FromWalletID:    optionalID(e.SourceID),
			ToWalletID:      optionalID(e.DestinationID),
			Amount:          e.Amount.StringFixed(ledger.Scale),
			Type:            string(e.Operation),
			Status:          e.Status,
			TransactionDate: e.CreatedAt.UTC().Format(time.RFC3339Nano),
			Remarks:         e.Remarks,
		})
	}
	return response.OK(c, out)
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", raw)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
