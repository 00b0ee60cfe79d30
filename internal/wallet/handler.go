package wallet

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jitta-card/jitta_card/internal/ledger"
	"github.com/jitta-card/jitta_card/internal/response"
	"github.com/shopspring/decimal"
)

// Ledger is the subset of the ledger engine the wallet endpoints drive.
type Ledger interface {
	Balances(ctx context.Context, ownerID uuid.UUID, kind ledger.Kind) ([]ledger.Balance, error)
	Deposit(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (ledger.CashResult, error)
	Withdraw(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (ledger.CashResult, error)
	Spend(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (ledger.SpendResult, error)
	Transfer(ctx context.Context, senderID, recipientID uuid.UUID, amount decimal.Decimal) (ledger.TransferResult, error)
	Borrow(ctx context.Context, ownerID uuid.UUID, requested decimal.Decimal) (ledger.LoanResult, error)
	Repay(ctx context.Context, ownerID uuid.UUID, amount decimal.Decimal) (ledger.LoanResult, error)
}

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	ledger Ledger
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(l Ledger) *Handler {
	return &Handler{ledger: l}
}

type amountRequest struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	SenderUserID    string          `json:"senderUserId"`
	RecipientUserID string          `json:"recipientUserId"`
	Amount          decimal.Decimal `json:"amount"`
}

type loanRequest struct {
	UserID          string          `json:"userId"`
	RequestedAmount decimal.Decimal `json:"requestedAmount"`
}

type balanceResponse struct {
	ID         string `json:"id"`
	WalletName string `json:"walletName"`
	Balance    string `json:"balance"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(ledger.Scale)
}

func parseUserID(field, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, field+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, field+" must be a valid UUID")
	}
	return id, nil
}

func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

// Balance returns the balances of :userId for the walletType query parameter.
func (h *Handler) Balance(c *fiber.Ctx) error {
	ownerID, err := parseUserID("userId", c.Params("userId"))
	if err != nil {
		return err
	}
	walletType := c.Query("walletType")
	if strings.TrimSpace(walletType) == "" {
		return fiber.NewError(http.StatusBadRequest, "Wallet type is required")
	}
	kind, err := ledger.ParseKind(walletType)
	if err != nil {
		return response.Error(err)
	}

	balances, err := h.ledger.Balances(c.UserContext(), ownerID, kind)
	if err != nil {
		return response.Error(err)
	}
	if len(balances) == 0 {
		return fiber.NewError(http.StatusNotFound, "No wallet found for the user")
	}

	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{ID: b.ID.String(), WalletName: string(b.Kind), Balance: money(b.Amount)})
	}
	return response.OK(c, out)
}

// Deposit credits the MAIN wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.cash(c, h.ledger.Deposit)
}

// Withdraw debits the MAIN wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.cash(c, h.ledger.Withdraw)
}

func (h *Handler) cash(c *fiber.Ctx, op func(context.Context, uuid.UUID, decimal.Decimal) (ledger.CashResult, error)) error {
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ownerID, err := parseUserID("userId", req.UserID)
	if err != nil {
		return err
	}
	res, err := op(c.UserContext(), ownerID, req.Amount)
	if err != nil {
		return response.Error(err)
	}
	return response.OK(c, fiber.Map{
		"transactionId": res.Entry.ID.String(),
		"walletName":    string(res.Balance.Kind),
		"balance":       money(res.Balance.Amount),
	})
}

// Pay spends from MAIN and sweeps the round-up into EARN.
func (h *Handler) Pay(c *fiber.Ctx) error {
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ownerID, err := parseUserID("userId", req.UserID)
	if err != nil {
		return err
	}
	res, err := h.ledger.Spend(c.UserContext(), ownerID, req.Amount)
	if err != nil {
		return response.Error(err)
	}
	return response.OK(c, fiber.Map{
		"mainBalance":   money(res.Spendable),
		"earnBalance":   money(res.Accrued),
		"roundUpAmount": money(res.RoundUp),
	})
}

// Transfer moves money between two users' MAIN wallets.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	senderID, err := parseUserID("senderUserId", req.SenderUserID)
	if err != nil {
		return err
	}
	recipientID, err := parseUserID("recipientUserId", req.RecipientUserID)
	if err != nil {
		return err
	}
	res, err := h.ledger.Transfer(c.UserContext(), senderID, recipientID, req.Amount)
	if err != nil {
		return response.Error(err)
	}
	return response.OK(c, fiber.Map{
		"transactionId":    res.Entry.ID.String(),
		"senderBalance":    money(res.SenderSpendable),
		"recipientBalance": money(res.RecipientSpendable),
	})
}

// Loan borrows against the EARN wallet.
func (h *Handler) Loan(c *fiber.Ctx) error {
	var req loanRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ownerID, err := parseUserID("userId", req.UserID)
	if err != nil {
		return err
	}
	res, err := h.ledger.Borrow(c.UserContext(), ownerID, req.RequestedAmount)
	if err != nil {
		return response.Error(err)
	}
	return response.OK(c, fiber.Map{
		"mainBalance":    money(res.Spendable),
		"loanBalance":    money(res.Borrowed),
		"borrowedAmount": money(res.Amount),
	})
}

// Settle repays part or all of the LOAN wallet from MAIN.
func (h *Handler) Settle(c *fiber.Ctx) error {
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ownerID, err := parseUserID("userId", req.UserID)
	if err != nil {
		return err
	}
	res, err := h.ledger.Repay(c.UserContext(), ownerID, req.Amount)
	if err != nil {
		return response.Error(err)
	}
	return response.OK(c, fiber.Map{
		"mainBalance":   money(res.Spendable),
		"loanBalance":   money(res.Borrowed),
		"settledAmount": money(res.Amount),
	})
}
