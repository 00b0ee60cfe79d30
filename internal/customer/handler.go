package customer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jitta-card/jitta_card/internal/ledger"
	"github.com/jitta-card/jitta_card/internal/response"
)

// Handler exposes customer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a customer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type credentialsRequest struct {
	UserName string `json:"userName"`
}

type roundUpRequest struct {
	RoundUp *bool `json:"roundUp"`
}

type walletResponse struct {
	ID         string `json:"id"`
	WalletName string `json:"walletName"`
	Balance    string `json:"balance"`
}

type customerResponse struct {
	ID        string           `json:"id"`
	Username  string           `json:"username"`
	RoundUp   bool             `json:"isRoundUp"`
	CreatedAt string           `json:"createdAt"`
	Wallets   []walletResponse `json:"wallets,omitempty"`
}

func toResponse(o ledger.Owner, balances []ledger.Balance) customerResponse {
	res := customerResponse{
		ID:        o.ID.String(),
		Username:  o.Username,
		RoundUp:   o.RoundUp,
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, b := range balances {
		res.Wallets = append(res.Wallets, walletResponse{ID: b.ID.String(), WalletName: string(b.Kind), Balance: b.Amount.StringFixed(ledger.Scale)})
	}
	return res
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	profile, err := h.service.Register(c.UserContext(), req.UserName)
	switch {
	case errors.Is(err, ErrUsernameRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrOwnerExists):
		return fiber.NewError(http.StatusConflict, "Username already exists")
	case err != nil:
		return response.Error(err)
	}
	return response.OK(c, toResponse(profile.Owner, profile.Balances))
}

// Login checks that the username exists.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	owner, err := h.service.Login(c.UserContext(), req.UserName)
	switch {
	case errors.Is(err, ErrUsernameRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusUnauthorized, "User does not exist")
	case err != nil:
		return response.Error(err)
	}
	return response.OK(c, toResponse(owner, nil))
}

// ToggleRoundUp updates the round-up preference of :userId.
func (h *Handler) ToggleRoundUp(c *fiber.Ctx) error {
	ownerID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "userId must be a valid UUID")
	}
	var req roundUpRequest
	if err := c.BodyParser(&req); err != nil || req.RoundUp == nil {
		return fiber.NewError(http.StatusBadRequest, "roundUp need to be in type boolean")
	}
	owner, err := h.service.SetRoundUp(c.UserContext(), ownerID, *req.RoundUp)
	if err != nil {
		return response.Error(err)
	}
	return response.OK(c, toResponse(owner, nil))
}
