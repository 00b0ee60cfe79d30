package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jitta-card/jitta_card/internal/wallet"
)

// RegisterWalletRoutes wires balance reads and money movements.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	g := r.Group("/wallet")
	g.Get("/balance/:userId", h.Balance)
	g.Post("/deposit", h.Deposit)
	g.Post("/withdraw", h.Withdraw)
	g.Post("/pay", h.Pay)
	g.Post("/transfer", h.Transfer)
	g.Post("/loan", h.Loan)
	g.Post("/settle", h.Settle)
}
