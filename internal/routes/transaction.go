package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jitta-card/jitta_card/internal/transaction"
)

// RegisterTransactionRoutes wires the history endpoint.
func RegisterTransactionRoutes(r fiber.Router, h *transaction.Handler) {
	r.Get("/transaction/:userId", h.List)
}
