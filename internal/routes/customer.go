package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jitta-card/jitta_card/internal/customer"
)

// RegisterCustomerRoutes wires registration, login and preferences.
func RegisterCustomerRoutes(r fiber.Router, h *customer.Handler, loginLimiter fiber.Handler) {
	g := r.Group("/customer")
	g.Post("/register", h.Register)
	g.Post("/login", loginLimiter, h.Login)
	g.Patch("/toggle-round-up/:userId", h.ToggleRoundUp)
}
