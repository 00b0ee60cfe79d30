package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jitta-card/jitta_card/internal/ledger"
)

// Status codes carried in every envelope.
const (
	CodeSuccess      = 1000
	CodeUnauthorized = 9001
	CodeInternal     = 9100
	CodeValidation   = 9300
	CodeOther        = 9999
)

// Status is the outcome block of an envelope.
type Status struct {
	Code int    `json:"code"`
	Desc string `json:"desc"`
}

// Envelope wraps every API response.
type Envelope struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *fiber.Ctx, data any) error {
	return c.Status(http.StatusOK).JSON(Envelope{
		Status: Status{Code: CodeSuccess, Desc: "SUCCESS"},
		Data:   data,
	})
}

// StatusFor maps a ledger error onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidFilter),
		errors.Is(err, ledger.ErrSameOwner),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrLimitExceeded),
		errors.Is(err, ledger.ErrOverpayment):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrOwnerExists):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error converts err into a *fiber.Error. Internal failures are not echoed back.
func Error(err error) *fiber.Error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		return fiber.NewError(status, "internal server error")
	case http.StatusServiceUnavailable:
		return fiber.NewError(status, "service temporarily unavailable, retry later")
	default:
		return fiber.NewError(status, err.Error())
	}
}

// CodeFor maps an HTTP status onto an envelope code.
func CodeFor(status int) int {
	switch {
	case status == http.StatusBadRequest, status == http.StatusConflict, status == http.StatusUnprocessableEntity:
		return CodeValidation
	case status == http.StatusUnauthorized, status == http.StatusNotFound:
		return CodeUnauthorized
	case status >= http.StatusInternalServerError:
		return CodeInternal
	default:
		return CodeOther
	}
}

// ErrorHandler renders every error returned by a handler as an envelope.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		fe := Error(err)
		if fe.Code >= http.StatusInternalServerError && logger != nil {
			reqID, _ := c.Locals("X-Request-ID").(string)
			logger.Error("request failed",
				slog.String("request_id", reqID),
				slog.String("path", c.Path()),
				slog.Any("error", err),
			)
		}
		return c.Status(fe.Code).JSON(Envelope{Status: Status{Code: CodeFor(fe.Code), Desc: fe.Message}})
	}
}
