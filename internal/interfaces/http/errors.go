package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/coletorapp/conferencia-movel/internal/application/dto"
	"github.com/coletorapp/conferencia-movel/internal/domain"
)

// respondError mapeia a taxonomia de domínio para status HTTP. Único ponto de
// tradução erro->status dos handlers.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrLockConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ITEM_LOCKED", Message: err.Error()})
	case errors.Is(err, domain.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrTerminalNotFound):
		return c.Status(fiber.StatusGone).JSON(dto.ErrorResponse{Code: "SESSION_GONE", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: err.Error()})
	case errors.Is(err, domain.ErrOffline):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "OFFLINE", Message: err.Error()})
	case errors.Is(err, domain.ErrTransient):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "TRANSIENT", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}
