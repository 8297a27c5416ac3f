package http

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/coletorapp/conferencia-movel/internal/application/dto"
	"github.com/coletorapp/conferencia-movel/pkg/jwt"
)

// Locals keys para Operator e Facility no Fiber.
const (
	LocalOperator = "operator"
	LocalFacility = "facility"
)

// AuthMiddleware valida o Bearer Token JWT e extrai Operator e Facility para c.Locals.
func AuthMiddleware(jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "header Authorization obrigatório"})
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "formato: Bearer <token>"})
		}
		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "MISSING_TOKEN", Message: "token vazio"})
		}
		operator, facility, err := jwt.Parse(jwtSecret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "INVALID_TOKEN", Message: "token inválido ou expirado"})
		}
		c.Locals(LocalOperator, operator)
		c.Locals(LocalFacility, facility)
		return c.Next()
	}
}

// GetOperator devolve o operador do contexto (depois do middleware de auth).
func GetOperator(c *fiber.Ctx) string {
	v := c.Locals(LocalOperator)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetFacility devolve a filial do contexto (depois do middleware de auth).
func GetFacility(c *fiber.Ctx) string {
	v := c.Locals(LocalFacility)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
