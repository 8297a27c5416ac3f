package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coletorapp/conferencia-movel/internal/application/dto"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
)

// PreferenceHandler preferências chave/valor do dispositivo (tema, volume do
// bip, última filial usada). A UI do coletor persiste aqui o que precisa
// sobreviver a reinícios.
type PreferenceHandler struct {
	prefs repository.PreferenceRepository
}

// NewPreferenceHandler constrói o handler.
func NewPreferenceHandler(prefs repository.PreferenceRepository) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs}
}

// Get devolve o valor da chave ("" se não existe).
func (h *PreferenceHandler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	value, err := h.prefs.Get(c.Context(), key)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"key": key, "value": value})
}

// Set grava o valor da chave.
func (h *PreferenceHandler) Set(c *fiber.Ctx) error {
	key := c.Params("key")
	var in struct {
		Value string `json:"value"`
	}
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "corpo inválido"})
	}
	if err := h.prefs.Set(c.Context(), key, in.Value); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"key": key, "value": in.Value})
}
