package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/application/dto"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

// ConferenceHandler expõe o ciclo de vida do volume de conferência para a UI
// do coletor. Toda rota é protegida; operador e filial vêm do token.
type ConferenceHandler struct {
	uc *conference.UseCase
}

// NewConferenceHandler constrói o handler.
func NewConferenceHandler(uc *conference.UseCase) *ConferenceHandler {
	return &ConferenceHandler{uc: uc}
}

func (h *ConferenceHandler) key(c *fiber.Ctx, reference string) entity.VolumeKey {
	return entity.NewVolumeKey(GetOperator(c), GetFacility(c), reference, time.Now())
}

// Open abre ou retoma a conferência da referência.
func (h *ConferenceHandler) Open(c *fiber.Ctx) error {
	var in dto.OpenRequest
	if err := c.BodyParser(&in); err != nil || in.Reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "reference obrigatória"})
	}
	res, err := h.uc.OpenByReference(c.Context(), GetOperator(c), GetFacility(c), in.Reference)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromOpenResult(res))
}

// OpenAvulsa abre uma conferência sem documento.
func (h *ConferenceHandler) OpenAvulsa(c *fiber.Ctx) error {
	res, err := h.uc.OpenAvulsa(c.Context(), GetOperator(c), GetFacility(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromOpenResult(res))
}

// OpenBatch abre uma conferência agrupada de várias referências.
func (h *ConferenceHandler) OpenBatch(c *fiber.Ctx) error {
	var in dto.OpenBatchRequest
	if err := c.BodyParser(&in); err != nil || len(in.References) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "references obrigatórias"})
	}
	res, err := h.uc.OpenBatch(c.Context(), GetOperator(c), GetFacility(c), in.References)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromOpenResult(res))
}

// List lista os volumes locais do operador.
func (h *ConferenceHandler) List(c *fiber.Ctx) error {
	vols, err := h.uc.ListByOperator(c.Context(), GetOperator(c))
	if err != nil {
		return respondError(c, err)
	}
	out := make([]dto.VolumeResponse, len(vols))
	for i, v := range vols {
		out[i] = dto.FromVolume(v)
	}
	return c.JSON(fiber.Map{"total": len(out), "volumes": out})
}

// Get devolve o volume da referência (query param, pois referências levam "/").
func (h *ConferenceHandler) Get(c *fiber.Ctx) error {
	reference := c.Query("reference")
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "reference obrigatória"})
	}
	vol, err := h.uc.Get(c.Context(), h.key(c, reference))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromVolume(vol))
}

// Scan aplica um escaneamento de código de barras ao volume.
func (h *ConferenceHandler) Scan(c *fiber.Ctx) error {
	var in dto.ScanRequest
	if err := c.BodyParser(&in); err != nil || in.Reference == "" || in.Barcode == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "reference e barcode obrigatórios"})
	}
	out, err := h.uc.Scan(c.Context(), h.key(c, in.Reference), in.Barcode, in.Qty)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromScanOutcome(out))
}

// Count confirma a contagem num item desambiguado pela UI.
func (h *ConferenceHandler) Count(c *fiber.Ctx) error {
	var in dto.CountRequest
	if err := c.BodyParser(&in); err != nil || in.Reference == "" || in.ItemKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "reference e item_key obrigatórios"})
	}
	out, err := h.uc.CountItem(c.Context(), h.key(c, in.Reference), entity.ItemKey(in.ItemKey), in.Qty)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromScanOutcome(out))
}

// SetQuantity edita manualmente a quantidade contada de um item.
func (h *ConferenceHandler) SetQuantity(c *fiber.Ctx) error {
	var in dto.SetQuantityRequest
	if err := c.BodyParser(&in); err != nil || in.Reference == "" || in.ItemKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "reference e item_key obrigatórios"})
	}
	out, err := h.uc.SetQuantity(c.Context(), h.key(c, in.Reference), entity.ItemKey(in.ItemKey), in.Qty)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromScanOutcome(out))
}

// Finalize fecha o volume; offline o fechamento fica pendente de sincronização.
func (h *ConferenceHandler) Finalize(c *fiber.Ctx) error {
	var in dto.FinalizeRequest
	if err := c.BodyParser(&in); err != nil || in.Reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "reference obrigatória"})
	}
	vol, err := h.uc.Finalize(c.Context(), h.key(c, in.Reference), in.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.FromVolume(vol))
}

// Cancel descarta o volume local (e a sessão remota, se alcançável).
func (h *ConferenceHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelRequest
	if err := c.BodyParser(&in); err != nil || in.Reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "reference obrigatória"})
	}
	if err := h.uc.Cancel(c.Context(), h.key(c, in.Reference)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "conferência cancelada"})
}
