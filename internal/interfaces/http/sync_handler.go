package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coletorapp/conferencia-movel/internal/application/barcodes"
	"github.com/coletorapp/conferencia-movel/internal/application/dto"
	"github.com/coletorapp/conferencia-movel/internal/application/syncx"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
)

// SyncHandler dispara sincronizações sob demanda: reconciliação de volumes
// pendentes e refresh do cache de barras.
type SyncHandler struct {
	worker   *syncx.Worker
	barcodes *barcodes.Syncer
	cache    repository.BarcodeRepository
}

// NewSyncHandler constrói o handler.
func NewSyncHandler(worker *syncx.Worker, syncer *barcodes.Syncer, cache repository.BarcodeRepository) *SyncHandler {
	return &SyncHandler{worker: worker, barcodes: syncer, cache: cache}
}

// SyncNow executa uma passada de reconciliação imediata.
func (h *SyncHandler) SyncNow(c *fiber.Ctx) error {
	report, err := h.worker.SyncNow(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SyncReportResponse{
		Processed: report.Processed,
		Synced:    report.Synced,
		Failed:    report.Failed,
	})
}

// RefreshBarcodes atualiza o cache local de barras (completo ou delta,
// conforme o estado do cache).
func (h *SyncHandler) RefreshBarcodes(c *fiber.Ctx) error {
	if err := h.barcodes.Refresh(c.Context(), nil); err != nil {
		return respondError(c, err)
	}
	meta, err := h.cache.Meta(c.Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.RefreshResponse{Rows: meta.RowCount, LastSyncAt: meta.LastSyncAt})
}
