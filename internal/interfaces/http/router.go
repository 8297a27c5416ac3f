package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/coletorapp/conferencia-movel/internal/application/barcodes"
	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/application/syncx"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
)

// RouterDeps dependências para o router.
type RouterDeps struct {
	ConferenceUC *conference.UseCase
	SyncWorker   *syncx.Worker
	BarcodeSync  *barcodes.Syncer
	BarcodeCache repository.BarcodeRepository
	Preferences  repository.PreferenceRepository
	JWTSecret    string
}

// Router registra as rotas da API local do coletor.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Rotas protegidas (operador autenticado no dispositivo)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	conferences := protected.Group("/conferences")
	conferenceHandler := NewConferenceHandler(deps.ConferenceUC)
	conferences.Post("/open", conferenceHandler.Open)
	conferences.Post("/open-avulsa", conferenceHandler.OpenAvulsa)
	conferences.Post("/open-batch", conferenceHandler.OpenBatch)
	conferences.Get("/", conferenceHandler.List)
	conferences.Get("/volume", conferenceHandler.Get)
	conferences.Post("/scan", conferenceHandler.Scan)
	conferences.Post("/count", conferenceHandler.Count)
	conferences.Post("/quantity", conferenceHandler.SetQuantity)
	conferences.Post("/finalize", conferenceHandler.Finalize)
	conferences.Post("/cancel", conferenceHandler.Cancel)

	sync := protected.Group("/sync")
	syncHandler := NewSyncHandler(deps.SyncWorker, deps.BarcodeSync, deps.BarcodeCache)
	sync.Post("/now", syncHandler.SyncNow)
	sync.Post("/barcodes", syncHandler.RefreshBarcodes)

	prefs := protected.Group("/preferences")
	preferenceHandler := NewPreferenceHandler(deps.Preferences)
	prefs.Get("/:key", preferenceHandler.Get)
	prefs.Put("/:key", preferenceHandler.Set)
}
