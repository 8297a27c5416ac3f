package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/coletorapp/conferencia-movel/internal/application/barcodes"
	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/application/syncx"
	"github.com/coletorapp/conferencia-movel/internal/infrastructure/remote"
	"github.com/coletorapp/conferencia-movel/internal/infrastructure/sqlite"
	httpRouter "github.com/coletorapp/conferencia-movel/internal/interfaces/http"
	"github.com/coletorapp/conferencia-movel/pkg/config"
	"github.com/coletorapp/conferencia-movel/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("carregar configuração: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando agente")

	ctx := context.Background()
	db, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("abrir réplica local")
	}
	defer db.Close()

	if err := sqlite.Migrate(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("migrar réplica local")
	}

	volumeRepo := sqlite.NewVolumeRepository(db)
	manifestRepo := sqlite.NewManifestRepository(db)
	barcodeRepo := sqlite.NewBarcodeRepository(db)
	preferenceRepo := sqlite.NewPreferenceRepository(db)

	// Retenção: volumes parados há mais que o limite saem da réplica no boot.
	cutoff := time.Now().AddDate(0, 0, -cfg.Store.RetentionDays)
	if removed, err := volumeRepo.Prune(ctx, cutoff); err != nil {
		log.Warn().Err(err).Msg("limpeza de retenção")
	} else if removed > 0 {
		log.Info().Int64("removed", removed).Msg("volumes antigos removidos da réplica")
	}

	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout())
	barcodeClient := remote.NewBarcodeClient(client)
	monitor := remote.NewMonitor(cfg.Remote.BaseURL)

	reconciler := syncx.NewReconciler(volumeRepo, client, log)
	worker := syncx.NewWorker(reconciler, monitor, cfg.Sync.Debounce(), log)
	worker.Start()
	defer worker.Close()

	manifestMaxAge := time.Duration(cfg.Sync.ManifestMaxDays) * 24 * time.Hour
	conferenceUC := conference.NewUseCase(
		volumeRepo, manifestRepo, barcodeRepo,
		client, barcodeClient, monitor, worker,
		log, manifestMaxAge,
	)
	barcodeSync := barcodes.NewSyncer(barcodeRepo, barcodeClient, cfg.Sync.PageSize, log)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	httpRouter.Router(app, httpRouter.RouterDeps{
		ConferenceUC: conferenceUC,
		SyncWorker:   worker,
		BarcodeSync:  barcodeSync,
		BarcodeCache: barcodeRepo,
		Preferences:  preferenceRepo,
		JWTSecret:    cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("sinal de parada recebido, encerrando...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("encerramento do servidor")
	}

	log.Info().Msg("agente parado")
}
