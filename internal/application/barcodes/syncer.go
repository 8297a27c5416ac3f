package barcodes

import (
	"context"
	"fmt"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
	"github.com/coletorapp/conferencia-movel/pkg/logger"
)

// RemoteTable porta da tabela remota compartilhada de barras.
type RemoteTable interface {
	// Meta devolve a contagem total de linhas e o maior updated_at do backend.
	Meta(ctx context.Context) (rows int64, maxUpdatedAt time.Time, err error)
	// DeltaCount conta as linhas alteradas depois do timestamp dado.
	DeltaCount(ctx context.Context, after time.Time) (int64, error)
	// DeltaPage pagina as linhas alteradas depois do timestamp dado.
	DeltaPage(ctx context.Context, after time.Time, offset, limit int) ([]entity.BarcodeEntry, error)
	// FullPage pagina a tabela inteira.
	FullPage(ctx context.Context, offset, limit int) ([]entity.BarcodeEntry, error)
}

// Progress callback de progresso incremental para feedback de UI.
type Progress func(fetched, total int64)

// Syncer sincroniza o cache local de barras contra a tabela remota, com duas
// estratégias escolhidas pelo estado do cache: refresh completo (cache frio)
// ou refresh incremental por delta (cache quente).
type Syncer struct {
	repo     repository.BarcodeRepository
	remote   RemoteTable
	pageSize int
	log      *logger.Logger
	now      func() time.Time
}

// NewSyncer constrói o sincronizador.
func NewSyncer(repo repository.BarcodeRepository, remote RemoteTable, pageSize int, log *logger.Logger) *Syncer {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Syncer{repo: repo, remote: remote, pageSize: pageSize, log: log, now: time.Now}
}

// WithClock troca o relógio (testes).
func (s *Syncer) WithClock(now func() time.Time) *Syncer {
	s.now = now
	return s
}

// Refresh executa a estratégia adequada. onProgress pode ser nil.
func (s *Syncer) Refresh(ctx context.Context, onProgress Progress) error {
	meta, err := s.repo.Meta(ctx)
	if err != nil {
		return fmt.Errorf("ler metadados do cache: %w", err)
	}
	if meta.RowCount <= 0 || meta.LastSyncAt.IsZero() {
		return s.full(ctx, onProgress)
	}
	return s.delta(ctx, meta.LastSyncAt, onProgress)
}

// full pagina a tabela inteira substituindo o cache local, rastreando o maior
// updated_at visto como novo timestamp de sincronização.
func (s *Syncer) full(ctx context.Context, onProgress Progress) error {
	total, _, err := s.remote.Meta(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("limpar cache: %w", err)
	}

	var fetched int64
	var maxUpdated time.Time
	for offset := 0; ; offset += s.pageSize {
		page, err := s.remote.FullPage(ctx, offset, s.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		if err := s.repo.UpsertBatch(ctx, page); err != nil {
			return fmt.Errorf("gravar página no cache: %w", err)
		}
		fetched += int64(len(page))
		maxUpdated = maxUpdatedAt(maxUpdated, page)
		report(onProgress, fetched, total)
		if len(page) < s.pageSize {
			break
		}
	}

	if maxUpdated.IsZero() {
		maxUpdated = s.now()
	}
	if err := s.repo.SetLastSyncAt(ctx, maxUpdated); err != nil {
		return fmt.Errorf("gravar timestamp de sincronização: %w", err)
	}
	s.log.Info().Int64("rows", fetched).Time("sync_at", maxUpdated).Msg("refresh completo do cache de barras")
	return nil
}

// delta pede primeiro a contagem barata de alterações; zero alterações apenas
// "toca" o timestamp local, sem buscar página alguma. Com alterações, pagina e
// mescla, avançando o timestamp para o maior updated_at observado nas páginas,
// nunca para "agora", para não perder linhas escritas durante a janela de busca.
func (s *Syncer) delta(ctx context.Context, since time.Time, onProgress Progress) error {
	total, err := s.remote.DeltaCount(ctx, since)
	if err != nil {
		return err
	}
	if total == 0 {
		if err := s.repo.SetLastSyncAt(ctx, s.now()); err != nil {
			return fmt.Errorf("tocar timestamp de sincronização: %w", err)
		}
		return nil
	}

	var fetched int64
	var maxUpdated time.Time
	for offset := 0; ; offset += s.pageSize {
		page, err := s.remote.DeltaPage(ctx, since, offset, s.pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		if err := s.repo.UpsertBatch(ctx, page); err != nil {
			return fmt.Errorf("mesclar página no cache: %w", err)
		}
		fetched += int64(len(page))
		maxUpdated = maxUpdatedAt(maxUpdated, page)
		report(onProgress, fetched, total)
		if len(page) < s.pageSize {
			break
		}
	}

	if !maxUpdated.IsZero() {
		if err := s.repo.SetLastSyncAt(ctx, maxUpdated); err != nil {
			return fmt.Errorf("gravar timestamp de sincronização: %w", err)
		}
	}
	s.log.Info().Int64("rows", fetched).Time("sync_at", maxUpdated).Msg("refresh incremental do cache de barras")
	return nil
}

func maxUpdatedAt(current time.Time, page []entity.BarcodeEntry) time.Time {
	for _, e := range page {
		if e.UpdatedAt.After(current) {
			current = e.UpdatedAt
		}
	}
	return current
}

func report(onProgress Progress, fetched, total int64) {
	if onProgress != nil {
		onProgress(fetched, total)
	}
}
