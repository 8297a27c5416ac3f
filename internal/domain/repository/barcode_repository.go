package repository

import (
	"context"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

// BarcodeRepository porta do cache local da tabela compartilhada de barras.
type BarcodeRepository interface {
	// Lookup devolve a entrada do código de barras ou (nil, nil) se não existe.
	Lookup(ctx context.Context, barcode string) (*entity.BarcodeEntry, error)
	// UpsertBatch insere ou atualiza um lote de entradas (merge do delta).
	UpsertBatch(ctx context.Context, entries []entity.BarcodeEntry) error
	// Clear esvazia o cache (início do refresh completo).
	Clear(ctx context.Context) error
	// Meta devolve contagem de linhas e timestamp da última sincronização.
	Meta(ctx context.Context) (entity.CacheMeta, error)
	// SetLastSyncAt grava o timestamp de sincronização.
	SetLastSyncAt(ctx context.Context, ts time.Time) error
}
