package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
)

var _ repository.BarcodeRepository = (*BarcodeRepo)(nil)

const metaKeyBarcodeSyncAt = "barcode_last_sync_at"

// BarcodeRepo cache local da tabela compartilhada de barras.
type BarcodeRepo struct {
	db *DB
}

// NewBarcodeRepository constrói o adaptador.
func NewBarcodeRepository(db *DB) *BarcodeRepo {
	return &BarcodeRepo{db: db}
}

// Lookup busca pontual; (nil, nil) num miss.
func (r *BarcodeRepo) Lookup(ctx context.Context, barcode string) (*entity.BarcodeEntry, error) {
	var row barcodeRow
	err := r.db.Bun.NewSelect().Model(&row).Where("barcode = ?", barcode).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar barras: %w", err)
	}
	return &entity.BarcodeEntry{
		Barcode:     row.Barcode,
		ProductID:   row.ProductID,
		Description: row.Description,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// UpsertBatch mescla um lote de entradas no cache.
func (r *BarcodeRepo) UpsertBatch(ctx context.Context, entries []entity.BarcodeEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]barcodeRow, len(entries))
	for i, e := range entries {
		rows[i] = barcodeRow{
			Barcode:     e.Barcode,
			ProductID:   e.ProductID,
			Description: e.Description,
			UpdatedAt:   e.UpdatedAt,
		}
	}
	return r.db.WithTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&rows).
			On("CONFLICT (barcode) DO UPDATE").
			Set("product_id = EXCLUDED.product_id").
			Set("description = EXCLUDED.description").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mesclar barras: %w", err)
		}
		return nil
	})
}

// Clear esvazia o cache (início do refresh completo).
func (r *BarcodeRepo) Clear(ctx context.Context) error {
	if _, err := r.db.Bun.NewDelete().Table("barcode_cache").Where("1 = 1").Exec(ctx); err != nil {
		return fmt.Errorf("limpar cache de barras: %w", err)
	}
	return nil
}

// Meta contagem de linhas e timestamp da última sincronização.
func (r *BarcodeRepo) Meta(ctx context.Context) (entity.CacheMeta, error) {
	meta := entity.CacheMeta{}
	count, err := r.db.Bun.NewSelect().Table("barcode_cache").Count(ctx)
	if err != nil {
		return meta, fmt.Errorf("contar cache de barras: %w", err)
	}
	meta.RowCount = int64(count)

	var row metaRow
	err = r.db.Bun.NewSelect().Model(&row).Where("key = ?", metaKeyBarcodeSyncAt).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return meta, nil
		}
		return meta, fmt.Errorf("ler metadados de sincronização: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, row.Value)
	if err != nil {
		return meta, fmt.Errorf("timestamp de sincronização inválido: %w", err)
	}
	meta.LastSyncAt = ts
	return meta, nil
}

// SetLastSyncAt grava o timestamp de sincronização.
func (r *BarcodeRepo) SetLastSyncAt(ctx context.Context, ts time.Time) error {
	row := metaRow{Key: metaKeyBarcodeSyncAt, Value: ts.Format(time.RFC3339Nano)}
	_, err := r.db.Bun.NewInsert().Model(&row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gravar timestamp de sincronização: %w", err)
	}
	return nil
}
