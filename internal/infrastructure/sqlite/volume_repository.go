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

var _ repository.VolumeRepository = (*VolumeRepo)(nil)

// VolumeRepo implementação de VolumeRepository sobre o SQLite local.
// Put sobrescreve o objeto inteiro numa transação (linha do volume mais
// filhos), o que torna os replays da reconciliação idempotentes.
type VolumeRepo struct {
	db *DB
}

// NewVolumeRepository constrói o adaptador.
func NewVolumeRepository(db *DB) *VolumeRepo {
	return &VolumeRepo{db: db}
}

// Get carrega o volume e seus filhos, ou (nil, nil) se não existe.
func (r *VolumeRepo) Get(ctx context.Context, key entity.VolumeKey) (*entity.Volume, error) {
	var row volumeRow
	err := r.db.Bun.NewSelect().Model(&row).Where("key = ?", key.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar volume: %w", err)
	}
	vol := rowToVolume(row)
	if err := r.loadChildren(ctx, vol); err != nil {
		return nil, err
	}
	return vol, nil
}

// Put grava o volume por sobrescrita total: upsert da linha e regravação dos
// itens, rateios e sub-sessões.
func (r *VolumeRepo) Put(ctx context.Context, v *entity.Volume) error {
	row := volumeToRow(v)
	return r.db.WithTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&row).
			On("CONFLICT (key) DO UPDATE").
			Set("status = EXCLUDED.status").
			Set("read_only = EXCLUDED.read_only").
			Set("remote_session_id = EXCLUDED.remote_session_id").
			Set("snapshot_dirty = EXCLUDED.snapshot_dirty").
			Set("finalize_pending = EXCLUDED.finalize_pending").
			Set("cancel_pending = EXCLUDED.cancel_pending").
			Set("finalize_reason = EXCLUDED.finalize_reason").
			Set("sync_error = EXCLUDED.sync_error").
			Set("priority = EXCLUDED.priority").
			Set("finalized_at = EXCLUDED.finalized_at").
			Set("updated_at = EXCLUDED.updated_at").
			Set("synced_at = EXCLUDED.synced_at").
			Exec(ctx); err != nil {
			return fmt.Errorf("gravar volume: %w", err)
		}

		for _, table := range []string{"volume_items", "volume_allocations", "volume_sub_sessions"} {
			if _, err := tx.NewDelete().Table(table).Where("volume_key = ?", row.Key).Exec(ctx); err != nil {
				return fmt.Errorf("limpar %s: %w", table, err)
			}
		}

		if len(v.Items) > 0 {
			rows := make([]itemRow, len(v.Items))
			for i, it := range v.Items {
				rows[i] = itemRow{
					VolumeKey:   row.Key,
					Position:    i,
					ItemKey:     string(it.Key),
					ProductID:   it.ProductID,
					Description: it.Description,
					Barcode:     it.Barcode,
					Expected:    it.Expected,
					Counted:     it.Counted,
					Locked:      it.Locked,
					LockedBy:    it.LockedBy,
				}
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("gravar itens: %w", err)
			}
		}
		if len(v.Allocations) > 0 {
			rows := make([]allocationRow, len(v.Allocations))
			for i, a := range v.Allocations {
				rows[i] = allocationRow{
					VolumeKey: row.Key,
					SubRef:    a.SubRef,
					ProductID: a.ProductID,
					Expected:  a.Expected,
					Counted:   a.Counted,
				}
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("gravar rateios: %w", err)
			}
		}
		if len(v.SubSessions) > 0 {
			rows := make([]subSessionRow, len(v.SubSessions))
			for i, ss := range v.SubSessions {
				rows[i] = subSessionRow{
					VolumeKey: row.Key,
					Position:  i,
					SubRef:    ss.SubRef,
					SessionID: ss.SessionID,
					Finalized: ss.Finalized,
				}
			}
			if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
				return fmt.Errorf("gravar sub-sessões: %w", err)
			}
		}
		return nil
	})
}

// ListByOperator devolve os volumes do operador (vazio = todos), mais
// recentes primeiro.
func (r *VolumeRepo) ListByOperator(ctx context.Context, operator string) ([]*entity.Volume, error) {
	return r.list(ctx, operator, false)
}

// ListPending devolve os volumes do operador (vazio = todos) com alguma flag
// de operação pendente.
func (r *VolumeRepo) ListPending(ctx context.Context, operator string) ([]*entity.Volume, error) {
	return r.list(ctx, operator, true)
}

func (r *VolumeRepo) list(ctx context.Context, operator string, onlyPending bool) ([]*entity.Volume, error) {
	var rows []volumeRow
	q := r.db.Bun.NewSelect().Model(&rows).OrderExpr("updated_at DESC")
	if operator != "" {
		q = q.Where("operator = ?", operator)
	}
	if onlyPending {
		q = q.Where("snapshot_dirty = 1 OR finalize_pending = 1 OR cancel_pending = 1")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("listar volumes: %w", err)
	}

	vols := make([]*entity.Volume, 0, len(rows))
	for _, row := range rows {
		vol := rowToVolume(row)
		if err := r.loadChildren(ctx, vol); err != nil {
			return nil, err
		}
		vols = append(vols, vol)
	}
	return vols, nil
}

// Remove apaga o volume e, por cascata, seus filhos.
func (r *VolumeRepo) Remove(ctx context.Context, key entity.VolumeKey) error {
	_, err := r.db.Bun.NewDelete().Table("volumes").Where("key = ?", key.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("remover volume: %w", err)
	}
	return nil
}

// Prune varredura de retenção: apaga volumes não atualizados desde olderThan.
func (r *VolumeRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.Bun.NewDelete().Table("volumes").Where("updated_at < ?", olderThan).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("varredura de retenção: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *VolumeRepo) loadChildren(ctx context.Context, vol *entity.Volume) error {
	volKey := vol.Key.String()

	var items []itemRow
	if err := r.db.Bun.NewSelect().Model(&items).
		Where("volume_key = ?", volKey).OrderExpr("position ASC").Scan(ctx); err != nil {
		return fmt.Errorf("carregar itens: %w", err)
	}
	vol.Items = make([]entity.Item, len(items))
	for i, it := range items {
		vol.Items[i] = entity.Item{
			Key:         entity.ItemKey(it.ItemKey),
			ProductID:   it.ProductID,
			Description: it.Description,
			Barcode:     it.Barcode,
			Expected:    it.Expected,
			Counted:     it.Counted,
			Locked:      it.Locked,
			LockedBy:    it.LockedBy,
		}
	}

	var allocs []allocationRow
	if err := r.db.Bun.NewSelect().Model(&allocs).
		Where("volume_key = ?", volKey).OrderExpr("sub_ref ASC, product_id ASC").Scan(ctx); err != nil {
		return fmt.Errorf("carregar rateios: %w", err)
	}
	for _, a := range allocs {
		vol.Allocations = append(vol.Allocations, entity.Allocation{
			SubRef:    a.SubRef,
			ProductID: a.ProductID,
			Expected:  a.Expected,
			Counted:   a.Counted,
		})
	}

	var subs []subSessionRow
	if err := r.db.Bun.NewSelect().Model(&subs).
		Where("volume_key = ?", volKey).OrderExpr("position ASC").Scan(ctx); err != nil {
		return fmt.Errorf("carregar sub-sessões: %w", err)
	}
	for _, ss := range subs {
		vol.SubSessions = append(vol.SubSessions, entity.SubSession{
			SubRef:    ss.SubRef,
			SessionID: ss.SessionID,
			Finalized: ss.Finalized,
		})
	}
	return nil
}
