package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
)

var _ repository.ManifestRepository = (*ManifestRepo)(nil)

// ManifestRepo cache local de manifestos para abertura offline. Os itens são
// serializados como JSON: o manifesto é lido e gravado sempre inteiro.
type ManifestRepo struct {
	db *DB
}

// NewManifestRepository constrói o adaptador.
func NewManifestRepository(db *DB) *ManifestRepo {
	return &ManifestRepo{db: db}
}

// Get devolve o manifesto ou (nil, nil) se não existe.
func (r *ManifestRepo) Get(ctx context.Context, facility, reference string) (*entity.Manifest, error) {
	var row manifestRow
	err := r.db.Bun.NewSelect().Model(&row).
		Where("facility = ?", facility).
		Where("reference = ?", reference).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("buscar manifesto: %w", err)
	}

	m := &entity.Manifest{
		Facility:  row.Facility,
		Reference: row.Reference,
		FetchedAt: row.FetchedAt,
	}
	if err := json.Unmarshal([]byte(row.ItemsJSON), &m.Items); err != nil {
		return nil, fmt.Errorf("decodificar itens do manifesto: %w", err)
	}
	return m, nil
}

// Put insere ou substitui o manifesto da referência.
func (r *ManifestRepo) Put(ctx context.Context, m *entity.Manifest) error {
	payload, err := json.Marshal(m.Items)
	if err != nil {
		return fmt.Errorf("codificar itens do manifesto: %w", err)
	}
	row := manifestRow{
		Facility:  m.Facility,
		Reference: m.Reference,
		FetchedAt: m.FetchedAt,
		ItemsJSON: string(payload),
	}
	_, err = r.db.Bun.NewInsert().Model(&row).
		On("CONFLICT (facility, reference) DO UPDATE").
		Set("fetched_at = EXCLUDED.fetched_at").
		Set("items_json = EXCLUDED.items_json").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gravar manifesto: %w", err)
	}
	return nil
}
