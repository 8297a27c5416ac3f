package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
)

var _ repository.PreferenceRepository = (*PreferenceRepo)(nil)

// PreferenceRepo preferências chave/valor do dispositivo.
type PreferenceRepo struct {
	db *DB
}

// NewPreferenceRepository constrói o adaptador.
func NewPreferenceRepository(db *DB) *PreferenceRepo {
	return &PreferenceRepo{db: db}
}

// Get devolve o valor da chave ("" se não existe).
func (r *PreferenceRepo) Get(ctx context.Context, key string) (string, error) {
	var row preferenceRow
	err := r.db.Bun.NewSelect().Model(&row).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("buscar preferência: %w", err)
	}
	return row.Value, nil
}

// Set grava o valor da chave.
func (r *PreferenceRepo) Set(ctx context.Context, key, value string) error {
	row := preferenceRow{Key: key, Value: value}
	_, err := r.db.Bun.NewInsert().Model(&row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("gravar preferência: %w", err)
	}
	return nil
}
