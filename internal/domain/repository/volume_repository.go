package repository

import (
	"context"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

// VolumeRepository porta da réplica local de volumes de conferência.
// Put é sempre uma sobrescrita do objeto inteiro (itens e rateios inclusos),
// o que torna os replays da reconciliação idempotentes. Não há transação
// entre chaves distintas.
type VolumeRepository interface {
	// Get devolve o volume da chave ou (nil, nil) se não existe.
	Get(ctx context.Context, key entity.VolumeKey) (*entity.Volume, error)
	Put(ctx context.Context, v *entity.Volume) error
	// ListByOperator devolve todos os volumes do operador, mais recente primeiro.
	ListByOperator(ctx context.Context, operator string) ([]*entity.Volume, error)
	// ListPending devolve os volumes do operador com alguma flag pendente.
	ListPending(ctx context.Context, operator string) ([]*entity.Volume, error)
	Remove(ctx context.Context, key entity.VolumeKey) error
	// Prune remove volumes não atualizados desde o instante dado (varredura
	// de retenção executada no carregamento). Devolve quantos foram removidos.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// ManifestRepository porta do cache local de manifestos (baseline esperada
// por referência, usada na abertura offline).
type ManifestRepository interface {
	// Get devolve o manifesto da referência ou (nil, nil) se não existe.
	Get(ctx context.Context, facility, reference string) (*entity.Manifest, error)
	Put(ctx context.Context, m *entity.Manifest) error
}

// PreferenceRepository porta de preferências simples chave/valor do dispositivo.
type PreferenceRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
