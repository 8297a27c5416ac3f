package entity

import (
	"fmt"
	"strings"
	"time"
)

// Kind variante da conferência.
type Kind string

const (
	// KindSingle conferência de um documento único (nota/romaneio).
	KindSingle Kind = "single"
	// KindBatch conferência agrupada: um volume local agregando várias sub-sessões remotas.
	KindBatch Kind = "batch"
	// KindAvulsa conferência sem documento (recebimento avulso/devolução).
	KindAvulsa Kind = "avulsa"
)

// Status do volume de conferência.
type Status string

const (
	StatusInConference       Status = "em_conferencia"
	StatusFinalizedOk        Status = "finalizado_ok"
	StatusFinalizedDivergent Status = "finalizado_divergente"
)

// Finalized informa se o status é terminal (com ou sem divergência).
func (s Status) Finalized() bool {
	return s == StatusFinalizedOk || s == StatusFinalizedDivergent
}

// VolumeKey chave composta da réplica local: um volume por operador,
// filial, dia e referência.
type VolumeKey struct {
	Operator  string
	Facility  string
	Date      string // YYYY-MM-DD
	Reference string
}

// NewVolumeKey monta a chave do dia corrente para a referência dada.
func NewVolumeKey(operator, facility, reference string, day time.Time) VolumeKey {
	return VolumeKey{
		Operator:  operator,
		Facility:  facility,
		Date:      day.Format("2006-01-02"),
		Reference: reference,
	}
}

// String serializa a chave para uso como chave primária no store local.
func (k VolumeKey) String() string {
	return strings.Join([]string{k.Operator, k.Facility, k.Date, k.Reference}, "|")
}

// Volume uma unidade de auditoria: a réplica local de uma conferência em
// andamento, mutável offline e reconciliada depois contra o backend.
type Volume struct {
	Key             VolumeKey
	Kind            Kind
	Status          Status
	ReadOnly        bool
	RemoteSessionID string // vazio até ser resolvido contra o backend

	// Flags de operação pendente. SnapshotDirty pode coexistir com qualquer
	// uma das outras; FinalizePending e CancelPending são mutuamente exclusivas.
	SnapshotDirty   bool
	FinalizePending bool
	CancelPending   bool
	FinalizeReason  string

	// SyncError última falha transitória de sincronização (vazio = nenhuma).
	SyncError string

	StartedAt   time.Time
	FinalizedAt time.Time
	UpdatedAt   time.Time
	SyncedAt    time.Time

	Items []Item

	// Campos exclusivos de KindBatch.
	Allocations []Allocation
	SubSessions []SubSession
	Priority    []string // ordem de prioridade das sub-referências, fixada na abertura
}

// HasPending informa se alguma operação aguarda reconciliação.
func (v *Volume) HasPending() bool {
	return v.SnapshotDirty || v.FinalizePending || v.CancelPending
}

// Touch marca o volume como sujo após uma mutação local.
func (v *Volume) Touch(now time.Time) {
	v.SnapshotDirty = true
	v.UpdatedAt = now
}

// RequestFinalize registra a intenção de finalizar para reconciliação posterior.
func (v *Volume) RequestFinalize(reason string, now time.Time) error {
	if v.CancelPending {
		return fmt.Errorf("finalização e cancelamento são mutuamente exclusivos")
	}
	v.FinalizePending = true
	v.FinalizeReason = reason
	v.ReadOnly = true
	v.UpdatedAt = now
	return nil
}

// RequestCancel registra a intenção de cancelar para reconciliação posterior.
func (v *Volume) RequestCancel(now time.Time) error {
	if v.FinalizePending {
		return fmt.Errorf("finalização e cancelamento são mutuamente exclusivos")
	}
	v.CancelPending = true
	v.UpdatedAt = now
	return nil
}

// FindItem localiza um item pela chave opaca. Devolve nil se não existe.
func (v *Volume) FindItem(key ItemKey) *Item {
	for i := range v.Items {
		if v.Items[i].Key == key {
			return &v.Items[i]
		}
	}
	return nil
}

// ItemsByProduct devolve os índices dos itens do produto dado, na ordem do volume.
func (v *Volume) ItemsByProduct(productID string) []*Item {
	var out []*Item
	for i := range v.Items {
		if v.Items[i].ProductID == productID {
			out = append(out, &v.Items[i])
		}
	}
	return out
}

// FinalStatus status terminal derivado do estado atual dos itens.
func (v *Volume) FinalStatus() Status {
	for _, it := range v.Items {
		if it.Divergence().Status != DivergenceCorreto {
			return StatusFinalizedDivergent
		}
	}
	return StatusFinalizedOk
}
