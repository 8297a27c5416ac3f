package dto

import (
	"time"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

// OpenRequest abertura de conferência por referência.
type OpenRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// OpenBatchRequest abertura agrupada de várias referências.
type OpenBatchRequest struct {
	References []string `json:"references" validate:"required,min=1"`
}

// ScanRequest escaneamento de um código de barras no volume.
type ScanRequest struct {
	Reference string `json:"reference" validate:"required"`
	Barcode   string `json:"barcode" validate:"required"`
	Qty       int64  `json:"qty"`
}

// CountRequest confirmação de contagem num item já desambiguado.
type CountRequest struct {
	Reference string `json:"reference" validate:"required"`
	ItemKey   string `json:"item_key" validate:"required"`
	Qty       int64  `json:"qty"`
}

// SetQuantityRequest edição manual da quantidade contada de um item.
type SetQuantityRequest struct {
	Reference string `json:"reference" validate:"required"`
	ItemKey   string `json:"item_key" validate:"required"`
	Qty       int64  `json:"qty" validate:"min=0"`
}

// FinalizeRequest fechamento do volume.
type FinalizeRequest struct {
	Reference string `json:"reference" validate:"required"`
	Reason    string `json:"reason"`
}

// CancelRequest descarte do volume.
type CancelRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// ItemResponse item do volume com a divergência corrente.
type ItemResponse struct {
	Key         string `json:"key"`
	ProductID   string `json:"product_id"`
	Description string `json:"description,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	Expected    int64  `json:"expected"`
	Counted     int64  `json:"counted"`
	Divergence  string `json:"divergence"`
	Falta       int64  `json:"falta,omitempty"`
	Sobra       int64  `json:"sobra,omitempty"`
	Locked      bool   `json:"locked,omitempty"`
	LockedBy    string `json:"locked_by,omitempty"`
}

// VolumeResponse visão completa do volume local.
type VolumeResponse struct {
	Reference       string         `json:"reference"`
	Facility        string         `json:"facility"`
	Date            string         `json:"date"`
	Kind            string         `json:"kind"`
	Status          string         `json:"status"`
	ReadOnly        bool           `json:"read_only"`
	SnapshotDirty   bool           `json:"snapshot_dirty"`
	FinalizePending bool           `json:"finalize_pending"`
	CancelPending   bool           `json:"cancel_pending"`
	SyncError       string         `json:"sync_error,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	FinalizedAt     *time.Time     `json:"finalized_at,omitempty"`
	SyncedAt        *time.Time     `json:"synced_at,omitempty"`
	Items           []ItemResponse `json:"items"`
	SubReferences   []string       `json:"sub_references,omitempty"`
}

// OpenResponse volume aberto e o modo de abertura.
type OpenResponse struct {
	Mode   string         `json:"mode"`
	Volume VolumeResponse `json:"volume"`
}

// ScanResponse resultado de um escaneamento. Com mais de um candidato a UI
// deve desambiguar e confirmar via CountRequest; nada foi contado ainda.
type ScanResponse struct {
	Volume     VolumeResponse `json:"volume"`
	Item       *ItemResponse  `json:"item,omitempty"`
	Candidates []ItemResponse `json:"candidates,omitempty"`
}

// SyncReportResponse resultado de uma passada de reconciliação.
type SyncReportResponse struct {
	Processed int `json:"processed"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`
}

// RefreshResponse resultado do refresh do cache de barras.
type RefreshResponse struct {
	Rows       int64     `json:"rows"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// FromItem converte um item de domínio, com a divergência derivada.
func FromItem(it entity.Item) ItemResponse {
	d := it.Divergence()
	return ItemResponse{
		Key:         string(it.Key),
		ProductID:   it.ProductID,
		Description: it.Description,
		Barcode:     it.Barcode,
		Expected:    it.Expected,
		Counted:     it.Counted,
		Divergence:  d.Status,
		Falta:       d.Falta,
		Sobra:       d.Sobra,
		Locked:      it.Locked,
		LockedBy:    it.LockedBy,
	}
}

// FromVolume converte um volume de domínio.
func FromVolume(v *entity.Volume) VolumeResponse {
	items := make([]ItemResponse, len(v.Items))
	for i, it := range v.Items {
		items[i] = FromItem(it)
	}
	resp := VolumeResponse{
		Reference:       v.Key.Reference,
		Facility:        v.Key.Facility,
		Date:            v.Key.Date,
		Kind:            string(v.Kind),
		Status:          string(v.Status),
		ReadOnly:        v.ReadOnly,
		SnapshotDirty:   v.SnapshotDirty,
		FinalizePending: v.FinalizePending,
		CancelPending:   v.CancelPending,
		SyncError:       v.SyncError,
		StartedAt:       v.StartedAt,
		Items:           items,
		SubReferences:   v.Priority,
	}
	if !v.FinalizedAt.IsZero() {
		t := v.FinalizedAt
		resp.FinalizedAt = &t
	}
	if !v.SyncedAt.IsZero() {
		t := v.SyncedAt
		resp.SyncedAt = &t
	}
	return resp
}

// FromOpenResult converte o resultado de abertura.
func FromOpenResult(r *conference.OpenResult) OpenResponse {
	return OpenResponse{Mode: string(r.Mode), Volume: FromVolume(r.Volume)}
}

// FromScanOutcome converte o resultado de escaneamento.
func FromScanOutcome(o *conference.ScanOutcome) ScanResponse {
	resp := ScanResponse{Volume: FromVolume(o.Volume)}
	if o.Item != nil {
		it := FromItem(*o.Item)
		resp.Item = &it
	}
	for _, c := range o.Candidates {
		resp.Candidates = append(resp.Candidates, FromItem(c))
	}
	return resp
}
