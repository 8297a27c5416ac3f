package sqlite

import (
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

type volumeRow struct {
	bun.BaseModel `bun:"table:volumes"`

	Key             string    `bun:"key,pk"`
	Operator        string    `bun:"operator"`
	Facility        string    `bun:"facility"`
	Date            string    `bun:"date"`
	Reference       string    `bun:"reference"`
	Kind            string    `bun:"kind"`
	Status          string    `bun:"status"`
	ReadOnly        bool      `bun:"read_only"`
	RemoteSessionID string    `bun:"remote_session_id"`
	SnapshotDirty   bool      `bun:"snapshot_dirty"`
	FinalizePending bool      `bun:"finalize_pending"`
	CancelPending   bool      `bun:"cancel_pending"`
	FinalizeReason  string    `bun:"finalize_reason"`
	SyncError       string    `bun:"sync_error"`
	Priority        string    `bun:"priority"`
	StartedAt       time.Time `bun:"started_at"`
	FinalizedAt     time.Time `bun:"finalized_at"`
	UpdatedAt       time.Time `bun:"updated_at"`
	SyncedAt        time.Time `bun:"synced_at"`
}

type itemRow struct {
	bun.BaseModel `bun:"table:volume_items"`

	VolumeKey   string `bun:"volume_key"`
	Position    int    `bun:"position"`
	ItemKey     string `bun:"item_key"`
	ProductID   string `bun:"product_id"`
	Description string `bun:"description"`
	Barcode     string `bun:"barcode"`
	Expected    int64  `bun:"expected"`
	Counted     int64  `bun:"counted"`
	Locked      bool   `bun:"locked"`
	LockedBy    string `bun:"locked_by"`
}

type allocationRow struct {
	bun.BaseModel `bun:"table:volume_allocations"`

	VolumeKey string `bun:"volume_key"`
	SubRef    string `bun:"sub_ref"`
	ProductID string `bun:"product_id"`
	Expected  int64  `bun:"expected"`
	Counted   int64  `bun:"counted"`
}

type subSessionRow struct {
	bun.BaseModel `bun:"table:volume_sub_sessions"`

	VolumeKey string `bun:"volume_key"`
	Position  int    `bun:"position"`
	SubRef    string `bun:"sub_ref"`
	SessionID string `bun:"session_id"`
	Finalized bool   `bun:"finalized"`
}

type manifestRow struct {
	bun.BaseModel `bun:"table:manifests"`

	Facility  string    `bun:"facility"`
	Reference string    `bun:"reference"`
	FetchedAt time.Time `bun:"fetched_at"`
	ItemsJSON string    `bun:"items_json"`
}

type barcodeRow struct {
	bun.BaseModel `bun:"table:barcode_cache"`

	Barcode     string    `bun:"barcode,pk"`
	ProductID   string    `bun:"product_id"`
	Description string    `bun:"description"`
	UpdatedAt   time.Time `bun:"updated_at"`
}

type metaRow struct {
	bun.BaseModel `bun:"table:sync_meta"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value"`
}

type preferenceRow struct {
	bun.BaseModel `bun:"table:preferences"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value"`
}

func volumeToRow(v *entity.Volume) volumeRow {
	return volumeRow{
		Key:             v.Key.String(),
		Operator:        v.Key.Operator,
		Facility:        v.Key.Facility,
		Date:            v.Key.Date,
		Reference:       v.Key.Reference,
		Kind:            string(v.Kind),
		Status:          string(v.Status),
		ReadOnly:        v.ReadOnly,
		RemoteSessionID: v.RemoteSessionID,
		SnapshotDirty:   v.SnapshotDirty,
		FinalizePending: v.FinalizePending,
		CancelPending:   v.CancelPending,
		FinalizeReason:  v.FinalizeReason,
		SyncError:       v.SyncError,
		Priority:        strings.Join(v.Priority, ","),
		StartedAt:       v.StartedAt,
		FinalizedAt:     v.FinalizedAt,
		UpdatedAt:       v.UpdatedAt,
		SyncedAt:        v.SyncedAt,
	}
}

func rowToVolume(r volumeRow) *entity.Volume {
	v := &entity.Volume{
		Key: entity.VolumeKey{
			Operator:  r.Operator,
			Facility:  r.Facility,
			Date:      r.Date,
			Reference: r.Reference,
		},
		Kind:            entity.Kind(r.Kind),
		Status:          entity.Status(r.Status),
		ReadOnly:        r.ReadOnly,
		RemoteSessionID: r.RemoteSessionID,
		SnapshotDirty:   r.SnapshotDirty,
		FinalizePending: r.FinalizePending,
		CancelPending:   r.CancelPending,
		FinalizeReason:  r.FinalizeReason,
		SyncError:       r.SyncError,
		StartedAt:       r.StartedAt,
		FinalizedAt:     r.FinalizedAt,
		UpdatedAt:       r.UpdatedAt,
		SyncedAt:        r.SyncedAt,
	}
	if r.Priority != "" {
		v.Priority = strings.Split(r.Priority, ",")
	}
	return v
}
