package entity

import "time"

// BarcodeEntry uma linha do cache local de código de barras -> produto.
type BarcodeEntry struct {
	Barcode     string
	ProductID   string
	Description string
	UpdatedAt   time.Time
}

// CacheMeta metadados do cache local de barras.
type CacheMeta struct {
	RowCount   int64
	LastSyncAt time.Time // zero se nunca sincronizou
}

// Manifest baseline de quantidades esperadas de uma referência, guardado a
// cada busca online e usado para abrir a conferência quando offline.
type Manifest struct {
	Facility  string
	Reference string
	FetchedAt time.Time
	Items     []Item
}
