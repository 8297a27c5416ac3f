package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/application/barcodes"
	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

var (
	_ barcodes.RemoteTable     = (*BarcodeClient)(nil)
	_ conference.BarcodeLookup = (*BarcodeClient)(nil)
)

// BarcodeClient acesso à tabela compartilhada de barras no backend,
// compartilhando transporte e mapeamento de erros com o Client de sessões.
type BarcodeClient struct {
	c *Client
}

// NewBarcodeClient constrói o cliente da tabela de barras.
func NewBarcodeClient(c *Client) *BarcodeClient {
	return &BarcodeClient{c: c}
}

type barcodePayload struct {
	Barcode     string    `json:"barcode"`
	ProductID   string    `json:"product_id"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toEntries(ps []barcodePayload) []entity.BarcodeEntry {
	entries := make([]entity.BarcodeEntry, len(ps))
	for i, p := range ps {
		entries[i] = entity.BarcodeEntry{
			Barcode:     p.Barcode,
			ProductID:   p.ProductID,
			Description: p.Description,
			UpdatedAt:   p.UpdatedAt,
		}
	}
	return entries
}

// Meta contagem total e maior updated_at da tabela remota.
func (b *BarcodeClient) Meta(ctx context.Context) (int64, time.Time, error) {
	var out struct {
		Rows         int64     `json:"rows"`
		MaxUpdatedAt time.Time `json:"max_updated_at"`
	}
	if err := b.c.doJSON(ctx, http.MethodGet, "/v1/barcodes/meta", nil, &out); err != nil {
		return 0, time.Time{}, err
	}
	return out.Rows, out.MaxUpdatedAt, nil
}

// DeltaCount conta as linhas alteradas depois do timestamp dado.
func (b *BarcodeClient) DeltaCount(ctx context.Context, after time.Time) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	path := "/v1/barcodes/delta-count?after=" + url.QueryEscape(after.Format(time.RFC3339Nano))
	if err := b.c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// DeltaPage pagina as linhas alteradas depois do timestamp dado.
func (b *BarcodeClient) DeltaPage(ctx context.Context, after time.Time, offset, limit int) ([]entity.BarcodeEntry, error) {
	path := fmt.Sprintf("/v1/barcodes/delta?after=%s&offset=%d&limit=%d",
		url.QueryEscape(after.Format(time.RFC3339Nano)), offset, limit)
	return b.page(ctx, path)
}

// FullPage pagina a tabela inteira.
func (b *BarcodeClient) FullPage(ctx context.Context, offset, limit int) ([]entity.BarcodeEntry, error) {
	return b.page(ctx, fmt.Sprintf("/v1/barcodes?offset=%d&limit=%d", offset, limit))
}

// PointLookup busca pontual de um código; (nil, nil) se não existe.
func (b *BarcodeClient) PointLookup(ctx context.Context, barcode string) (*entity.BarcodeEntry, error) {
	var out barcodePayload
	err := b.c.doJSON(ctx, http.MethodGet, "/v1/barcodes/"+url.PathEscape(barcode), nil, &out)
	if err != nil {
		if isTerminalNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	entry := toEntries([]barcodePayload{out})[0]
	return &entry, nil
}

func (b *BarcodeClient) page(ctx context.Context, path string) ([]entity.BarcodeEntry, error) {
	var out struct {
		Items []barcodePayload `json:"items"`
	}
	if err := b.c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return toEntries(out.Items), nil
}
