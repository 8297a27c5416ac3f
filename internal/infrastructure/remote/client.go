package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

var _ conference.RemoteService = (*Client)(nil)

// Client cliente HTTP/JSON do serviço remoto de conferência. Cada chamada
// leva um X-Request-Id próprio; os retries do reconciliador são seguros porque
// as operações do backend são idempotentes por construção.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// NewClient constrói o cliente. token é o token de operador repassado ao backend.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:  baseURL,
		http:  &http.Client{Timeout: timeout},
		token: token,
	}
}

// ── Payloads de transporte ────────────────────────────────────────────────────

type itemPayload struct {
	Key         string `json:"key,omitempty"`
	ProductID   string `json:"product_id"`
	Description string `json:"description,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	Expected    int64  `json:"expected"`
	Counted     int64  `json:"counted"`
	Locked      bool   `json:"locked,omitempty"`
	LockedBy    string `json:"locked_by,omitempty"`
}

type sessionPayload struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Owner  string        `json:"owner"`
	Items  []itemPayload `json:"items,omitempty"`
}

func (p sessionPayload) toSession() *conference.RemoteSession {
	return &conference.RemoteSession{
		ID:     p.ID,
		Status: entity.Status(p.Status),
		Owner:  p.Owner,
		Items:  toItems(p.Items),
	}
}

func toItems(ps []itemPayload) []entity.Item {
	items := make([]entity.Item, len(ps))
	for i, p := range ps {
		items[i] = entity.Item{
			Key:         entity.ItemKey(p.Key),
			ProductID:   p.ProductID,
			Description: p.Description,
			Barcode:     p.Barcode,
			Expected:    p.Expected,
			Counted:     p.Counted,
			Locked:      p.Locked,
			LockedBy:    p.LockedBy,
		}
	}
	return items
}

func fromItems(items []entity.Item) []itemPayload {
	ps := make([]itemPayload, len(items))
	for i, it := range items {
		ps[i] = itemPayload{
			Key:         string(it.Key),
			ProductID:   it.ProductID,
			Description: it.Description,
			Barcode:     it.Barcode,
			Expected:    it.Expected,
			Counted:     it.Counted,
			Locked:      it.Locked,
			LockedBy:    it.LockedBy,
		}
	}
	return ps
}

// ── Operações de sessão ───────────────────────────────────────────────────────

// OpenByReference abre ou retoma a sessão da referência.
func (c *Client) OpenByReference(ctx context.Context, reference, facility string) (*conference.RemoteSession, error) {
	var out sessionPayload
	body := map[string]string{"reference": reference, "facility": facility}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/conferences/open", body, &out); err != nil {
		return nil, err
	}
	return out.toSession(), nil
}

// ActiveSession devolve a sessão aberta do operador ou (nil, nil).
func (c *Client) ActiveSession(ctx context.Context, operator string) (*conference.RemoteSession, error) {
	var out sessionPayload
	path := "/v1/conferences/active?operator=" + url.QueryEscape(operator)
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		if isTerminalNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return out.toSession(), nil
}

// ReopenInfo sondagem somente-leitura da reabertura parcial.
func (c *Client) ReopenInfo(ctx context.Context, reference, facility string) (*conference.ReopenInfo, error) {
	var out struct {
		LockedItems   int    `json:"locked_items"`
		PendingItems  int    `json:"pending_items"`
		PreviousOwner string `json:"previous_owner"`
		Status        string `json:"status"`
		Eligible      bool   `json:"eligible"`
	}
	path := fmt.Sprintf("/v1/conferences/reopen-info?reference=%s&facility=%s",
		url.QueryEscape(reference), url.QueryEscape(facility))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &conference.ReopenInfo{
		LockedItems:   out.LockedItems,
		PendingItems:  out.PendingItems,
		PreviousOwner: out.PreviousOwner,
		Status:        entity.Status(out.Status),
		Eligible:      out.Eligible,
	}, nil
}

// ReopenPartial reabre a sessão finalizada preservando itens travados.
func (c *Client) ReopenPartial(ctx context.Context, reference, facility string) (*conference.RemoteSession, error) {
	var out sessionPayload
	body := map[string]string{"reference": reference, "facility": facility}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/conferences/reopen", body, &out); err != nil {
		return nil, err
	}
	return out.toSession(), nil
}

// Items lista os itens da sessão.
func (c *Client) Items(ctx context.Context, sessionID string) ([]entity.Item, error) {
	var out struct {
		Items []itemPayload `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/items", nil, &out); err != nil {
		return nil, err
	}
	return toItems(out.Items), nil
}

// Contributors lista os operadores que contribuíram na sessão.
func (c *Client) Contributors(ctx context.Context, sessionID string) ([]string, error) {
	var out struct {
		Contributors []string `json:"contributors"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/contributors", nil, &out); err != nil {
		return nil, err
	}
	return out.Contributors, nil
}

// ScanBarcode registra um escaneamento direto na sessão remota.
func (c *Client) ScanBarcode(ctx context.Context, sessionID, barcode string, qty int64) (*entity.Item, error) {
	var out itemPayload
	body := map[string]any{"barcode": barcode, "qty": qty}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/scan", body, &out); err != nil {
		return nil, err
	}
	item := toItems([]itemPayload{out})[0]
	return &item, nil
}

// SetItemQuantity define a quantidade contada de um item na sessão remota.
func (c *Client) SetItemQuantity(ctx context.Context, sessionID, productID string, qty int64) (*entity.Item, error) {
	var out itemPayload
	body := map[string]any{"qty": qty}
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/items/" + url.PathEscape(productID)
	if err := c.doJSON(ctx, http.MethodPut, path, body, &out); err != nil {
		return nil, err
	}
	item := toItems([]itemPayload{out})[0]
	return &item, nil
}

// PushSnapshot sobrescreve a lista inteira de itens (idempotente).
func (c *Client) PushSnapshot(ctx context.Context, sessionID string, items []entity.Item) error {
	body := map[string]any{"items": fromItems(items)}
	return c.doJSON(ctx, http.MethodPut, "/v1/sessions/"+url.PathEscape(sessionID)+"/snapshot", body, nil)
}

// Finalize fecha a sessão; o backend decide o status final.
func (c *Client) Finalize(ctx context.Context, sessionID, reason string) (entity.Status, time.Time, error) {
	var out struct {
		Status      string    `json:"status"`
		FinalizedAt time.Time `json:"finalized_at"`
	}
	body := map[string]string{"reason": reason}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/finalize", body, &out); err != nil {
		return "", time.Time{}, err
	}
	return entity.Status(out.Status), out.FinalizedAt, nil
}

// Cancel descarta a sessão; "já não existe" conta como sucesso.
func (c *Client) Cancel(ctx context.Context, sessionID string) error {
	err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/cancel", nil, nil)
	if err != nil && isTerminalNotFound(err) {
		return nil
	}
	return err
}

// BatchOpen abre várias sub-sessões; resultados parciais são possíveis.
func (c *Client) BatchOpen(ctx context.Context, references []string, facility string) ([]conference.BatchOpenResult, error) {
	var out struct {
		Results []struct {
			Reference string          `json:"reference"`
			Session   *sessionPayload `json:"session,omitempty"`
			Error     *errorEnvelope  `json:"error,omitempty"`
		} `json:"results"`
	}
	body := map[string]any{"references": references, "facility": facility}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/conferences/batch-open", body, &out); err != nil {
		return nil, err
	}

	results := make([]conference.BatchOpenResult, 0, len(out.Results))
	for _, r := range out.Results {
		res := conference.BatchOpenResult{Reference: r.Reference}
		if r.Error != nil {
			res.Err = mapError(http.StatusConflict, *r.Error)
		} else if r.Session != nil {
			res.Session = r.Session.toSession()
		}
		results = append(results, res)
	}
	return results, nil
}

// BatchCancel cancela várias sub-sessões.
func (c *Client) BatchCancel(ctx context.Context, sessionIDs []string) error {
	body := map[string]any{"session_ids": sessionIDs}
	err := c.doJSON(ctx, http.MethodPost, "/v1/conferences/batch-cancel", body, nil)
	if err != nil && isTerminalNotFound(err) {
		return nil
	}
	return err
}

// ── Transporte ────────────────────────────────────────────────────────────────

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("codificar requisição: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("montar requisição: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decodificar resposta: %v", domain.ErrTransient, err)
		}
		return nil
	}

	var env errorEnvelope
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return mapError(resp.StatusCode, env)
}

func isTerminalNotFound(err error) bool {
	return errors.Is(err, domain.ErrTerminalNotFound)
}
