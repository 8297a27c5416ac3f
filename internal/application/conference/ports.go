package conference

import (
	"context"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

// RemoteSession visão resumida de uma sessão no serviço remoto de conferência.
type RemoteSession struct {
	ID     string
	Status entity.Status
	Owner  string
	Items  []entity.Item
}

// ReopenInfo resposta da sondagem de reabertura parcial. Status carrega como
// o backend fechou a conferência, para a visão somente leitura não inventar
// um desfecho.
type ReopenInfo struct {
	LockedItems   int
	PendingItems  int
	PreviousOwner string
	Status        entity.Status
	Eligible      bool
}

// BatchOpenResult resultado por referência de uma abertura agrupada;
// resultados parciais são possíveis.
type BatchOpenResult struct {
	Reference string
	Session   *RemoteSession
	Err       error
}

// RemoteService porta de saída para o serviço remoto de conferência.
// Cada chamada é atômica do ponto de vista do chamador; nenhuma transação
// entre chamadas é assumida. As implementações devolvem somente erros da
// taxonomia de domínio (o mapeamento de códigos acontece na borda).
type RemoteService interface {
	// OpenByReference abre (ou retoma) a sessão da referência na filial.
	// Pode falhar com domain.ErrConflict se o operador já tem outra sessão aberta.
	OpenByReference(ctx context.Context, reference, facility string) (*RemoteSession, error)
	// ActiveSession devolve a sessão aberta do operador ou (nil, nil) se nenhuma.
	ActiveSession(ctx context.Context, operator string) (*RemoteSession, error)
	// ReopenInfo sondagem somente-leitura da elegibilidade de reabertura parcial.
	ReopenInfo(ctx context.Context, reference, facility string) (*ReopenInfo, error)
	// ReopenPartial reabre a sessão finalizada; válido apenas se elegível.
	ReopenPartial(ctx context.Context, reference, facility string) (*RemoteSession, error)
	Items(ctx context.Context, sessionID string) ([]entity.Item, error)
	Contributors(ctx context.Context, sessionID string) ([]string, error)
	ScanBarcode(ctx context.Context, sessionID, barcode string, qty int64) (*entity.Item, error)
	SetItemQuantity(ctx context.Context, sessionID, productID string, qty int64) (*entity.Item, error)
	// PushSnapshot sobrescreve a lista inteira de itens da sessão (idempotente).
	PushSnapshot(ctx context.Context, sessionID string, items []entity.Item) error
	// Finalize fecha a sessão e devolve o status decidido pelo backend.
	Finalize(ctx context.Context, sessionID, reason string) (entity.Status, time.Time, error)
	// Cancel descarta a sessão; "já não existe" conta como sucesso.
	Cancel(ctx context.Context, sessionID string) error
	BatchOpen(ctx context.Context, references []string, facility string) ([]BatchOpenResult, error)
	BatchCancel(ctx context.Context, sessionIDs []string) error
}

// BarcodeLookup consulta pontual da tabela remota de barras, usada quando o
// cache local não conhece o código escaneado.
type BarcodeLookup interface {
	// PointLookup devolve (nil, nil) se o código não existe no backend.
	PointLookup(ctx context.Context, barcode string) (*entity.BarcodeEntry, error)
}

// Connectivity informa se há conectividade com o backend neste momento.
type Connectivity interface {
	Online() bool
}

// Notifier acorda o reconciliador em segundo plano após uma mutação local.
type Notifier interface {
	Notify()
}
