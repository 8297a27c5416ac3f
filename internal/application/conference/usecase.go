package conference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
	"github.com/coletorapp/conferencia-movel/pkg/logger"
)

// OpenMode como o volume foi obtido na abertura.
type OpenMode string

const (
	// ModeOpened sessão aberta agora no backend.
	ModeOpened OpenMode = "opened"
	// ModeResumed volume local do dia reaproveitado.
	ModeResumed OpenMode = "resumed"
	// ModeResumedActive o backend recusou por conflito e a sessão ativa do
	// operador foi retomada no lugar.
	ModeResumedActive OpenMode = "resumed_active"
	// ModeOffline volume construído do manifesto em cache, sem backend.
	ModeOffline OpenMode = "offline"
	// ModePartialReopen sessão finalizada reaberta parcialmente.
	ModePartialReopen OpenMode = "partial_reopen"
	// ModeReadOnly conferência fechada em outro lugar; visão somente leitura.
	ModeReadOnly OpenMode = "read_only"
)

// OpenResult volume obtido e o modo de abertura, para o chamador decidir a UX.
type OpenResult struct {
	Volume *entity.Volume
	Mode   OpenMode
}

// UseCase controlador de ciclo de vida do volume de conferência: abre, retoma,
// reabre parcialmente, finaliza e cancela, resolvendo conflitos na abertura.
// Mutação é sempre local-primeiro; o reconciliador empurra o acumulado depois.
type UseCase struct {
	volumes   repository.VolumeRepository
	manifests repository.ManifestRepository
	barcodes  repository.BarcodeRepository
	remote    RemoteService
	lookup    BarcodeLookup
	conn      Connectivity
	notifier  Notifier
	log       *logger.Logger

	manifestMaxAge time.Duration
	now            func() time.Time
}

// NewUseCase constrói o controlador. notifier pode ser nil (sem worker).
func NewUseCase(
	volumes repository.VolumeRepository,
	manifests repository.ManifestRepository,
	barcodes repository.BarcodeRepository,
	remote RemoteService,
	lookup BarcodeLookup,
	conn Connectivity,
	notifier Notifier,
	log *logger.Logger,
	manifestMaxAge time.Duration,
) *UseCase {
	return &UseCase{
		volumes:        volumes,
		manifests:      manifests,
		barcodes:       barcodes,
		remote:         remote,
		lookup:         lookup,
		conn:           conn,
		notifier:       notifier,
		log:            log,
		manifestMaxAge: manifestMaxAge,
		now:            time.Now,
	}
}

// WithClock troca o relógio (testes).
func (uc *UseCase) WithClock(now func() time.Time) *UseCase {
	uc.now = now
	return uc
}

func (uc *UseCase) notify() {
	if uc.notifier != nil {
		uc.notifier.Notify()
	}
}

// OpenByReference abre ou retoma a conferência da referência para o operador.
// Ordem de resolução: volume local fresco do dia -> sessão remota -> manifesto
// em cache (offline). Conflito de "uma sessão aberta por operador" no backend é
// resolvido de forma transparente retomando a sessão ativa.
func (uc *UseCase) OpenByReference(ctx context.Context, operator, facility, reference string) (*OpenResult, error) {
	if operator == "" || facility == "" || reference == "" {
		return nil, fmt.Errorf("%w: operador, filial e referência são obrigatórios", domain.ErrValidation)
	}

	key := entity.NewVolumeKey(operator, facility, reference, uc.now())
	local, err := uc.volumes.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("carregar volume local: %w", err)
	}
	if local != nil {
		return uc.resumeLocal(ctx, local)
	}

	if uc.conn.Online() {
		return uc.openRemote(ctx, key)
	}
	return uc.openFromManifest(ctx, key)
}

// resumeLocal reaproveita o volume local do dia; se conectado e sem pendências
// próprias, atualiza a partir do backend e detecta fechamento por terceiros.
func (uc *UseCase) resumeLocal(ctx context.Context, local *entity.Volume) (*OpenResult, error) {
	if !uc.conn.Online() || local.HasPending() {
		return &OpenResult{Volume: local, Mode: ModeResumed}, nil
	}

	sess, err := uc.remote.OpenByReference(ctx, local.Key.Reference, local.Key.Facility)
	switch {
	case err == nil && !sess.Status.Finalized():
		// Ainda em conferência: adota itens e sessão do backend.
		local.RemoteSessionID = sess.ID
		local.Status = sess.Status
		uc.adoptRemoteItems(local, sess.Items)
		local.SyncedAt = uc.now()
		if err := uc.volumes.Put(ctx, local); err != nil {
			return nil, fmt.Errorf("gravar volume atualizado: %w", err)
		}
		uc.saveManifest(ctx, local)
		return &OpenResult{Volume: local, Mode: ModeResumed}, nil
	case err == nil || errors.Is(err, domain.ErrTerminalNotFound) || errors.Is(err, domain.ErrConflict):
		// Fechada em outro lugar: negocia reabertura parcial.
		return uc.negotiateReopen(ctx, local)
	default:
		// Falha transitória: segue com a réplica local.
		uc.log.Warn().Err(err).Str("ref", local.Key.Reference).Msg("refresh remoto falhou; usando réplica local")
		return &OpenResult{Volume: local, Mode: ModeResumed}, nil
	}
}

// openRemote abre a sessão no backend; em conflito retoma a sessão ativa do operador.
func (uc *UseCase) openRemote(ctx context.Context, key entity.VolumeKey) (*OpenResult, error) {
	sess, err := uc.remote.OpenByReference(ctx, key.Reference, key.Facility)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return uc.resumeActive(ctx, key)
		}
		return nil, err
	}
	if sess.Status.Finalized() {
		// Referência já finalizada por alguém: tenta reabertura parcial.
		stub := uc.newVolume(key, entity.KindSingle)
		stub.Status = sess.Status
		stub.RemoteSessionID = sess.ID
		uc.adoptRemoteItems(stub, sess.Items)
		return uc.negotiateReopen(ctx, stub)
	}

	vol := uc.newVolume(key, entity.KindSingle)
	vol.RemoteSessionID = sess.ID
	vol.Status = sess.Status
	uc.adoptRemoteItems(vol, sess.Items)
	vol.SyncedAt = uc.now()
	if err := uc.volumes.Put(ctx, vol); err != nil {
		return nil, fmt.Errorf("gravar volume aberto: %w", err)
	}
	uc.saveManifest(ctx, vol)
	return &OpenResult{Volume: vol, Mode: ModeOpened}, nil
}

// resumeActive busca a sessão atualmente aberta do operador e a retoma,
// em vez de devolver um beco sem saída ao usuário.
func (uc *UseCase) resumeActive(ctx context.Context, key entity.VolumeKey) (*OpenResult, error) {
	active, err := uc.remote.ActiveSession(ctx, key.Operator)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, fmt.Errorf("%w: backend acusou sessão aberta mas nenhuma foi encontrada", domain.ErrConflict)
	}
	items, err := uc.remote.Items(ctx, active.ID)
	if err != nil {
		return nil, err
	}
	active.Items = items

	// A sessão ativa pode ser de outra referência; a réplica fica sob a chave
	// pedida, mas aponta para a sessão que o backend considera aberta.
	vol := uc.newVolume(key, entity.KindSingle)
	vol.RemoteSessionID = active.ID
	vol.Status = active.Status
	uc.adoptRemoteItems(vol, active.Items)
	vol.SyncedAt = uc.now()
	if err := uc.volumes.Put(ctx, vol); err != nil {
		return nil, fmt.Errorf("gravar sessão retomada: %w", err)
	}
	uc.saveManifest(ctx, vol)
	return &OpenResult{Volume: vol, Mode: ModeResumedActive}, nil
}

// openFromManifest constrói o volume offline a partir do manifesto em cache.
// Exige manifesto presente e suficientemente fresco; caso contrário rejeita.
func (uc *UseCase) openFromManifest(ctx context.Context, key entity.VolumeKey) (*OpenResult, error) {
	m, err := uc.manifests.Get(ctx, key.Facility, key.Reference)
	if err != nil {
		return nil, fmt.Errorf("carregar manifesto: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: sem manifesto local para a referência", domain.ErrOffline)
	}
	if uc.now().Sub(m.FetchedAt) > uc.manifestMaxAge {
		return nil, fmt.Errorf("%w: manifesto local expirado", domain.ErrOffline)
	}

	vol := uc.newVolume(key, entity.KindSingle)
	vol.Items = make([]entity.Item, len(m.Items))
	copy(vol.Items, m.Items)
	for i := range vol.Items {
		vol.Items[i].Counted = 0
		vol.Items[i].Locked = false
		vol.Items[i].LockedBy = ""
	}
	if err := uc.volumes.Put(ctx, vol); err != nil {
		return nil, fmt.Errorf("gravar volume offline: %w", err)
	}
	return &OpenResult{Volume: vol, Mode: ModeOffline}, nil
}

// OpenAvulsa cria uma conferência sem documento: os itens nascem dos próprios
// escaneamentos, com esperado zero. A referência é sintética.
func (uc *UseCase) OpenAvulsa(ctx context.Context, operator, facility string) (*OpenResult, error) {
	if operator == "" || facility == "" {
		return nil, fmt.Errorf("%w: operador e filial são obrigatórios", domain.ErrValidation)
	}
	reference := "avulsa-" + uuid.NewString()
	key := entity.NewVolumeKey(operator, facility, reference, uc.now())
	vol := uc.newVolume(key, entity.KindAvulsa)

	if uc.conn.Online() {
		sess, err := uc.remote.OpenByReference(ctx, reference, facility)
		if err == nil {
			vol.RemoteSessionID = sess.ID
			vol.SyncedAt = uc.now()
		} else if !errors.Is(err, domain.ErrTransient) {
			return nil, err
		}
		// Transitório: segue offline; o reconciliador resolve a sessão depois.
	}
	if err := uc.volumes.Put(ctx, vol); err != nil {
		return nil, fmt.Errorf("gravar conferência avulsa: %w", err)
	}
	return &OpenResult{Volume: vol, Mode: ModeOpened}, nil
}

// negotiateReopen consulta a elegibilidade de reabertura parcial e decide entre
// retomar a edição (dono histórico), expor apenas o restante (outro operador
// elegível) ou cair para somente leitura.
func (uc *UseCase) negotiateReopen(ctx context.Context, local *entity.Volume) (*OpenResult, error) {
	info, err := uc.remote.ReopenInfo(ctx, local.Key.Reference, local.Key.Facility)
	if err != nil {
		return nil, err
	}
	if !info.Eligible {
		local.ReadOnly = true
		// Adota o desfecho informado pelo backend; a conferência pode ter sido
		// fechada com divergência em outro terminal.
		if info.Status.Finalized() {
			local.Status = info.Status
		}
		if err := uc.volumes.Put(ctx, local); err != nil {
			return nil, fmt.Errorf("gravar visão somente leitura: %w", err)
		}
		return &OpenResult{Volume: local, Mode: ModeReadOnly}, nil
	}

	sess, err := uc.remote.ReopenPartial(ctx, local.Key.Reference, local.Key.Facility)
	if err != nil {
		return nil, err
	}
	local.RemoteSessionID = sess.ID
	local.Status = entity.StatusInConference
	local.ReadOnly = false
	uc.adoptRemoteItems(local, sess.Items)

	if info.PreviousOwner == local.Key.Operator {
		// Dono histórico retoma a edição de todos os itens.
		for i := range local.Items {
			local.Items[i].Locked = false
			local.Items[i].LockedBy = ""
		}
	}
	local.SyncedAt = uc.now()
	if err := uc.volumes.Put(ctx, local); err != nil {
		return nil, fmt.Errorf("gravar reabertura parcial: %w", err)
	}
	return &OpenResult{Volume: local, Mode: ModePartialReopen}, nil
}

// Finalize fecha a conferência. Online e com sessão resolvida, empurra o
// snapshot e finaliza imediatamente; caso contrário registra a intenção e o
// reconciliador conclui depois. O status local é derivado dos itens e depois
// substituído pelo decidido pelo backend.
func (uc *UseCase) Finalize(ctx context.Context, key entity.VolumeKey, reason string) (*entity.Volume, error) {
	vol, err := uc.volumes.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("carregar volume: %w", err)
	}
	if vol == nil {
		return nil, fmt.Errorf("%w: volume %s", domain.ErrNotFound, key.Reference)
	}
	if vol.ReadOnly {
		return nil, fmt.Errorf("%w: conferência somente leitura", domain.ErrValidation)
	}

	now := uc.now()
	vol.Status = vol.FinalStatus()
	vol.FinalizedAt = now

	if uc.conn.Online() && sessionResolved(vol) {
		status, _, err := uc.finalizeRemote(ctx, vol, reason)
		if err == nil {
			vol.Status = status
			vol.ReadOnly = true
			vol.SnapshotDirty = false
			vol.FinalizePending = false
			vol.CancelPending = false
			vol.SyncedAt = now
			vol.UpdatedAt = now
			if err := uc.volumes.Put(ctx, vol); err != nil {
				return nil, fmt.Errorf("gravar volume finalizado: %w", err)
			}
			return vol, nil
		}
		if errors.Is(err, domain.ErrTerminalNotFound) {
			// Outro ator já fechou: descarta a réplica local.
			if err := uc.volumes.Remove(ctx, key); err != nil {
				return nil, fmt.Errorf("remover volume encerrado: %w", err)
			}
			return nil, fmt.Errorf("%w: conferência encerrada por outro operador", domain.ErrTerminalNotFound)
		}
		uc.log.Warn().Err(err).Str("ref", key.Reference).Msg("finalização online falhou; agendando para reconciliação")
	}

	if err := vol.RequestFinalize(reason, now); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := uc.volumes.Put(ctx, vol); err != nil {
		return nil, fmt.Errorf("gravar finalização pendente: %w", err)
	}
	uc.notify()
	return vol, nil
}

// finalizeRemote empurra o estado atual e finaliza no backend. Para volumes
// agrupados o fan-out é sequencial por sub-referência e não é atômico: uma
// falha no meio deixa as anteriores finalizadas e as seguintes abertas, e uma
// nova invocação retoma apenas o restante.
func (uc *UseCase) finalizeRemote(ctx context.Context, vol *entity.Volume, reason string) (entity.Status, time.Time, error) {
	if vol.Kind == entity.KindBatch {
		return FinalizeBatch(ctx, uc.remote, vol, reason)
	}
	if err := uc.remote.PushSnapshot(ctx, vol.RemoteSessionID, vol.Items); err != nil {
		return "", time.Time{}, err
	}
	return uc.remote.Finalize(ctx, vol.RemoteSessionID, reason)
}

// Cancel descarta a conferência. Online cancela no backend (tolerante a "já
// não existe") e remove a réplica; offline registra a intenção.
func (uc *UseCase) Cancel(ctx context.Context, key entity.VolumeKey) error {
	vol, err := uc.volumes.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("carregar volume: %w", err)
	}
	if vol == nil {
		return fmt.Errorf("%w: volume %s", domain.ErrNotFound, key.Reference)
	}

	if uc.conn.Online() && sessionResolved(vol) {
		if err := uc.cancelRemote(ctx, vol); err == nil || errors.Is(err, domain.ErrTerminalNotFound) {
			return uc.volumes.Remove(ctx, key)
		} else if !errors.Is(err, domain.ErrTransient) {
			return err
		}
	}

	if err := vol.RequestCancel(uc.now()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if err := uc.volumes.Put(ctx, vol); err != nil {
		return fmt.Errorf("gravar cancelamento pendente: %w", err)
	}
	uc.notify()
	return nil
}

func (uc *UseCase) cancelRemote(ctx context.Context, vol *entity.Volume) error {
	if vol.Kind == entity.KindBatch {
		ids := make([]string, 0, len(vol.SubSessions))
		for _, ss := range vol.SubSessions {
			if ss.SessionID != "" && !ss.Finalized {
				ids = append(ids, ss.SessionID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		return uc.remote.BatchCancel(ctx, ids)
	}
	return uc.remote.Cancel(ctx, vol.RemoteSessionID)
}

// Get devolve o volume da chave.
func (uc *UseCase) Get(ctx context.Context, key entity.VolumeKey) (*entity.Volume, error) {
	vol, err := uc.volumes.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if vol == nil {
		return nil, fmt.Errorf("%w: volume %s", domain.ErrNotFound, key.Reference)
	}
	return vol, nil
}

// ListByOperator devolve os volumes locais do operador.
func (uc *UseCase) ListByOperator(ctx context.Context, operator string) ([]*entity.Volume, error) {
	return uc.volumes.ListByOperator(ctx, operator)
}

// sessionResolved informa se o volume já tem sessão remota atribuída.
func sessionResolved(vol *entity.Volume) bool {
	if vol.Kind == entity.KindBatch {
		return len(vol.SubSessions) > 0
	}
	return vol.RemoteSessionID != ""
}

// newVolume monta um volume recém-aberto.
func (uc *UseCase) newVolume(key entity.VolumeKey, kind entity.Kind) *entity.Volume {
	now := uc.now()
	return &entity.Volume{
		Key:       key,
		Kind:      kind,
		Status:    entity.StatusInConference,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// adoptRemoteItems substitui os itens locais pelos remotos, preservando as
// chaves opacas já atribuídas (nunca recalculadas).
func (uc *UseCase) adoptRemoteItems(vol *entity.Volume, items []entity.Item) {
	adopted := make([]entity.Item, len(items))
	copy(adopted, items)
	for i := range adopted {
		if adopted[i].Key != "" {
			continue
		}
		if prev := vol.FindItem(entity.NewItemKey(adopted[i].ProductID)); prev != nil {
			adopted[i].Key = prev.Key
		} else {
			adopted[i].Key = entity.NewItemKey(adopted[i].ProductID)
		}
	}
	vol.Items = adopted
}

// saveManifest guarda a lista esperada como manifesto da referência para
// permitir aberturas offline futuras. Falha aqui não interrompe o fluxo.
func (uc *UseCase) saveManifest(ctx context.Context, vol *entity.Volume) {
	items := make([]entity.Item, len(vol.Items))
	copy(items, vol.Items)
	m := &entity.Manifest{
		Facility:  vol.Key.Facility,
		Reference: vol.Key.Reference,
		FetchedAt: uc.now(),
		Items:     items,
	}
	if err := uc.manifests.Put(ctx, m); err != nil {
		uc.log.Warn().Err(err).Str("ref", vol.Key.Reference).Msg("falha ao guardar manifesto")
	}
}
