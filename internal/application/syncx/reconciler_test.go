package syncx_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/application/syncx"
	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
	"github.com/coletorapp/conferencia-movel/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dublês
// ──────────────────────────────────────────────────────────────────────────────

// memVolumes réplica em memória; o mutex cobre o acesso concorrente do worker.
type memVolumes struct {
	mu   sync.Mutex
	data map[string]*entity.Volume
}

func newMemVolumes() *memVolumes {
	return &memVolumes{data: make(map[string]*entity.Volume)}
}

func clone(v *entity.Volume) *entity.Volume {
	c := *v
	c.Items = append([]entity.Item(nil), v.Items...)
	c.Allocations = append([]entity.Allocation(nil), v.Allocations...)
	c.SubSessions = append([]entity.SubSession(nil), v.SubSessions...)
	c.Priority = append([]string(nil), v.Priority...)
	return &c
}

func (m *memVolumes) Get(_ context.Context, key entity.VolumeKey) (*entity.Volume, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key.String()]
	if !ok {
		return nil, nil
	}
	return clone(v), nil
}

func (m *memVolumes) Put(_ context.Context, v *entity.Volume) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[v.Key.String()] = clone(v)
	return nil
}

func (m *memVolumes) ListByOperator(_ context.Context, operator string) ([]*entity.Volume, error) {
	return m.list(operator, false), nil
}

func (m *memVolumes) ListPending(_ context.Context, operator string) ([]*entity.Volume, error) {
	return m.list(operator, true), nil
}

func (m *memVolumes) list(operator string, onlyPending bool) []*entity.Volume {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Volume
	for _, v := range m.data {
		if operator != "" && v.Key.Operator != operator {
			continue
		}
		if onlyPending && !v.HasPending() {
			continue
		}
		out = append(out, clone(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (m *memVolumes) Remove(_ context.Context, key entity.VolumeKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key.String())
	return nil
}

func (m *memVolumes) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, v := range m.data {
		if v.UpdatedAt.Before(olderThan) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

// stubRemote implementação mínima do serviço remoto para o reconciliador.
type stubRemote struct {
	calls map[string]int

	openByReference func(reference, facility string) (*conference.RemoteSession, error)
	pushSnapshot    func(sessionID string, items []entity.Item) error
	finalize        func(sessionID, reason string) (entity.Status, time.Time, error)
	cancel          func(sessionID string) error
	batchCancel     func(sessionIDs []string) error
}

var _ conference.RemoteService = (*stubRemote)(nil)

func newStubRemote() *stubRemote {
	return &stubRemote{calls: make(map[string]int)}
}

func (s *stubRemote) OpenByReference(_ context.Context, reference, facility string) (*conference.RemoteSession, error) {
	s.calls["OpenByReference"]++
	if s.openByReference == nil {
		return nil, domain.ErrTransient
	}
	return s.openByReference(reference, facility)
}

func (s *stubRemote) ActiveSession(_ context.Context, _ string) (*conference.RemoteSession, error) {
	s.calls["ActiveSession"]++
	return nil, domain.ErrTransient
}

func (s *stubRemote) ReopenInfo(_ context.Context, _, _ string) (*conference.ReopenInfo, error) {
	s.calls["ReopenInfo"]++
	return nil, domain.ErrTransient
}

func (s *stubRemote) ReopenPartial(_ context.Context, _, _ string) (*conference.RemoteSession, error) {
	s.calls["ReopenPartial"]++
	return nil, domain.ErrTransient
}

func (s *stubRemote) Items(_ context.Context, _ string) ([]entity.Item, error) {
	s.calls["Items"]++
	return nil, domain.ErrTransient
}

func (s *stubRemote) Contributors(_ context.Context, _ string) ([]string, error) {
	s.calls["Contributors"]++
	return nil, nil
}

func (s *stubRemote) ScanBarcode(_ context.Context, _, _ string, _ int64) (*entity.Item, error) {
	s.calls["ScanBarcode"]++
	return nil, domain.ErrTransient
}

func (s *stubRemote) SetItemQuantity(_ context.Context, _, _ string, _ int64) (*entity.Item, error) {
	s.calls["SetItemQuantity"]++
	return nil, domain.ErrTransient
}

func (s *stubRemote) PushSnapshot(_ context.Context, sessionID string, items []entity.Item) error {
	s.calls["PushSnapshot"]++
	if s.pushSnapshot == nil {
		return domain.ErrTransient
	}
	return s.pushSnapshot(sessionID, items)
}

func (s *stubRemote) Finalize(_ context.Context, sessionID, reason string) (entity.Status, time.Time, error) {
	s.calls["Finalize"]++
	if s.finalize == nil {
		return "", time.Time{}, domain.ErrTransient
	}
	return s.finalize(sessionID, reason)
}

func (s *stubRemote) Cancel(_ context.Context, sessionID string) error {
	s.calls["Cancel"]++
	if s.cancel == nil {
		return domain.ErrTransient
	}
	return s.cancel(sessionID)
}

func (s *stubRemote) BatchOpen(_ context.Context, _ []string, _ string) ([]conference.BatchOpenResult, error) {
	s.calls["BatchOpen"]++
	return nil, domain.ErrTransient
}

func (s *stubRemote) BatchCancel(_ context.Context, sessionIDs []string) error {
	s.calls["BatchCancel"]++
	if s.batchCancel == nil {
		return domain.ErrTransient
	}
	return s.batchCancel(sessionIDs)
}

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newReconciler(vols *memVolumes, remote *stubRemote) *syncx.Reconciler {
	return syncx.NewReconciler(vols, remote, logger.Nop()).
		WithClock(func() time.Time { return testNow })
}

func pendingVolume(reference string) *entity.Volume {
	return &entity.Volume{
		Key:       entity.NewVolumeKey("ana", "f01", reference, testNow),
		Kind:      entity.KindSingle,
		Status:    entity.StatusInConference,
		StartedAt: testNow.Add(-time.Hour),
		UpdatedAt: testNow.Add(-time.Minute),
		Items:     []entity.Item{{Key: "SKU100", ProductID: "SKU100", Expected: 3, Counted: 3}},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Testes
// ──────────────────────────────────────────────────────────────────────────────

// Cenário completo de reconexão: volume criado offline, contado e finalizado
// sem backend. Na primeira passada conectada o reconciliador resolve a sessão,
// empurra o snapshot e conclui a finalização, adotando o status do backend.
func TestRun_VolumeCriadoOfflineSincronizaTudoNumaPassada(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := pendingVolume("10/20")
	vol.Items[0].Counted = 5 // sobra 2
	vol.SnapshotDirty = true
	require.NoError(t, vol.RequestFinalize("fim de turno", testNow))
	require.NoError(t, vols.Put(context.Background(), vol))

	var pushed []entity.Item
	remote.openByReference = func(reference, facility string) (*conference.RemoteSession, error) {
		return &conference.RemoteSession{ID: "s-1", Status: entity.StatusInConference, Owner: "ana"}, nil
	}
	remote.pushSnapshot = func(sessionID string, items []entity.Item) error {
		pushed = items
		return nil
	}
	remote.finalize = func(sessionID, reason string) (entity.Status, time.Time, error) {
		assert.Equal(t, "fim de turno", reason)
		return entity.StatusFinalizedDivergent, testNow, nil
	}

	report, err := newReconciler(vols, remote).Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Synced: 1}, report)

	require.Len(t, pushed, 1)
	assert.Equal(t, int64(5), pushed[0].Counted)

	got, _ := vols.Get(context.Background(), vol.Key)
	require.NotNil(t, got)
	assert.Equal(t, "s-1", got.RemoteSessionID)
	assert.Equal(t, entity.StatusFinalizedDivergent, got.Status)
	assert.False(t, got.HasPending())
	assert.True(t, got.ReadOnly)
	assert.Empty(t, got.SyncError)
	assert.Equal(t, testNow, got.SyncedAt)
}

// A passada é idempotente: depois de sincronizar, nada resta a processar.
func TestRun_SegundaPassadaNaoFazNada(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := pendingVolume("10/20")
	vol.RemoteSessionID = "s-1"
	vol.SnapshotDirty = true
	require.NoError(t, vols.Put(context.Background(), vol))

	remote.pushSnapshot = func(string, []entity.Item) error { return nil }

	rec := newReconciler(vols, remote)
	report, err := rec.Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Synced: 1}, report)

	report, err = rec.Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{}, report)
	assert.Equal(t, 1, remote.calls["PushSnapshot"])
}

// Falha transitória preserva os dados locais e registra o erro no volume.
func TestRun_FalhaTransitoriaRegistraErroEMantemPendencia(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := pendingVolume("10/20")
	vol.RemoteSessionID = "s-1"
	vol.SnapshotDirty = true
	require.NoError(t, vols.Put(context.Background(), vol))

	report, err := newReconciler(vols, remote).Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Failed: 1}, report)

	got, _ := vols.Get(context.Background(), vol.Key)
	require.NotNil(t, got)
	assert.True(t, got.SnapshotDirty)
	assert.NotEmpty(t, got.SyncError)
	assert.Equal(t, int64(3), got.Items[0].Counted)
}

// Credencial rejeitada não é terminal: os dados locais ficam intactos e o
// motivo fica visível no volume até o operador renovar o login.
func TestRun_CredencialRejeitadaPreservaDadosERegistraMotivo(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := pendingVolume("10/20")
	vol.RemoteSessionID = "s-1"
	vol.SnapshotDirty = true
	require.NoError(t, vols.Put(context.Background(), vol))

	remote.pushSnapshot = func(string, []entity.Item) error { return domain.ErrUnauthorized }

	report, err := newReconciler(vols, remote).Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Failed: 1}, report)

	got, _ := vols.Get(context.Background(), vol.Key)
	require.NotNil(t, got)
	assert.True(t, got.SnapshotDirty)
	assert.Contains(t, got.SyncError, domain.ErrUnauthorized.Error())
	assert.Equal(t, int64(3), got.Items[0].Counted)
}

// Sessão que não existe mais é terminal: a réplica local é descartada.
func TestRun_SessaoInexistenteDescartaReplica(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := pendingVolume("10/20")
	vol.RemoteSessionID = "s-1"
	vol.SnapshotDirty = true
	require.NoError(t, vols.Put(context.Background(), vol))

	remote.pushSnapshot = func(string, []entity.Item) error { return domain.ErrTerminalNotFound }

	report, err := newReconciler(vols, remote).Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Synced: 1}, report)

	got, _ := vols.Get(context.Background(), vol.Key)
	assert.Nil(t, got)
}

// Cancelamento pendente de volume criado offline não exige chamada remota.
func TestRun_CancelamentoDeVolumeNuncaSincronizado(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := pendingVolume("10/20")
	require.NoError(t, vol.RequestCancel(testNow))
	require.NoError(t, vols.Put(context.Background(), vol))

	report, err := newReconciler(vols, remote).Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Synced: 1}, report)
	assert.Zero(t, remote.calls["Cancel"])

	got, _ := vols.Get(context.Background(), vol.Key)
	assert.Nil(t, got)
}

// Cancelamento com sessão resolvida tolera "já não existe".
func TestRun_CancelamentoToleraSessaoJaEncerrada(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := pendingVolume("10/20")
	vol.RemoteSessionID = "s-1"
	require.NoError(t, vol.RequestCancel(testNow))
	require.NoError(t, vols.Put(context.Background(), vol))

	remote.cancel = func(string) error { return domain.ErrTerminalNotFound }

	report, err := newReconciler(vols, remote).Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Synced: 1}, report)

	got, _ := vols.Get(context.Background(), vol.Key)
	assert.Nil(t, got)
}

// A falha de um volume não bloqueia os demais.
func TestRun_FalhaIsoladaNaoBloqueiaOsDemais(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	bad := pendingVolume("a/1")
	bad.RemoteSessionID = "s-bad"
	bad.SnapshotDirty = true
	require.NoError(t, vols.Put(context.Background(), bad))

	good := pendingVolume("b/2")
	good.RemoteSessionID = "s-good"
	good.SnapshotDirty = true
	require.NoError(t, vols.Put(context.Background(), good))

	remote.pushSnapshot = func(sessionID string, _ []entity.Item) error {
		if sessionID == "s-bad" {
			return domain.ErrTransient
		}
		return nil
	}

	report, err := newReconciler(vols, remote).Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 2, Synced: 1, Failed: 1}, report)
}

// Fan-out agrupado: o reconciliador persiste o progresso mesmo quando a
// finalização falha no meio, e a passada seguinte retoma só o restante.
func TestRun_FinalizacaoAgrupadaRetomaRestante(t *testing.T) {
	vols := newMemVolumes()
	remote := newStubRemote()

	vol := &entity.Volume{
		Key:       entity.NewVolumeKey("ana", "f01", "r1+r2", testNow),
		Kind:      entity.KindBatch,
		Status:    entity.StatusInConference,
		UpdatedAt: testNow,
		Priority:  []string{"r1", "r2"},
		Items: []entity.Item{
			{Key: entity.NewBatchItemKey("r1", "SKU100"), ProductID: "SKU100", Expected: 5, Counted: 5},
		},
		Allocations: []entity.Allocation{
			{SubRef: "r1", ProductID: "SKU100", Expected: 2, Counted: 2},
			{SubRef: "r2", ProductID: "SKU100", Expected: 3, Counted: 3},
		},
		SubSessions: []entity.SubSession{
			{SubRef: "r1", SessionID: "s-r1"},
			{SubRef: "r2", SessionID: "s-r2"},
		},
	}
	require.NoError(t, vol.RequestFinalize("fim", testNow))
	require.NoError(t, vols.Put(context.Background(), vol))

	finalized := map[string]int{}
	remote.pushSnapshot = func(string, []entity.Item) error { return nil }
	remote.finalize = func(sessionID, _ string) (entity.Status, time.Time, error) {
		if sessionID == "s-r2" && finalized["s-r2"] == 0 {
			finalized[sessionID]++
			return "", time.Time{}, domain.ErrTransient
		}
		finalized[sessionID]++
		return entity.StatusFinalizedOk, testNow, nil
	}

	rec := newReconciler(vols, remote)
	report, err := rec.Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Failed: 1}, report)

	// Progresso do fan-out persistido: r1 não será refeita.
	got, _ := vols.Get(context.Background(), vol.Key)
	require.NotNil(t, got)
	assert.True(t, got.SubSessions[0].Finalized)
	assert.False(t, got.SubSessions[1].Finalized)

	report, err = rec.Run(context.Background(), "ana")
	require.NoError(t, err)
	assert.Equal(t, syncx.Report{Processed: 1, Synced: 1}, report)
	assert.Equal(t, 1, finalized["s-r1"])
	assert.Equal(t, 2, finalized["s-r2"])

	got, _ = vols.Get(context.Background(), vol.Key)
	assert.Equal(t, entity.StatusFinalizedOk, got.Status)
	assert.False(t, got.HasPending())
}
