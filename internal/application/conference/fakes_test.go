package conference_test

import (
	"context"
	"sort"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
	"github.com/coletorapp/conferencia-movel/pkg/logger"
)

// ──────────────────────────────────────────────────────────────────────────────
// Dublês em memória
// ──────────────────────────────────────────────────────────────────────────────

func cloneVolume(v *entity.Volume) *entity.Volume {
	c := *v
	c.Items = append([]entity.Item(nil), v.Items...)
	c.Allocations = append([]entity.Allocation(nil), v.Allocations...)
	c.SubSessions = append([]entity.SubSession(nil), v.SubSessions...)
	c.Priority = append([]string(nil), v.Priority...)
	return &c
}

type memVolumes struct {
	data map[string]*entity.Volume
}

var _ repository.VolumeRepository = (*memVolumes)(nil)

func newMemVolumes() *memVolumes {
	return &memVolumes{data: make(map[string]*entity.Volume)}
}

func (m *memVolumes) Get(_ context.Context, key entity.VolumeKey) (*entity.Volume, error) {
	v, ok := m.data[key.String()]
	if !ok {
		return nil, nil
	}
	return cloneVolume(v), nil
}

func (m *memVolumes) Put(_ context.Context, v *entity.Volume) error {
	m.data[v.Key.String()] = cloneVolume(v)
	return nil
}

func (m *memVolumes) list(operator string, onlyPending bool) []*entity.Volume {
	var out []*entity.Volume
	for _, v := range m.data {
		if operator != "" && v.Key.Operator != operator {
			continue
		}
		if onlyPending && !v.HasPending() {
			continue
		}
		out = append(out, cloneVolume(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (m *memVolumes) ListByOperator(_ context.Context, operator string) ([]*entity.Volume, error) {
	return m.list(operator, false), nil
}

func (m *memVolumes) ListPending(_ context.Context, operator string) ([]*entity.Volume, error) {
	return m.list(operator, true), nil
}

func (m *memVolumes) Remove(_ context.Context, key entity.VolumeKey) error {
	delete(m.data, key.String())
	return nil
}

func (m *memVolumes) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	var n int64
	for k, v := range m.data {
		if v.UpdatedAt.Before(olderThan) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type memManifests struct {
	data map[string]*entity.Manifest
}

var _ repository.ManifestRepository = (*memManifests)(nil)

func newMemManifests() *memManifests {
	return &memManifests{data: make(map[string]*entity.Manifest)}
}

func (m *memManifests) Get(_ context.Context, facility, reference string) (*entity.Manifest, error) {
	return m.data[facility+"|"+reference], nil
}

func (m *memManifests) Put(_ context.Context, mf *entity.Manifest) error {
	m.data[mf.Facility+"|"+mf.Reference] = mf
	return nil
}

type memBarcodes struct {
	data       map[string]entity.BarcodeEntry
	lastSyncAt time.Time
}

var _ repository.BarcodeRepository = (*memBarcodes)(nil)

func newMemBarcodes() *memBarcodes {
	return &memBarcodes{data: make(map[string]entity.BarcodeEntry)}
}

func (m *memBarcodes) Lookup(_ context.Context, barcode string) (*entity.BarcodeEntry, error) {
	e, ok := m.data[barcode]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *memBarcodes) UpsertBatch(_ context.Context, entries []entity.BarcodeEntry) error {
	for _, e := range entries {
		m.data[e.Barcode] = e
	}
	return nil
}

func (m *memBarcodes) Clear(_ context.Context) error {
	m.data = make(map[string]entity.BarcodeEntry)
	return nil
}

func (m *memBarcodes) Meta(_ context.Context) (entity.CacheMeta, error) {
	return entity.CacheMeta{RowCount: int64(len(m.data)), LastSyncAt: m.lastSyncAt}, nil
}

func (m *memBarcodes) SetLastSyncAt(_ context.Context, ts time.Time) error {
	m.lastSyncAt = ts
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Serviço remoto configurável
// ──────────────────────────────────────────────────────────────────────────────

// fakeRemote registra cada chamada e delega às funções configuradas; uma
// operação não configurada devolve falha transitória.
type fakeRemote struct {
	calls map[string]int

	openByReference func(reference, facility string) (*conference.RemoteSession, error)
	activeSession   func(operator string) (*conference.RemoteSession, error)
	reopenInfo      func(reference, facility string) (*conference.ReopenInfo, error)
	reopenPartial   func(reference, facility string) (*conference.RemoteSession, error)
	items           func(sessionID string) ([]entity.Item, error)
	pushSnapshot    func(sessionID string, items []entity.Item) error
	finalize        func(sessionID, reason string) (entity.Status, time.Time, error)
	cancel          func(sessionID string) error
	batchOpen       func(references []string, facility string) ([]conference.BatchOpenResult, error)
	batchCancel     func(sessionIDs []string) error
}

var _ conference.RemoteService = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: make(map[string]int)}
}

func (f *fakeRemote) record(op string) { f.calls[op]++ }

func (f *fakeRemote) OpenByReference(_ context.Context, reference, facility string) (*conference.RemoteSession, error) {
	f.record("OpenByReference")
	if f.openByReference == nil {
		return nil, domain.ErrTransient
	}
	return f.openByReference(reference, facility)
}

func (f *fakeRemote) ActiveSession(_ context.Context, operator string) (*conference.RemoteSession, error) {
	f.record("ActiveSession")
	if f.activeSession == nil {
		return nil, domain.ErrTransient
	}
	return f.activeSession(operator)
}

func (f *fakeRemote) ReopenInfo(_ context.Context, reference, facility string) (*conference.ReopenInfo, error) {
	f.record("ReopenInfo")
	if f.reopenInfo == nil {
		return nil, domain.ErrTransient
	}
	return f.reopenInfo(reference, facility)
}

func (f *fakeRemote) ReopenPartial(_ context.Context, reference, facility string) (*conference.RemoteSession, error) {
	f.record("ReopenPartial")
	if f.reopenPartial == nil {
		return nil, domain.ErrTransient
	}
	return f.reopenPartial(reference, facility)
}

func (f *fakeRemote) Items(_ context.Context, sessionID string) ([]entity.Item, error) {
	f.record("Items")
	if f.items == nil {
		return nil, domain.ErrTransient
	}
	return f.items(sessionID)
}

func (f *fakeRemote) Contributors(_ context.Context, _ string) ([]string, error) {
	f.record("Contributors")
	return nil, nil
}

func (f *fakeRemote) ScanBarcode(_ context.Context, _, _ string, _ int64) (*entity.Item, error) {
	f.record("ScanBarcode")
	return nil, domain.ErrTransient
}

func (f *fakeRemote) SetItemQuantity(_ context.Context, _, _ string, _ int64) (*entity.Item, error) {
	f.record("SetItemQuantity")
	return nil, domain.ErrTransient
}

func (f *fakeRemote) PushSnapshot(_ context.Context, sessionID string, items []entity.Item) error {
	f.record("PushSnapshot")
	if f.pushSnapshot == nil {
		return domain.ErrTransient
	}
	return f.pushSnapshot(sessionID, items)
}

func (f *fakeRemote) Finalize(_ context.Context, sessionID, reason string) (entity.Status, time.Time, error) {
	f.record("Finalize")
	if f.finalize == nil {
		return "", time.Time{}, domain.ErrTransient
	}
	return f.finalize(sessionID, reason)
}

func (f *fakeRemote) Cancel(_ context.Context, sessionID string) error {
	f.record("Cancel")
	if f.cancel == nil {
		return domain.ErrTransient
	}
	return f.cancel(sessionID)
}

func (f *fakeRemote) BatchOpen(_ context.Context, references []string, facility string) ([]conference.BatchOpenResult, error) {
	f.record("BatchOpen")
	if f.batchOpen == nil {
		return nil, domain.ErrTransient
	}
	return f.batchOpen(references, facility)
}

func (f *fakeRemote) BatchCancel(_ context.Context, sessionIDs []string) error {
	f.record("BatchCancel")
	if f.batchCancel == nil {
		return domain.ErrTransient
	}
	return f.batchCancel(sessionIDs)
}

type fakeLookup struct {
	entries map[string]entity.BarcodeEntry
	calls   int
}

var _ conference.BarcodeLookup = (*fakeLookup)(nil)

func (f *fakeLookup) PointLookup(_ context.Context, barcode string) (*entity.BarcodeEntry, error) {
	f.calls++
	e, ok := f.entries[barcode]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

type fakeConn struct {
	online bool
}

func (f *fakeConn) Online() bool { return f.online }

type fakeNotifier struct {
	count int
}

func (f *fakeNotifier) Notify() { f.count++ }

// ──────────────────────────────────────────────────────────────────────────────
// Montagem padrão
// ──────────────────────────────────────────────────────────────────────────────

type fixture struct {
	uc       *conference.UseCase
	volumes  *memVolumes
	manifs   *memManifests
	barcodes *memBarcodes
	remote   *fakeRemote
	lookup   *fakeLookup
	conn     *fakeConn
	notifier *fakeNotifier
	now      time.Time
}

func newFixture(online bool) *fixture {
	f := &fixture{
		volumes:  newMemVolumes(),
		manifs:   newMemManifests(),
		barcodes: newMemBarcodes(),
		remote:   newFakeRemote(),
		lookup:   &fakeLookup{entries: make(map[string]entity.BarcodeEntry)},
		conn:     &fakeConn{online: online},
		notifier: &fakeNotifier{},
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.uc = conference.NewUseCase(
		f.volumes, f.manifs, f.barcodes,
		f.remote, f.lookup, f.conn, f.notifier,
		logger.Nop(), 7*24*time.Hour,
	).WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) key(reference string) entity.VolumeKey {
	return entity.NewVolumeKey("ana", "f01", reference, f.now)
}

func (f *fixture) seedBarcode(barcode, productID string) {
	f.barcodes.data[barcode] = entity.BarcodeEntry{
		Barcode:   barcode,
		ProductID: productID,
		UpdatedAt: f.now,
	}
}
