package conference_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

func seedSingleVolume(t *testing.T, f *fixture) entity.VolumeKey {
	t.Helper()
	key := f.key("10/20")
	vol := &entity.Volume{
		Key:    key,
		Kind:   entity.KindSingle,
		Status: entity.StatusInConference,
		Items: []entity.Item{
			{Key: "SKU100", ProductID: "SKU100", Expected: 3},
			{Key: "SKU200", ProductID: "SKU200", Expected: 2},
		},
	}
	require.NoError(t, f.volumes.Put(context.Background(), vol))
	return key
}

func TestScan_DocumentoUnicoAcumulaEMarcaSujo(t *testing.T) {
	f := newFixture(false)
	f.seedBarcode("789100", "SKU100")
	key := seedSingleVolume(t, f)

	out, err := f.uc.Scan(context.Background(), key, "789100", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out.Item.Counted)

	out, err = f.uc.Scan(context.Background(), key, "789100", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Item.Counted)
	assert.True(t, out.Volume.SnapshotDirty)
	assert.Equal(t, "ana", out.Item.LockedBy)
	assert.Equal(t, 2, f.notifier.count)
}

func TestScan_ProdutoForaDoDocumentoRejeitado(t *testing.T) {
	f := newFixture(false)
	f.seedBarcode("789999", "SKU999")
	key := seedSingleVolume(t, f)

	_, err := f.uc.Scan(context.Background(), key, "789999", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestScan_ItemTravadoPorOutroRejeitaSemChamadaRemota(t *testing.T) {
	f := newFixture(true)
	f.seedBarcode("789100", "SKU100")
	key := f.key("10/20")
	vol := &entity.Volume{
		Key:    key,
		Kind:   entity.KindSingle,
		Status: entity.StatusInConference,
		Items: []entity.Item{
			{Key: "SKU100", ProductID: "SKU100", Expected: 3, Counted: 3, Locked: true, LockedBy: "bruno"},
		},
	}
	require.NoError(t, f.volumes.Put(context.Background(), vol))

	_, err := f.uc.Scan(context.Background(), key, "789100", 1)
	assert.ErrorIs(t, err, domain.ErrLockConflict)
	// A rejeição acontece antes de qualquer efeito local ou remoto.
	assert.Empty(t, f.remote.calls)
	got, _ := f.volumes.Get(context.Background(), key)
	assert.False(t, got.SnapshotDirty)
}

func TestScan_BarrasDesconhecidoOfflineFalhaDura(t *testing.T) {
	f := newFixture(false)
	key := seedSingleVolume(t, f)

	_, err := f.uc.Scan(context.Background(), key, "000000", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.lookup.calls)
}

func TestScan_MissNoCacheOnlineConsultaPontualEGravaNoCache(t *testing.T) {
	f := newFixture(true)
	f.lookup.entries["789100"] = entity.BarcodeEntry{Barcode: "789100", ProductID: "SKU100", UpdatedAt: f.now}
	key := seedSingleVolume(t, f)

	out, err := f.uc.Scan(context.Background(), key, "789100", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Item.Counted)
	assert.Equal(t, 1, f.lookup.calls)

	// O resultado da consulta pontual entra no cache local.
	cached, err := f.barcodes.Lookup(context.Background(), "789100")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "SKU100", cached.ProductID)
}

func TestScan_AvulsaCriaItemComEsperadoZero(t *testing.T) {
	f := newFixture(false)
	f.seedBarcode("789100", "SKU100")
	key := f.key("avulsa-x")
	vol := &entity.Volume{Key: key, Kind: entity.KindAvulsa, Status: entity.StatusInConference}
	require.NoError(t, f.volumes.Put(context.Background(), vol))

	out, err := f.uc.Scan(context.Background(), key, "789100", 2)
	require.NoError(t, err)
	require.Len(t, out.Volume.Items, 1)
	assert.Zero(t, out.Item.Expected)
	assert.Equal(t, int64(2), out.Item.Counted)
	// Toda linha de avulsa é sobra por definição.
	assert.Equal(t, entity.DivergenceSobra, out.Item.Divergence().Status)
}

func TestSetQuantity_ZeroDestravaOItem(t *testing.T) {
	f := newFixture(false)
	f.seedBarcode("789100", "SKU100")
	key := seedSingleVolume(t, f)

	_, err := f.uc.Scan(context.Background(), key, "789100", 2)
	require.NoError(t, err)

	out, err := f.uc.SetQuantity(context.Background(), key, "SKU100", 0)
	require.NoError(t, err)
	assert.Zero(t, out.Item.Counted)
	assert.False(t, out.Item.Locked)
	assert.Empty(t, out.Item.LockedBy)
}

func TestScan_SomenteLeituraRejeitada(t *testing.T) {
	f := newFixture(false)
	f.seedBarcode("789100", "SKU100")
	key := f.key("10/20")
	vol := &entity.Volume{
		Key:      key,
		Kind:     entity.KindSingle,
		Status:   entity.StatusFinalizedOk,
		ReadOnly: true,
		Items:    []entity.Item{{Key: "SKU100", ProductID: "SKU100", Expected: 3}},
	}
	require.NoError(t, f.volumes.Put(context.Background(), vol))

	_, err := f.uc.Scan(context.Background(), key, "789100", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
