package conference

import (
	"context"
	"fmt"

	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

// ScanOutcome resultado de um escaneamento. Quando Candidates tem mais de um
// elemento nada foi efetivado: o chamador desambigua e chama CountItem.
type ScanOutcome struct {
	Volume     *entity.Volume
	Item       *entity.Item
	Candidates []entity.Item
}

// Scan resolve o código de barras para um produto, determina o item alvo e
// aplica a contagem. Entrada ambígua não gera commit parcial.
func (uc *UseCase) Scan(ctx context.Context, key entity.VolumeKey, barcode string, qty int64) (*ScanOutcome, error) {
	if barcode == "" || qty <= 0 {
		return nil, fmt.Errorf("%w: barras e quantidade positiva são obrigatórios", domain.ErrValidation)
	}

	entry, err := uc.resolveBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}

	vol, err := uc.loadEditable(ctx, key)
	if err != nil {
		return nil, err
	}

	switch vol.Kind {
	case entity.KindSingle:
		return uc.scanSingle(ctx, vol, entry, qty)
	case entity.KindAvulsa:
		return uc.scanAvulsa(ctx, vol, entry, qty)
	case entity.KindBatch:
		return uc.scanBatch(ctx, vol, entry, qty)
	default:
		return nil, fmt.Errorf("%w: tipo de conferência desconhecido", domain.ErrValidation)
	}
}

// CountItem efetiva a contagem em um item específico, após a desambiguação de
// um escaneamento com múltiplos candidatos. Em volume agrupado a chave nomeia
// a sub-referência de destino e a quantidade vai para o rateio dela, não para
// a distribuição por prioridade.
func (uc *UseCase) CountItem(ctx context.Context, key entity.VolumeKey, itemKey entity.ItemKey, qty int64) (*ScanOutcome, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantidade deve ser positiva", domain.ErrValidation)
	}
	vol, err := uc.loadEditable(ctx, key)
	if err != nil {
		return nil, err
	}
	item := vol.FindItem(itemKey)
	if item == nil {
		return nil, fmt.Errorf("%w: item %s", domain.ErrNotFound, itemKey)
	}
	if vol.Kind == entity.KindBatch {
		if subRef, _, ok := item.Key.BatchParts(); ok {
			return uc.commitAt(ctx, vol, item, subRef, qty)
		}
	}
	return uc.commit(ctx, vol, item, qty)
}

// SetQuantity define a quantidade contada de um item (edição manual),
// obedecendo à mesma regra de trava do escaneamento.
func (uc *UseCase) SetQuantity(ctx context.Context, key entity.VolumeKey, itemKey entity.ItemKey, qty int64) (*ScanOutcome, error) {
	if qty < 0 {
		return nil, fmt.Errorf("%w: quantidade não pode ser negativa", domain.ErrValidation)
	}
	vol, err := uc.loadEditable(ctx, key)
	if err != nil {
		return nil, err
	}
	item := vol.FindItem(itemKey)
	if item == nil {
		return nil, fmt.Errorf("%w: item %s", domain.ErrNotFound, itemKey)
	}
	if item.LockedByOther(vol.Key.Operator) {
		return nil, fmt.Errorf("%w: contado por %s", domain.ErrLockConflict, item.LockedBy)
	}

	if vol.Kind == entity.KindBatch {
		// A chave do item nomeia a sub-referência; a edição vale só para o
		// rateio dela.
		subRef, _, ok := item.Key.BatchParts()
		if !ok {
			return nil, fmt.Errorf("%w: chave %s não nomeia uma sub-referência", domain.ErrValidation, item.Key)
		}
		if err := uc.setAllocationAt(vol, subRef, item.ProductID, qty); err != nil {
			return nil, err
		}
	} else {
		item.Counted = qty
	}
	uc.lockFor(vol, item)
	return uc.persistScan(ctx, vol, item)
}

// resolveBarcode consulta o cache local; num miss conectado faz a consulta
// pontual remota com upsert no cache. Miss offline é falha dura.
func (uc *UseCase) resolveBarcode(ctx context.Context, barcode string) (*entity.BarcodeEntry, error) {
	entry, err := uc.barcodes.Lookup(ctx, barcode)
	if err != nil {
		return nil, fmt.Errorf("consultar cache de barras: %w", err)
	}
	if entry != nil {
		return entry, nil
	}
	if !uc.conn.Online() {
		return nil, fmt.Errorf("%w: código %s desconhecido no cache local", domain.ErrValidation, barcode)
	}
	remote, err := uc.lookup.PointLookup(ctx, barcode)
	if err != nil {
		return nil, err
	}
	if remote == nil {
		return nil, fmt.Errorf("%w: código %s desconhecido", domain.ErrValidation, barcode)
	}
	if err := uc.barcodes.UpsertBatch(ctx, []entity.BarcodeEntry{*remote}); err != nil {
		uc.log.Warn().Err(err).Str("barcode", barcode).Msg("falha ao gravar barras no cache")
	}
	return remote, nil
}

// scanSingle documento único: o produto precisa ser uma das linhas fixas.
func (uc *UseCase) scanSingle(ctx context.Context, vol *entity.Volume, entry *entity.BarcodeEntry, qty int64) (*ScanOutcome, error) {
	items := vol.ItemsByProduct(entry.ProductID)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: produto %s fora do documento", domain.ErrValidation, entry.ProductID)
	}
	return uc.commit(ctx, vol, items[0], qty)
}

// scanAvulsa sem documento: o item nasce do próprio escaneamento.
func (uc *UseCase) scanAvulsa(ctx context.Context, vol *entity.Volume, entry *entity.BarcodeEntry, qty int64) (*ScanOutcome, error) {
	items := vol.ItemsByProduct(entry.ProductID)
	if len(items) > 0 {
		return uc.commit(ctx, vol, items[0], qty)
	}
	vol.Items = append(vol.Items, entity.Item{
		Key:         entity.NewItemKey(entry.ProductID),
		ProductID:   entry.ProductID,
		Description: entry.Description,
		Barcode:     entry.Barcode,
	})
	return uc.commit(ctx, vol, &vol.Items[len(vol.Items)-1], qty)
}

// scanBatch agrupada: candidatos são os itens do produto com pendência,
// excluindo os travados por outro operador e os já completos.
func (uc *UseCase) scanBatch(ctx context.Context, vol *entity.Volume, entry *entity.BarcodeEntry, qty int64) (*ScanOutcome, error) {
	var candidates []entity.Item
	var target *entity.Item
	for _, it := range vol.ItemsByProduct(entry.ProductID) {
		if it.LockedByOther(vol.Key.Operator) || it.Pending() == 0 {
			continue
		}
		candidates = append(candidates, *it)
		target = it
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("%w: sem rateio pendente para o produto %s", domain.ErrValidation, entry.ProductID)
	case 1:
		// Com itens expostos por sub-referência o alvo restante é específico;
		// a quantidade vai para o rateio dele.
		if len(vol.ItemsByProduct(entry.ProductID)) > 1 {
			if subRef, _, ok := target.Key.BatchParts(); ok {
				return uc.commitAt(ctx, vol, target, subRef, qty)
			}
		}
		return uc.commit(ctx, vol, target, qty)
	default:
		// Mais de um alvo possível: devolve os candidatos sem efetivar nada.
		return &ScanOutcome{Volume: vol, Candidates: candidates}, nil
	}
}

// commit aplica a contagem no item, com verificação de trava antes de qualquer
// efeito: um item contado por A não pode ser editado por B.
func (uc *UseCase) commit(ctx context.Context, vol *entity.Volume, item *entity.Item, qty int64) (*ScanOutcome, error) {
	if item.LockedByOther(vol.Key.Operator) {
		return nil, fmt.Errorf("%w: contado por %s", domain.ErrLockConflict, item.LockedBy)
	}
	if vol.Kind == entity.KindBatch {
		if err := uc.allocate(vol, item, qty); err != nil {
			return nil, err
		}
	} else {
		item.Counted += qty
	}
	uc.lockFor(vol, item)
	return uc.persistScan(ctx, vol, item)
}

// commitAt efetiva a contagem no rateio da sub-referência nomeada pela chave
// do item: a desambiguação escolhe o destino exato da quantidade.
func (uc *UseCase) commitAt(ctx context.Context, vol *entity.Volume, item *entity.Item, subRef string, qty int64) (*ScanOutcome, error) {
	if item.LockedByOther(vol.Key.Operator) {
		return nil, fmt.Errorf("%w: contado por %s", domain.ErrLockConflict, item.LockedBy)
	}
	if err := uc.allocateAt(vol, subRef, item.ProductID, qty); err != nil {
		return nil, err
	}
	uc.lockFor(vol, item)
	return uc.persistScan(ctx, vol, item)
}

func (uc *UseCase) lockFor(vol *entity.Volume, item *entity.Item) {
	if item.Counted > 0 {
		item.Locked = true
		item.LockedBy = vol.Key.Operator
	} else {
		item.Locked = false
		item.LockedBy = ""
	}
}

func (uc *UseCase) persistScan(ctx context.Context, vol *entity.Volume, item *entity.Item) (*ScanOutcome, error) {
	vol.Touch(uc.now())
	if err := uc.volumes.Put(ctx, vol); err != nil {
		return nil, fmt.Errorf("gravar contagem: %w", err)
	}
	uc.notify()
	return &ScanOutcome{Volume: vol, Item: item}, nil
}

// loadEditable carrega o volume e rejeita mutação em somente leitura.
func (uc *UseCase) loadEditable(ctx context.Context, key entity.VolumeKey) (*entity.Volume, error) {
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
	return vol, nil
}
