package conference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
)

// OpenBatch abre várias sub-sessões remotas sob um único volume agregado.
// A ordem das referências informada aqui vira a ordem de prioridade do rateio
// e fica fixa até o fim da conferência. Exige conectividade.
func (uc *UseCase) OpenBatch(ctx context.Context, operator, facility string, references []string) (*OpenResult, error) {
	if operator == "" || facility == "" || len(references) == 0 {
		return nil, fmt.Errorf("%w: operador, filial e referências são obrigatórios", domain.ErrValidation)
	}
	if !uc.conn.Online() {
		return nil, fmt.Errorf("%w: abertura agrupada exige conectividade", domain.ErrOffline)
	}

	results, err := uc.remote.BatchOpen(ctx, references, facility)
	if err != nil {
		return nil, err
	}

	// Resultados parciais: desfaz as aberturas bem-sucedidas e devolve a falha.
	var opened []string
	var failed error
	for _, r := range results {
		if r.Err != nil {
			failed = r.Err
			continue
		}
		opened = append(opened, r.Session.ID)
	}
	if failed != nil {
		if len(opened) > 0 {
			if cerr := uc.remote.BatchCancel(ctx, opened); cerr != nil {
				uc.log.Warn().Err(cerr).Msg("falha ao desfazer abertura agrupada parcial")
			}
		}
		return nil, fmt.Errorf("abertura agrupada: %w", failed)
	}

	key := entity.NewVolumeKey(operator, facility, strings.Join(references, "+"), uc.now())
	vol := uc.newVolume(key, entity.KindBatch)
	vol.Priority = append([]string(nil), references...)

	for i, r := range results {
		subRef := references[i]
		vol.SubSessions = append(vol.SubSessions, entity.SubSession{SubRef: subRef, SessionID: r.Session.ID})

		items := r.Session.Items
		if items == nil {
			items, err = uc.remote.Items(ctx, r.Session.ID)
			if err != nil {
				return nil, err
			}
		}
		for _, it := range items {
			vol.Allocations = append(vol.Allocations, entity.Allocation{
				SubRef:    subRef,
				ProductID: it.ProductID,
				Expected:  it.Expected,
				Counted:   it.Counted,
			})
			uc.mergeAggregateItem(vol, subRef, it)
		}
	}
	refreshAggregates(vol)

	if err := uc.volumes.Put(ctx, vol); err != nil {
		return nil, fmt.Errorf("gravar conferência agrupada: %w", err)
	}
	return &OpenResult{Volume: vol, Mode: ModeOpened}, nil
}

// mergeAggregateItem soma o item da sub-referência no item agregado do
// produto, criando-o na primeira ocorrência. A chave opaca usa a primeira
// sub-referência em que o produto aparece e nunca é recalculada.
func (uc *UseCase) mergeAggregateItem(vol *entity.Volume, subRef string, it entity.Item) {
	for i := range vol.Items {
		if vol.Items[i].ProductID == it.ProductID {
			vol.Items[i].Expected += it.Expected
			return
		}
	}
	vol.Items = append(vol.Items, entity.Item{
		Key:         entity.NewBatchItemKey(subRef, it.ProductID),
		ProductID:   it.ProductID,
		Description: it.Description,
		Barcode:     it.Barcode,
		Expected:    it.Expected,
	})
}

// allocate distribui a quantidade escaneada pelos rateios do produto, em ordem
// de prioridade: cada sub-referência com pendência recebe até o seu pendente.
// Sobra além do pendente total é rejeitada por inteiro, nunca descartada.
func (uc *UseCase) allocate(vol *entity.Volume, item *entity.Item, qty int64) error {
	var totalPending int64
	for _, a := range vol.Allocations {
		if a.ProductID == item.ProductID {
			totalPending += a.Pending()
		}
	}
	if qty > totalPending {
		return fmt.Errorf("%w: quantidade %d excede o pendente total %d do produto %s",
			domain.ErrValidation, qty, totalPending, item.ProductID)
	}

	remaining := qty
	for _, subRef := range vol.Priority {
		if remaining == 0 {
			break
		}
		for i := range vol.Allocations {
			a := &vol.Allocations[i]
			if a.SubRef != subRef || a.ProductID != item.ProductID {
				continue
			}
			p := a.Pending()
			if p == 0 {
				continue
			}
			take := p
			if remaining < p {
				take = remaining
			}
			a.Counted += take
			remaining -= take
		}
	}
	refreshAggregates(vol)
	return nil
}

// allocateAt credita a quantidade no rateio da sub-referência escolhida na
// desambiguação, ignorando a ordem de prioridade. Sobra além do pendente
// daquele rateio é rejeitada por inteiro.
func (uc *UseCase) allocateAt(vol *entity.Volume, subRef, productID string, qty int64) error {
	for i := range vol.Allocations {
		a := &vol.Allocations[i]
		if a.SubRef != subRef || a.ProductID != productID {
			continue
		}
		if qty > a.Pending() {
			return fmt.Errorf("%w: quantidade %d excede o pendente %d do produto %s em %s",
				domain.ErrValidation, qty, a.Pending(), productID, subRef)
		}
		a.Counted += qty
		refreshAggregates(vol)
		return nil
	}
	return fmt.Errorf("%w: produto %s sem rateio na sub-referência %s", domain.ErrNotFound, productID, subRef)
}

// setAllocationAt define a quantidade absoluta do rateio da sub-referência.
func (uc *UseCase) setAllocationAt(vol *entity.Volume, subRef, productID string, qty int64) error {
	for i := range vol.Allocations {
		a := &vol.Allocations[i]
		if a.SubRef != subRef || a.ProductID != productID {
			continue
		}
		if qty > a.Expected {
			return fmt.Errorf("%w: quantidade %d excede o esperado %d do produto %s em %s",
				domain.ErrValidation, qty, a.Expected, productID, subRef)
		}
		a.Counted = qty
		refreshAggregates(vol)
		return nil
	}
	return fmt.Errorf("%w: produto %s sem rateio na sub-referência %s", domain.ErrNotFound, productID, subRef)
}

// refreshAggregates recalcula o contado dos itens a partir dos rateios.
// Um produto com item agregado único recebe a soma de todos os rateios; quando
// o volume expõe um item por sub-referência, cada um recebe o contado do seu
// próprio rateio.
func refreshAggregates(vol *entity.Volume) {
	if vol.Kind != entity.KindBatch {
		return
	}
	total := make(map[string]int64, len(vol.Items))
	bySlice := make(map[string]int64, len(vol.Allocations))
	for _, a := range vol.Allocations {
		total[a.ProductID] += a.Counted
		bySlice[a.SubRef+":"+a.ProductID] = a.Counted
	}
	perProduct := make(map[string]int, len(vol.Items))
	for _, it := range vol.Items {
		perProduct[it.ProductID]++
	}
	for i := range vol.Items {
		it := &vol.Items[i]
		if perProduct[it.ProductID] > 1 {
			if subRef, _, ok := it.Key.BatchParts(); ok {
				it.Counted = bySlice[subRef+":"+it.ProductID]
				continue
			}
		}
		it.Counted = total[it.ProductID]
	}
}

// SubRefItems materializa a fatia de itens de uma sub-referência a partir dos
// rateios, para o snapshot e a finalização daquela sub-sessão.
func SubRefItems(vol *entity.Volume, subRef string) []entity.Item {
	var items []entity.Item
	for _, a := range vol.Allocations {
		if a.SubRef != subRef {
			continue
		}
		it := entity.Item{
			Key:       entity.NewBatchItemKey(a.SubRef, a.ProductID),
			ProductID: a.ProductID,
			Expected:  a.Expected,
			Counted:   a.Counted,
		}
		for _, agg := range vol.Items {
			if agg.ProductID == a.ProductID {
				it.Description = agg.Description
				it.Barcode = agg.Barcode
				it.Locked = agg.Locked
				it.LockedBy = agg.LockedBy
				break
			}
		}
		items = append(items, it)
	}
	return items
}

// FinalizeBatch fan-out sequencial de finalização por sub-referência: empurra
// a fatia de rateios da sub-sessão e a finaliza de forma independente. Não é
// atômico: uma falha no meio deixa as anteriores encerradas (marcadas em
// SubSessions) e as seguintes abertas; reinvocar retoma apenas o restante.
// O chamador deve persistir o volume mesmo quando um erro é devolvido, para
// não perder o progresso do fan-out.
func FinalizeBatch(ctx context.Context, remote RemoteService, vol *entity.Volume, reason string) (entity.Status, time.Time, error) {
	var finishedAt time.Time
	for i := range vol.SubSessions {
		ss := &vol.SubSessions[i]
		if ss.Finalized {
			continue
		}
		if err := remote.PushSnapshot(ctx, ss.SessionID, SubRefItems(vol, ss.SubRef)); err != nil {
			if errors.Is(err, domain.ErrTerminalNotFound) {
				// Sub-sessão já encerrada por outro ator: conta como concluída.
				ss.Finalized = true
				continue
			}
			return "", time.Time{}, fmt.Errorf("snapshot da sub-referência %s: %w", ss.SubRef, err)
		}
		_, ts, err := remote.Finalize(ctx, ss.SessionID, reason)
		if err != nil {
			if errors.Is(err, domain.ErrTerminalNotFound) {
				ss.Finalized = true
				continue
			}
			return "", time.Time{}, fmt.Errorf("finalizar sub-referência %s: %w", ss.SubRef, err)
		}
		ss.Finalized = true
		finishedAt = ts
	}

	status := entity.StatusFinalizedOk
	for _, a := range vol.Allocations {
		if entity.Diverge(a.Expected, a.Counted).Status != entity.DivergenceCorreto {
			status = entity.StatusFinalizedDivergent
			break
		}
	}
	return status, finishedAt, nil
}
