package syncx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/internal/domain/entity"
	"github.com/coletorapp/conferencia-movel/internal/domain/repository"
	"github.com/coletorapp/conferencia-movel/pkg/logger"
)

// Report contadores de uma passada de reconciliação.
type Report struct {
	Processed int
	Synced    int
	Failed    int
}

// Reconciler drena os volumes locais pendentes contra o serviço remoto.
// Cada volume é processado de forma independente: a falha de um não bloqueia
// os demais. A passada inteira é segura de reinvocar: toda chamada remota que
// ela faz é idempotente por construção (snapshot sobrescreve; cancelamento e
// finalização toleram "já não existe").
type Reconciler struct {
	volumes repository.VolumeRepository
	remote  conference.RemoteService
	log     *logger.Logger
	now     func() time.Time
}

// NewReconciler constrói o reconciliador.
func NewReconciler(volumes repository.VolumeRepository, remote conference.RemoteService, log *logger.Logger) *Reconciler {
	return &Reconciler{volumes: volumes, remote: remote, log: log, now: time.Now}
}

// WithClock troca o relógio (testes).
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run processa todos os volumes pendentes do operador (vazio = todos).
// Sempre recomeça do zero, sem cursor salvo: uma passada abortada apenas deixa
// os volumes restantes para a próxima.
func (r *Reconciler) Run(ctx context.Context, operator string) (Report, error) {
	var report Report
	vols, err := r.volumes.ListPending(ctx, operator)
	if err != nil {
		return report, fmt.Errorf("listar volumes pendentes: %w", err)
	}

	for _, vol := range vols {
		report.Processed++
		if err := r.reconcile(ctx, vol); err != nil {
			report.Failed++
			r.log.Warn().Err(err).Str("ref", vol.Key.Reference).Msg("volume não sincronizado nesta passada")
			continue
		}
		report.Synced++
	}
	r.log.Info().
		Int("processed", report.Processed).
		Int("synced", report.Synced).
		Int("failed", report.Failed).
		Msg("passada de reconciliação concluída")
	return report, nil
}

// reconcile avança um volume. Erro terminal ("sessão não existe mais") derruba
// o registro local sem retentativa: a decisão do backend é final. Qualquer
// outro erro preserva os dados locais e registra a falha no próprio volume.
func (r *Reconciler) reconcile(ctx context.Context, vol *entity.Volume) error {
	err := r.advance(ctx, vol)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrTerminalNotFound) {
		if rerr := r.volumes.Remove(ctx, vol.Key); rerr != nil {
			return fmt.Errorf("remover volume encerrado: %w", rerr)
		}
		return nil
	}
	vol.SyncError = err.Error()
	if perr := r.volumes.Put(ctx, vol); perr != nil {
		return fmt.Errorf("registrar erro de sincronização: %w", perr)
	}
	return err
}

func (r *Reconciler) advance(ctx context.Context, vol *entity.Volume) error {
	now := r.now()

	// Cancelamento pendente: cancela no backend (tolerante) e descarta a réplica.
	if vol.CancelPending {
		if err := r.cancel(ctx, vol); err != nil && !errors.Is(err, domain.ErrTerminalNotFound) {
			return err
		}
		return r.volumes.Remove(ctx, vol.Key)
	}

	// Somente leitura sem finalização pendente: já consistente, só limpa flags.
	if vol.ReadOnly && !vol.FinalizePending {
		vol.SnapshotDirty = false
		vol.SyncError = ""
		vol.SyncedAt = now
		return r.volumes.Put(ctx, vol)
	}

	// Resolve a sessão remota se ainda não existe (volume criado offline).
	if vol.RemoteSessionID == "" && vol.Kind != entity.KindBatch {
		sess, err := r.remote.OpenByReference(ctx, vol.Key.Reference, vol.Key.Facility)
		if err != nil {
			return fmt.Errorf("resolver sessão remota: %w", err)
		}
		vol.RemoteSessionID = sess.ID
	}

	// Snapshot sujo: sobrescreve a lista inteira no backend. No fan-out de
	// finalização agrupada o próprio FinalizeBatch empurra as fatias.
	if vol.SnapshotDirty && !(vol.Kind == entity.KindBatch && vol.FinalizePending) {
		if err := r.pushSnapshot(ctx, vol); err != nil {
			return err
		}
		vol.SnapshotDirty = false
	}

	// Finalização pendente: adota o status decidido pelo backend e limpa ambas
	// as flags (finalizar supera uma intenção velha de cancelar).
	if vol.FinalizePending {
		status, _, err := r.finalize(ctx, vol)
		if err != nil {
			return err
		}
		vol.Status = status
		vol.FinalizedAt = now
		vol.FinalizePending = false
		vol.CancelPending = false
		vol.ReadOnly = true
	}

	vol.SyncError = ""
	vol.SyncedAt = now
	vol.UpdatedAt = now
	return r.volumes.Put(ctx, vol)
}

func (r *Reconciler) cancel(ctx context.Context, vol *entity.Volume) error {
	if vol.Kind == entity.KindBatch {
		var ids []string
		for _, ss := range vol.SubSessions {
			if ss.SessionID != "" && !ss.Finalized {
				ids = append(ids, ss.SessionID)
			}
		}
		if len(ids) == 0 {
			return nil
		}
		return r.remote.BatchCancel(ctx, ids)
	}
	if vol.RemoteSessionID == "" {
		// Criado offline e nunca sincronizado: não há nada remoto a cancelar.
		return nil
	}
	return r.remote.Cancel(ctx, vol.RemoteSessionID)
}

func (r *Reconciler) pushSnapshot(ctx context.Context, vol *entity.Volume) error {
	if vol.Kind == entity.KindBatch {
		for _, ss := range vol.SubSessions {
			if ss.Finalized {
				continue
			}
			if err := r.remote.PushSnapshot(ctx, ss.SessionID, conference.SubRefItems(vol, ss.SubRef)); err != nil {
				return fmt.Errorf("snapshot da sub-referência %s: %w", ss.SubRef, err)
			}
		}
		return nil
	}
	return r.remote.PushSnapshot(ctx, vol.RemoteSessionID, vol.Items)
}

func (r *Reconciler) finalize(ctx context.Context, vol *entity.Volume) (entity.Status, time.Time, error) {
	if vol.Kind == entity.KindBatch {
		status, ts, err := conference.FinalizeBatch(ctx, r.remote, vol, vol.FinalizeReason)
		if err != nil {
			// Persiste o progresso do fan-out antes de reportar a falha.
			if perr := r.volumes.Put(ctx, vol); perr != nil {
				r.log.Warn().Err(perr).Str("ref", vol.Key.Reference).Msg("falha ao persistir progresso do fan-out")
			}
		}
		return status, ts, err
	}
	return r.remote.Finalize(ctx, vol.RemoteSessionID, vol.FinalizeReason)
}
