package syncx

import (
	"context"
	"sync"
	"time"

	"github.com/coletorapp/conferencia-movel/internal/application/conference"
	"github.com/coletorapp/conferencia-movel/internal/domain"
	"github.com/coletorapp/conferencia-movel/pkg/logger"
)

// Worker tarefa de fundo do reconciliador: dispara uma passada após um
// debounce da última mutação local, apenas com conectividade. A tarefa é um
// handle explícito: Start inicia a goroutine e Close a descarta.
type Worker struct {
	rec      *Reconciler
	conn     conference.Connectivity
	debounce time.Duration
	log      *logger.Logger

	ch   chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewWorker constrói o worker; chame Start para iniciar o laço.
func NewWorker(rec *Reconciler, conn conference.Connectivity, debounce time.Duration, log *logger.Logger) *Worker {
	return &Worker{
		rec:      rec,
		conn:     conn,
		debounce: debounce,
		log:      log,
		ch:       make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start inicia o laço em segundo plano.
func (w *Worker) Start() {
	go w.loop()
}

// Notify sinaliza que houve mutação local; o debounce recomeça.
// Nunca bloqueia o chamador.
func (w *Worker) Notify() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// SyncNow executa uma passada imediata, fora do debounce.
func (w *Worker) SyncNow(ctx context.Context) (Report, error) {
	if !w.conn.Online() {
		return Report{}, domain.ErrOffline
	}
	return w.rec.Run(ctx, "")
}

// Close encerra a goroutine e aguarda sua saída. Idempotente.
func (w *Worker) Close() {
	w.once.Do(func() {
		close(w.stop)
		<-w.done
	})
}

func (w *Worker) loop() {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-w.ch:
			timer.Reset(w.debounce)
		case <-timer.C:
			if !w.conn.Online() {
				// Offline: tenta de novo no próximo ciclo.
				timer.Reset(w.debounce)
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			report, err := w.rec.Run(ctx, "")
			cancel()
			if err != nil {
				w.log.Warn().Err(err).Msg("passada de sincronização falhou")
			}
			if err != nil || report.Failed > 0 {
				// Restaram pendências: reagenda sem esperar nova mutação.
				timer.Reset(w.debounce)
			}
		}
	}
}
