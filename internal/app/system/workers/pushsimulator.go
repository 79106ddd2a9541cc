// internal/app/system/workers/pushsimulator.go
package workers

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/system/notify"
	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Pusher delivers a push payload to subscribed clients.
type Pusher interface {
	Push(ctx context.Context, payload []byte) ([]notify.Notification, error)
}

// DefaultContentMessages are the content tips the simulator picks from.
var DefaultContentMessages = []string{
	"Lembre-se de verificar a validade dos reagentes antes de cada análise.",
	"Novas imagens de laboratório foram adicionadas ao guia.",
	"Mantenha sempre o controle de qualidade em mente durante suas práticas.",
}

// PushSimulator is a background worker that now and then pushes a content
// tip, the way new content would be announced.
type PushSimulator struct {
	pusher   Pusher
	log      *zap.Logger
	interval time.Duration
	chance   float64
	messages []string
	roll     func() float64
	pick     func(n int) int
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewPushSimulator creates a new push simulator worker.
//
// Parameters:
//   - pusher: where payloads are delivered (the offline manager)
//   - logger: zap logger for logging
//   - interval: how often to roll (e.g., 5 minutes)
//   - chance: probability in [0,1] that a roll sends a push (e.g., 0.05)
func NewPushSimulator(pusher Pusher, logger *zap.Logger, interval time.Duration, chance float64) *PushSimulator {
	return &PushSimulator{
		pusher:   pusher,
		log:      logger,
		interval: interval,
		chance:   chance,
		messages: DefaultContentMessages,
		roll:     rand.Float64,
		pick:     rand.IntN,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *PushSimulator) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("push simulator started",
		zap.Duration("interval", w.interval),
		zap.Float64("chance", w.chance))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *PushSimulator) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("push simulator stopped")
}

func (w *PushSimulator) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick rolls once and pushes on success. It reports whether a push was sent.
func (w *PushSimulator) tick() bool {
	if w.roll() >= w.chance || len(w.messages) == 0 {
		return false
	}
	msg := w.messages[w.pick(len(w.messages))]

	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Store())
	defer cancel()

	shown, err := w.pusher.Push(ctx, []byte(msg))
	if err != nil {
		w.log.Error("simulated push failed", zap.Error(err))
		return false
	}
	w.log.Info("simulated push sent", zap.Int("delivered", len(shown)))
	return true
}
