// internal/app/system/workers/cacheinstaller.go
package workers

import (
	"context"
	"sync"
	"time"

	"github.com/dalemusser/guiafarma/internal/app/system/offline"
	"github.com/dalemusser/guiafarma/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// Installer installs a cache generation.
type Installer interface {
	Install(ctx context.Context, cfg offline.Config) (offline.State, error)
}

// CacheInstaller is a background worker that installs the configured cache
// generation at startup and retries until it succeeds. The site may not be
// reachable yet when the process starts (it can even be served by this
// process), so a failed install is not fatal.
type CacheInstaller struct {
	installer Installer
	cfg       offline.Config
	log       *zap.Logger
	retry     time.Duration
	stopCh    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewCacheInstaller creates a new cache installer worker.
//
// Parameters:
//   - installer: the offline cache manager
//   - cfg: the generation to install
//   - logger: zap logger for logging
//   - retry: how long to wait between failed attempts (e.g., 30 seconds)
func NewCacheInstaller(installer Installer, cfg offline.Config, logger *zap.Logger, retry time.Duration) *CacheInstaller {
	return &CacheInstaller{
		installer: installer,
		cfg:       cfg,
		log:       logger,
		retry:     retry,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins installing in the background.
func (w *CacheInstaller) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("cache installer started",
		zap.String("cache_version", w.cfg.Version),
		zap.Duration("retry", w.retry))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *CacheInstaller) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("cache installer stopped")
}

// Done is closed once the generation has been installed.
func (w *CacheInstaller) Done() <-chan struct{} { return w.done }

func (w *CacheInstaller) run() {
	defer w.wg.Done()

	if w.attempt() {
		return
	}

	ticker := time.NewTicker(w.retry)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.attempt() {
				return
			}
		}
	}
}

// attempt runs one install. It reports whether the worker is finished.
func (w *CacheInstaller) attempt() bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Install())
	defer cancel()

	// Stop cancels an attempt in flight.
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	state, err := w.installer.Install(ctx, w.cfg)
	if err != nil {
		w.log.Warn("cache install failed; will retry",
			zap.String("cache_version", w.cfg.Version),
			zap.Duration("retry", w.retry),
			zap.Error(err))
		return false
	}
	w.log.Info("cache generation installed",
		zap.String("cache_version", w.cfg.Version),
		zap.String("state", string(state)))
	close(w.done)
	return true
}
