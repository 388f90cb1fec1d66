// internal/worker/worker.go
package worker

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/sua-org/cctv-thumbnails/internal/camclient"
	"github.com/sua-org/cctv-thumbnails/internal/core"
	"github.com/sua-org/cctv-thumbnails/internal/storage"
)

// Config is the per-worker polling policy. The same config is shared by
// every worker in the fleet.
type Config struct {
	PollInterval  time.Duration
	FetchTimeout  time.Duration
	MaxFailures   int
	InitialJitter time.Duration

	// CountUploadFailures makes failed uploads count toward MaxFailures the
	// same way failed fetches do.
	CountUploadFailures bool
	// SkipRepeatedFallback skips re-uploading the fallback image when it is
	// already the stored object. Saves puts, but lets the cache metadata on
	// the stored fallback go stale.
	SkipRepeatedFallback bool

	Verbose bool
}

// Status is a point-in-time view of a worker, safe to read from outside.
type Status struct {
	CameraID            string
	State               core.WorkerState
	ConsecutiveFailures int
	LastUploadAt        time.Time
}

// Worker owns the full poll/upload/sleep lifecycle for one camera. All of
// its mutable state is private to it; nothing is shared between workers.
type Worker struct {
	record   core.CameraRecord
	client   camclient.Client
	store    storage.ImageStore
	fallback []byte
	cfg      Config

	mu                  sync.Mutex
	state               core.WorkerState
	consecutiveFailures int
	lastUploadAt        time.Time
	fallbackStored      bool
	terminated          bool

	now func() time.Time
}

func New(record core.CameraRecord, client camclient.Client, store storage.ImageStore, fallback []byte, cfg Config) *Worker {
	return &Worker{
		record:   record,
		client:   client,
		store:    store,
		fallback: fallback,
		cfg:      cfg,
		state:    core.WorkerStateStarting,
		now:      time.Now,
	}
}

// Run drives the cycle loop until ctx is canceled or the camera exhausts
// its failure budget. It never panics: each cycle body is wrapped in a
// recovery boundary so an unexpected fault only counts as one failed cycle
// for this camera.
func (w *Worker) Run(ctx context.Context) {
	// Spread the fleet's first polls so hundreds of cameras don't all fetch
	// in the same instant after a restart.
	if !w.sleepFor(ctx, w.jitter()) {
		return
	}

	for {
		w.cycle(ctx)

		if w.Stopped() {
			log.Printf("[worker %s] failure limit reached (%d), terminating until restart",
				w.record.ID, w.cfg.MaxFailures)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !w.sleepFor(ctx, w.cfg.PollInterval) {
			return
		}
	}
}

// cycle is one fetch -> upload pass. Fetch failure swaps in the fallback
// image; the upload happens either way so the public object never goes
// silently stale past its cache window.
func (w *Worker) cycle(ctx context.Context) {
	// Terminated means terminated: no fetch or upload ever again for this
	// camera until the process restarts.
	if w.Stopped() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[worker %s] recovered from panic: %v", w.record.ID, r)
			w.bumpFailures(false)
			w.checkLimit()
		}
	}()

	w.setState(core.WorkerStatePolling)
	snap, fetchErr := w.fetch(ctx)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[worker %s] fetch failed: %v", w.record.ID, fetchErr)
		w.bumpFailures(camclient.IsPermanent(fetchErr))
	}

	w.setState(core.WorkerStateUploading)
	uploadErr := w.upload(ctx, snap, fetchErr != nil)
	if uploadErr != nil && ctx.Err() == nil && w.cfg.CountUploadFailures {
		w.bumpFailures(false)
	}

	// A successful fetch clears the failure count; when upload failures
	// count too, the upload has to land as well.
	if fetchErr == nil && (uploadErr == nil || !w.cfg.CountUploadFailures) {
		w.resetFailures()
	}

	w.checkLimit()
}

func (w *Worker) fetch(ctx context.Context) (core.Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	defer cancel()

	w.debugf("fetching image from %s (%s)", w.record.IP, w.record.Model)
	return w.client.Fetch(fctx)
}

// upload puts the fetched image, or the fallback when the fetch failed,
// with expiry metadata one poll interval out. Upload failure is logged and
// the cycle carries on regardless; the caller decides whether it counts
// toward the failure limit.
func (w *Worker) upload(ctx context.Context, snap core.Snapshot, useFallback bool) error {
	body := snap.Bytes
	if useFallback {
		if w.cfg.SkipRepeatedFallback && w.isFallbackStored() {
			w.debugf("fallback already stored, skipping upload")
			return nil
		}
		body = w.fallback
	}

	now := w.now()
	expiresAt := now.Add(w.cfg.PollInterval)

	uctx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	err := w.store.Put(uctx, w.record.ObjectKey(), body, expiresAt)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[worker %s] upload failed: %v", w.record.ID, err)
		}
		return err
	}

	w.mu.Lock()
	w.fallbackStored = useFallback
	w.lastUploadAt = now
	w.mu.Unlock()
	w.debugf("uploaded %s (fallback=%v, expires=%s)", w.record.ObjectKey(), useFallback, expiresAt.Format(time.RFC3339))
	return nil
}

// sleepFor blocks for d or until ctx is canceled. Returns false on cancel
// so shutdown never waits out a full poll interval.
func (w *Worker) sleepFor(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}

	w.setState(core.WorkerStateSleeping)
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *Worker) jitter() time.Duration {
	if w.cfg.InitialJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(w.cfg.InitialJitter)))
}

// bumpFailures increments the consecutive-failure count. Permanent
// failures (4xx from the camera) exhaust the budget at once: retrying a
// bad path or bad auth every cycle buys nothing.
func (w *Worker) bumpFailures(permanent bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if permanent {
		w.consecutiveFailures = w.cfg.MaxFailures
		return
	}
	w.consecutiveFailures++
}

func (w *Worker) resetFailures() {
	w.mu.Lock()
	w.consecutiveFailures = 0
	w.mu.Unlock()
}

func (w *Worker) checkLimit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.consecutiveFailures >= w.cfg.MaxFailures {
		w.terminated = true
		w.state = core.WorkerStateStopped
	}
}

func (w *Worker) setState(s core.WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *Worker) isFallbackStored() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fallbackStored
}

// Stopped reports whether the worker has terminated itself for exceeding
// the failure limit. Once true it stays true until process restart.
func (w *Worker) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminated
}

func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		CameraID:            w.record.ID,
		State:               w.state,
		ConsecutiveFailures: w.consecutiveFailures,
		LastUploadAt:        w.lastUploadAt,
	}
}

func (w *Worker) debugf(format string, args ...interface{}) {
	if !w.cfg.Verbose {
		return
	}
	log.Printf("[worker "+w.record.ID+"] "+format, args...)
}
