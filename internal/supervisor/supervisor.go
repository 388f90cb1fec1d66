// internal/supervisor/supervisor.go
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/sua-org/cctv-thumbnails/internal/camclient"
	"github.com/sua-org/cctv-thumbnails/internal/core"
	"github.com/sua-org/cctv-thumbnails/internal/storage"
	"github.com/sua-org/cctv-thumbnails/internal/worker"
)

// StatusPublisher is the slice of the MQTT client the supervisor needs.
// A nil publisher disables status reporting entirely.
type StatusPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Supervisor fans out one worker per camera record and keeps them
// isolated: a fault in one worker can never cancel or crash a sibling.
type Supervisor struct {
	store    storage.ImageStore
	fallback []byte
	wcfg     worker.Config

	publisher      StatusPublisher
	baseTopic      string
	statusInterval time.Duration
	proc           *process.Process

	mu      sync.Mutex
	workers map[string]*worker.Worker

	wg     sync.WaitGroup
	cancel context.CancelFunc

	// Vendor dispatch; swapped out in tests.
	clientFor func(core.CameraRecord) (camclient.Client, error)
}

type Option func(*Supervisor)

// WithStatusPublisher turns on periodic per-camera and collector status
// publishing on baseTopic.
func WithStatusPublisher(pub StatusPublisher, baseTopic string, interval time.Duration) Option {
	return func(s *Supervisor) {
		s.publisher = pub
		s.baseTopic = baseTopic
		s.statusInterval = interval
	}
}

func New(store storage.ImageStore, fallback []byte, wcfg worker.Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:     store,
		fallback:  fallback,
		wcfg:      wcfg,
		workers:   make(map[string]*worker.Worker),
		clientFor: camclient.For,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher != nil {
		if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
			s.proc = p
		}
	}
	return s
}

// Start spawns one worker per record. Records whose client cannot be built
// and duplicate camera ids are skipped with a warning, never fatal.
func (s *Supervisor) Start(ctx context.Context, records []core.CameraRecord) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, rec := range records {
		cli, err := s.clientFor(rec)
		if err != nil {
			log.Printf("[supervisor] no client for camera %s: %v", rec.ID, err)
			continue
		}

		s.mu.Lock()
		if _, dup := s.workers[rec.ID]; dup {
			s.mu.Unlock()
			log.Printf("[supervisor] duplicate camera id %s, skipping", rec.ID)
			continue
		}
		w := worker.New(rec, cli, s.store, s.fallback, s.wcfg)
		s.workers[rec.ID] = w
		s.mu.Unlock()

		s.wg.Add(1)
		go func(w *worker.Worker, id string) {
			defer s.wg.Done()
			// Hard isolation boundary: whatever escapes a worker dies here.
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[supervisor] worker %s aborted on panic: %v", id, r)
				}
			}()
			w.Run(ctx)
		}(w, rec.ID)
	}

	log.Printf("[supervisor] started %d camera workers", s.WorkerCount())

	if s.publisher != nil && s.statusInterval > 0 {
		go s.runStatusLoop(ctx)
	}
}

// Shutdown signals all workers to stop at their next safe point and waits
// up to grace for them to finish.
func (s *Supervisor) Shutdown(grace time.Duration) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[supervisor] all workers stopped")
		return nil
	case <-time.After(grace):
		return fmt.Errorf("shutdown grace period %s elapsed with workers still running", grace)
	}
}

func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Snapshot returns the current status of every worker, ordered by camera id.
func (s *Supervisor) Snapshot() []worker.Status {
	s.mu.Lock()
	out := make([]worker.Status, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w.Status())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

func (s *Supervisor) runStatusLoop(ctx context.Context) {
	hostname, _ := os.Hostname()
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	log.Printf("[supervisor] status loop started (interval=%s)", s.statusInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[supervisor] status loop stopped")
			return
		case t := <-ticker.C:
			s.publishStatuses(hostname, t)
		}
	}
}

func (s *Supervisor) publishStatuses(hostname string, now time.Time) {
	statuses := s.Snapshot()
	if len(statuses) == 0 {
		return
	}

	stopped := 0
	for _, st := range statuses {
		if st.State == core.WorkerStateStopped {
			stopped++
		}
		if err := s.publishCameraStatus(st, now); err != nil {
			log.Printf("[status] camera %s: %v", st.CameraID, err)
		}
	}

	if err := s.publishCollectorStatus(hostname, len(statuses), stopped, now); err != nil {
		log.Printf("[status] collector: %v", err)
	}
}

func (s *Supervisor) publishCameraStatus(st worker.Status, now time.Time) error {
	payload := map[string]interface{}{
		"camera_id":            st.CameraID,
		"state":                string(st.State),
		"consecutive_failures": st.ConsecutiveFailures,
		"timestamp":            now.UTC().Format(time.RFC3339),
	}
	if !st.LastUploadAt.IsZero() {
		payload["last_upload_at"] = st.LastUploadAt.UTC().Format(time.RFC3339)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal camera status: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/status", s.baseTopic, st.CameraID)
	if err := s.publisher.Publish(topic, 1, true, b); err != nil {
		return fmt.Errorf("publish camera status to %s: %w", topic, err)
	}
	return nil
}

func (s *Supervisor) publishCollectorStatus(hostname string, cameras, stopped int, now time.Time) error {
	var (
		cpuPercent  float64
		memRSSBytes uint64
	)
	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			cpuPercent = cpu
		}
		if memInfo, err := s.proc.MemoryInfo(); err == nil {
			memRSSBytes = memInfo.RSS
		}
	}

	payload := map[string]interface{}{
		"collector":        "cctv-thumbnails",
		"status":           "online",
		"hostname":         hostname,
		"cameras":          cameras,
		"cameras_stopped":  stopped,
		"cpu_percent":      cpuPercent,
		"memory_rss_bytes": memRSSBytes,
		"timestamp":        now.UTC().Format(time.RFC3339),
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal collector status: %w", err)
	}

	topic := fmt.Sprintf("%s/collector/status", s.baseTopic)
	if err := s.publisher.Publish(topic, 1, true, b); err != nil {
		return fmt.Errorf("publish collector status to %s: %w", topic, err)
	}
	return nil
}
