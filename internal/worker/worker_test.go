package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sua-org/cctv-thumbnails/internal/camclient"
	"github.com/sua-org/cctv-thumbnails/internal/core"
)

var testRecord = core.CameraRecord{ID: "cam-1", IP: "10.0.0.1", Model: "generic"}

// scriptedClient returns canned results per call, in order. The last entry
// repeats forever.
type scriptedClient struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (c *scriptedClient) Fetch(ctx context.Context) (core.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	c.calls++
	if err := c.results[i]; err != nil {
		return core.Snapshot{}, err
	}
	return core.Snapshot{Bytes: []byte("live"), ContentType: "image/jpeg", CapturedAt: time.Now()}, nil
}

func (c *scriptedClient) fetchCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type panicClient struct{}

func (panicClient) Fetch(ctx context.Context) (core.Snapshot, error) {
	panic("camera client blew up")
}

type putCall struct {
	key       string
	body      []byte
	expiresAt time.Time
}

type fakeStore struct {
	mu   sync.Mutex
	puts []putCall
	err  error
}

func (s *fakeStore) Put(ctx context.Context, key string, data []byte, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.puts = append(s.puts, putCall{key: key, body: append([]byte(nil), data...), expiresAt: expiresAt})
	return nil
}

func (s *fakeStore) putCalls() []putCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]putCall(nil), s.puts...)
}

func testConfig() Config {
	return Config{
		PollInterval: 5 * time.Minute,
		FetchTimeout: time.Second,
		MaxFailures:  3,
	}
}

var fallbackImg = []byte("fallback")

func TestCycleSuccessResetsFailures(t *testing.T) {
	client := &scriptedClient{results: []error{nil}}
	store := &fakeStore{}
	w := New(testRecord, client, store, fallbackImg, testConfig())

	for i := 0; i < 3; i++ {
		w.cycle(context.Background())
	}

	if w.Stopped() {
		t.Fatal("worker stopped despite successful fetches")
	}
	st := w.Status()
	if st.ConsecutiveFailures != 0 {
		t.Fatalf("consecutive failures = %d, want 0", st.ConsecutiveFailures)
	}

	puts := store.putCalls()
	if len(puts) != 3 {
		t.Fatalf("uploads = %d, want 3", len(puts))
	}
	for _, p := range puts {
		if p.key != "cam-1.jpg" {
			t.Errorf("key = %q, want cam-1.jpg", p.key)
		}
		if string(p.body) != "live" {
			t.Errorf("uploaded body = %q, want live image", p.body)
		}
	}
}

func TestCycleFailureUploadsFallbackAndStops(t *testing.T) {
	client := &scriptedClient{results: []error{errors.New("connection refused")}}
	store := &fakeStore{}
	w := New(testRecord, client, store, fallbackImg, testConfig())

	// Two extra cycles past the limit must be no-ops.
	for i := 0; i < 5; i++ {
		w.cycle(context.Background())
	}

	if !w.Stopped() {
		t.Fatal("worker not stopped after exceeding failure limit")
	}
	if got := client.fetchCalls(); got != 3 {
		t.Fatalf("fetch calls = %d, want 3 (no fetching after termination)", got)
	}

	puts := store.putCalls()
	if len(puts) != 3 {
		t.Fatalf("uploads = %d, want 3 fallback uploads", len(puts))
	}
	for _, p := range puts {
		if string(p.body) != "fallback" {
			t.Errorf("uploaded body = %q, want fallback image", p.body)
		}
	}
}

func TestFailureCountStrictlyIncreases(t *testing.T) {
	client := &scriptedClient{results: []error{errors.New("timeout")}}
	store := &fakeStore{}
	w := New(testRecord, client, store, fallbackImg, testConfig())

	for want := 1; want <= 3; want++ {
		w.cycle(context.Background())
		if got := w.Status().ConsecutiveFailures; got != want {
			t.Fatalf("after cycle %d: consecutive failures = %d, want %d", want, got, want)
		}
	}
}

func TestPermanentFailureExhaustsBudgetAtOnce(t *testing.T) {
	client := &scriptedClient{results: []error{&camclient.StatusError{StatusCode: 404, Status: "404 Not Found"}}}
	store := &fakeStore{}
	w := New(testRecord, client, store, fallbackImg, testConfig())

	w.cycle(context.Background())

	if !w.Stopped() {
		t.Fatal("worker not stopped after a 4xx fetch")
	}
	if puts := store.putCalls(); len(puts) != 1 || string(puts[0].body) != "fallback" {
		t.Fatalf("want exactly one fallback upload before stopping, got %d", len(puts))
	}
}

func TestFailureCountResetsOnSuccess(t *testing.T) {
	fail := errors.New("timeout")
	client := &scriptedClient{results: []error{fail, nil, fail, nil, fail, nil}}
	store := &fakeStore{}
	w := New(testRecord, client, store, fallbackImg, testConfig())

	for i := 0; i < 6; i++ {
		w.cycle(context.Background())
	}

	if w.Stopped() {
		t.Fatal("alternating worker must never stop (count resets on success)")
	}
	puts := store.putCalls()
	if len(puts) != 6 {
		t.Fatalf("uploads = %d, want 6", len(puts))
	}
	for i, p := range puts {
		want := "fallback"
		if i%2 == 1 {
			want = "live"
		}
		if string(p.body) != want {
			t.Errorf("upload %d body = %q, want %q", i, p.body, want)
		}
	}
}

func TestExpiryEqualsUploadTimePlusPollInterval(t *testing.T) {
	client := &scriptedClient{results: []error{nil}}
	store := &fakeStore{}
	cfg := testConfig()
	w := New(testRecord, client, store, fallbackImg, cfg)

	fixed := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	w.cycle(context.Background())

	puts := store.putCalls()
	if len(puts) != 1 {
		t.Fatalf("uploads = %d, want 1", len(puts))
	}
	want := fixed.Add(cfg.PollInterval)
	if !puts[0].expiresAt.Equal(want) {
		t.Fatalf("expiresAt = %s, want %s", puts[0].expiresAt, want)
	}
}

func TestSkipRepeatedFallback(t *testing.T) {
	fail := errors.New("timeout")
	client := &scriptedClient{results: []error{fail, fail, nil, fail}}
	store := &fakeStore{}
	cfg := testConfig()
	cfg.MaxFailures = 100
	cfg.SkipRepeatedFallback = true
	w := New(testRecord, client, store, fallbackImg, cfg)

	for i := 0; i < 4; i++ {
		w.cycle(context.Background())
	}

	// fail, fail (skipped), live, fail again -> fallback, live, fallback
	puts := store.putCalls()
	if len(puts) != 3 {
		t.Fatalf("uploads = %d, want 3 (second fallback deduped)", len(puts))
	}
	wantBodies := []string{"fallback", "live", "fallback"}
	for i, p := range puts {
		if string(p.body) != wantBodies[i] {
			t.Errorf("upload %d body = %q, want %q", i, p.body, wantBodies[i])
		}
	}
}

func TestUploadFailureCountingPolicy(t *testing.T) {
	tests := []struct {
		name         string
		countUploads bool
		wantFailures int
	}{
		{"uploads do not count by default", false, 0},
		{"uploads count when enabled", true, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{results: []error{nil}}
			store := &fakeStore{err: errors.New("storage unreachable")}
			cfg := testConfig()
			cfg.CountUploadFailures = tt.countUploads
			w := New(testRecord, client, store, fallbackImg, cfg)

			w.cycle(context.Background())
			w.cycle(context.Background())

			if got := w.Status().ConsecutiveFailures; got != tt.wantFailures {
				t.Fatalf("consecutive failures = %d, want %d", got, tt.wantFailures)
			}
			if w.Stopped() {
				t.Fatal("worker must not stop before reaching the limit")
			}
		})
	}
}

func TestPanicInClientCountsAsFailure(t *testing.T) {
	store := &fakeStore{}
	w := New(testRecord, panicClient{}, store, fallbackImg, testConfig())

	for i := 0; i < 3; i++ {
		w.cycle(context.Background())
	}

	if !w.Stopped() {
		t.Fatal("panicking client must eventually stop the worker, not crash it")
	}
}

func TestRunReturnsPromptlyOnCancelMidSleep(t *testing.T) {
	client := &scriptedClient{results: []error{nil}}
	store := &fakeStore{}
	cfg := testConfig()
	cfg.PollInterval = time.Hour
	w := New(testRecord, client, store, fallbackImg, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Wait for the first upload, i.e. the worker is in its sleep.
	deadline := time.After(2 * time.Second)
	for len(store.putCalls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never uploaded")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop within a second of cancellation")
	}
}
