package jobs

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/metrics"
	"server/internal/providers/genai"
	"server/internal/viz"
)

type stubStrategy struct {
	generate func(ctx context.Context, question string, opts viz.Options) (*viz.Result, error)
}

func (s stubStrategy) Generate(ctx context.Context, question string, opts viz.Options) (*viz.Result, error) {
	return s.generate(ctx, question, opts)
}

func (s stubStrategy) ValidateContent(string) bool { return true }

type nopGenerator struct{}

func (nopGenerator) GenerateText(context.Context, string, float64) (string, error) {
	return "", errors.New("not implemented")
}

const stubType = "stub"

func newTestManager(t *testing.T, generate func(ctx context.Context, question string, opts viz.Options) (*viz.Result, error), cfg Config) (*Manager, *Store) {
	t.Helper()
	registry := viz.NewRegistry(nopGenerator{}, zerolog.Nop())
	registry.Register(stubType, func() viz.Strategy { return stubStrategy{generate: generate} })
	store := NewStore()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	m := NewManager(store, registry, collector, zerolog.Nop(), cfg)
	t.Cleanup(m.Shutdown)
	return m, store
}

func waitForTerminal(t *testing.T, m *Manager, id string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		job, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get(%q) returned error: %v", id, err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("job %q never reached a terminal state", id)
	return nil
}

func okResult() *viz.Result {
	return &viz.Result{
		Type:     stubType,
		Content:  "flowchart TD\nA1[\"ok\"]",
		Metadata: map[string]any{"node_count": 1},
	}
}

func TestCreateRejectsUnsupportedType(t *testing.T) {
	m, store := newTestManager(t, nil, Config{})

	_, err := m.Create("gantt", "question", viz.Options{})
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Fatalf("Create = %v, want ErrUnsupportedType", err)
	}
	// Rejection happens before the store is ever touched.
	if store.Len() != 0 {
		t.Fatalf("store contains %d records after rejected create", store.Len())
	}
}

func TestCreateReturnsPendingWithUniqueIDs(t *testing.T) {
	block := make(chan struct{})
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		<-block
		return okResult(), nil
	}, Config{MaxWorkers: 2})
	defer close(block)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		job, err := m.Create(stubType, "question", viz.Options{})
		if err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
		if job.Status != domain.JobStatusPending {
			t.Fatalf("Create status = %v, want pending", job.Status)
		}
		if job.Attempts != 0 {
			t.Fatalf("Create attempts = %d, want 0", job.Attempts)
		}
		if seen[job.ID] {
			t.Fatalf("duplicate job id %q", job.ID)
		}
		seen[job.ID] = true
	}
}

func TestJobSucceeds(t *testing.T) {
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		return okResult(), nil
	}, Config{})

	job, err := m.Create(stubType, "question", viz.Options{})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	final := waitForTerminal(t, m, job.ID)
	if final.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %v (error %q), want succeeded", final.Status, final.Error)
	}
	if final.Content != "flowchart TD\nA1[\"ok\"]" {
		t.Fatalf("content = %q", final.Content)
	}
	if final.Metadata["node_count"] != 1 {
		t.Fatalf("metadata = %#v", final.Metadata)
	}
	if final.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", final.Attempts)
	}
	if final.Error != "" {
		t.Fatalf("error = %q, want empty", final.Error)
	}
}

func TestValidationErrorNeverRetried(t *testing.T) {
	var calls atomic.Int32
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		calls.Add(1)
		return nil, domain.NewValidationError("generated content is invalid", nil)
	}, Config{RetryBaseDelay: time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	final := waitForTerminal(t, m, job.ID)
	if final.Status != domain.JobStatusFailed {
		t.Fatalf("status = %v, want failed", final.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("generate called %d times, want 1", got)
	}
	if final.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", final.Attempts)
	}
	if !strings.Contains(final.Error, "invalid") {
		t.Fatalf("error = %q", final.Error)
	}
}

func TestTransientErrorRetriedThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		if calls.Add(1) < 3 {
			return nil, &genai.StatusError{Code: http.StatusServiceUnavailable, Message: "model overloaded"}
		}
		return okResult(), nil
	}, Config{RetryBaseDelay: time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	final := waitForTerminal(t, m, job.ID)
	if final.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %v (error %q), want succeeded", final.Status, final.Error)
	}
	if final.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", final.Attempts)
	}
}

func TestTransientOverloadExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		calls.Add(1)
		return nil, &genai.StatusError{Code: http.StatusServiceUnavailable}
	}, Config{RetryBaseDelay: time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	final := waitForTerminal(t, m, job.ID)
	if final.Status != domain.JobStatusFailed {
		t.Fatalf("status = %v, want failed", final.Status)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("generate called %d times, want 3", got)
	}
	if final.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", final.Attempts)
	}
	if !strings.Contains(final.Error, "overloaded") {
		t.Fatalf("error = %q, want overload wording", final.Error)
	}
}

func TestTransientRateLimitExhaustsAttempts(t *testing.T) {
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		return nil, &genai.StatusError{Code: http.StatusTooManyRequests}
	}, Config{RetryBaseDelay: time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	final := waitForTerminal(t, m, job.ID)
	if final.Status != domain.JobStatusFailed {
		t.Fatalf("status = %v, want failed", final.Status)
	}
	if !strings.Contains(final.Error, "rate limit") {
		t.Fatalf("error = %q, want rate limit wording", final.Error)
	}
}

func TestHeuristicTransientClassification(t *testing.T) {
	// No structured status available: substring matching is the fallback.
	var calls atomic.Int32
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		calls.Add(1)
		return nil, errors.New("upstream said: 503 service unavailable")
	}, Config{RetryBaseDelay: time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	waitForTerminal(t, m, job.ID)
	if got := calls.Load(); got != 3 {
		t.Fatalf("generate called %d times, want 3 (heuristic retry)", got)
	}
}

func TestUnexpectedErrorFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		calls.Add(1)
		return nil, errors.New("nil pointer dereference somewhere")
	}, Config{RetryBaseDelay: time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	final := waitForTerminal(t, m, job.ID)
	if final.Status != domain.JobStatusFailed {
		t.Fatalf("status = %v, want failed", final.Status)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("generate called %d times, want 1", got)
	}
	if !strings.Contains(final.Error, "unexpected error") {
		t.Fatalf("error = %q", final.Error)
	}
}

func TestNonTransientProviderStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		calls.Add(1)
		return nil, &genai.StatusError{Code: http.StatusBadRequest, Message: "invalid argument"}
	}, Config{RetryBaseDelay: time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	final := waitForTerminal(t, m, job.ID)
	if got := calls.Load(); got != 1 {
		t.Fatalf("generate called %d times, want 1", got)
	}
	if !strings.Contains(final.Error, "provider") {
		t.Fatalf("error = %q", final.Error)
	}
}

func TestTerminalStatusIsStable(t *testing.T) {
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		return okResult(), nil
	}, Config{})

	job, _ := m.Create(stubType, "question", viz.Options{})
	final := waitForTerminal(t, m, job.ID)

	for i := 0; i < 20; i++ {
		got, err := m.Get(job.ID)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if got.Status != final.Status || got.Content != final.Content || got.Error != final.Error {
			t.Fatalf("terminal job drifted on poll %d: %#v", i, got)
		}
	}
}

func TestJobExpiresAfterTTL(t *testing.T) {
	m, _ := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		return okResult(), nil
	}, Config{TTL: 20 * time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	waitForTerminal(t, m, job.ID)

	time.Sleep(30 * time.Millisecond)
	if _, err := m.Get(job.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("Get after TTL = %v, want ErrJobNotFound", err)
	}
	if _, err := m.Get(job.ID); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("second Get after TTL = %v, want ErrJobNotFound", err)
	}
}

func TestBackoffDoubles(t *testing.T) {
	m, _ := newTestManager(t, nil, Config{RetryBaseDelay: 1500 * time.Millisecond})
	if got := m.backoff(1); got != 1500*time.Millisecond {
		t.Fatalf("backoff(1) = %v, want 1.5s", got)
	}
	if got := m.backoff(2); got != 3*time.Second {
		t.Fatalf("backoff(2) = %v, want 3s", got)
	}
	if m.backoff(2) <= m.backoff(1) {
		t.Fatal("backoff must grow strictly")
	}
}

func TestClassifyTransient(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantCode      int
		wantTransient bool
	}{
		{"structured 503", &genai.StatusError{Code: 503}, 503, true},
		{"structured 429", &genai.StatusError{Code: 429}, 429, true},
		{"structured 400", &genai.StatusError{Code: 400}, 400, false},
		{"text 503", errors.New("HTTP 503 from upstream"), 503, true},
		{"text overloaded", errors.New("the model is overloaded"), 503, true},
		{"text rate limit", errors.New("Rate Limit reached"), 429, true},
		{"text too many requests", errors.New("too many requests"), 429, true},
		{"plain failure", errors.New("connection refused"), 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, transient := classifyTransient(tc.err)
			if code != tc.wantCode || transient != tc.wantTransient {
				t.Fatalf("classifyTransient = (%d, %v), want (%d, %v)", code, transient, tc.wantCode, tc.wantTransient)
			}
		})
	}
}

func TestManagerSweeperPurgesExpiredJobs(t *testing.T) {
	m, store := newTestManager(t, func(context.Context, string, viz.Options) (*viz.Result, error) {
		return okResult(), nil
	}, Config{TTL: 5 * time.Millisecond, SweepInterval: 10 * time.Millisecond})

	job, _ := m.Create(stubType, "question", viz.Options{})
	waitForTerminal(t, m, job.ID)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.Len() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("sweeper never purged the expired job")
}
