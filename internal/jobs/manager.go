package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
	"server/internal/providers/genai"
	"server/internal/viz"
)

// Config tunes the job lifecycle.
type Config struct {
	// MaxAttempts bounds how many times a single job may invoke its
	// strategy. At-most-MaxAttempts is the delivery contract.
	MaxAttempts int
	// RetryBaseDelay seeds the exponential backoff between retryable
	// failures: base * 2^(attempt-1).
	RetryBaseDelay time.Duration
	// TTL fixes each job's expiry at creation time.
	TTL time.Duration
	// MaxWorkers caps how many attempt loops run concurrently.
	MaxWorkers int
	// SweepInterval schedules the background expiry sweep; zero disables
	// it, leaving lazy read-side expiry as the only purge path.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 1500 * time.Millisecond
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 4
	}
	return c
}

// Manager owns the job state machine. It is the only writer to a job record
// after creation: each job is mutated exclusively by its own attempt loop,
// so readers only ever observe complete transitions.
type Manager struct {
	store     *Store
	registry  *viz.Registry
	collector *metrics.Collector
	logger    infra.Logger
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	done   chan struct{}
	sweep  *time.Ticker
}

// NewManager wires the manager and, when configured, starts the background
// expiry sweeper.
func NewManager(store *Store, registry *viz.Registry, collector *metrics.Collector, logger infra.Logger, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:     store,
		registry:  registry,
		collector: collector,
		logger:    logger,
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		sem:       make(chan struct{}, cfg.MaxWorkers),
		done:      make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		m.sweep = time.NewTicker(cfg.SweepInterval)
		go m.runSweeper()
	} else {
		close(m.done)
	}
	return m
}

// Create validates the requested type against the registry before touching
// the store, records the job as pending, and launches the attempt loop
// without blocking the caller. The returned snapshot is safe to retain.
func (m *Manager) Create(typ, question string, opts viz.Options) (*domain.Job, error) {
	if !m.registry.Supports(typ) {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			domain.ErrUnsupportedType, typ, strings.Join(m.registry.SupportedTypes(), ", "))
	}
	now := time.Now()
	job := &domain.Job{
		ID:        uuid.NewString(),
		Status:    domain.JobStatusPending,
		Type:      strings.ToLower(typ),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	m.store.Put(job)
	m.collector.JobCreated()
	m.logger.Info().Str("job_id", job.ID).Str("type", job.Type).Msg("job created")

	go m.run(job.ID, job.Type, question, opts.WithDefaults())
	return job, nil
}

// Get returns a snapshot of the job or domain.ErrJobNotFound for unknown
// and expired ids.
func (m *Manager) Get(id string) (*domain.Job, error) {
	return m.store.Get(id)
}

// SupportedTypes exposes the registry's type names for the intake boundary.
func (m *Manager) SupportedTypes() []string {
	return m.registry.SupportedTypes()
}

// Shutdown stops the sweeper and cancels in-flight backoff waits. Attempts
// already inside a provider call finish on their own per-call timeout.
func (m *Manager) Shutdown() {
	m.cancel()
	if m.sweep != nil {
		m.sweep.Stop()
	}
	<-m.done
}

func (m *Manager) runSweeper() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.sweep.C:
			if removed := m.store.Sweep(); removed > 0 {
				m.collector.JobsExpired(removed)
				m.logger.Debug().Int("removed", removed).Msg("swept expired jobs")
			}
		}
	}
}

// run is the attempt loop: the single owner of the job record until a
// terminal state is reached.
func (m *Manager) run(id, typ, question string, opts viz.Options) {
	select {
	case m.sem <- struct{}{}:
	case <-m.ctx.Done():
		return
	}
	defer func() { <-m.sem }()

	m.collector.JobStarted()
	defer m.collector.JobFinished()

	strategy, err := m.registry.Create(typ)
	if err != nil {
		// Create validated the type already; reaching this means the
		// registry changed underneath us.
		m.fail(id, metrics.FailReasonInternal, fmt.Sprintf("unexpected error: %v", err))
		return
	}

	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		if !m.store.Update(id, func(j *domain.Job) {
			j.Status = domain.JobStatusRunning
			j.Attempts = attempt
			j.Error = ""
		}) {
			m.logger.Warn().Str("job_id", id).Msg("job record vanished before attempt")
			return
		}
		m.collector.AttemptStarted()
		m.logger.Info().Str("job_id", id).Int("attempt", attempt).Int("max_attempts", m.cfg.MaxAttempts).Msg("attempt started")

		start := time.Now()
		result, err := strategy.Generate(m.ctx, question, opts)
		if err == nil {
			m.store.Update(id, func(j *domain.Job) {
				j.Status = domain.JobStatusSucceeded
				j.Content = result.Content
				j.Metadata = result.Metadata
				j.Error = ""
			})
			m.collector.JobSucceeded(time.Since(start))
			m.logger.Info().Str("job_id", id).Int("attempt", attempt).Msg("job succeeded")
			return
		}

		if domain.IsValidation(err) {
			// Deterministic formatting defect: a retry would reproduce it.
			m.fail(id, metrics.FailReasonValidation, err.Error())
			return
		}

		code, transient := classifyTransient(err)
		if !transient {
			var se *genai.StatusError
			if errors.As(err, &se) {
				m.fail(id, metrics.FailReasonProvider,
					fmt.Sprintf("the model provider returned an error while generating the diagram: %v", err))
			} else {
				m.fail(id, metrics.FailReasonInternal, fmt.Sprintf("unexpected error: %v", err))
			}
			return
		}

		if attempt < m.cfg.MaxAttempts {
			delay := m.backoff(attempt)
			m.logger.Warn().Str("job_id", id).Int("status", code).Dur("delay", delay).Msg("transient provider error, retrying")
			m.store.Update(id, func(j *domain.Job) {
				j.Status = domain.JobStatusPending
				j.Error = fmt.Sprintf("transient provider error (status=%d), retrying in %s", code, delay)
			})
			select {
			case <-time.After(delay):
			case <-m.ctx.Done():
				return
			}
			continue
		}

		switch code {
		case http.StatusServiceUnavailable:
			m.fail(id, metrics.FailReasonOverloaded,
				"The model is still overloaded after multiple attempts. Please wait a bit and try again.")
		case http.StatusTooManyRequests:
			m.fail(id, metrics.FailReasonRateLimited,
				"The provider rate limit was hit several times in a row. Please slow down and try again shortly.")
		default:
			m.fail(id, metrics.FailReasonProvider,
				fmt.Sprintf("the model provider kept failing: %v", err))
		}
		return
	}
}

func (m *Manager) backoff(attempt int) time.Duration {
	return m.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
}

func (m *Manager) fail(id, reason, message string) {
	m.store.Update(id, func(j *domain.Job) {
		j.Status = domain.JobStatusFailed
		j.Error = message
	})
	m.collector.JobFailed(reason)
	m.logger.Error().Str("job_id", id).Str("reason", reason).Str("error", message).Msg("job failed")
}

// classifyTransient decides retry eligibility. A structured status from the
// provider client wins; when only error text is available, substring
// matching is the documented fallback tier.
func classifyTransient(err error) (code int, transient bool) {
	var se *genai.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return se.Code, true
		}
		return se.Code, false
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "503"),
		strings.Contains(text, "unavailable"),
		strings.Contains(text, "overloaded"):
		return http.StatusServiceUnavailable, true
	case strings.Contains(text, "429"),
		strings.Contains(text, "rate limit"),
		strings.Contains(text, "too many requests"):
		return http.StatusTooManyRequests, true
	}
	return 0, false
}
