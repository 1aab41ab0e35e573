package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sanction-watch/internal/model"
)

// ErrSourceSuspended is returned by Allow while a source sits out its cooldown.
var ErrSourceSuspended = eris.New("resilience: source suspended after repeated failures")

// HealthConfig controls when a failing source is skipped.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures that suspends a
	// source. Default: 3.
	FailureThreshold int

	// Cooldown is how long a suspended source is skipped before one probe
	// fetch is allowed through. Default: 5m.
	Cooldown time.Duration
}

// DefaultHealthConfig returns the tracker defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
	}
}

type sourceState struct {
	lastErr        error
	failures       int
	suspendedUntil time.Time
}

// HealthTracker keeps SourceHealth for every source consulted by a screener.
// A source is suspended after FailureThreshold consecutive failures; once the
// cooldown passes, fetches are let through again and the next outcome decides.
type HealthTracker struct {
	cfg     HealthConfig
	mu      sync.Mutex
	states  map[string]*sourceState
	nowFunc func() time.Time
}

// NewHealthTracker creates a tracker; zero config fields take defaults.
func NewHealthTracker(cfg HealthConfig) *HealthTracker {
	def := DefaultHealthConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &HealthTracker{
		cfg:     cfg,
		states:  make(map[string]*sourceState),
		nowFunc: time.Now,
	}
}

// WithNow overrides the clock. Used in tests.
func (h *HealthTracker) WithNow(fn func() time.Time) *HealthTracker {
	h.nowFunc = fn
	return h
}

func (h *HealthTracker) state(sourceID string) *sourceState {
	st, ok := h.states[sourceID]
	if !ok {
		st = &sourceState{}
		h.states[sourceID] = st
	}
	return st
}

// Allow returns ErrSourceSuspended while sourceID is cooling down.
func (h *HealthTracker) Allow(sourceID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.states[sourceID]
	if !ok || st.suspendedUntil.IsZero() {
		return nil
	}
	if h.nowFunc().Before(st.suspendedUntil) {
		return eris.Wrapf(ErrSourceSuspended, "source %s", sourceID)
	}
	return nil
}

// Record updates the source's health after a fetch attempt.
func (h *HealthTracker) Record(sourceID string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.state(sourceID)
	if err == nil {
		st.failures = 0
		st.lastErr = nil
		st.suspendedUntil = time.Time{}
		return
	}

	st.failures++
	st.lastErr = err
	if st.failures >= h.cfg.FailureThreshold {
		st.suspendedUntil = h.nowFunc().Add(h.cfg.Cooldown)
		zap.L().Warn("resilience: suspending source",
			zap.String("source", sourceID),
			zap.Int("consecutive_failures", st.failures),
			zap.Duration("cooldown", h.cfg.Cooldown),
		)
	}
}

// Get returns the SourceHealth snapshot for one source.
func (h *HealthTracker) Get(sourceID string) model.SourceHealth {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot(sourceID, h.states[sourceID])
}

// Snapshot returns SourceHealth for every source seen so far, sorted by ID.
func (h *HealthTracker) Snapshot() []model.SourceHealth {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]model.SourceHealth, 0, len(h.states))
	for id, st := range h.states {
		out = append(out, h.snapshot(id, st))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// Reset clears the recorded state for a source.
func (h *HealthTracker) Reset(sourceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.states, sourceID)
}

func (h *HealthTracker) snapshot(sourceID string, st *sourceState) model.SourceHealth {
	sh := model.SourceHealth{SourceID: sourceID}
	if st == nil {
		return sh
	}
	sh.ConsecutiveFailures = st.failures
	if st.lastErr != nil {
		msg := st.lastErr.Error()
		sh.LastError = &msg
	}
	if !st.suspendedUntil.IsZero() && h.nowFunc().Before(st.suspendedUntil) {
		until := st.suspendedUntil
		sh.SuspendedUntil = &until
	}
	return sh
}
