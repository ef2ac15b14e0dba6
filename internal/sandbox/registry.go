package sandbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/replbox/replbox/internal/metrics"
	"github.com/replbox/replbox/pkg/types"
)

// ProvisionFunc creates the directory pair for a new sandbox.
type ProvisionFunc func(ctx context.Context, id string) (Dirs, error)

// StartSessionFunc starts the interpreter session for a freshly
// provisioned sandbox.
type StartSessionFunc func(id string, dirs Dirs) (Session, error)

// RegistryConfig wires a Registry to its collaborators.
type RegistryConfig struct {
	// TTL is how long a sandbox lives after creation.
	TTL time.Duration
	// SweepInterval is how often the sweeper scans for leftovers.
	SweepInterval time.Duration
	// TmpRoot anchors per-sandbox journal files.
	TmpRoot string

	Provision    ProvisionFunc
	StartSession StartSessionFunc
	// Cleanup removes provisioned directories when session start fails.
	Cleanup func(Dirs)
}

// Registry owns every live sandbox. Each sandbox carries an expiry timer;
// an hourly sweep backstops timers lost to suspend or runtime stalls.
// Unregistration is atomic, so the timer, the sweep, and a user close
// racing over the same sandbox resolve to exactly one teardown.
type Registry struct {
	cfg    RegistryConfig
	logger *zerolog.Logger

	mu        sync.RWMutex
	sandboxes map[string]*Sandbox

	stop     chan struct{}
	stopOnce sync.Once
	sweepWG  sync.WaitGroup
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig, logger *zerolog.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.Cleanup == nil {
		cfg.Cleanup = func(Dirs) {}
	}
	return &Registry{
		cfg:       cfg,
		logger:    logger,
		sandboxes: make(map[string]*Sandbox),
		stop:      make(chan struct{}),
	}
}

// Create provisions and starts a new sandbox and begins tracking it.
// Nothing is registered until the session is ready, so a failed create
// leaves no trace.
func (r *Registry) Create(ctx context.Context) (*Sandbox, error) {
	id := uuid.NewString()
	logger := r.logger.With().Str("sandbox_id", id).Logger()

	provisionStart := time.Now()
	dirs, err := r.cfg.Provision(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.ProvisionDuration.Observe(time.Since(provisionStart).Seconds())

	sess, err := r.cfg.StartSession(id, dirs)
	if err != nil {
		r.cfg.Cleanup(dirs)
		return nil, err
	}

	journal, err := OpenJournal(r.cfg.TmpRoot, id)
	if err != nil {
		// The sandbox works without its journal; run degraded.
		logger.Warn().Err(err).Msg("journal unavailable for this sandbox")
		journal = nil
	}

	sb := &Sandbox{
		ID:        id,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Dirs:      dirs,
		session:   sess,
		journal:   journal,
		logger:    &logger,
	}

	r.mu.Lock()
	sb.timer = time.AfterFunc(r.cfg.TTL, func() { r.expire(id) })
	r.sandboxes[id] = sb
	r.mu.Unlock()

	metrics.SandboxesCreated.Inc()
	metrics.SandboxesActive.Inc()
	logger.Info().Str("work_dir", dirs.WorkDir).Msg("sandbox created")
	return sb, nil
}

// Get returns the live sandbox for id.
func (r *Registry) Get(id string) (*Sandbox, error) {
	r.mu.RLock()
	sb, ok := r.sandboxes[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownSandbox
	}
	return sb, nil
}

// List returns a snapshot of live sandboxes keyed by id.
func (r *Registry) List() map[string]types.SandboxInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]types.SandboxInfo, len(r.sandboxes))
	for id, sb := range r.sandboxes {
		out[id] = types.SandboxInfo{CreatedAt: sb.CreatedAt}
	}
	return out
}

// Close unregisters the sandbox immediately and tears it down in the
// background. A second close of the same id reports ErrUnknownSandbox.
func (r *Registry) Close(id string) error {
	sb := r.unregister(id)
	if sb == nil {
		return ErrUnknownSandbox
	}
	go r.teardown(sb, "close")
	return nil
}

// StartSweep runs the periodic reaper until Shutdown.
func (r *Registry) StartSweep() {
	r.sweepWG.Add(1)
	go func() {
		defer r.sweepWG.Done()
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					r.logger.Info().Int("reaped", n).Msg("sweep removed expired sandboxes")
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Sweep tears down every sandbox past its TTL and reports how many it
// found. The per-sandbox timers normally win; whichever side unregisters
// first does the teardown and the other finds nothing.
func (r *Registry) Sweep() int {
	cutoff := time.Now().Add(-r.cfg.TTL)

	r.mu.RLock()
	var expired []string
	for id, sb := range r.sandboxes {
		if sb.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		r.expire(id)
	}
	return len(expired)
}

// Shutdown stops the sweeper and tears down all remaining sandboxes,
// returning once every teardown has finished.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.sweepWG.Wait()

	r.mu.Lock()
	remaining := make([]*Sandbox, 0, len(r.sandboxes))
	for id, sb := range r.sandboxes {
		delete(r.sandboxes, id)
		sb.timer.Stop()
		remaining = append(remaining, sb)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, sb := range remaining {
		wg.Add(1)
		go func(sb *Sandbox) {
			defer wg.Done()
			r.teardown(sb, "shutdown")
		}(sb)
	}
	wg.Wait()
}

// unregister removes the sandbox from the table and disarms its expiry
// timer. Exactly one caller gets the sandbox back; the rest get nil.
func (r *Registry) unregister(id string) *Sandbox {
	r.mu.Lock()
	sb, ok := r.sandboxes[id]
	if ok {
		delete(r.sandboxes, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	sb.timer.Stop()
	return sb
}

func (r *Registry) expire(id string) {
	sb := r.unregister(id)
	if sb == nil {
		// Closed or reaped by the other path first.
		return
	}
	sb.logger.Info().Time("created_at", sb.CreatedAt).Msg("sandbox expired")
	r.teardown(sb, "expired")
}

func (r *Registry) teardown(sb *Sandbox, reason string) {
	if err := sb.session.Shutdown(); err != nil {
		sb.logger.Warn().Err(err).Msg("session shutdown failed")
	}
	if sb.journal != nil {
		if err := sb.journal.Remove(); err != nil {
			sb.logger.Warn().Err(err).Msg("journal removal failed")
		}
	}
	metrics.SandboxesActive.Dec()
	metrics.SandboxesClosed.WithLabelValues(reason).Inc()
	sb.logger.Info().Str("reason", reason).Msg("sandbox torn down")
}
