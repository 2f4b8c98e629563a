// Package agent implements the turn loop controller: the state machine
// that alternates model calls with tool batches, persists each turn, and
// enforces turn, time, and progress budgets.
package agent

import (
	"fmt"
	"sync"

	"github.com/quillworks/quill/pkg/compactor"
	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/dedupe"
	"github.com/quillworks/quill/pkg/events"
	"github.com/quillworks/quill/pkg/llms"
	"github.com/quillworks/quill/pkg/metrics"
	"github.com/quillworks/quill/pkg/prompt"
	"github.com/quillworks/quill/pkg/state"
)

// Agent runs goals against a model with a set of tools. One Agent serves
// many agentIDs; the dedupe cache, event bus, and metrics collector are
// shared across its runs.
type Agent struct {
	client    llms.ModelClient
	store     state.Store
	cfg       config.Config
	bus       *events.Bus
	collector *metrics.Collector
	cache     *dedupe.Cache
	prompts   *prompt.Builder
	compact   *compactor.Compactor

	// SystemPrompt optionally replaces the engine's default system
	// message. Set before the first Run.
	SystemPrompt string
	// HostSystemMessages follow the system message in every prompt.
	HostSystemMessages []string

	mu     sync.Mutex
	active map[string]struct{}
}

// CreateAgent validates the configuration and builds an agent. A nil config
// selects defaults. Configuration errors surface here, not at Run.
func CreateAgent(client llms.ModelClient, store state.Store, cfg *config.Config) (*Agent, error) {
	if client == nil {
		return nil, fmt.Errorf("%s: model client is required", ReasonInvalidConfig)
	}
	if store == nil {
		store = state.NewMemoryStore()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ReasonInvalidConfig, err)
	}

	cache, err := dedupe.NewCache(cfg.DedupeCacheSize, cfg.DedupeStalenessThreshold)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ReasonInvalidConfig, err)
	}

	return &Agent{
		client:    client,
		store:     store,
		cfg:       *cfg,
		bus:       events.NewBus(),
		collector: metrics.NewCollector(),
		cache:     cache,
		prompts:   prompt.NewBuilder(*cfg),
		compact:   compactor.New(*cfg, client),
		active:    make(map[string]struct{}),
	}, nil
}

// Subscribe registers an event handler. Use events.KindAll for everything.
func (a *Agent) Subscribe(kind events.Kind, handler events.Handler) *events.Subscription {
	return a.bus.Subscribe(kind, handler)
}

// Unsubscribe removes a handler registered with Subscribe.
func (a *Agent) Unsubscribe(sub *events.Subscription) {
	a.bus.Unsubscribe(sub)
}

// Bus exposes the event bus for wiring external bridges.
func (a *Agent) Bus() *events.Bus {
	return a.bus
}

// Metrics returns a snapshot of the agent's counters.
func (a *Agent) Metrics() metrics.Snapshot {
	return a.collector.Snapshot()
}

// ResetMetrics zeroes the counters.
func (a *Agent) ResetMetrics() {
	a.collector.Reset()
}

// acquire takes the process-local single-writer lock for an agentID.
func (a *Agent) acquire(agentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.active[agentID]; busy {
		return fmt.Errorf("%w: %s", ErrRunInProgress, agentID)
	}
	a.active[agentID] = struct{}{}
	return nil
}

func (a *Agent) release(agentID string) {
	a.mu.Lock()
	delete(a.active, agentID)
	a.mu.Unlock()
}
