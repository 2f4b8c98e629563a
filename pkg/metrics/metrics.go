// Package metrics keeps in-process aggregate counters for agent runs. It is
// independent of the OTel pipeline: hosts that do not scrape Prometheus can
// still read a Snapshot programmatically.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector accumulates engine counters. All methods are safe for
// concurrent use. Counters are monotonic until Reset.
type Collector struct {
	runsStarted   atomic.Int64
	runsSucceeded atomic.Int64
	runsFailed    atomic.Int64
	turnsTotal    atomic.Int64

	llmCalls     atomic.Int64
	llmErrors    atomic.Int64
	inputTokens  atomic.Int64
	outputTokens atomic.Int64

	toolCalls      atomic.Int64
	toolErrors     atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	loopsTriggered atomic.Int64

	mu           sync.Mutex
	llmLatency   *reservoir
	toolLatency  *reservoir
	runDurations *reservoir
	perTool      map[string]*toolStats
}

type toolStats struct {
	calls  int64
	errors int64
	total  time.Duration
}

func NewCollector() *Collector {
	return &Collector{
		llmLatency:   newReservoir(reservoirSize),
		toolLatency:  newReservoir(reservoirSize),
		runDurations: newReservoir(reservoirSize),
		perTool:      make(map[string]*toolStats),
	}
}

func (c *Collector) RunStarted() {
	c.runsStarted.Add(1)
}

func (c *Collector) RunFinished(succeeded bool, turns int, duration time.Duration) {
	if succeeded {
		c.runsSucceeded.Add(1)
	} else {
		c.runsFailed.Add(1)
	}
	c.turnsTotal.Add(int64(turns))

	c.mu.Lock()
	c.runDurations.add(float64(duration) / float64(time.Second))
	c.mu.Unlock()
}

func (c *Collector) LLMCall(duration time.Duration, inputTokens, outputTokens int, err error) {
	c.llmCalls.Add(1)
	if err != nil {
		c.llmErrors.Add(1)
	}
	c.inputTokens.Add(int64(inputTokens))
	c.outputTokens.Add(int64(outputTokens))

	c.mu.Lock()
	c.llmLatency.add(float64(duration) / float64(time.Second))
	c.mu.Unlock()
}

func (c *Collector) ToolCall(name string, duration time.Duration, err error) {
	c.toolCalls.Add(1)
	if err != nil {
		c.toolErrors.Add(1)
	}

	c.mu.Lock()
	c.toolLatency.add(float64(duration) / float64(time.Second))
	st := c.perTool[name]
	if st == nil {
		st = &toolStats{}
		c.perTool[name] = st
	}
	st.calls++
	st.total += duration
	if err != nil {
		st.errors++
	}
	c.mu.Unlock()
}

func (c *Collector) CacheHit()      { c.cacheHits.Add(1) }
func (c *Collector) CacheMiss()     { c.cacheMisses.Add(1) }
func (c *Collector) LoopTriggered() { c.loopsTriggered.Add(1) }

// ToolSnapshot summarizes one tool's usage.
type ToolSnapshot struct {
	Calls      int64         `json:"calls"`
	Errors     int64         `json:"errors"`
	AvgLatency time.Duration `json:"avg_latency"`
}

// Snapshot is a point-in-time copy of every counter. Latencies are in
// seconds.
type Snapshot struct {
	RunsStarted   int64 `json:"runs_started"`
	RunsSucceeded int64 `json:"runs_succeeded"`
	RunsFailed    int64 `json:"runs_failed"`
	TurnsTotal    int64 `json:"turns_total"`

	LLMCalls     int64 `json:"llm_calls"`
	LLMErrors    int64 `json:"llm_errors"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	ToolCalls      int64 `json:"tool_calls"`
	ToolErrors     int64 `json:"tool_errors"`
	CacheHits      int64 `json:"cache_hits"`
	CacheMisses    int64 `json:"cache_misses"`
	LoopsTriggered int64 `json:"loops_triggered"`

	LLMLatencyP95  float64 `json:"llm_latency_p95"`
	LLMLatencyP99  float64 `json:"llm_latency_p99"`
	ToolLatencyP95 float64 `json:"tool_latency_p95"`
	ToolLatencyP99 float64 `json:"tool_latency_p99"`
	RunDurationP95 float64 `json:"run_duration_p95"`

	PerTool map[string]ToolSnapshot `json:"per_tool"`
}

// Snapshot copies the current counters. The returned value shares no state
// with the collector.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		RunsStarted:   c.runsStarted.Load(),
		RunsSucceeded: c.runsSucceeded.Load(),
		RunsFailed:    c.runsFailed.Load(),
		TurnsTotal:    c.turnsTotal.Load(),

		LLMCalls:     c.llmCalls.Load(),
		LLMErrors:    c.llmErrors.Load(),
		InputTokens:  c.inputTokens.Load(),
		OutputTokens: c.outputTokens.Load(),

		ToolCalls:      c.toolCalls.Load(),
		ToolErrors:     c.toolErrors.Load(),
		CacheHits:      c.cacheHits.Load(),
		CacheMisses:    c.cacheMisses.Load(),
		LoopsTriggered: c.loopsTriggered.Load(),
	}

	c.mu.Lock()
	s.LLMLatencyP95 = c.llmLatency.percentile(0.95)
	s.LLMLatencyP99 = c.llmLatency.percentile(0.99)
	s.ToolLatencyP95 = c.toolLatency.percentile(0.95)
	s.ToolLatencyP99 = c.toolLatency.percentile(0.99)
	s.RunDurationP95 = c.runDurations.percentile(0.95)

	s.PerTool = make(map[string]ToolSnapshot, len(c.perTool))
	for name, st := range c.perTool {
		ts := ToolSnapshot{Calls: st.calls, Errors: st.errors}
		if st.calls > 0 {
			ts.AvgLatency = st.total / time.Duration(st.calls)
		}
		s.PerTool[name] = ts
	}
	c.mu.Unlock()

	return s
}

// Reset zeroes every counter and drops latency samples.
func (c *Collector) Reset() {
	c.runsStarted.Store(0)
	c.runsSucceeded.Store(0)
	c.runsFailed.Store(0)
	c.turnsTotal.Store(0)
	c.llmCalls.Store(0)
	c.llmErrors.Store(0)
	c.inputTokens.Store(0)
	c.outputTokens.Store(0)
	c.toolCalls.Store(0)
	c.toolErrors.Store(0)
	c.cacheHits.Store(0)
	c.cacheMisses.Store(0)
	c.loopsTriggered.Store(0)

	c.mu.Lock()
	c.llmLatency = newReservoir(reservoirSize)
	c.toolLatency = newReservoir(reservoirSize)
	c.runDurations = newReservoir(reservoirSize)
	c.perTool = make(map[string]*toolStats)
	c.mu.Unlock()
}
