package metrics

import (
	"errors"
	"testing"
	"time"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.RunStarted()
	c.RunFinished(true, 3, 2*time.Second)
	c.RunStarted()
	c.RunFinished(false, 5, time.Second)

	c.LLMCall(100*time.Millisecond, 200, 50, nil)
	c.LLMCall(150*time.Millisecond, 300, 0, errors.New("rate limited"))

	c.ToolCall("search", 20*time.Millisecond, nil)
	c.ToolCall("search", 40*time.Millisecond, errors.New("boom"))
	c.CacheHit()
	c.CacheMiss()
	c.LoopTriggered()

	s := c.Snapshot()

	if s.RunsStarted != 2 || s.RunsSucceeded != 1 || s.RunsFailed != 1 {
		t.Errorf("run counters: %+v", s)
	}
	if s.TurnsTotal != 8 {
		t.Errorf("TurnsTotal = %d, want 8", s.TurnsTotal)
	}
	if s.LLMCalls != 2 || s.LLMErrors != 1 {
		t.Errorf("llm counters: %+v", s)
	}
	if s.InputTokens != 500 || s.OutputTokens != 50 {
		t.Errorf("token counters: %+v", s)
	}
	if s.ToolCalls != 2 || s.ToolErrors != 1 {
		t.Errorf("tool counters: %+v", s)
	}
	if s.CacheHits != 1 || s.CacheMisses != 1 || s.LoopsTriggered != 1 {
		t.Errorf("cache/loop counters: %+v", s)
	}

	tool := s.PerTool["search"]
	if tool.Calls != 2 || tool.Errors != 1 {
		t.Errorf("per-tool: %+v", tool)
	}
	if tool.AvgLatency != 30*time.Millisecond {
		t.Errorf("AvgLatency = %v, want 30ms", tool.AvgLatency)
	}
}

func TestCollector_Percentiles(t *testing.T) {
	c := NewCollector()

	// 1..100 ms of latency samples.
	for i := 1; i <= 100; i++ {
		c.LLMCall(time.Duration(i)*time.Millisecond, 0, 0, nil)
	}

	s := c.Snapshot()
	if s.LLMLatencyP95 < 0.090 || s.LLMLatencyP95 > 0.100 {
		t.Errorf("LLMLatencyP95 = %v, want ~0.095", s.LLMLatencyP95)
	}
	if s.LLMLatencyP99 < s.LLMLatencyP95 {
		t.Errorf("p99 (%v) below p95 (%v)", s.LLMLatencyP99, s.LLMLatencyP95)
	}
}

func TestCollector_SnapshotIsDetached(t *testing.T) {
	c := NewCollector()
	c.ToolCall("search", time.Millisecond, nil)

	s := c.Snapshot()
	s.PerTool["search"] = ToolSnapshot{Calls: 99}

	if c.Snapshot().PerTool["search"].Calls != 1 {
		t.Error("snapshot shares per-tool map with collector")
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.RunStarted()
	c.LLMCall(time.Millisecond, 10, 10, nil)
	c.ToolCall("search", time.Millisecond, nil)

	c.Reset()

	s := c.Snapshot()
	if s.RunsStarted != 0 || s.LLMCalls != 0 || s.ToolCalls != 0 {
		t.Errorf("counters survived reset: %+v", s)
	}
	if len(s.PerTool) != 0 {
		t.Errorf("per-tool stats survived reset: %+v", s.PerTool)
	}
	if s.LLMLatencyP95 != 0 {
		t.Errorf("latency samples survived reset: %v", s.LLMLatencyP95)
	}
}

func TestReservoir_Percentile(t *testing.T) {
	r := newReservoir(reservoirSize)
	if r.percentile(0.95) != 0 {
		t.Error("empty reservoir percentile should be 0")
	}

	for i := 1; i <= 10; i++ {
		r.add(float64(i))
	}
	if got := r.percentile(0.5); got < 5 || got > 6 {
		t.Errorf("p50 = %v", got)
	}
	if got := r.percentile(1.0); got != 10 {
		t.Errorf("p100 = %v, want 10", got)
	}
}
