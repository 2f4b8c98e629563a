package compactor

import (
	"context"
	"strings"
	"testing"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/state"
	"github.com/quillworks/quill/pkg/testutil"
	"github.com/quillworks/quill/pkg/tools"
)

func makeTurns(n int) []state.Turn {
	out := make([]state.Turn, n)
	for i := range out {
		out[i] = state.Turn{
			Index:        i,
			ModelMessage: state.ModelMessage{Thoughts: "thinking"},
		}
	}
	return out
}

func TestPartition(t *testing.T) {
	turns := makeTurns(5)

	elided, retained := Partition(turns, 2)
	if len(elided) != 3 || len(retained) != 2 {
		t.Fatalf("Partition = %d elided, %d retained", len(elided), len(retained))
	}
	if elided[0].Index != 0 || retained[0].Index != 3 {
		t.Errorf("partition split at wrong point: %v / %v", elided[0].Index, retained[0].Index)
	}

	elided, retained = Partition(turns, 10)
	if elided != nil || len(retained) != 5 {
		t.Errorf("window larger than history should elide nothing")
	}

	elided, retained = Partition(turns, 0)
	if elided != nil || len(retained) != 5 {
		t.Errorf("maxRecent 0 should disable elision")
	}
}

func TestCompact_EmptyElidedKeepsPrior(t *testing.T) {
	c := New(*config.DefaultConfig(), nil)

	got, err := c.Compact(context.Background(), "prior", nil)
	if err != nil || got != "prior" {
		t.Errorf("Compact(nil elided) = %q, %v", got, err)
	}
}

func TestCompact_Deterministic(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.SummaryMode = config.SummaryModeDeterministic
	c := New(cfg, nil)

	turns := []state.Turn{
		{
			Index:        0,
			ModelMessage: state.ModelMessage{Thoughts: "look up the weather\nsecond line"},
			ToolResults: []tools.ExecutionResult{{
				ToolName: "search",
				Kind:     tools.OutcomeSuccess,
				Output:   "sunny in Tokyo",
			}},
		},
		{
			Index:        1,
			ModelMessage: state.ModelMessage{FinalOutput: "It is sunny."},
		},
	}

	got, err := c.Compact(context.Background(), "earlier work", turns)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"earlier work",
		"Turn 0: look up the weather",
		"[search: success sunny in Tokyo]",
		"Turn 1:",
		"final: It is sunny.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "second line") {
		t.Errorf("gist should be first line only:\n%s", got)
	}
}

func TestCompact_ModelMode(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.SummaryMode = config.SummaryModeModel
	client := testutil.NewScriptedClient(
		testutil.TextTurn("Agent searched and found the weather."),
	)
	c := New(cfg, client)

	got, err := c.Compact(context.Background(), "", makeTurns(2))
	if err != nil {
		t.Fatal(err)
	}
	if got != "Agent searched and found the weather." {
		t.Errorf("Compact = %q", got)
	}
	if client.Calls() != 1 {
		t.Errorf("model calls = %d, want 1", client.Calls())
	}

	// The request carries the turns to fold in.
	req := client.Requests()[0]
	if !strings.Contains(req.Messages[1].Content, "Turns to fold in:") {
		t.Errorf("summarize request = %+v", req.Messages)
	}
}

func TestCompact_ModelFailureFallsBack(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.SummaryMode = config.SummaryModeModel
	client := testutil.NewScriptedClient() // exhausted: every call fails
	c := New(cfg, client)

	got, err := c.Compact(context.Background(), "", makeTurns(2))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Turn 0:") {
		t.Errorf("fallback summary = %q", got)
	}
}

func TestCompact_CancellationBubbles(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.SummaryMode = config.SummaryModeModel
	client := testutil.NewScriptedClient()
	c := New(cfg, client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Compact(ctx, "", makeTurns(2)); err == nil {
		t.Error("cancelled context should abort, not fall back")
	}
}

func TestCompact_CapsLength(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.SummaryMode = config.SummaryModeDeterministic
	cfg.MaxSummaryLength = 30
	c := New(cfg, nil)

	got, err := c.Compact(context.Background(), strings.Repeat("long prior summary ", 20), makeTurns(3))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "truncated") {
		t.Errorf("summary not capped: %d chars", len(got))
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 {
		t.Error("empty string should cost 0 tokens")
	}

	short := EstimateTokens("hello world")
	long := EstimateTokens(strings.Repeat("hello world ", 50))
	if short <= 0 || long <= short {
		t.Errorf("EstimateTokens: short=%d long=%d", short, long)
	}
}

func TestCompact_ModelModeCapsFoldInput(t *testing.T) {
	cfg := *config.DefaultConfig()
	cfg.SummaryMode = config.SummaryModeModel
	client := testutil.NewScriptedClient(
		testutil.TextTurn("Condensed."),
	)
	c := New(cfg, client)

	// Single-line thoughts so the digest keeps every word.
	var turns []state.Turn
	for i := 0; i < 8; i++ {
		turns = append(turns, state.Turn{
			Index:        i,
			ModelMessage: state.ModelMessage{Thoughts: strings.Repeat("alpha beta gamma delta ", 800)},
		})
	}

	if _, err := c.Compact(context.Background(), "", turns); err != nil {
		t.Fatal(err)
	}

	digest := c.textualize("", turns)
	folded := client.Requests()[0].Messages[1].Content
	if len(folded) >= len(digest) {
		t.Errorf("fold input not capped: %d bytes sent for a %d byte digest", len(folded), len(digest))
	}
	if !strings.Contains(folded, "truncated") {
		t.Errorf("capped fold input carries no elision marker:\n%s", folded[:200])
	}
	if EstimateTokens(folded) > maxFoldTokens+64 {
		t.Errorf("fold input is %d tokens, budget %d", EstimateTokens(folded), maxFoldTokens)
	}
}

func TestTruncateToTokens(t *testing.T) {
	if got := TruncateToTokens("short text", 100); got != "short text" {
		t.Errorf("TruncateToTokens(short) = %q", got)
	}
	if got := TruncateToTokens("anything at all", 0); got != "anything at all" {
		t.Errorf("budget 0 should disable the cap: %q", got)
	}

	long := strings.Repeat("one two three four ", 500)
	got := TruncateToTokens(long, 50)
	if len(got) >= len(long) {
		t.Errorf("long text not truncated: %d -> %d bytes", len(long), len(got))
	}
	if !strings.Contains(got, "truncated") {
		t.Errorf("no elision marker: %q", got[len(got)-40:])
	}
}
