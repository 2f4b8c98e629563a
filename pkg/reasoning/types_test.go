package reasoning

import (
	"strings"
	"testing"
)

func TestChain_Render(t *testing.T) {
	c := &Chain{}
	if c.Render() != "" {
		t.Error("empty chain should render nothing")
	}

	c.Append(Step{Thought: "check the docs", Confidence: 0.5})
	c.Append(Step{Thought: "run the query", Observation: "3 rows", Confidence: 0.9})

	out := c.Render()
	for _, want := range []string{
		"Reasoning so far:",
		"1. check the docs (confidence 0.50)",
		"2. run the query (confidence 0.90)",
		"observed: 3 rows",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q:\n%s", want, out)
		}
	}
}

func TestChain_FinalConfidence(t *testing.T) {
	c := &Chain{}
	if c.FinalConfidence() != 0 {
		t.Error("empty chain confidence should be 0")
	}

	c.Append(Step{Confidence: 0.9})
	c.Append(Step{Confidence: 0.3})
	if got := c.FinalConfidence(); got != 0.3 {
		t.Errorf("FinalConfidence() = %v, want last step's 0.3", got)
	}
}

func TestTree_BestLeaf(t *testing.T) {
	empty := &Tree{}
	if empty.BestLeaf() != nil {
		t.Error("empty tree has no best leaf")
	}

	root := newNode("root", 0.95, 0)
	low := newNode("low", 0.2, 1)
	high := newNode("high", 0.7, 1)
	root.Children = []*Node{low, high}
	tree := &Tree{Root: root}

	// The root has children, so its own score is ignored.
	if best := tree.BestLeaf(); best == nil || best.State != "high" {
		t.Errorf("BestLeaf() = %+v, want high", best)
	}
	if tree.Size() != 3 {
		t.Errorf("Size() = %d, want 3", tree.Size())
	}
}

func TestClampScore(t *testing.T) {
	if clampScore(-0.5) != 0 || clampScore(1.5) != 1 || clampScore(0.4) != 0.4 {
		t.Error("clampScore should bound to [0,1]")
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`prose {"a": 1} trailer`, `{"a": 1}`, true},
		{"```json\n[{\"a\": 1}]\n```", `[{"a": 1}]`, true},
		{`{"s": "brace } inside"}`, `{"s": "brace } inside"}`, true},
		{"no json here", "", false},
	}
	for _, tt := range tests {
		got, ok := extractJSON(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("extractJSON(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
