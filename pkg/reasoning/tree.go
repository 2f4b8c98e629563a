package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quillworks/quill/pkg/config"
	"github.com/quillworks/quill/pkg/llms"
)

const expandPrompt = `You are exploring alternative continuations of a line of reasoning. Given the reasoning path so far, propose up to %d distinct candidate continuations. Score each for how promising it is.

Respond with a single JSON array: [{"state": "<continuation>", "score": 0.0-1.0}, ...]`

// treeOfThoughts grows a scored tree of reasoning states, expanding one
// frontier round per turn. The run finishes when a node clears the
// acceptance threshold, or when the frontier drains and the best leaf wins.
type treeOfThoughts struct {
	cfg    config.ReasoningConfig
	client llms.ModelClient
	onStep StepCallback

	tree    Tree
	front   frontier
	decided Decision
}

func newTreeOfThoughts(cfg config.ReasoningConfig, client llms.ModelClient, onStep StepCallback) *treeOfThoughts {
	return &treeOfThoughts{
		cfg:    cfg,
		client: client,
		onStep: onStep,
		front:  newFrontier(cfg.ExplorationStrategy, cfg.BeamWidth),
	}
}

func (t *treeOfThoughts) Name() string { return "tree_of_thoughts" }

func (t *treeOfThoughts) ContextInjection() string {
	best := t.tree.BestLeaf()
	if best == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Most promising reasoning path:\n")
	for i, state := range t.pathTo(best) {
		fmt.Fprintf(&b, "%d. %s\n", i+1, state)
	}
	fmt.Fprintf(&b, "(score %.2f, depth %d, %d states explored)\n", best.Score, best.Depth, t.tree.Size())
	return b.String()
}

func (t *treeOfThoughts) Observe(ctx context.Context, obs Observation) error {
	if t.decided.Stop {
		return nil
	}

	if t.tree.Root == nil {
		root := newNode(obs.Thought, clampScore(obs.Confidence), 0)
		t.tree.Root = root
		t.emit(root)
		if obs.FinalProposed && root.Score >= t.cfg.AcceptanceThreshold {
			t.decided = Decision{Stop: true, Answer: obs.FinalOutput, Reason: "accepted_state"}
			return nil
		}
		t.front.push(root)
	}

	if beam, ok := t.front.(*beamFrontier); ok {
		if err := t.expandBeam(ctx, beam); err != nil {
			return err
		}
	} else {
		if err := t.expandOne(ctx); err != nil {
			return err
		}
	}

	if !t.decided.Stop && t.front.len() == 0 {
		best := t.tree.BestLeaf()
		answer := ""
		if best != nil {
			answer = best.State
		}
		t.decided = Decision{Stop: true, Answer: answer, Reason: "best_leaf"}
	}
	return nil
}

// expandOne pops and expands a single frontier node.
func (t *treeOfThoughts) expandOne(ctx context.Context) error {
	node := t.front.pop()
	if node == nil {
		return nil
	}
	children, err := t.expand(ctx, node)
	if err != nil {
		return err
	}
	for _, c := range children {
		if t.decided.Stop {
			break
		}
		if c.Depth < t.cfg.MaxDepth {
			t.front.push(c)
		}
	}
	return nil
}

// expandBeam expands every node in the current beam, then keeps the top
// beamWidth of the new generation.
func (t *treeOfThoughts) expandBeam(ctx context.Context, beam *beamFrontier) error {
	generation := beam.nodes
	beam.nodes = nil
	for _, node := range generation {
		children, err := t.expand(ctx, node)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.Depth < t.cfg.MaxDepth {
				beam.push(c)
			}
		}
		if t.decided.Stop {
			return nil
		}
	}
	beam.settle()
	return nil
}

// expand asks the model for candidate continuations of node and attaches
// the accepted ones as children.
func (t *treeOfThoughts) expand(ctx context.Context, node *Node) ([]*Node, error) {
	if node.Depth >= t.cfg.MaxDepth {
		return nil, nil
	}

	var path strings.Builder
	for i, state := range t.pathTo(node) {
		fmt.Fprintf(&path, "%d. %s\n", i+1, state)
	}

	req := llms.Request{
		Messages: []llms.Message{
			{Role: llms.RoleSystem, Content: fmt.Sprintf(expandPrompt, t.cfg.MaxBranching)},
			{Role: llms.RoleUser, Content: "Reasoning path so far:\n" + path.String()},
		},
	}
	text, err := collectText(ctx, t.client, req)
	if err != nil {
		return nil, fmt.Errorf("tree expansion failed: %w", err)
	}

	candidates := parseCandidates(text)
	if len(candidates) > t.cfg.MaxBranching {
		candidates = candidates[:t.cfg.MaxBranching]
	}

	var children []*Node
	for _, cand := range candidates {
		if cand.State == "" {
			continue
		}
		if t.cfg.EnableReasoningValidation {
			pass, _, verr := critiqueStep(ctx, t.client, cand.State)
			if verr == nil && !pass {
				continue
			}
		}
		child := newNode(cand.State, clampScore(cand.Score), node.Depth+1)
		node.Children = append(node.Children, child)
		children = append(children, child)
		t.emit(child)

		if child.Score >= t.cfg.AcceptanceThreshold {
			t.decided = Decision{Stop: true, Answer: child.State, Reason: "accepted_state"}
			break
		}
	}
	return children, nil
}

func (t *treeOfThoughts) emit(n *Node) {
	if t.onStep != nil {
		t.onStep(n.State, 0, n.Depth, n.Score)
	}
}

// pathTo returns the states from the root down to n inclusive.
func (t *treeOfThoughts) pathTo(n *Node) []string {
	var path []string
	var walk func(cur *Node, acc []string) bool
	walk = func(cur *Node, acc []string) bool {
		acc = append(acc, cur.State)
		if cur == n {
			path = append([]string(nil), acc...)
			return true
		}
		for _, c := range cur.Children {
			if walk(c, acc) {
				return true
			}
		}
		return false
	}
	if t.tree.Root != nil {
		walk(t.tree.Root, nil)
	}
	return path
}

func (t *treeOfThoughts) Decision() Decision { return t.decided }

type candidate struct {
	State string  `json:"state"`
	Score float64 `json:"score"`
}

func parseCandidates(text string) []candidate {
	raw, ok := extractJSON(text)
	if !ok {
		return nil
	}
	var list []candidate
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}
	var one candidate
	if err := json.Unmarshal([]byte(raw), &one); err == nil && one.State != "" {
		return []candidate{one}
	}
	return nil
}

type treeState struct {
	Tree        Tree     `json:"tree"`
	FrontierIDs []string `json:"frontier_ids,omitempty"`
	Decided     Decision `json:"decided,omitempty"`
}

func (t *treeOfThoughts) Snapshot() (json.RawMessage, error) {
	return json.Marshal(treeState{
		Tree:        t.tree,
		FrontierIDs: t.front.ids(),
		Decided:     t.decided,
	})
}

func (t *treeOfThoughts) Restore(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var st treeState
	if err := json.Unmarshal(raw, &st); err != nil {
		return err
	}
	t.tree = st.Tree
	t.decided = st.Decided
	t.front = newFrontier(t.cfg.ExplorationStrategy, t.cfg.BeamWidth)
	// ids() reports pop order; LIFO needs them pushed back to front.
	if _, lifo := t.front.(*lifoFrontier); lifo {
		for i := len(st.FrontierIDs) - 1; i >= 0; i-- {
			if n := t.tree.find(st.FrontierIDs[i]); n != nil {
				t.front.push(n)
			}
		}
		return nil
	}
	for _, id := range st.FrontierIDs {
		if n := t.tree.find(id); n != nil {
			t.front.push(n)
		}
	}
	return nil
}
