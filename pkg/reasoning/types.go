// Package reasoning implements the engine's reasoning strategies: a linear
// chain of thought and a branching tree of thoughts. Strategies accumulate
// state across turns, inject it back into prompts, and decide when the
// reasoning itself says the run is done.
package reasoning

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Step is one link in a reasoning chain.
type Step struct {
	Thought     string  `json:"thought"`
	Observation string  `json:"observation,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// Chain is the linear chain-of-thought record. The chain's final confidence
// is always the confidence of its last step.
type Chain struct {
	Steps []Step `json:"steps"`
}

func (c *Chain) Append(s Step) {
	c.Steps = append(c.Steps, s)
}

func (c *Chain) Len() int {
	return len(c.Steps)
}

// FinalConfidence returns the confidence of the last step, or 0 for an
// empty chain.
func (c *Chain) FinalConfidence() float64 {
	if len(c.Steps) == 0 {
		return 0
	}
	return c.Steps[len(c.Steps)-1].Confidence
}

// Render serializes the chain as a compact numbered list for prompt
// injection.
func (c *Chain) Render() string {
	if len(c.Steps) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Reasoning so far:\n")
	for i, s := range c.Steps {
		fmt.Fprintf(&b, "%d. %s (confidence %.2f)\n", i+1, s.Thought, s.Confidence)
		if s.Observation != "" {
			fmt.Fprintf(&b, "   observed: %s\n", s.Observation)
		}
	}
	return b.String()
}

// Node is one state in a reasoning tree. The tree is acyclic, the root has
// depth 0, and a node never has more children than the configured branching
// factor.
type Node struct {
	ID       string  `json:"id"`
	State    string  `json:"state"`
	Score    float64 `json:"score"`
	Depth    int     `json:"depth"`
	Children []*Node `json:"children,omitempty"`
}

func newNode(state string, score float64, depth int) *Node {
	return &Node{
		ID:    uuid.NewString(),
		State: state,
		Score: score,
		Depth: depth,
	}
}

// Tree is the tree-of-thoughts record.
type Tree struct {
	Root *Node `json:"root,omitempty"`
}

// BestLeaf returns the highest-scored leaf, or nil for an empty tree. Ties
// go to the first leaf found in depth-first order, which is deterministic
// for a given tree.
func (t *Tree) BestLeaf() *Node {
	if t.Root == nil {
		return nil
	}
	var best *Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if len(n.Children) == 0 {
			if best == nil || n.Score > best.Score {
				best = n
			}
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return best
}

// Size returns the number of nodes in the tree.
func (t *Tree) Size() int {
	if t.Root == nil {
		return 0
	}
	n := 0
	var walk func(node *Node)
	walk = func(node *Node) {
		n++
		for _, c := range node.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return n
}

// find returns the node with the given ID, or nil.
func (t *Tree) find(id string) *Node {
	if t.Root == nil {
		return nil
	}
	var found *Node
	var walk func(n *Node)
	walk = func(n *Node) {
		if found != nil {
			return
		}
		if n.ID == id {
			found = n
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
	return found
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
