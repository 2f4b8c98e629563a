package reasoning

import (
	"container/heap"
	"sort"

	"github.com/quillworks/quill/pkg/config"
)

// frontier hands out the next node to expand. Implementations differ only
// in ordering; all of them operate on node IDs so the frontier survives a
// snapshot/restore round trip.
type frontier interface {
	push(n *Node)
	// pop returns the next node to expand, or nil when the frontier is
	// drained.
	pop() *Node
	len() int
	// ids returns the remaining node IDs in pop order, for persistence.
	ids() []string
}

func newFrontier(strategy config.ExplorationStrategy, beamWidth int) frontier {
	switch strategy {
	case config.ExploreBeamSearch:
		return &beamFrontier{width: beamWidth}
	case config.ExploreDepthFirst:
		return &lifoFrontier{}
	default:
		f := &scoreFrontier{}
		heap.Init(&f.h)
		return f
	}
}

// scoreFrontier pops the highest-scored node first.
type scoreFrontier struct {
	h nodeHeap
}

func (f *scoreFrontier) push(n *Node) { heap.Push(&f.h, n) }

func (f *scoreFrontier) pop() *Node {
	if f.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&f.h).(*Node)
}

func (f *scoreFrontier) len() int { return f.h.Len() }

func (f *scoreFrontier) ids() []string {
	sorted := make([]*Node, len(f.h))
	copy(sorted, f.h)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	out := make([]string, len(sorted))
	for i, n := range sorted {
		out[i] = n.ID
	}
	return out
}

type nodeHeap []*Node

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].Score > h[j].Score }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)         { *h = append(*h, x.(*Node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// lifoFrontier pops the most recently pushed node first.
type lifoFrontier struct {
	stack []*Node
}

func (f *lifoFrontier) push(n *Node) { f.stack = append(f.stack, n) }

func (f *lifoFrontier) pop() *Node {
	if len(f.stack) == 0 {
		return nil
	}
	n := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return n
}

func (f *lifoFrontier) len() int { return len(f.stack) }

func (f *lifoFrontier) ids() []string {
	out := make([]string, 0, len(f.stack))
	for i := len(f.stack) - 1; i >= 0; i-- {
		out = append(out, f.stack[i].ID)
	}
	return out
}

// beamFrontier keeps only the top width nodes of each pushed generation.
// Trimming happens on push batches via settle, called by the tree strategy
// after expanding a depth level.
type beamFrontier struct {
	width int
	nodes []*Node
}

func (f *beamFrontier) push(n *Node) {
	f.nodes = append(f.nodes, n)
}

// settle sorts by descending score and trims to the beam width.
func (f *beamFrontier) settle() {
	sort.SliceStable(f.nodes, func(i, j int) bool { return f.nodes[i].Score > f.nodes[j].Score })
	if len(f.nodes) > f.width {
		f.nodes = f.nodes[:f.width]
	}
}

func (f *beamFrontier) pop() *Node {
	if len(f.nodes) == 0 {
		return nil
	}
	n := f.nodes[0]
	f.nodes = f.nodes[1:]
	return n
}

func (f *beamFrontier) len() int { return len(f.nodes) }

func (f *beamFrontier) ids() []string {
	out := make([]string, len(f.nodes))
	for i, n := range f.nodes {
		out[i] = n.ID
	}
	return out
}
