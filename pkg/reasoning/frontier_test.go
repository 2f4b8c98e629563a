package reasoning

import (
	"reflect"
	"testing"

	"github.com/quillworks/quill/pkg/config"
)

func pushAll(f frontier, nodes ...*Node) {
	for _, n := range nodes {
		f.push(n)
	}
}

func popStates(f frontier) []string {
	var out []string
	for n := f.pop(); n != nil; n = f.pop() {
		out = append(out, n.State)
	}
	return out
}

func TestScoreFrontier_PopsHighestFirst(t *testing.T) {
	f := newFrontier(config.ExploreBestFirst, 0)
	pushAll(f,
		newNode("mid", 0.5, 1),
		newNode("best", 0.9, 1),
		newNode("worst", 0.1, 1),
	)

	want := []string{"best", "mid", "worst"}
	if got := popStates(f); !reflect.DeepEqual(got, want) {
		t.Errorf("pop order = %v, want %v", got, want)
	}
}

func TestScoreFrontier_IDsInPopOrder(t *testing.T) {
	f := newFrontier(config.ExploreBestFirst, 0)
	a := newNode("a", 0.3, 1)
	b := newNode("b", 0.8, 1)
	pushAll(f, a, b)

	want := []string{b.ID, a.ID}
	if got := f.ids(); !reflect.DeepEqual(got, want) {
		t.Errorf("ids() = %v, want %v", got, want)
	}
	if f.len() != 2 {
		t.Errorf("ids() should not consume, len = %d", f.len())
	}
}

func TestLifoFrontier(t *testing.T) {
	f := newFrontier(config.ExploreDepthFirst, 0)
	a := newNode("a", 0.9, 1)
	b := newNode("b", 0.1, 2)
	pushAll(f, a, b)

	if got := f.ids(); !reflect.DeepEqual(got, []string{b.ID, a.ID}) {
		t.Errorf("ids() = %v", got)
	}

	want := []string{"b", "a"}
	if got := popStates(f); !reflect.DeepEqual(got, want) {
		t.Errorf("pop order = %v, want %v (depth first ignores score)", got, want)
	}
}

func TestBeamFrontier_SettleTrims(t *testing.T) {
	f := &beamFrontier{width: 2}
	pushAll(f,
		newNode("c", 0.3, 1),
		newNode("a", 0.9, 1),
		newNode("b", 0.6, 1),
		newNode("d", 0.1, 1),
	)

	f.settle()

	if f.len() != 2 {
		t.Fatalf("len after settle = %d, want beam width 2", f.len())
	}
	want := []string{"a", "b"}
	if got := popStates(f); !reflect.DeepEqual(got, want) {
		t.Errorf("beam kept %v, want %v", got, want)
	}
}

func TestFrontier_EmptyPop(t *testing.T) {
	for _, strategy := range []config.ExplorationStrategy{
		config.ExploreBestFirst, config.ExploreDepthFirst, config.ExploreBeamSearch,
	} {
		f := newFrontier(strategy, 2)
		if f.pop() != nil {
			t.Errorf("%s: pop on empty frontier should return nil", strategy)
		}
	}
}
