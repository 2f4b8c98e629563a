package metrics

import (
	"math/rand"
	"sort"
)

const reservoirSize = 1000

// reservoir keeps a bounded uniform sample of observed values so
// percentiles stay cheap regardless of run length. Standard Vitter
// algorithm R. Callers hold the collector mutex.
type reservoir struct {
	samples []float64
	seen    int64
}

func newReservoir(capacity int) *reservoir {
	return &reservoir{samples: make([]float64, 0, capacity)}
}

func (r *reservoir) add(v float64) {
	r.seen++
	if len(r.samples) < cap(r.samples) {
		r.samples = append(r.samples, v)
		return
	}
	if i := rand.Int63n(r.seen); i < int64(len(r.samples)) {
		r.samples[i] = v
	}
}

// percentile returns the value at quantile q in [0,1], or 0 with no samples.
func (r *reservoir) percentile(q float64) float64 {
	if len(r.samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(r.samples))
	copy(sorted, r.samples)
	sort.Float64s(sorted)

	idx := int(q * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
