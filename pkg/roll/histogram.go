package roll

import (
	"cmp"
	"slices"
)

// Bucket is one row of a Histogram. AtLeast is the fraction of samples
// whose score was Total or higher.
type Bucket struct {
	Total   int     `json:"total" yaml:"total"`
	Count   int     `json:"count" yaml:"count"`
	AtLeast float64 `json:"at_least" yaml:"at_least"`
}

// Histogram tallies sampled scores, ascending by total.
type Histogram struct {
	Samples int      `json:"samples" yaml:"samples"`
	Buckets []Bucket `json:"buckets" yaml:"buckets"`
}

func NewHistogram(totals []int) *Histogram {
	counts := make(map[int]int)
	for _, t := range totals {
		counts[t]++
	}
	return fromCounts(counts, len(totals))
}

// Merge combines histograms sampled from the same expression.
func Merge(parts ...*Histogram) *Histogram {
	counts := make(map[int]int)
	samples := 0
	for _, p := range parts {
		if p == nil {
			continue
		}
		for _, b := range p.Buckets {
			counts[b.Total] += b.Count
		}
		samples += p.Samples
	}
	return fromCounts(counts, samples)
}

func fromCounts(counts map[int]int, samples int) *Histogram {
	h := &Histogram{Samples: samples, Buckets: make([]Bucket, 0, len(counts))}
	for total, count := range counts {
		h.Buckets = append(h.Buckets, Bucket{Total: total, Count: count})
	}
	slices.SortFunc(h.Buckets, func(a, b Bucket) int { return cmp.Compare(a.Total, b.Total) })

	atLeast := 0
	for i := len(h.Buckets) - 1; i >= 0; i-- {
		atLeast += h.Buckets[i].Count
		h.Buckets[i].AtLeast = float64(atLeast) / float64(samples)
	}
	return h
}

func (h *Histogram) Mean() float64 {
	if h.Samples == 0 {
		return 0
	}
	sum := 0
	for _, b := range h.Buckets {
		sum += b.Total * b.Count
	}
	return float64(sum) / float64(h.Samples)
}

// MaxCount returns the largest bucket count.
func (h *Histogram) MaxCount() int {
	most := 0
	for _, b := range h.Buckets {
		most = max(most, b.Count)
	}
	return most
}
