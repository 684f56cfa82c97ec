package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// RollCounters tracks evaluation outcomes. All methods are safe for
// concurrent use; the zero value is not, use NewRollCounters.
type RollCounters struct {
	evaluations int64
	failures    int64
	diceRolled  int64
	bonusDice   int64
	discarded   int64
	startTime   time.Time

	// recent totals, a circular buffer
	mu        sync.RWMutex
	recent    []int
	next      int
	maxRecent int
}

func NewRollCounters(maxRecent int) *RollCounters {
	if maxRecent <= 0 {
		maxRecent = 100
	}
	return &RollCounters{
		recent:    make([]int, 0, maxRecent),
		maxRecent: maxRecent,
		startTime: time.Now(),
	}
}

// RollStats is a point-in-time copy of the counters.
type RollStats struct {
	Evaluations    int64     `json:"evaluations"`
	Failures       int64     `json:"failures"`
	DiceRolled     int64     `json:"dice_rolled"`
	BonusDice      int64     `json:"bonus_dice"`
	DiscardedDice  int64     `json:"discarded_dice"`
	EvaluationRate float64   `json:"evaluation_rate"` // per second
	Timestamp      time.Time `json:"timestamp"`
}

// RecordRoll counts one successful evaluation.
func (c *RollCounters) RecordRoll(total, rolled, bonus, discarded int) {
	atomic.AddInt64(&c.evaluations, 1)
	atomic.AddInt64(&c.diceRolled, int64(rolled))
	atomic.AddInt64(&c.bonusDice, int64(bonus))
	atomic.AddInt64(&c.discarded, int64(discarded))

	c.mu.Lock()
	if len(c.recent) < c.maxRecent {
		c.recent = append(c.recent, total)
	} else {
		c.recent[c.next] = total
	}
	c.next = (c.next + 1) % c.maxRecent
	c.mu.Unlock()
}

func (c *RollCounters) RecordFailure() {
	atomic.AddInt64(&c.failures, 1)
}

func (c *RollCounters) GetStats() RollStats {
	stats := RollStats{
		Evaluations:   atomic.LoadInt64(&c.evaluations),
		Failures:      atomic.LoadInt64(&c.failures),
		DiceRolled:    atomic.LoadInt64(&c.diceRolled),
		BonusDice:     atomic.LoadInt64(&c.bonusDice),
		DiscardedDice: atomic.LoadInt64(&c.discarded),
		Timestamp:     time.Now(),
	}
	c.mu.RLock()
	uptime := time.Since(c.startTime)
	c.mu.RUnlock()
	if uptime > 0 {
		stats.EvaluationRate = float64(stats.Evaluations) / uptime.Seconds()
	}
	return stats
}

// Recent returns the most recent totals, oldest first.
func (c *RollCounters) Recent() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]int, 0, len(c.recent))
	if len(c.recent) < c.maxRecent {
		return append(out, c.recent...)
	}
	out = append(out, c.recent[c.next:]...)
	return append(out, c.recent[:c.next]...)
}

// Reset clears all counters (useful for testing)
func (c *RollCounters) Reset() {
	atomic.StoreInt64(&c.evaluations, 0)
	atomic.StoreInt64(&c.failures, 0)
	atomic.StoreInt64(&c.diceRolled, 0)
	atomic.StoreInt64(&c.bonusDice, 0)
	atomic.StoreInt64(&c.discarded, 0)

	c.mu.Lock()
	c.recent = c.recent[:0]
	c.next = 0
	c.startTime = time.Now()
	c.mu.Unlock()
}

type RuntimeStats struct {
	HeapAlloc    uint64    `json:"heap_alloc"`
	NumGC        uint32    `json:"num_gc"`
	NumGoroutine int       `json:"num_goroutine"`
	Timestamp    time.Time `json:"timestamp"`
}

// ReadRuntime samples the Go runtime. It stops the world briefly.
func ReadRuntime() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeStats{
		HeapAlloc:    m.HeapAlloc,
		NumGC:        m.NumGC,
		NumGoroutine: runtime.NumGoroutine(),
		Timestamp:    time.Now(),
	}
}
