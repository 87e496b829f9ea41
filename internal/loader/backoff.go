package loader

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// DefaultBackoffInitial is the delay before the first retry of a
	// failed load.
	DefaultBackoffInitial = 5 * time.Second

	// DefaultBackoffMax caps the retry delay regardless of how many
	// attempts have failed.
	DefaultBackoffMax = 10 * time.Minute

	// maxBackoffExponent bounds the exponential term so the nanosecond
	// conversion stays inside int64.
	maxBackoffExponent = 33
)

// jitter is the shared random source behind retry backoff and refresh
// scheduling. math/rand/v2 sources are not safe for concurrent use, so
// draws are serialized; the source is injectable for deterministic tests.
type jitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newJitter(src rand.Source) *jitter {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &jitter{rng: rand.New(src)}
}

// int64n returns a uniform draw from [0, n).
func (j *jitter) int64n(n int64) int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.Int64N(n)
}

// nextRetryDelay computes the delay before the next load attempt of an
// object that has failed errorCount consecutive retries:
//
//	min(max, initial + uniform(0, 2^errorCount seconds))
//
// The exponential term keeps a persistently broken source from being
// hammered; the random term spreads retries of independently broken
// objects apart so they do not all fire in the same pass.
func (j *jitter) nextRetryDelay(errorCount int, initial, maxDelay time.Duration) time.Duration {
	exp := errorCount
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	delay := initial + time.Duration(j.int64n(int64(1)<<uint(exp)*int64(time.Second)))
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// nextUpdateAt computes the scheduled refresh time for an object with the
// given lifetime window. A window with max < min is due immediately
// (the zero time is in the past for every clock); otherwise the time is
// drawn uniformly from [now+min, now+max] so objects sharing a definition
// file do not all refresh in the same pass.
func (j *jitter) nextUpdateAt(now time.Time, lt Lifetime) time.Time {
	if lt.Max < lt.Min {
		return time.Time{}
	}
	span := int64(lt.Max-lt.Min) + 1
	return now.Add(lt.Min + time.Duration(j.int64n(span)))
}
