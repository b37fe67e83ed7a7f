package tempo

import (
	"hash/fnv"
	"math/rand/v2"
	"sync"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

// Tempo range, inclusive.
const (
	MinBPM = 80
	MaxBPM = 130
)

// BPM derives a synthetic tempo from a track id. The 64-bit FNV-1a hash of
// the id's bytes seeds a PCG generator (math/rand/v2, second seed word 0)
// and one value is drawn with IntN over the inclusive range. The mapping is
// fixed: changing it changes every reported tempo.
func BPM(trackID string) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(trackID))
	r := rand.New(rand.NewPCG(h.Sum64(), 0))
	return MinBPM + r.IntN(MaxBPM-MinBPM+1)
}

// Compare describes cur relative to prev.
func Compare(prev, cur int) string {
	switch {
	case cur > prev:
		return np.SpeedFaster
	case cur < prev:
		return np.SpeedSlower
	default:
		return np.SpeedSame
	}
}

// Tracker holds the last tempo reported by one service instance. The zero
// value has no prior tempo.
type Tracker struct {
	mu   sync.Mutex
	last int
	has  bool
}

// NewTrackerWithLast returns a tracker whose previous report was bpm.
func NewTrackerWithLast(bpm int) *Tracker {
	return &Tracker{last: bpm, has: true}
}

// Next computes the tempo for trackID, compares it with the previous report
// and makes it the new baseline, whatever the comparison outcome.
func (t *Tracker) Next(trackID string) (int, string) {
	bpm := BPM(trackID)

	t.mu.Lock()
	defer t.mu.Unlock()
	speed := np.SpeedNA
	if t.has {
		speed = Compare(t.last, bpm)
	}
	t.last = bpm
	t.has = true
	return bpm, speed
}

// Last returns the previous report, if any.
func (t *Tracker) Last() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.has
}
