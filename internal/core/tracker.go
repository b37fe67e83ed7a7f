package core

import (
	"sync"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

// Change classifies a now-playing observation.
type Change int

const (
	// NothingPlaying means no item is playing; the last track is forgotten.
	NothingPlaying Change = iota
	// Unchanged means the same track is still playing.
	Unchanged
	// Changed means a new track started, or playback resumed after nothing.
	Changed
)

func (c Change) String() string {
	switch c {
	case NothingPlaying:
		return "nothing_playing"
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// Tracker remembers the last announced track id.
type Tracker struct {
	mu   sync.Mutex
	last string
}

// Observe compares a now-playing observation with the last announced track.
// A changed track is not remembered until Commit is called for it.
func (t *Tracker) Observe(track np.TrackEnvelope, playing bool) Change {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !playing || track.TrackID == "" {
		t.last = ""
		return NothingPlaying
	}
	if track.TrackID == t.last {
		return Unchanged
	}
	return Changed
}

// Commit records trackID as announced.
func (t *Tracker) Commit(trackID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = trackID
}

// Last returns the last announced track id.
func (t *Tracker) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
