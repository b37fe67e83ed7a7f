package core

import (
	"testing"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

func TestTrackerObserve(t *testing.T) {
	tracker := &Tracker{}
	a := np.TrackEnvelope{TrackID: "a"}
	b := np.TrackEnvelope{TrackID: "b"}

	steps := []struct {
		track   np.TrackEnvelope
		playing bool
		commit  bool
		want    Change
	}{
		{a, true, false, Changed},
		{a, true, true, Changed},
		{a, true, false, Unchanged},
		{b, true, true, Changed},
		{np.TrackEnvelope{}, false, false, NothingPlaying},
		{b, true, true, Changed},
		{np.TrackEnvelope{}, true, false, NothingPlaying},
	}
	for i, step := range steps {
		got := tracker.Observe(step.track, step.playing)
		if got != step.want {
			t.Fatalf("step %d: expected %s got %s", i, step.want, got)
		}
		if step.commit {
			tracker.Commit(step.track.TrackID)
		}
	}
	if tracker.Last() != "" {
		t.Fatalf("expected reset, got %q", tracker.Last())
	}
}
