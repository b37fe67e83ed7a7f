package tempo

import (
	"fmt"
	"testing"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

func TestBPMDeterministicAndInRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("track-%d", i)
		first := BPM(id)
		if first < MinBPM || first > MaxBPM {
			t.Fatalf("bpm %d out of range for %s", first, id)
		}
		for j := 0; j < 3; j++ {
			if again := BPM(id); again != first {
				t.Fatalf("bpm for %s changed from %d to %d", id, first, again)
			}
		}
	}
}

func TestBPMSpreadsAcrossRange(t *testing.T) {
	seen := map[int]bool{}
	for i := 0; i < 2000; i++ {
		seen[BPM(fmt.Sprintf("id-%d", i))] = true
	}
	if len(seen) < 40 {
		t.Fatalf("expected most of the range to be used, saw %d values", len(seen))
	}
}

func TestFreshTrackersAgree(t *testing.T) {
	a := &Tracker{}
	b := &Tracker{}
	bpmA, speedA := a.Next("4uLU6hMCjMI75M1A2tKUQC")
	bpmB, speedB := b.Next("4uLU6hMCjMI75M1A2tKUQC")
	if bpmA != bpmB {
		t.Fatalf("fresh trackers disagree: %d vs %d", bpmA, bpmB)
	}
	if speedA != np.SpeedNA || speedB != np.SpeedNA {
		t.Fatalf("first reply must have no prior value")
	}
}

func TestTrackerComparisonFollowsQueryOrder(t *testing.T) {
	tracker := &Tracker{}
	ids := []string{"a", "b", "c", "a", "a", "d", "e", "b"}

	prev := 0
	for i, id := range ids {
		bpm, speed := tracker.Next(id)
		if i == 0 {
			if speed != np.SpeedNA {
				t.Fatalf("expected N/A first, got %s", speed)
			}
		} else if want := Compare(prev, bpm); speed != want {
			t.Fatalf("query %d: expected %q got %q", i, want, speed)
		}
		prev = bpm
		last, ok := tracker.Last()
		if !ok || last != bpm {
			t.Fatalf("baseline not updated after query %d", i)
		}
	}
}

func TestRepeatedTrackIsSame(t *testing.T) {
	tracker := &Tracker{}
	tracker.Next("abc")
	_, speed := tracker.Next("abc")
	if speed != np.SpeedSame {
		t.Fatalf("expected same, got %s", speed)
	}
}

func TestTrackerWithControlledPriorState(t *testing.T) {
	bpm := BPM("abc")

	_, speed := NewTrackerWithLast(MinBPM - 1).Next("abc")
	if speed != np.SpeedFaster {
		t.Fatalf("expected faster than a lower baseline, got %s", speed)
	}
	_, speed = NewTrackerWithLast(MaxBPM + 1).Next("abc")
	if speed != np.SpeedSlower {
		t.Fatalf("expected slower than a higher baseline, got %s", speed)
	}
	_, speed = NewTrackerWithLast(bpm).Next("abc")
	if speed != np.SpeedSame {
		t.Fatalf("expected same as an equal baseline, got %s", speed)
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		prev, cur int
		want      string
	}{
		{100, 120, np.SpeedFaster},
		{120, 100, np.SpeedSlower},
		{90, 90, np.SpeedSame},
	}
	for _, test := range tests {
		if got := Compare(test.prev, test.cur); got != test.want {
			t.Fatalf("Compare(%d, %d) = %q, want %q", test.prev, test.cur, got, test.want)
		}
	}
}
