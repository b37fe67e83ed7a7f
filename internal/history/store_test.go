package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.log"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestNewStoreRequiresPath(t *testing.T) {
	if _, err := NewStore(" "); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)
	count, err := store.Count("abc")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatalf("scan must not create the file")
	}
}

func TestAppendAndCount(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"abc", "def", "abc"} {
		if err := store.Append(np.TrackEnvelope{TrackID: id, Title: "T", Artist: "A", Album: "Alb"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tests := []struct {
		trackID string
		want    int
	}{
		{"abc", 2},
		{"def", 1},
		{"zzz", 0},
	}
	for _, test := range tests {
		got, err := store.Count(test.trackID)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if got != test.want {
			t.Fatalf("track %s expected %d got %d", test.trackID, test.want, got)
		}
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := `{"track_id":"abc","title":"T","artist":"A","album":"Alb"}` + "\n"
	if string(data[:len(want)]) != want {
		t.Fatalf("unexpected line format %q", data[:len(want)])
	}
}

func TestScanSkipsMalformedAndTornLines(t *testing.T) {
	store := newTestStore(t)
	content := "" +
		`{"track_id":"abc","title":"T"}` + "\n" +
		"not json\n" +
		"\n" +
		`{"track_id":"abc"` + "\n" +
		`{"track_id":"abc","title":"T2"}` + "\n" +
		`{"track_id":"abc","tit`
	if err := os.WriteFile(store.Path(), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	count, err := store.Count("abc")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
}

func TestAppendTerminatesTornTail(t *testing.T) {
	store := newTestStore(t)
	torn := `{"track_id":"abc","title":"T"}` + "\n" + `{"track_id":"ab`
	if err := os.WriteFile(store.Path(), []byte(torn), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Append(np.TrackEnvelope{TrackID: "abc"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	count, err := store.Count("abc")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
}

func TestTail(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 5; i++ {
		if err := store.Append(np.TrackEnvelope{TrackID: fmt.Sprintf("t%d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := store.Tail(2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 2 || entries[0].TrackID != "t3" || entries[1].TrackID != "t4" {
		t.Fatalf("unexpected tail %+v", entries)
	}
	all, err := store.Tail(0)
	if err != nil {
		t.Fatalf("tail all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(all))
	}
}

func TestConcurrentAppendAndScan(t *testing.T) {
	store := newTestStore(t)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if err := store.Append(np.TrackEnvelope{TrackID: "abc", Title: fmt.Sprintf("take %d", i)}); err != nil {
				t.Errorf("append: %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		last := 0
		for i := 0; i < 50; i++ {
			count, err := store.Count("abc")
			if err != nil {
				t.Errorf("count: %v", err)
				return
			}
			if count < last || count > n {
				t.Errorf("count went from %d to %d", last, count)
				return
			}
			last = count
		}
	}()
	wg.Wait()

	count, err := store.Count("abc")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != n {
		t.Fatalf("expected %d, got %d", n, count)
	}

	malformed := 0
	if err := store.Scan(func(env np.TrackEnvelope) bool {
		if env.TrackID != "abc" {
			malformed++
		}
		return true
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if malformed != 0 {
		t.Fatalf("found %d foreign records", malformed)
	}
}
