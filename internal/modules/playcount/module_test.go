package playcount

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/history"
	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

type recordingBus struct {
	mu        sync.Mutex
	published map[string][]byte
}

func (b *recordingBus) Publish(topic string, _ byte, _ bool, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = map[string][]byte{}
	}
	b.published[topic] = payload
	return nil
}

func (b *recordingBus) Subscribe(string, byte, ports.MessageHandler) error { return nil }

func (b *recordingBus) Unsubscribe(string) error { return nil }

func newTestModule(t *testing.T, path string) (*Module, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	mod, err := NewModule(zap.NewNop(), bus, Config{HistoryPath: path})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	return mod, bus
}

func mustJSON(v any) []byte {
	payload, _ := json.Marshal(v)
	return payload
}

func query(mod *Module, body any) np.ReplyEnvelope {
	cmd := np.CommandEnvelope{ID: "req", Type: np.CmdPlayCountGet, Body: mustJSON(body)}
	return mod.dispatch(cmd)
}

func TestPlayCountMatchesStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	store, _ := history.NewStore(path)
	for _, id := range []string{"abc", "def", "abc", "abc"} {
		if err := store.Append(np.TrackEnvelope{TrackID: id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	mod, _ := newTestModule(t, path)

	tests := []struct {
		trackID string
		want    string
	}{
		{"abc", "3"},
		{"def", "1"},
		{"nope", "0"},
	}
	for _, test := range tests {
		reply := query(mod, np.TrackQueryBody{TrackID: test.trackID})
		if !reply.OK {
			t.Fatalf("expected ok reply for %s", test.trackID)
		}
		if string(reply.Body) != test.want {
			t.Fatalf("track %s expected %s got %s", test.trackID, test.want, reply.Body)
		}
	}
}

func TestPlayCountMatchesTrackIDExactly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	store, _ := history.NewStore(path)
	for _, id := range []string{"abc", " abc ", "abc"} {
		if err := store.Append(np.TrackEnvelope{TrackID: id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	mod, _ := newTestModule(t, path)

	tests := []struct {
		trackID string
		want    string
	}{
		{"abc", "2"},
		{" abc ", "1"},
		{"abc ", "0"},
		{"   ", "0"},
	}
	for _, test := range tests {
		reply := query(mod, np.TrackQueryBody{TrackID: test.trackID})
		if !reply.OK {
			t.Fatalf("expected ok reply for %q", test.trackID)
		}
		if string(reply.Body) != test.want {
			t.Fatalf("track %q expected %s got %s", test.trackID, test.want, reply.Body)
		}
	}
}

func TestPlayCountMissingStoreIsZero(t *testing.T) {
	mod, _ := newTestModule(t, filepath.Join(t.TempDir(), "absent.log"))
	reply := query(mod, np.TrackQueryBody{TrackID: "abc"})
	if !reply.OK || string(reply.Body) != "0" {
		t.Fatalf("expected zero, got %+v", reply)
	}
}

func TestPlayCountUnreadableStoreIsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.log")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	mod, _ := newTestModule(t, path)
	reply := query(mod, np.TrackQueryBody{TrackID: "abc"})
	if !reply.OK || string(reply.Body) != "0" {
		t.Fatalf("expected zero, got %+v", reply)
	}
}

func TestPlayCountMissingTrackID(t *testing.T) {
	mod, _ := newTestModule(t, filepath.Join(t.TempDir(), "history.log"))

	bodies := []any{
		map[string]any{},
		np.TrackQueryBody{TrackID: ""},
		map[string]any{"track_id": 42},
	}
	for _, body := range bodies {
		reply := query(mod, body)
		if reply.OK {
			t.Fatalf("expected error reply for %v", body)
		}
		if string(reply.Body) != "-1" {
			t.Fatalf("expected -1 sentinel, got %s", reply.Body)
		}
		count, err := np.ParsePlayCount(reply.Body)
		if err != nil || count != np.PlayCountMissing {
			t.Fatalf("sentinel must parse as missing, got %d %v", count, err)
		}
	}
}

func TestHandleMessagePublishesReply(t *testing.T) {
	mod, bus := newTestModule(t, filepath.Join(t.TempDir(), "history.log"))
	cmd := np.CommandEnvelope{ID: "req-7", Type: np.CmdPlayCountGet, ReplyTo: "np/v1/reply/x", Body: mustJSON(np.TrackQueryBody{TrackID: "abc"})}
	mod.handleMessage(mustJSON(cmd))
	mod.handleMessage([]byte("garbage"))

	var reply np.ReplyEnvelope
	if err := json.Unmarshal(bus.published["np/v1/reply/x"], &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.ID != "req-7" || string(reply.Body) != "0" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestUnsupportedCommand(t *testing.T) {
	mod, _ := newTestModule(t, filepath.Join(t.TempDir(), "history.log"))
	reply := mod.dispatch(np.CommandEnvelope{ID: "x", Type: "tempo.get"})
	if reply.OK || reply.Err == nil || reply.Err.Code != np.CodeInvalid {
		t.Fatalf("expected invalid reply, got %+v", reply)
	}
}
