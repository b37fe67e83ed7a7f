package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeBus struct {
	mu         sync.Mutex
	handlers   map[string]ports.MessageHandler
	published  []published
	publishErr error
	onPublish  func(topic string, payload []byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: map[string]ports.MessageHandler{}}
}

func (b *fakeBus) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	b.published = append(b.published, published{topic: topic, qos: qos, retained: retained, payload: payload})
	hook := b.onPublish
	b.mu.Unlock()
	if hook != nil {
		hook(topic, payload)
	}
	return nil
}

func (b *fakeBus) Subscribe(topic string, _ byte, handler ports.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBus) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

func (b *fakeBus) deliver(topic string, payload []byte) {
	b.mu.Lock()
	handler := b.handlers[topic]
	b.mu.Unlock()
	if handler != nil {
		handler(topic, payload)
	}
}

func TestPublishCommandReceivesReply(t *testing.T) {
	bus := newFakeBus()
	client, err := NewClient(bus, Options{ClientID: "np-test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	bus.onPublish = func(topic string, payload []byte) {
		var cmd np.CommandEnvelope
		if err := json.Unmarshal(payload, &cmd); err != nil {
			t.Errorf("decode command: %v", err)
			return
		}
		reply, _ := json.Marshal(np.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, Body: json.RawMessage("3")})
		go bus.deliver(cmd.ReplyTo, reply)
	}

	cmd, _ := np.NewCommand(np.CmdPlayCountGet, np.TrackQueryBody{TrackID: "abc"})
	cmd.ID = "req-1"
	reply, err := client.PublishCommand(context.Background(), np.NodePlayCount, cmd)
	if err != nil {
		t.Fatalf("publish command: %v", err)
	}
	if string(reply.Body) != "3" {
		t.Fatalf("unexpected body %s", reply.Body)
	}
	if bus.published[0].topic != "np/v1/node/playcount/cmd" {
		t.Fatalf("unexpected topic %s", bus.published[0].topic)
	}
}

func TestPublishCommandTimeout(t *testing.T) {
	bus := newFakeBus()
	client, err := NewClient(bus, Options{ClientID: "np-test", Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cmd := np.CommandEnvelope{ID: "req-1", Type: np.CmdTempoGet}
	_, err = client.PublishCommand(context.Background(), np.NodeTempo, cmd)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestPublishCommandContextDeadline(t *testing.T) {
	bus := newFakeBus()
	client, err := NewClient(bus, Options{ClientID: "np-test", Timeout: time.Minute})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.PublishCommand(ctx, np.NodeTempo, np.CommandEnvelope{ID: "req-1"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestPublishCommandTransportError(t *testing.T) {
	bus := newFakeBus()
	client, err := NewClient(bus, Options{ClientID: "np-test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	bus.publishErr = errors.New("not connected")
	_, err = client.PublishCommand(context.Background(), np.NodeTempo, np.CommandEnvelope{ID: "req-1"})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestBroadcastIsFireAndForget(t *testing.T) {
	bus := newFakeBus()
	client, err := NewClient(bus, Options{ClientID: "np-test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Broadcast(np.TrackEnvelope{TrackID: "abc", Title: "T"}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	msg := bus.published[0]
	if msg.topic != "np/v1/evt/nowplaying" || msg.qos != 0 || msg.retained {
		t.Fatalf("unexpected publish %+v", msg)
	}
	if !strings.Contains(string(msg.payload), `"track_id":"abc"`) {
		t.Fatalf("unexpected payload %s", msg.payload)
	}
}

func TestStrayRepliesIgnored(t *testing.T) {
	bus := newFakeBus()
	client, err := NewClient(bus, Options{ClientID: "np-test"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	bus.deliver(client.ReplyTopic(), []byte("not json"))
	bus.deliver(client.ReplyTopic(), []byte(`{"id":"unknown","ok":true}`))
}
