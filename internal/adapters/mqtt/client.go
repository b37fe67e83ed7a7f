package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// ErrTimeout is returned when a command round trip exceeds its deadline.
var ErrTimeout = ports.ErrTimeout

// TransportError reports a failure to hand a message to the broker.
type TransportError = ports.TransportError

// Options configures the controller client.
type Options struct {
	ClientID  string
	TopicBase string
	Timeout   time.Duration
}

// Client is the controller side of the protocol, implementing the Broker port.
type Client struct {
	bus        ports.Bus
	replyTopic string
	topicBase  string
	timeout    time.Duration

	mu            sync.Mutex
	replyHandlers map[string]chan np.ReplyEnvelope
}

// NewClient subscribes to the client's reply topic on bus.
func NewClient(bus ports.Bus, opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = np.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.ClientID == "" {
		return nil, errors.New("client id required")
	}

	c := &Client{
		bus:           bus,
		replyTopic:    np.TopicReply(opts.TopicBase, opts.ClientID),
		topicBase:     opts.TopicBase,
		timeout:       opts.Timeout,
		replyHandlers: map[string]chan np.ReplyEnvelope{},
	}
	if err := bus.Subscribe(c.replyTopic, 1, c.handleReply); err != nil {
		return nil, &TransportError{Op: "subscribe reply topic", Err: err}
	}
	return c, nil
}

// ReplyTopic returns the topic used for replies.
func (c *Client) ReplyTopic() string {
	return c.replyTopic
}

// Broadcast publishes a track envelope on the now-playing topic. Delivery is
// at most once and nothing is retained, so subscribers that are not yet
// connected miss it.
func (c *Client) Broadcast(env np.TrackEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.bus.Publish(np.TopicEvents(c.topicBase), 0, false, payload); err != nil {
		return &TransportError{Op: "broadcast", Err: err}
	}
	return nil
}

// PublishCommand publishes a command and waits for its reply, the context
// deadline or the client timeout, whichever comes first.
func (c *Client) PublishCommand(ctx context.Context, nodeID string, cmd np.CommandEnvelope) (np.ReplyEnvelope, error) {
	if cmd.ReplyTo == "" {
		cmd.ReplyTo = c.replyTopic
	}
	req, err := json.Marshal(cmd)
	if err != nil {
		return np.ReplyEnvelope{}, fmt.Errorf("marshal command: %w", err)
	}

	replyCh := make(chan np.ReplyEnvelope, 1)
	c.mu.Lock()
	c.replyHandlers[cmd.ID] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.replyHandlers, cmd.ID)
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	topic := np.TopicCommands(c.topicBase, nodeID)
	if err := c.bus.Publish(topic, 1, false, req); err != nil {
		return np.ReplyEnvelope{}, &TransportError{Op: "publish command", Err: err}
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return np.ReplyEnvelope{}, ErrTimeout
		}
		return np.ReplyEnvelope{}, ctx.Err()
	case reply := <-replyCh:
		return reply, nil
	case <-timer.C:
		return np.ReplyEnvelope{}, ErrTimeout
	}
}

// ListPresence collects retained presence messages.
func (c *Client) ListPresence(ctx context.Context) ([]np.Presence, error) {
	collect := make(map[string]np.Presence)
	muLock := sync.Mutex{}

	handler := func(_ string, payload []byte) {
		var presence np.Presence
		if err := json.Unmarshal(payload, &presence); err != nil {
			return
		}
		muLock.Lock()
		collect[presence.NodeID] = presence
		muLock.Unlock()
	}

	topic := fmt.Sprintf("%s/node/+/presence", c.topicBase)
	if err := c.bus.Subscribe(topic, 1, handler); err != nil {
		return nil, &TransportError{Op: "subscribe presence", Err: err}
	}
	defer func() {
		_ = c.bus.Unsubscribe(topic)
	}()

	wait := time.NewTimer(250 * time.Millisecond)
	select {
	case <-ctx.Done():
		wait.Stop()
	case <-wait.C:
	}

	muLock.Lock()
	defer muLock.Unlock()
	out := make([]np.Presence, 0, len(collect))
	for _, presence := range collect {
		out = append(out, presence)
	}
	return out, nil
}

func (c *Client) handleReply(_ string, payload []byte) {
	var reply np.ReplyEnvelope
	if err := json.Unmarshal(payload, &reply); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.replyHandlers[reply.ID]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- reply:
	default:
	}
}
