package topitems

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/metrics"
	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// DefaultTimeRange is the ranking window passed to the source.
const DefaultTimeRange = "long_term"

// Config configures the top-items service.
type Config struct {
	NodeID    string
	TopicBase string
	TimeRange string
	Timeout   time.Duration
	QueueSize int
	// FailureThreshold is the number of consecutive source failures that
	// opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// Module answers top-artist queries from an external ranked source.
type Module struct {
	log      *zap.Logger
	bus      ports.Bus
	source   ports.TopSource
	cb       *gobreaker.CircuitBreaker[[]string]
	config   Config
	cmdTopic string
}

// NewModule creates the top-items service.
func NewModule(log *zap.Logger, bus ports.Bus, source ports.TopSource, cfg Config) (*Module, error) {
	if bus == nil {
		return nil, errors.New("bus required")
	}
	if source == nil {
		return nil, errors.New("top source required")
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		cfg.NodeID = np.NodeTopItems
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = np.BaseTopic
	}
	if strings.TrimSpace(cfg.TimeRange) == "" {
		cfg.TimeRange = DefaultTimeRange
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	m := &Module{
		log:      log,
		bus:      bus,
		source:   source,
		config:   cfg,
		cmdTopic: np.TopicCommands(cfg.TopicBase, cfg.NodeID),
	}
	m.cb = m.newBreaker()
	return m, nil
}

func (m *Module) newBreaker() *gobreaker.CircuitBreaker[[]string] {
	name := "top-items-source"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     m.config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.config.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn("circuit breaker state change", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

// Run serves requests one at a time until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	inbox := make(chan []byte, m.config.QueueSize)
	handler := func(_ string, payload []byte) {
		select {
		case inbox <- payload:
		case <-ctx.Done():
		}
	}

	if err := m.bus.Subscribe(m.cmdTopic, 1, handler); err != nil {
		return err
	}
	defer m.bus.Unsubscribe(m.cmdTopic)

	if err := m.publishPresence(); err != nil {
		return err
	}
	m.log.Info("top items service listening", zap.String("topic", m.cmdTopic), zap.String("time_range", m.config.TimeRange))

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-inbox:
			m.handleMessage(ctx, payload)
		}
	}
}

func (m *Module) publishPresence() error {
	presence := np.Presence{
		NodeID: m.config.NodeID,
		Kind:   "top_items",
		Name:   "Top Artists Service",
		Caps: map[string]any{
			"commands": []string{np.CmdTopArtists},
			"maxLimit": np.TopMaxLimit,
		},
		TS: time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.bus.Publish(np.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) handleMessage(ctx context.Context, payload []byte) {
	var cmd np.CommandEnvelope
	if err := json.Unmarshal(payload, &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}

	started := time.Now()
	reply := m.dispatch(ctx, cmd)
	metrics.ObserveQuery(np.NodeTopItems, reply.OK, started)
	if cmd.ReplyTo == "" {
		return
	}
	out, err := json.Marshal(reply)
	if err != nil {
		m.log.Error("marshal reply", zap.Error(err))
		return
	}
	if err := m.bus.Publish(cmd.ReplyTo, 1, false, out); err != nil {
		m.log.Error("publish reply", zap.Error(err))
	}
}

func (m *Module) dispatch(ctx context.Context, cmd np.CommandEnvelope) np.ReplyEnvelope {
	reply := np.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "ack",
		OK:   true,
		TS:   time.Now().Unix(),
	}

	switch cmd.Type {
	case np.CmdTopArtists:
		return m.topArtists(ctx, cmd, reply)
	default:
		return errorReply(cmd, np.CodeInvalid, "unsupported command")
	}
}

func (m *Module) topArtists(ctx context.Context, cmd np.CommandEnvelope, reply np.ReplyEnvelope) np.ReplyEnvelope {
	var body np.TopArtistsBody
	if len(cmd.Body) > 0 {
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, np.CodeInvalid, "invalid or missing limit field")
		}
	}
	limit, err := ParseLimit(body.Limit)
	if err != nil {
		return errorReply(cmd, np.CodeInvalid, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()
	names, err := m.cb.Execute(func() ([]string, error) {
		return m.source.TopArtists(callCtx, limit, m.config.TimeRange)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			m.log.Warn("top source unavailable", zap.Error(err))
			return errorReply(cmd, np.CodeUnavailable, err.Error())
		}
		m.log.Error("top source failed", zap.Int("limit", limit), zap.Error(err))
		return errorReply(cmd, np.CodeInternal, err.Error())
	}
	if len(names) > limit {
		names = names[:limit]
	}
	if names == nil {
		names = []string{}
	}
	m.log.Info("sent top artists", zap.Int("limit", limit), zap.Int("count", len(names)))

	payload, _ := json.Marshal(np.TopArtistsReply{Artists: names})
	reply.Body = payload
	return reply
}

// ParseLimit validates a raw JSON limit: it must be an integer in
// [np.TopMinLimit, np.TopMaxLimit].
func ParseLimit(raw json.RawMessage) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, errors.New("invalid or missing limit field")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, errors.New("invalid or missing limit field")
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, errors.New("invalid or missing limit field")
	}
	limit, err := num.Int64()
	if err != nil {
		return 0, errors.New("invalid or missing limit field")
	}
	if limit < np.TopMinLimit || limit > np.TopMaxLimit {
		return 0, fmt.Errorf("limit must be between %d and %d", np.TopMinLimit, np.TopMaxLimit)
	}
	return int(limit), nil
}

func errorReply(cmd np.CommandEnvelope, code string, message string) np.ReplyEnvelope {
	body, _ := json.Marshal(np.ErrorBody{Error: message})
	return np.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Body: body,
		Err: &np.ReplyError{
			Code:    code,
			Message: message,
		},
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
