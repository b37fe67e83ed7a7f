package playcount

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/history"
	"github.com/mikey-austin/nowplaying/internal/metrics"
	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// Config configures the play-count service.
type Config struct {
	NodeID      string
	TopicBase   string
	HistoryPath string
	QueueSize   int
}

// Module answers "how many times has this track been logged". Every request
// is a full scan of the history store; there is no index.
type Module struct {
	log      *zap.Logger
	bus      ports.Bus
	store    *history.Store
	config   Config
	cmdTopic string
}

// NewModule creates the play-count service.
func NewModule(log *zap.Logger, bus ports.Bus, cfg Config) (*Module, error) {
	if bus == nil {
		return nil, errors.New("bus required")
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		cfg.NodeID = np.NodePlayCount
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = np.BaseTopic
	}
	if strings.TrimSpace(cfg.HistoryPath) == "" {
		cfg.HistoryPath = history.DefaultPath
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	store, err := history.NewStore(cfg.HistoryPath)
	if err != nil {
		return nil, err
	}

	return &Module{
		log:      log,
		bus:      bus,
		store:    store,
		config:   cfg,
		cmdTopic: np.TopicCommands(cfg.TopicBase, cfg.NodeID),
	}, nil
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
	m.log.Info("playcount service listening", zap.String("topic", m.cmdTopic), zap.String("path", m.store.Path()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-inbox:
			m.handleMessage(payload)
		}
	}
}

func (m *Module) publishPresence() error {
	presence := np.Presence{
		NodeID: m.config.NodeID,
		Kind:   "playcount",
		Name:   "Play Count Service",
		Caps:   map[string]any{"commands": []string{np.CmdPlayCountGet}},
		TS:     time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.bus.Publish(np.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) handleMessage(payload []byte) {
	var cmd np.CommandEnvelope
	if err := json.Unmarshal(payload, &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}

	started := time.Now()
	reply := m.dispatch(cmd)
	metrics.ObserveQuery(np.NodePlayCount, reply.OK, started)
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

func (m *Module) dispatch(cmd np.CommandEnvelope) np.ReplyEnvelope {
	reply := np.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "ack",
		OK:   true,
		TS:   time.Now().Unix(),
	}

	switch cmd.Type {
	case np.CmdPlayCountGet:
		return m.playCount(cmd, reply)
	default:
		return errorReply(cmd, np.CodeInvalid, "unsupported command")
	}
}

func (m *Module) playCount(cmd np.CommandEnvelope, reply np.ReplyEnvelope) np.ReplyEnvelope {
	var body np.TrackQueryBody
	if len(cmd.Body) > 0 {
		// an undecodable body is treated like a missing track id
		_ = json.Unmarshal(cmd.Body, &body)
	}
	trackID := body.TrackID
	if trackID == "" {
		out := errorReply(cmd, np.CodeInvalid, "track_id required")
		out.Body = json.RawMessage(strconv.Itoa(np.PlayCountMissing))
		return out
	}

	count, err := m.store.Count(trackID)
	if err != nil {
		m.log.Warn("history unreadable, counting zero", zap.String("path", m.store.Path()), zap.Error(err))
		count = 0
	}
	m.log.Info("play count", zap.String("track_id", trackID), zap.Int("count", count))

	reply.Body = json.RawMessage(strconv.Itoa(count))
	return reply
}

func errorReply(cmd np.CommandEnvelope, code string, message string) np.ReplyEnvelope {
	return np.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Err: &np.ReplyError{
			Code:    code,
			Message: message,
		},
	}
}
