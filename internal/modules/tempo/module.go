package tempo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/metrics"
	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// Config configures the tempo service.
type Config struct {
	NodeID    string
	TopicBase string
	QueueSize int
}

// Module answers tempo queries and compares each answer with the previous
// one it gave. The comparison follows query order within this instance and
// is reset on restart.
type Module struct {
	log      *zap.Logger
	bus      ports.Bus
	tracker  *Tracker
	config   Config
	cmdTopic string
}

// NewModule creates the tempo service. A nil tracker starts with no prior
// tempo.
func NewModule(log *zap.Logger, bus ports.Bus, tracker *Tracker, cfg Config) (*Module, error) {
	if bus == nil {
		return nil, errors.New("bus required")
	}
	if tracker == nil {
		tracker = &Tracker{}
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		cfg.NodeID = np.NodeTempo
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = np.BaseTopic
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}

	return &Module{
		log:      log,
		bus:      bus,
		tracker:  tracker,
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
	m.log.Info("tempo service listening", zap.String("topic", m.cmdTopic))

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
		Kind:   "tempo",
		Name:   "Tempo Service",
		Caps: map[string]any{
			"commands": []string{np.CmdTempoGet},
			"minBpm":   MinBPM,
			"maxBpm":   MaxBPM,
		},
		TS: time.Now().Unix(),
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
	metrics.ObserveQuery(np.NodeTempo, reply.OK, started)
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
	case np.CmdTempoGet:
		return m.tempo(cmd, reply)
	default:
		return errorReply(cmd, np.CodeInvalid, "unsupported command")
	}
}

func (m *Module) tempo(cmd np.CommandEnvelope, reply np.ReplyEnvelope) np.ReplyEnvelope {
	var body np.TrackQueryBody
	if len(cmd.Body) > 0 {
		_ = json.Unmarshal(cmd.Body, &body)
	}
	trackID := body.TrackID
	if trackID == "" {
		return errorReply(cmd, np.CodeInvalid, "no track_id provided")
	}

	bpm, speed := m.tracker.Next(trackID)
	m.log.Info("tempo", zap.String("track_id", trackID), zap.Int("bpm", bpm), zap.String("speed", speed))

	payload, _ := json.Marshal(np.TempoReply{BPM: bpm, Speed: speed})
	reply.Body = payload
	return reply
}

func errorReply(cmd np.CommandEnvelope, code string, message string) np.ReplyEnvelope {
	body, _ := json.Marshal(np.TempoReply{Error: message})
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
