package historylogger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/nowplaying/internal/history"
	"github.com/mikey-austin/nowplaying/internal/metrics"
	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// Config configures the history logger.
type Config struct {
	NodeID      string
	TopicBase   string
	HistoryPath string
	QueueSize   int
}

// Module subscribes to the now-playing broadcast and appends every envelope
// to the history store.
type Module struct {
	log      *zap.Logger
	bus      ports.Bus
	store    *history.Store
	config   Config
	evtTopic string
}

// NewModule creates a history logger.
func NewModule(log *zap.Logger, bus ports.Bus, cfg Config) (*Module, error) {
	if bus == nil {
		return nil, errors.New("bus required")
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		cfg.NodeID = np.NodeHistoryLogger
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = np.BaseTopic
	}
	if strings.TrimSpace(cfg.HistoryPath) == "" {
		cfg.HistoryPath = history.DefaultPath
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
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
		evtTopic: np.TopicEvents(cfg.TopicBase),
	}, nil
}

// Run subscribes and logs envelopes until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	inbox := make(chan []byte, m.config.QueueSize)
	handler := func(_ string, payload []byte) {
		select {
		case inbox <- payload:
		case <-ctx.Done():
		}
	}

	if err := m.bus.Subscribe(m.evtTopic, 0, handler); err != nil {
		return err
	}
	defer m.bus.Unsubscribe(m.evtTopic)

	if err := m.publishPresence(); err != nil {
		return err
	}
	m.log.Info("history logger subscribed", zap.String("topic", m.evtTopic), zap.String("path", m.store.Path()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-inbox:
			m.handlePayload(payload)
		}
	}
}

func (m *Module) publishPresence() error {
	presence := np.Presence{
		NodeID: m.config.NodeID,
		Kind:   "logger",
		Name:   "History Logger",
		Caps:   map[string]any{"path": m.store.Path()},
		TS:     time.Now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.bus.Publish(np.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

// handlePayload never fails the loop: undecodable payloads are skipped and
// write errors are reported.
func (m *Module) handlePayload(payload []byte) {
	var env np.TrackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		metrics.HistoryDecodeErrors.Inc()
		m.log.Warn("invalid envelope", zap.Error(err))
		return
	}
	if env.TrackID == "" {
		metrics.HistoryDecodeErrors.Inc()
		m.log.Warn("envelope without track_id")
		return
	}
	m.log.Debug("envelope received", zap.String("track_id", env.TrackID), zap.String("title", env.Title))

	if err := m.store.Append(env); err != nil {
		metrics.HistoryAppends.WithLabelValues("error").Inc()
		m.log.Error("append history", zap.String("track_id", env.TrackID), zap.Error(err))
		return
	}
	metrics.HistoryAppends.WithLabelValues("ok").Inc()
	m.log.Info("logged play", zap.String("track_id", env.TrackID), zap.String("title", env.Title), zap.String("artist", env.Artist))
}
