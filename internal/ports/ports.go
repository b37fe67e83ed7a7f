package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

// ErrTimeout is returned when a command round trip exceeds its deadline.
var ErrTimeout = errors.New("timeout waiting for reply")

// TransportError reports a failure to hand a message to the broker.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// MessageHandler receives a message delivered on a subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Bus is the publish/subscribe transport shared by every process.
type Bus interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Broker broadcasts envelopes and runs command round trips.
type Broker interface {
	Broadcast(env np.TrackEnvelope) error
	PublishCommand(ctx context.Context, nodeID string, cmd np.CommandEnvelope) (np.ReplyEnvelope, error)
	ListPresence(ctx context.Context) ([]np.Presence, error)
	ReplyTopic() string
}

// NowPlayingSource looks up the currently playing item. ok is false when
// nothing is playing.
type NowPlayingSource interface {
	CurrentTrack(ctx context.Context) (track np.TrackEnvelope, ok bool, err error)
}

// TopSource returns ranked artist names.
type TopSource interface {
	TopArtists(ctx context.Context, limit int, timeRange string) ([]string, error)
}

// PlaylistSource lists playlists and adds tracks to them.
type PlaylistSource interface {
	Playlists(ctx context.Context) ([]np.Playlist, error)
	AddToPlaylist(ctx context.Context, playlistID string, trackID string) error
}

// Clock returns the current unix time in seconds and waits for durations.
type Clock interface {
	NowUnix() int64
	Wait(ctx context.Context, d time.Duration) error
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}

// HistoryReader reads back logged envelopes, oldest first.
type HistoryReader interface {
	Tail(n int) ([]np.TrackEnvelope, error)
}
