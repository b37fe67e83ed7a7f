package np

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// PlayCountMissing is the play-count reply for a request without a track id.
const PlayCountMissing = -1

// Tempo comparison descriptors.
const (
	SpeedFaster = "faster than"
	SpeedSlower = "slower than"
	SpeedSame   = "the same as"
	SpeedNA     = "N/A"
)

// Top-items limit bounds.
const (
	TopMinLimit = 1
	TopMaxLimit = 20
)

// TrackQueryBody is the request body for playcount.get and tempo.get.
type TrackQueryBody struct {
	TrackID string `json:"track_id"`
}

// TempoReply is the body of a tempo.get reply.
type TempoReply struct {
	BPM   int    `json:"bpm,omitempty"`
	Speed string `json:"speed,omitempty"`
	Error string `json:"error,omitempty"`
}

// TopArtistsBody is the request body for top.artists. Limit is kept raw so
// the service can reject non-integral values.
type TopArtistsBody struct {
	Limit json.RawMessage `json:"limit,omitempty"`
}

// ErrorBody is the body of a failed top.artists reply.
type ErrorBody struct {
	Error string `json:"error"`
}

// TopArtistsReply is the body of a top.artists reply. Successful replies
// always carry the artists key; Error is only set when decoding an ErrorBody.
type TopArtistsReply struct {
	Artists []string `json:"artists"`
	Error   string   `json:"error,omitempty"`
}

// Playlist is a playlist summary from the external music service.
type Playlist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParsePlayCount decodes a play-count reply body: a plain integer, or
// PlayCountMissing when the request carried no track id.
func ParsePlayCount(body json.RawMessage) (int, error) {
	count, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil || count < PlayCountMissing {
		return 0, errors.New("invalid play count reply")
	}
	return count, nil
}
