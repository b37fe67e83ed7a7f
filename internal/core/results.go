package core

import "github.com/mikey-austin/nowplaying/pkg/np"

// NodesResult holds a list of presence records.
type NodesResult struct {
	Nodes []np.Presence
}

// PlayCountResult is the outcome of a play-count query.
type PlayCountResult struct {
	TrackID string
	Count   int
}

// TempoResult is the outcome of a tempo query.
type TempoResult struct {
	TrackID string
	BPM     int
	Speed   string
}

// AnnounceResult reports a broadcast and the queries that followed it.
// Each query fails independently; its error is kept alongside the others.
type AnnounceResult struct {
	Track        np.TrackEnvelope
	PlayCount    PlayCountResult
	PlayCountErr error
	Tempo        TempoResult
	TempoErr     error
}

// NowResult is the outcome of one now-playing check.
type NowResult struct {
	Change   Change
	Track    np.TrackEnvelope
	Announce *AnnounceResult
}

// TopResult holds ranked artist names.
type TopResult struct {
	Artists []string
}

// HistoryResult holds logged envelopes, oldest first.
type HistoryResult struct {
	Entries []np.TrackEnvelope
}

// PlaylistListResult holds playlist summaries.
type PlaylistListResult struct {
	Playlists []np.Playlist
}

// PlaylistAddResult reports a track added to a playlist.
type PlaylistAddResult struct {
	Track    np.TrackEnvelope
	Playlist np.Playlist
}
