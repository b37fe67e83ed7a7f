package core

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/mikey-austin/nowplaying/internal/ports"
	"github.com/mikey-austin/nowplaying/pkg/np"
)

// DefaultTopLimit is used when no limit is given to TopArtists.
const DefaultTopLimit = 10

// Service orchestrates np CLI use cases.
type Service struct {
	Broker       ports.Broker
	Clock        ports.Clock
	IDGen        ports.IDGen
	NowPlaying   ports.NowPlayingSource
	Playlists    ports.PlaylistSource
	HistoryStore ports.HistoryReader
	Config       Config
}

// ListNodes returns presence entries, optionally filtered by kind.
func (s Service) ListNodes(ctx context.Context, kind string) (NodesResult, error) {
	nodes, err := s.Broker.ListPresence(ctx)
	if err != nil {
		return NodesResult{}, roundTripError("list nodes", err)
	}
	if kind != "" {
		filtered := nodes[:0]
		for _, node := range nodes {
			if node.Kind == kind {
				filtered = append(filtered, node)
			}
		}
		nodes = filtered
	}
	return NodesResult{Nodes: nodes}, nil
}

// CheckNowPlaying asks the music service what is playing and announces the
// track when it differs from the one last announced. A failed announcement
// leaves the tracker untouched so the next check retries it.
func (s Service) CheckNowPlaying(ctx context.Context, tracker *Tracker) (NowResult, error) {
	if s.NowPlaying == nil {
		return NowResult{}, &CLIError{Code: ExitUsage, Msg: "no now-playing source configured"}
	}
	track, playing, err := s.NowPlaying.CurrentTrack(ctx)
	if err != nil {
		return NowResult{}, WrapError(ExitUnavailable, "current track", err)
	}
	change := tracker.Observe(track, playing)
	result := NowResult{Change: change, Track: track}
	if change != Changed {
		return result, nil
	}
	announced, err := s.Announce(ctx, track)
	if err != nil {
		return result, err
	}
	tracker.Commit(track.TrackID)
	result.Announce = &announced
	return result, nil
}

// Announce broadcasts a track and then queries the play-count and tempo
// services in order. The broadcast is not acknowledged; the settle delay only
// gives the history logger a head start before the count is read.
func (s Service) Announce(ctx context.Context, track np.TrackEnvelope) (AnnounceResult, error) {
	if track.TrackID == "" {
		return AnnounceResult{}, &CLIError{Code: ExitUsage, Msg: "track id required"}
	}
	if err := s.Broker.Broadcast(track); err != nil {
		return AnnounceResult{}, roundTripError("broadcast", err)
	}
	if s.Config.Settle > 0 {
		if err := s.Clock.Wait(ctx, s.Config.Settle); err != nil {
			return AnnounceResult{}, WrapError(ExitRuntime, "settle", err)
		}
	}

	result := AnnounceResult{Track: track}
	result.PlayCount, result.PlayCountErr = s.PlayCount(ctx, track.TrackID)
	result.Tempo, result.TempoErr = s.Tempo(ctx, track.TrackID)
	return result, nil
}

// PlayCount asks the play-count service how often a track was logged.
func (s Service) PlayCount(ctx context.Context, trackID string) (PlayCountResult, error) {
	reply, err := s.request(ctx, s.nodes().PlayCount, np.CmdPlayCountGet, np.TrackQueryBody{TrackID: trackID})
	if err != nil {
		return PlayCountResult{}, err
	}
	if reply.Err != nil {
		return PlayCountResult{TrackID: trackID, Count: np.PlayCountMissing}, ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	count, err := np.ParsePlayCount(reply.Body)
	if err != nil {
		return PlayCountResult{}, WrapError(ExitRuntime, "invalid response from the play-count service", err)
	}
	return PlayCountResult{TrackID: trackID, Count: count}, nil
}

// Tempo asks the tempo service for a track's tempo and its comparison to the
// previous track that service answered for.
func (s Service) Tempo(ctx context.Context, trackID string) (TempoResult, error) {
	reply, err := s.request(ctx, s.nodes().Tempo, np.CmdTempoGet, np.TrackQueryBody{TrackID: trackID})
	if err != nil {
		return TempoResult{}, err
	}
	if reply.Err != nil {
		return TempoResult{}, ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	var body np.TempoReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		return TempoResult{}, WrapError(ExitRuntime, "invalid response from the tempo service", err)
	}
	if body.BPM == 0 || body.Speed == "" {
		return TempoResult{}, &CLIError{Code: ExitRuntime, Msg: "invalid response from the tempo service"}
	}
	return TempoResult{TrackID: trackID, BPM: body.BPM, Speed: body.Speed}, nil
}

// TopArtists asks the top-items service for the user's top artists. limit is
// passed through as JSON when it parses as JSON and as a string otherwise, so
// validation stays with the service.
func (s Service) TopArtists(ctx context.Context, limit string) (TopResult, error) {
	limit = strings.TrimSpace(limit)
	if limit == "" {
		limit = strconv.Itoa(DefaultTopLimit)
	}
	raw := json.RawMessage(limit)
	if !json.Valid(raw) {
		quoted, err := json.Marshal(limit)
		if err != nil {
			return TopResult{}, WrapError(ExitUsage, "invalid limit", err)
		}
		raw = quoted
	}

	reply, err := s.request(ctx, s.nodes().TopItems, np.CmdTopArtists, np.TopArtistsBody{Limit: raw})
	if err != nil {
		return TopResult{}, err
	}
	if reply.Err != nil {
		return TopResult{}, ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	var body np.TopArtistsReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		return TopResult{}, WrapError(ExitRuntime, "invalid response from the top-items service", err)
	}
	if body.Error != "" {
		return TopResult{}, &CLIError{Code: ExitRuntime, Msg: body.Error}
	}
	if body.Artists == nil {
		body.Artists = []string{}
	}
	return TopResult{Artists: body.Artists}, nil
}

// History returns the last n logged envelopes; n <= 0 returns all of them.
func (s Service) History(n int) (HistoryResult, error) {
	if s.HistoryStore == nil {
		return HistoryResult{}, &CLIError{Code: ExitUsage, Msg: "no history store configured"}
	}
	entries, err := s.HistoryStore.Tail(n)
	if err != nil {
		return HistoryResult{}, WrapError(ExitRuntime, "read history", err)
	}
	return HistoryResult{Entries: entries}, nil
}

// ListPlaylists returns the user's playlists.
func (s Service) ListPlaylists(ctx context.Context) (PlaylistListResult, error) {
	if s.Playlists == nil {
		return PlaylistListResult{}, &CLIError{Code: ExitUsage, Msg: "no playlist source configured"}
	}
	playlists, err := s.Playlists.Playlists(ctx)
	if err != nil {
		return PlaylistListResult{}, WrapError(ExitUnavailable, "list playlists", err)
	}
	return PlaylistListResult{Playlists: playlists}, nil
}

// AddCurrentToPlaylist adds the playing track to a playlist chosen by its
// 1-based position in ListPlaylists or by id.
func (s Service) AddCurrentToPlaylist(ctx context.Context, selector string) (PlaylistAddResult, error) {
	if s.NowPlaying == nil {
		return PlaylistAddResult{}, &CLIError{Code: ExitUsage, Msg: "no now-playing source configured"}
	}
	track, playing, err := s.NowPlaying.CurrentTrack(ctx)
	if err != nil {
		return PlaylistAddResult{}, WrapError(ExitUnavailable, "current track", err)
	}
	if !playing {
		return PlaylistAddResult{}, &CLIError{Code: ExitNotFound, Msg: "no track is currently playing"}
	}

	listed, err := s.ListPlaylists(ctx)
	if err != nil {
		return PlaylistAddResult{}, err
	}
	if len(listed.Playlists) == 0 {
		return PlaylistAddResult{}, &CLIError{Code: ExitNotFound, Msg: "no playlists found"}
	}
	playlist, err := selectPlaylist(listed.Playlists, selector)
	if err != nil {
		return PlaylistAddResult{}, err
	}
	if err := s.Playlists.AddToPlaylist(ctx, playlist.ID, track.TrackID); err != nil {
		return PlaylistAddResult{}, WrapError(ExitUnavailable, "add track to playlist", err)
	}
	return PlaylistAddResult{Track: track, Playlist: playlist}, nil
}

func selectPlaylist(playlists []np.Playlist, selector string) (np.Playlist, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return np.Playlist{}, &CLIError{Code: ExitUsage, Msg: "playlist selector required"}
	}
	if idx, err := strconv.Atoi(selector); err == nil {
		if idx < 1 || idx > len(playlists) {
			return np.Playlist{}, &CLIError{Code: ExitUsage, Msg: "invalid selection"}
		}
		return playlists[idx-1], nil
	}
	for _, playlist := range playlists {
		if playlist.ID == selector {
			return playlist, nil
		}
	}
	return np.Playlist{}, &CLIError{Code: ExitNotFound, Msg: "playlist not found: " + selector}
}

func (s Service) request(ctx context.Context, nodeID string, cmdType string, body any) (np.ReplyEnvelope, error) {
	cmd, err := np.NewCommand(cmdType, body)
	if err != nil {
		return np.ReplyEnvelope{}, WrapError(ExitRuntime, "build command", err)
	}
	cmd = s.decorateCommand(cmd)
	reply, err := s.Broker.PublishCommand(ctx, nodeID, cmd)
	if err != nil {
		return np.ReplyEnvelope{}, roundTripError(cmdType, err)
	}
	if !reply.OK && reply.Err == nil {
		return np.ReplyEnvelope{}, WrapError(ExitRuntime, cmdType, errors.New("reply not ok"))
	}
	return reply, nil
}

func (s Service) decorateCommand(cmd np.CommandEnvelope) np.CommandEnvelope {
	cmd.ID = s.IDGen.NewID()
	cmd.TS = s.Clock.NowUnix()
	cmd.From = s.Config.Identity
	cmd.ReplyTo = s.Broker.ReplyTopic()
	return cmd
}

func (s Service) nodes() Nodes {
	return s.Config.Nodes.withDefaults()
}
