// Package spotify is a minimal Web API client covering the calls nowplaying
// needs: the currently playing item, top artists and playlist management.
// It only speaks bearer tokens; obtaining one is left to the caller.
package spotify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/mikey-austin/nowplaying/pkg/np"
)

const (
	// DefaultBaseURL is the public Web API endpoint.
	DefaultBaseURL = "https://api.spotify.com"
	// PlaylistPageSize is the number of playlists fetched per listing.
	PlaylistPageSize = 50
)

// ErrNoToken is returned when no access token is configured.
var ErrNoToken = errors.New("spotify access token not configured")

// APIError is a non-2xx response from the Web API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("spotify error: %d %s", e.Status, e.Message)
}

// Config configures the client.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	// RequestsPerSecond bounds outbound calls; zero means unlimited.
	RequestsPerSecond float64
	Burst             int
}

// Client talks to the Spotify Web API.
type Client struct {
	config  Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a client. The token may be empty; calls then fail with ErrNoToken.
func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		config:  cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

type apiArtist struct {
	Name string `json:"name"`
}

type apiTrack struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Artists []apiArtist `json:"artists"`
	Album   struct {
		Name string `json:"name"`
	} `json:"album"`
}

type currentlyPlaying struct {
	Item *apiTrack `json:"item"`
}

type topArtists struct {
	Items []apiArtist `json:"items"`
}

type playlistPage struct {
	Items []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"items"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CurrentTrack returns the item playing right now. The boolean is false
// when nothing is playing, including non-track items such as ads.
func (c *Client) CurrentTrack(ctx context.Context) (np.TrackEnvelope, bool, error) {
	var out currentlyPlaying
	status, err := c.doJSON(ctx, http.MethodGet, "/v1/me/player/currently-playing", nil, nil, &out)
	if err != nil {
		return np.TrackEnvelope{}, false, err
	}
	if status == http.StatusNoContent || out.Item == nil || out.Item.ID == "" {
		return np.TrackEnvelope{}, false, nil
	}
	names := make([]string, 0, len(out.Item.Artists))
	for _, artist := range out.Item.Artists {
		names = append(names, artist.Name)
	}
	return np.TrackEnvelope{
		TrackID: out.Item.ID,
		Title:   out.Item.Name,
		Artist:  strings.Join(names, ", "),
		Album:   out.Item.Album.Name,
	}, true, nil
}

// TopArtists returns the names of the user's top artists, most listened first.
func (c *Client) TopArtists(ctx context.Context, limit int, timeRange string) ([]string, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if timeRange != "" {
		params.Set("time_range", timeRange)
	}
	var out topArtists
	if _, err := c.doJSON(ctx, http.MethodGet, "/v1/me/top/artists", params, nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		names = append(names, item.Name)
	}
	return names, nil
}

// Playlists lists the first page of the user's playlists.
func (c *Client) Playlists(ctx context.Context) ([]np.Playlist, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(PlaylistPageSize))
	var out playlistPage
	if _, err := c.doJSON(ctx, http.MethodGet, "/v1/me/playlists", params, nil, &out); err != nil {
		return nil, err
	}
	playlists := make([]np.Playlist, 0, len(out.Items))
	for _, item := range out.Items {
		playlists = append(playlists, np.Playlist{ID: item.ID, Name: item.Name})
	}
	return playlists, nil
}

// AddToPlaylist appends one track to a playlist.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID string, trackID string) error {
	if playlistID == "" || trackID == "" {
		return errors.New("playlist id and track id required")
	}
	body := map[string][]string{"uris": {"spotify:track:" + trackID}}
	_, err := c.doJSON(ctx, http.MethodPost, "/v1/playlists/"+url.PathEscape(playlistID)+"/tracks", nil, body, nil)
	return err
}

func (c *Client) doJSON(ctx context.Context, method string, endpoint string, params url.Values, body any, out any) (int, error) {
	if strings.TrimSpace(c.config.AccessToken) == "" {
		return 0, ErrNoToken
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	endpointURL := c.config.BaseURL + endpoint
	if len(params) > 0 {
		endpointURL += "?" + params.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpointURL, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded apiErrorBody
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(data, &decoded) == nil {
				apiErr.Message = decoded.Error.Message
			}
		}
		return resp.StatusCode, apiErr
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return resp.StatusCode, nil
		}
		return resp.StatusCode, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return resp.StatusCode, nil
}
