// Package lavalink implements a client for the Lavalink v4 audio node: a
// REST surface for track loading and player control, and a websocket
// session that delivers player events. The REST client implements
// player.Backend.
package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hyeonsong/aria/internal/player"
)

const defaultRequestTimeout = 10 * time.Second

// Config describes one Lavalink node.
type Config struct {
	// Address is the node's host:port.
	Address  string
	Password string
	Secure   bool

	// UserID is our bot user id, sent during the websocket handshake.
	UserID string
}

// Client is the REST half of the node connection. Player control calls
// require the websocket session to be established first, since Lavalink
// scopes players to a session id.
type Client struct {
	cfg  Config
	http *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewClient creates a REST client for the node described by cfg.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// ErrNoSession is returned for player control calls made before the
// websocket session handed us a session id.
var ErrNoSession = errors.New("lavalink: no active session")

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

func (c *Client) currentSessionID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return "", ErrNoSession
	}
	return c.sessionID, nil
}

func (c *Client) baseURL() string {
	scheme := "http"
	if c.cfg.Secure {
		scheme = "https"
	}
	return scheme + "://" + c.cfg.Address
}

// apiTrack is the node's wire representation of a track.
type apiTrack struct {
	Encoded string `json:"encoded"`
	Info    struct {
		Identifier string `json:"identifier"`
		Author     string `json:"author"`
		Length     int64  `json:"length"`
		Title      string `json:"title"`
		URI        string `json:"uri"`
		SourceName string `json:"sourceName"`
	} `json:"info"`
}

func (t apiTrack) toTrack() player.Track {
	return player.Track{
		Encoded:    t.Encoded,
		Identifier: t.Info.Identifier,
		Title:      t.Info.Title,
		Author:     t.Info.Author,
		Source:     t.Info.SourceName,
		URI:        t.Info.URI,
		Duration:   time.Duration(t.Info.Length) * time.Millisecond,
	}
}

// loadResponse is the /v4/loadtracks envelope. Data's shape depends on
// LoadType, so it stays raw until the type is known.
type loadResponse struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info struct {
		Name string `json:"name"`
	} `json:"info"`
	Tracks []apiTrack `json:"tracks"`
}

type exceptionData struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// Resolve loads tracks for identifier via /v4/loadtracks and maps the
// node's taxonomy onto player.LoadResult.
func (c *Client) Resolve(ctx context.Context, identifier string) (player.LoadResult, error) {
	u := c.baseURL() + "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return player.LoadResult{}, fmt.Errorf("lavalink: build loadtracks request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return player.LoadResult{}, fmt.Errorf("lavalink: loadtracks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return player.LoadResult{}, fmt.Errorf("lavalink: loadtracks: unexpected status %d", resp.StatusCode)
	}

	var env loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return player.LoadResult{}, fmt.Errorf("lavalink: decode loadtracks response: %w", err)
	}

	switch env.LoadType {
	case "track":
		var t apiTrack
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return player.LoadResult{}, fmt.Errorf("lavalink: decode track: %w", err)
		}
		return player.LoadResult{Type: player.LoadTrack, Tracks: []player.Track{t.toTrack()}}, nil

	case "playlist":
		var pl playlistData
		if err := json.Unmarshal(env.Data, &pl); err != nil {
			return player.LoadResult{}, fmt.Errorf("lavalink: decode playlist: %w", err)
		}
		tracks := make([]player.Track, 0, len(pl.Tracks))
		for _, t := range pl.Tracks {
			tracks = append(tracks, t.toTrack())
		}
		return player.LoadResult{Type: player.LoadPlaylist, Tracks: tracks, PlaylistName: pl.Info.Name}, nil

	case "search":
		var ts []apiTrack
		if err := json.Unmarshal(env.Data, &ts); err != nil {
			return player.LoadResult{}, fmt.Errorf("lavalink: decode search results: %w", err)
		}
		tracks := make([]player.Track, 0, len(ts))
		for _, t := range ts {
			tracks = append(tracks, t.toTrack())
		}
		return player.LoadResult{Type: player.LoadSearch, Tracks: tracks}, nil

	case "empty":
		return player.LoadResult{Type: player.LoadEmpty}, nil

	case "error":
		var exc exceptionData
		if err := json.Unmarshal(env.Data, &exc); err != nil {
			return player.LoadResult{Type: player.LoadError, Err: errors.New("lavalink: load failed")}, nil
		}
		return player.LoadResult{
			Type: player.LoadError,
			Err:  fmt.Errorf("lavalink: load failed (%s): %s", exc.Severity, exc.Message),
		}, nil

	default:
		return player.LoadResult{}, fmt.Errorf("lavalink: unknown load type %q", env.LoadType)
	}
}

// playerUpdateBody is a PATCH body for /v4/sessions/{session}/players/{guild}.
// Pointer fields are omitted when unset so each call only touches the
// properties it names.
type playerUpdateBody struct {
	Track  *trackRef   `json:"track,omitempty"`
	Volume *int        `json:"volume,omitempty"`
	Paused *bool       `json:"paused,omitempty"`
	Voice  *VoiceState `json:"voice,omitempty"`
}

// trackRef references a track by its encoded token. A nil Encoded clears
// the player's current track.
type trackRef struct {
	Encoded *string `json:"encoded"`
}

// VoiceState carries the platform's voice server credentials to the node.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

func (c *Client) updatePlayer(ctx context.Context, guildID string, body playerUpdateBody) error {
	sessionID, err := c.currentSessionID()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("lavalink: encode player update: %w", err)
	}

	u := fmt.Sprintf("%s/v4/sessions/%s/players/%s?noReplace=false", c.baseURL(), sessionID, guildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("lavalink: build player update request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.Password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lavalink: player update: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lavalink: player update: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Play starts track on the guild's node player. A volume of zero leaves the
// node's current volume untouched.
func (c *Client) Play(ctx context.Context, guildID string, track player.Track, volume int) error {
	body := playerUpdateBody{Track: &trackRef{Encoded: &track.Encoded}}
	if volume > 0 {
		body.Volume = &volume
	}
	return c.updatePlayer(ctx, guildID, body)
}

// Stop clears the guild player's current track.
func (c *Client) Stop(ctx context.Context, guildID string) error {
	return c.updatePlayer(ctx, guildID, playerUpdateBody{Track: &trackRef{}})
}

// SetPause toggles the guild player's pause flag.
func (c *Client) SetPause(ctx context.Context, guildID string, paused bool) error {
	return c.updatePlayer(ctx, guildID, playerUpdateBody{Paused: &paused})
}

// SetVolume applies a volume to the guild player.
func (c *Client) SetVolume(ctx context.Context, guildID string, volume int) error {
	return c.updatePlayer(ctx, guildID, playerUpdateBody{Volume: &volume})
}

// UpdateVoice forwards the platform's voice server credentials so the node
// can open its own voice connection for the guild.
func (c *Client) UpdateVoice(ctx context.Context, guildID string, voice VoiceState) error {
	return c.updatePlayer(ctx, guildID, playerUpdateBody{Voice: &voice})
}

// Destroy releases the guild's node player. Destroying a player the node
// does not know is not an error.
func (c *Client) Destroy(ctx context.Context, guildID string) error {
	sessionID, err := c.currentSessionID()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			// Nothing node-side to destroy without a session.
			return nil
		}
		return err
	}

	u := fmt.Sprintf("%s/v4/sessions/%s/players/%s", c.baseURL(), sessionID, guildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("lavalink: build destroy request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("lavalink: destroy player: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("lavalink: destroy player: unexpected status %d", resp.StatusCode)
	}
}

var _ player.Backend = (*Client)(nil)
