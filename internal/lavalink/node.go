package lavalink

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hyeonsong/aria/internal/observe"
)

const (
	clientName       = "aria/1.0"
	reconnectBackoff = 5 * time.Second
)

// Events receives the node's player events. The player manager satisfies
// this directly.
type Events interface {
	OnTrackStart(ctx context.Context, guildID string)
	OnTrackEnd(ctx context.Context, guildID string, mayStartNext bool)
	OnPlayerUpdate(guildID string, position time.Duration)
}

// Node maintains the websocket session to a Lavalink node, reconnecting
// with a fixed backoff until the context ends. Incoming events are
// dispatched to the Events sink; the session id is fed back into the REST
// client so player control calls can address the session.
type Node struct {
	cfg     Config
	client  *Client
	events  Events
	metrics *observe.Metrics

	mu        sync.Mutex
	connected bool
}

// NewNode creates the websocket half of the node connection. metrics may be
// nil.
func NewNode(cfg Config, client *Client, events Events, metrics *observe.Metrics) *Node {
	return &Node{cfg: cfg, client: client, events: events, metrics: metrics}
}

// Connected reports whether the websocket session is currently up.
func (n *Node) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

func (n *Node) setConnected(up bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected = up
}

func (n *Node) wsURL() string {
	scheme := "ws"
	if n.cfg.Secure {
		scheme = "wss"
	}
	return scheme + "://" + n.cfg.Address + "/v4/websocket"
}

// Run dials the node and processes events until ctx is cancelled,
// redialling after connection loss.
func (n *Node) Run(ctx context.Context) error {
	for {
		if err := n.runOnce(ctx); err != nil {
			slog.Warn("audio node session ended", "address", n.cfg.Address, "err", err)
			n.recordEvent(ctx, "disconnected")
		}
		n.setConnected(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectBackoff):
		}
		slog.Info("reconnecting to audio node", "address", n.cfg.Address)
	}
}

func (n *Node) runOnce(ctx context.Context) error {
	headers := http.Header{}
	headers.Set("Authorization", n.cfg.Password)
	headers.Set("User-Id", n.cfg.UserID)
	headers.Set("Client-Name", clientName)

	conn, _, err := websocket.Dial(ctx, n.wsURL(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")

	// Player events can carry large payloads on busy nodes.
	conn.SetReadLimit(1 << 20)

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		n.handleMessage(ctx, msg)
	}
}

// message is the tagged union every node payload shares.
type message struct {
	Op        string `json:"op"`
	SessionID string `json:"sessionId"`
	GuildID   string `json:"guildId"`

	// playerUpdate
	State struct {
		Position  int64 `json:"position"`
		Connected bool  `json:"connected"`
	} `json:"state"`

	// event
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Code   int    `json:"code"`
}

func (n *Node) handleMessage(ctx context.Context, raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("undecodable audio node payload", "err", err)
		return
	}

	switch msg.Op {
	case "ready":
		n.client.setSessionID(msg.SessionID)
		n.setConnected(true)
		slog.Info("audio node session ready", "address", n.cfg.Address, "session_id", msg.SessionID)
		n.recordEvent(ctx, "ready")

	case "playerUpdate":
		n.events.OnPlayerUpdate(msg.GuildID, time.Duration(msg.State.Position)*time.Millisecond)

	case "event":
		n.handleEvent(ctx, msg)

	case "stats":
		// Periodic node statistics; nothing to act on.
	}
}

func (n *Node) handleEvent(ctx context.Context, msg message) {
	switch msg.Type {
	case "TrackStartEvent":
		n.events.OnTrackStart(ctx, msg.GuildID)

	case "TrackEndEvent":
		n.events.OnTrackEnd(ctx, msg.GuildID, mayStartNext(msg.Reason))

	case "TrackExceptionEvent":
		slog.Error("track playback failed", "guild_id", msg.GuildID)
		n.recordEvent(ctx, "track_exception")

	case "TrackStuckEvent":
		slog.Warn("track playback stuck", "guild_id", msg.GuildID)
		n.recordEvent(ctx, "track_stuck")

	case "WebSocketClosedEvent":
		slog.Warn("node voice connection closed", "guild_id", msg.GuildID, "code", msg.Code)
		n.recordEvent(ctx, "voice_closed")
	}
}

// mayStartNext reports whether a track-end reason permits starting the next
// queued track. Replaced and stopped ends were caused by an explicit
// control call that already decided what happens next; cleanup means the
// player is being torn down.
func mayStartNext(reason string) bool {
	switch reason {
	case "finished", "loadFailed":
		return true
	default:
		return false
	}
}

func (n *Node) recordEvent(ctx context.Context, event string) {
	if n.metrics != nil {
		n.metrics.RecordNodeEvent(ctx, event)
	}
}
