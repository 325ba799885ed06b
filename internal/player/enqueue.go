package player

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// searchPrefix wraps free-text queries for the node's default search
// provider.
const searchPrefix = "ytsearch:"

var urlPattern = regexp.MustCompile(`(?i)^https?://`)

// IsURL reports whether the query, after stripping the chat platform's
// <...> embed suppression, is an absolute URL.
func IsURL(query string) bool {
	return urlPattern.MatchString(strings.Trim(query, "<>"))
}

// EnqueueRequest is one user playback request.
type EnqueueRequest struct {
	Origin Origin
	Query  string
}

// EnqueueResult summarizes what an enqueue did.
type EnqueueResult struct {
	LoadType LoadType

	// Name is the playlist name, or the single track's title.
	Name string

	// Tracks is how many tracks the request appended.
	Tracks int

	// Started reports whether this request started playback (as opposed to
	// appending behind an already-playing track).
	Started bool
}

// Enqueue runs the full playback-request workflow for one guild under that
// guild's lock: resolve the query, ensure the voice session, append the
// resulting tracks, report status back (with an undo control when a track
// is already playing), start playback when idle, and persist history.
//
// Requests for different guilds proceed fully in parallel; requests for the
// same guild serialize in arrival order.
func (m *Manager) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	begin := time.Now()
	o := req.Origin

	lock := m.registry.Lock(o.GuildID)
	lock.Lock()
	defer lock.Unlock()

	st, created := m.registry.GetOrCreate(o.GuildID)

	query := strings.Trim(req.Query, "<>")
	if !urlPattern.MatchString(query) {
		query = searchPrefix + req.Query
	}

	resolveBegin := time.Now()
	result, err := m.backend.Resolve(ctx, query)
	if m.metrics != nil {
		m.metrics.RecordResolve(ctx, time.Since(resolveBegin).Seconds())
	}
	if err != nil {
		result = LoadResult{Type: LoadError, Err: err}
	}
	// Some nodes answer a search or playlist load with a track-less result
	// instead of an empty load type.
	if len(result.Tracks) == 0 && result.Type != LoadEmpty && result.Type != LoadError {
		result = LoadResult{Type: LoadEmpty}
	}

	switch result.Type {
	case LoadEmpty:
		if !st.Playing() && st.QueueLen() == 0 {
			m.releaseEmptyState(ctx, o.GuildID)
		}
		m.notify(ctx, o, "play.not_found", map[string]any{"query": req.Query}, false)
		m.recordRejection(ctx, "not_found")
		return EnqueueResult{LoadType: LoadEmpty}, ErrNotFound

	case LoadError:
		slog.Error("track resolution failed", "guild_id", o.GuildID, "query", req.Query, "err", result.Err)
		m.notify(ctx, o, "play.load_failed", nil, false)
		m.recordRejection(ctx, "load_failed")
		return EnqueueResult{LoadType: LoadError}, ErrLoadFailed
	}

	// The voice session must exist before anything is queued so playback
	// has a destination. Connect is idempotent when already established.
	if err := m.Connect(ctx, o.GuildID, o.VoiceChannelID); err != nil {
		slog.Error("voice connect failed", "guild_id", o.GuildID, "err", err)
		if created {
			m.registry.Remove(o.GuildID)
		}
		m.notify(ctx, o, "play.load_failed", nil, false)
		m.recordRejection(ctx, "connect_failed")
		return EnqueueResult{}, err
	}

	tracks := result.Tracks
	if result.Type != LoadPlaylist && len(tracks) > 1 {
		tracks = tracks[:1]
	}
	for i := range tracks {
		tracks[i].Requester = o.UserID
		tracks[i].Meta = TrackMeta{
			Query:         req.Query,
			InteractionID: o.InteractionID,
			MessageID:     o.MessageID,
			ChannelID:     o.TextChannelID,
			Locale:        o.Locale,
		}
	}

	name := tracks[len(tracks)-1].Title
	if result.Type == LoadPlaylist {
		name = result.PlaylistName
	}

	wasPlaying := st.Playing()
	st.Append(tracks...)

	kind := "track"
	if result.Type == LoadPlaylist {
		kind = "playlist"
	}

	if wasPlaying {
		msgID, err := m.notify(ctx, o, "queue."+kind+"_added", map[string]any{"name": name}, true)
		if err == nil {
			m.openWindow(o, msgID)
		}
	} else {
		m.notify(ctx, o, "play."+kind, map[string]any{"name": name}, false)

		volume := m.resolveVolume(ctx, o.GuildID, o.VoiceChannelID)
		if volume == DefaultVolume {
			volume = 0
		}
		if next, ok := st.PopNext(); ok {
			m.playTrack(ctx, st, next, volume)
		}
	}

	if err := m.store.InsertCommandHistory(ctx, CommandRecord{
		ChannelID:     o.TextChannelID,
		InteractionID: o.InteractionID,
		MessageID:     o.MessageID,
		UserID:        o.UserID,
		Query:         req.Query,
		LoadType:      kind,
		Tracks:        tracks,
	}); err != nil {
		slog.Warn("play command history insert failed", "guild_id", o.GuildID, "err", err)
	}

	if m.metrics != nil {
		m.metrics.RecordEnqueue(ctx, string(result.Type), time.Since(begin).Seconds(), len(tracks))
	}
	return EnqueueResult{
		LoadType: result.Type,
		Name:     name,
		Tracks:   len(tracks),
		Started:  !wasPlaying,
	}, nil
}

// releaseEmptyState tears down a player that never got a first track so no
// orphaned empty state survives a failed request.
func (m *Manager) releaseEmptyState(ctx context.Context, guildID string) {
	m.registry.Remove(guildID)
	if err := m.backend.Destroy(ctx, guildID); err != nil {
		slog.Warn("node player destroy failed", "guild_id", guildID, "err", err)
	}
}

// notify renders key for the origin's locale and delivers it as the status
// message, returning the id of the message that carries it.
func (m *Manager) notify(ctx context.Context, o Origin, key string, params map[string]any, cancelControl bool) (string, error) {
	content := m.translator.Translate(key, o.Locale, params)
	msgID, err := m.platform.Post(ctx, o, content, cancelControl)
	if err != nil {
		slog.Warn("status message post failed", "guild_id", o.GuildID, "key", key, "err", err)
		return "", err
	}
	if msgID == "" {
		msgID = o.MessageID
	}
	return msgID, nil
}

func (m *Manager) recordRejection(ctx context.Context, reason string) {
	if m.metrics != nil {
		m.metrics.RecordRejection(ctx, reason)
	}
}
