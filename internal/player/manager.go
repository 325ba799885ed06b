// Package player implements the per-guild playback orchestration core:
// guild-scoped state and queue, the enqueue workflow, voice-session
// lifecycle driven by presence events, idle auto-disconnect and the
// time-bounded undo-enqueue windows.
//
// The package talks to its collaborators — the audio node, the chat
// platform, persistence and localization — exclusively through the
// interfaces in external.go, so the entire core is testable with the fakes
// in the mock subpackage.
package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hyeonsong/aria/internal/observe"
)

const (
	// DefaultVolume is the node-side default. Volumes equal to it are not
	// forwarded on play.
	DefaultVolume = 100

	// MinRememberedVolume is the lowest volume worth persisting as a
	// per-channel preference; anything below is effectively muted.
	MinRememberedVolume = 10

	// DefaultIdleWindow is how long the bot stays alone in a voice channel
	// before disconnecting.
	DefaultIdleWindow = 5 * time.Minute

	// DefaultWindowTTL is how long an undo-enqueue control stays live.
	DefaultWindowTTL = 60 * time.Second

	// externalCallTimeout bounds platform calls made from background tasks
	// (timers, event handlers) that have no caller-supplied context.
	externalCallTimeout = 10 * time.Second
)

// Config wires a Manager's collaborators and tunables. Backend, Platform,
// Store and Translator are required; zero tunables fall back to defaults.
type Config struct {
	Backend    Backend
	Platform   Platform
	Store      Store
	Translator Translator

	// Metrics is optional; nil disables instrumentation.
	Metrics *observe.Metrics

	MaxVolume  int
	IdleWindow time.Duration
	WindowTTL  time.Duration

	// Timers overrides timer creation, letting tests drive the clock.
	Timers TimerFactory
}

// Manager is the per-guild playback orchestrator. One long-lived instance
// serves every guild; per-guild isolation comes from the registry's states
// and locks.
type Manager struct {
	registry  *Registry
	scheduler *Scheduler

	backend    Backend
	platform   Platform
	store      Store
	translator Translator
	metrics    *observe.Metrics

	maxVolume int
	windowTTL time.Duration
	timers    TimerFactory

	windowMu sync.Mutex
	windows  map[string]*Window
}

// New creates a Manager from cfg.
func New(cfg Config) *Manager {
	if cfg.MaxVolume <= 0 {
		cfg.MaxVolume = DefaultVolume
	}
	if cfg.IdleWindow <= 0 {
		cfg.IdleWindow = DefaultIdleWindow
	}
	if cfg.WindowTTL <= 0 {
		cfg.WindowTTL = DefaultWindowTTL
	}
	if cfg.Timers == nil {
		cfg.Timers = stdTimer
	}

	m := &Manager{
		registry:   NewRegistry(),
		backend:    cfg.Backend,
		platform:   cfg.Platform,
		store:      cfg.Store,
		translator: cfg.Translator,
		metrics:    cfg.Metrics,
		maxVolume:  cfg.MaxVolume,
		windowTTL:  cfg.WindowTTL,
		timers:     cfg.Timers,
		windows:    make(map[string]*Window),
	}
	m.scheduler = NewScheduler(cfg.IdleWindow, m.autoDisconnect, cfg.Timers)
	return m
}

// State returns the guild's player state, or nil when none exists.
func (m *Manager) State(guildID string) *State {
	return m.registry.Get(guildID)
}

// MaxVolume returns the configured volume ceiling.
func (m *Manager) MaxVolume() int { return m.maxVolume }

// Connect establishes the guild's voice session in channelID. Idempotent:
// when the guild is already connected this is a no-op.
func (m *Manager) Connect(ctx context.Context, guildID, channelID string) error {
	st, created := m.registry.GetOrCreate(guildID)
	if st.Connected() {
		return nil
	}
	if err := m.platform.JoinVoice(ctx, guildID, channelID); err != nil {
		if created {
			m.registry.Remove(guildID)
		}
		return err
	}
	st.setConnected(channelID)
	if created && m.metrics != nil {
		m.metrics.AddActivePlayers(ctx, 1)
	}
	slog.Info("voice session connected", "guild_id", guildID, "channel_id", channelID)
	return nil
}

// Disconnect tears down the guild's voice session and node player. When
// force is false and the guild is not connected this is a no-op, mirroring
// the transport's own semantics and avoiding double-teardown errors.
func (m *Manager) Disconnect(ctx context.Context, guildID string, force bool) error {
	st := m.registry.Get(guildID)
	if !force && (st == nil || !st.Connected()) {
		return nil
	}

	m.scheduler.Cancel(guildID)

	if st != nil {
		if ch := st.VoiceChannelID(); ch != "" {
			if err := m.platform.SetChannelStatus(ctx, ch, ""); err != nil {
				slog.Warn("failed to clear voice channel status", "guild_id", guildID, "err", err)
			}
		}
	}

	if err := m.platform.LeaveVoice(ctx, guildID); err != nil {
		slog.Warn("voice leave failed", "guild_id", guildID, "err", err)
	}
	if err := m.backend.Destroy(ctx, guildID); err != nil {
		slog.Warn("node player destroy failed", "guild_id", guildID, "err", err)
	}

	if st != nil {
		m.registry.Remove(guildID)
		if m.metrics != nil {
			m.metrics.AddActivePlayers(ctx, -1)
		}
	}
	slog.Info("voice session disconnected", "guild_id", guildID, "force", force)
	return nil
}

// autoDisconnect is the idle-timeout task body. Failures are logged and
// swallowed so a dead transport can never wedge the scheduler.
func (m *Manager) autoDisconnect(guildID string) {
	ctx, cancel := context.WithTimeout(context.Background(), externalCallTimeout)
	defer cancel()
	if err := m.Disconnect(ctx, guildID, false); err != nil {
		slog.Warn("idle auto-disconnect failed", "guild_id", guildID, "err", err)
	}
}

// PresenceEvent describes one voice-presence change delivered by the chat
// platform. Self marks our own session's transitions.
type PresenceEvent struct {
	GuildID       string
	UserID        string
	Bot           bool
	Self          bool
	FromChannelID string
	ToChannelID   string
}

// OnPresenceChanged reacts to a voice-presence change:
//
//   - our session left entirely → cancel the idle task, clear the channel
//     status and tear the state down (terminal);
//   - our session moved → re-associate the channel, pause iff the new
//     channel has no humans, move the status label;
//   - the last human left our channel → pause and schedule the idle
//     disconnect;
//   - the first human (re)joined our channel → resume and cancel it.
//
// Anything else is a no-op.
func (m *Manager) OnPresenceChanged(ctx context.Context, ev PresenceEvent) {
	if ev.Self {
		m.onOwnPresence(ctx, ev)
		return
	}
	if ev.Bot {
		return
	}

	if ev.FromChannelID != "" &&
		m.platform.BotInChannel(ev.GuildID, ev.FromChannelID) &&
		m.platform.HumanCount(ev.GuildID, ev.FromChannelID) == 0 {
		if st := m.registry.Get(ev.GuildID); st != nil {
			m.setPause(ctx, st, true)
			m.scheduler.Schedule(ev.GuildID)
			slog.Debug("channel is human-empty, idle disconnect scheduled", "guild_id", ev.GuildID)
		}
	}

	if ev.ToChannelID != "" &&
		m.platform.BotInChannel(ev.GuildID, ev.ToChannelID) &&
		m.platform.HumanCount(ev.GuildID, ev.ToChannelID) == 1 {
		if st := m.registry.Get(ev.GuildID); st != nil {
			m.setPause(ctx, st, false)
			m.scheduler.Cancel(ev.GuildID)
		}
	}
}

func (m *Manager) onOwnPresence(ctx context.Context, ev PresenceEvent) {
	// Left voice entirely: terminal for this guild's session.
	if ev.ToChannelID == "" {
		m.scheduler.Cancel(ev.GuildID)
		if ev.FromChannelID != "" {
			if err := m.platform.SetChannelStatus(ctx, ev.FromChannelID, ""); err != nil {
				slog.Warn("failed to clear voice channel status", "guild_id", ev.GuildID, "err", err)
			}
		}
		if st := m.registry.Get(ev.GuildID); st != nil {
			m.registry.Remove(ev.GuildID)
			if m.metrics != nil {
				m.metrics.AddActivePlayers(ctx, -1)
			}
			if err := m.backend.Destroy(ctx, ev.GuildID); err != nil {
				slog.Warn("node player destroy failed", "guild_id", ev.GuildID, "err", err)
			}
		}
		return
	}

	// Moved between channels.
	if ev.FromChannelID != "" && ev.FromChannelID != ev.ToChannelID {
		st := m.registry.Get(ev.GuildID)
		if st == nil {
			return
		}
		st.setVoiceChannel(ev.ToChannelID)
		m.setPause(ctx, st, m.platform.HumanCount(ev.GuildID, ev.ToChannelID) == 0)

		if err := m.platform.SetChannelStatus(ctx, ev.FromChannelID, ""); err != nil {
			slog.Warn("failed to clear voice channel status", "guild_id", ev.GuildID, "err", err)
		}
		if cur, ok := st.Current(); ok {
			m.setListeningStatus(ctx, ev.ToChannelID, cur)
		}
	}
}

func (m *Manager) setPause(ctx context.Context, st *State, paused bool) {
	if err := m.backend.SetPause(ctx, st.GuildID(), paused); err != nil {
		slog.Warn("node pause update failed", "guild_id", st.GuildID(), "paused", paused, "err", err)
		return
	}
	st.setPaused(paused)
}

func (m *Manager) setListeningStatus(ctx context.Context, channelID string, track Track) {
	status := m.translator.Translate("status.listening", track.Meta.Locale, map[string]any{"title": track.Title})
	if err := m.platform.SetChannelStatus(ctx, channelID, status); err != nil {
		slog.Warn("failed to set voice channel status", "channel_id", channelID, "err", err)
	}
}

// OnTrackStart reacts to the node reporting playback start: the playback
// history row is written, the (now superseded) undo control is stripped and
// the voice channel status is updated.
func (m *Manager) OnTrackStart(ctx context.Context, guildID string) {
	st := m.registry.Get(guildID)
	if st == nil {
		slog.Error("track start for unknown guild", "guild_id", guildID)
		return
	}
	cur, ok := st.Current()
	if !ok {
		slog.Error("track start with no current track", "guild_id", guildID)
		return
	}

	if err := m.store.InsertPlaybackHistory(ctx, PlaybackRecord{
		ChannelID:     cur.Meta.ChannelID,
		InteractionID: cur.Meta.InteractionID,
		MessageID:     cur.Meta.MessageID,
		UserID:        cur.Requester,
		Identifier:    cur.Identifier,
		Source:        cur.Source,
		Encoded:       cur.Encoded,
		URI:           cur.URI,
	}); err != nil {
		slog.Warn("playback history insert failed", "guild_id", guildID, "err", err)
	}

	m.supersedeWindow(ctx, cur.Meta.MessageID)

	if ch := st.VoiceChannelID(); ch != "" {
		m.setListeningStatus(ctx, ch, cur)
	}
}

// OnTrackEnd advances the queue when the ended track may be followed by
// another (mayStartNext excludes replaced/stopped ends, which are caused by
// an explicit skip or stop that already decided what happens next). An
// empty queue becomes the queue-end transition.
func (m *Manager) OnTrackEnd(ctx context.Context, guildID string, mayStartNext bool) {
	st := m.registry.Get(guildID)
	if st == nil {
		return
	}
	if !mayStartNext {
		return
	}

	next, ok := st.PopNext()
	if !ok {
		st.clearCurrent()
		m.OnQueueEnd(ctx, guildID)
		return
	}
	m.playTrack(ctx, st, next, 0)
}

// OnQueueEnd tears the session down once nothing is left to play.
func (m *Manager) OnQueueEnd(ctx context.Context, guildID string) {
	if err := m.Disconnect(ctx, guildID, true); err != nil {
		slog.Warn("queue-end disconnect failed", "guild_id", guildID, "err", err)
	}
}

// OnPlayerUpdate records the node's periodic position report.
func (m *Manager) OnPlayerUpdate(guildID string, position time.Duration) {
	if st := m.registry.Get(guildID); st != nil {
		st.setPosition(position)
	}
}

// OnGuildRemove drops per-guild scheduler state when the bot leaves a guild.
func (m *Manager) OnGuildRemove(guildID string) {
	m.scheduler.Cancel(guildID)
}

// playTrack starts track on the node and records it as current. A volume of
// zero leaves the node volume untouched.
func (m *Manager) playTrack(ctx context.Context, st *State, track Track, volume int) {
	if err := m.backend.Play(ctx, st.GuildID(), track, volume); err != nil {
		slog.Error("node play failed", "guild_id", st.GuildID(), "track", track.Identifier, "err", err)
		return
	}
	st.setCurrent(track)
	if volume > 0 {
		st.setVolume(volume)
	}
}

// Skip moves to the next queued track, or ends the session when the queue
// is empty. Only the requester of the current track or a privileged user
// may skip.
func (m *Manager) Skip(ctx context.Context, guildID, invokerID string) error {
	st := m.registry.Get(guildID)
	if st == nil {
		return ErrNotPlaying
	}
	cur, ok := st.Current()
	if !ok {
		return ErrNotPlaying
	}
	if cur.Requester != invokerID && !m.platform.Privileged(guildID, invokerID) {
		return ErrUnauthorized
	}

	next, queued := st.PopNext()
	if !queued {
		if err := m.backend.Stop(ctx, guildID); err != nil {
			slog.Warn("node stop failed", "guild_id", guildID, "err", err)
		}
		st.clearCurrent()
		m.OnQueueEnd(ctx, guildID)
		return nil
	}
	m.playTrack(ctx, st, next, 0)
	return nil
}

// SetPause toggles the pause flag for a guild with an active track.
func (m *Manager) SetPause(ctx context.Context, guildID string, paused bool) error {
	st := m.registry.Get(guildID)
	if st == nil {
		return ErrNotPlaying
	}
	if err := m.backend.SetPause(ctx, guildID, paused); err != nil {
		return err
	}
	st.setPaused(paused)
	return nil
}

// SetVolume applies a live volume change and, for volumes worth
// remembering, persists it as the voice channel's preference.
func (m *Manager) SetVolume(ctx context.Context, guildID string, volume int) error {
	st := m.registry.Get(guildID)
	if st == nil {
		return ErrNotPlaying
	}
	if err := m.backend.SetVolume(ctx, guildID, volume); err != nil {
		return err
	}
	st.setVolume(volume)

	if volume >= MinRememberedVolume {
		if err := m.store.SetChannelVolume(ctx, st.VoiceChannelID(), volume); err != nil {
			slog.Warn("channel volume persist failed", "guild_id", guildID, "err", err)
		}
	}
	return nil
}

// Stop clears the queue, stops playback and leaves the channel.
func (m *Manager) Stop(ctx context.Context, guildID string) error {
	st := m.registry.Get(guildID)
	if st == nil {
		return ErrNotPlaying
	}
	st.ClearQueue()
	st.clearCurrent()
	if err := m.backend.Stop(ctx, guildID); err != nil {
		slog.Warn("node stop failed", "guild_id", guildID, "err", err)
	}
	return m.Disconnect(ctx, guildID, false)
}

// resolveVolume looks up the playback-start volume: per-channel preference,
// then the guild default (seeded on first read), then DefaultVolume.
func (m *Manager) resolveVolume(ctx context.Context, guildID, channelID string) int {
	if v, ok, err := m.store.ChannelVolume(ctx, channelID); err != nil {
		slog.Warn("channel volume lookup failed", "channel_id", channelID, "err", err)
	} else if ok {
		return v
	}

	v, ok, err := m.store.DefaultVolume(ctx, guildID)
	if err != nil {
		slog.Warn("default volume lookup failed", "guild_id", guildID, "err", err)
		return DefaultVolume
	}
	if !ok {
		if err := m.store.SetDefaultVolume(ctx, guildID, DefaultVolume); err != nil {
			slog.Warn("default volume seed failed", "guild_id", guildID, "err", err)
		}
		return DefaultVolume
	}
	return v
}

// Shutdown disconnects every active voice session, in parallel across
// guilds, then stops the scheduler. Best-effort: individual failures are
// logged, not propagated.
func (m *Manager) Shutdown(ctx context.Context) error {
	var g errgroup.Group
	for _, st := range m.registry.All() {
		g.Go(func() error {
			if err := m.Disconnect(ctx, st.GuildID(), true); err != nil {
				slog.Warn("shutdown disconnect failed", "guild_id", st.GuildID(), "err", err)
			}
			return nil
		})
	}
	err := g.Wait()
	m.scheduler.Shutdown()
	return err
}
