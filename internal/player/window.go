package player

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// cancelMargin is how close to the end of the current track the queue head
// may get before retracting it is refused as too late.
const cancelMargin = 2500 * time.Millisecond

// WindowState is the lifecycle state of a cancellation window.
type WindowState int

const (
	// WindowActive means the undo-enqueue control is live.
	WindowActive WindowState = iota
	// WindowCancelled means the requester (or a privileged user) retracted
	// the batch.
	WindowCancelled
	// WindowExpired means the control timed out untouched.
	WindowExpired
	// WindowSuperseded means the guarded track started playing and the
	// control was removed proactively.
	WindowSuperseded
)

// Window is the single-use, time-bounded undo-enqueue control attached to a
// queued-confirmation message. It is constructed once per posted message and
// never reused; all transitions out of WindowActive are terminal.
type Window struct {
	mu          sync.Mutex
	state       WindowState
	guildID     string
	channelID   string
	messageID   string
	requesterID string
	timer       Timer
}

// resolve moves the window to a terminal state. It reports false when the
// window already left WindowActive, making every transition single-use.
func (w *Window) resolve(to WindowState) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != WindowActive {
		return false
	}
	w.state = to
	if w.timer != nil {
		w.timer.Stop()
	}
	return true
}

// State returns the window's current lifecycle state.
func (w *Window) State() WindowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// openWindow registers a cancellation window for the status message and
// arms its expiry timer.
func (m *Manager) openWindow(o Origin, messageID string) *Window {
	w := &Window{
		state:       WindowActive,
		guildID:     o.GuildID,
		channelID:   o.TextChannelID,
		messageID:   messageID,
		requesterID: o.UserID,
	}

	m.windowMu.Lock()
	m.windows[messageID] = w
	m.windowMu.Unlock()

	w.timer = m.timers(m.windowTTL, func() { m.expireWindow(w) })
	return w
}

// expireWindow times a window out: the control is stripped from the message
// and the queue is left untouched.
func (m *Manager) expireWindow(w *Window) {
	if !w.resolve(WindowExpired) {
		return
	}
	m.dropWindow(w.messageID)

	ctx, cancel := context.WithTimeout(context.Background(), externalCallTimeout)
	defer cancel()
	if err := m.platform.DisableControls(ctx, w.channelID, w.messageID); err != nil {
		slog.Warn("failed to strip expired cancel control",
			"guild_id", w.guildID, "message_id", w.messageID, "err", err)
	}
}

// supersedeWindow removes the control when its guarded track starts playing,
// independent of the expiry timer.
func (m *Manager) supersedeWindow(ctx context.Context, messageID string) {
	w := m.window(messageID)
	if w == nil || !w.resolve(WindowSuperseded) {
		return
	}
	m.dropWindow(messageID)
	if err := m.platform.DisableControls(ctx, w.channelID, w.messageID); err != nil {
		slog.Warn("failed to strip superseded cancel control",
			"guild_id", w.guildID, "message_id", w.messageID, "err", err)
	}
}

func (m *Manager) window(messageID string) *Window {
	m.windowMu.Lock()
	defer m.windowMu.Unlock()
	return m.windows[messageID]
}

func (m *Manager) dropWindow(messageID string) {
	m.windowMu.Lock()
	defer m.windowMu.Unlock()
	delete(m.windows, messageID)
}

// CancelQueuedItem retracts the not-yet-playing batch guarded by the status
// message, invoked when a user presses the undo-enqueue control.
//
// The invoker must be the original requester or hold a moderation
// permission. If the batch sits at the queue head and the current track is
// within cancelMargin of finishing, retraction is refused — the guarded
// track is at risk of starting before the removal lands.
func (m *Manager) CancelQueuedItem(ctx context.Context, messageID, invokerID string) error {
	w := m.window(messageID)
	if w == nil {
		return ErrAlreadyDone
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != WindowActive {
		return ErrAlreadyDone
	}

	if invokerID != w.requesterID && !m.platform.Privileged(w.guildID, invokerID) {
		return ErrUnauthorized
	}

	st := m.registry.Get(w.guildID)
	if st == nil {
		// Player is gone; nothing to retract. Consume the window quietly.
		w.state = WindowCancelled
		if w.timer != nil {
			w.timer.Stop()
		}
		m.dropWindow(messageID)
		return nil
	}

	if head, ok := st.Head(); ok && head.Meta.MessageID == messageID {
		if cur, playing := st.Current(); playing && st.Position()+cancelMargin > cur.Duration {
			return ErrUnavailable
		}
	}

	removed := st.RemoveByMessageID(messageID)

	w.state = WindowCancelled
	if w.timer != nil {
		w.timer.Stop()
	}
	m.dropWindow(messageID)

	if err := m.platform.DeleteMessage(ctx, w.channelID, messageID); err != nil {
		slog.Warn("failed to delete cancelled queue message",
			"guild_id", w.guildID, "message_id", messageID, "err", err)
	}

	slog.Info("queued batch retracted",
		"guild_id", w.guildID, "message_id", messageID, "tracks", removed, "invoker", invokerID)
	if m.metrics != nil {
		m.metrics.RecordCancellation(ctx, w.guildID, removed)
	}
	return nil
}
