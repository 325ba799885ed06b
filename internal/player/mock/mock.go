// Package mock provides test doubles for the player package's external
// collaborators: the audio backend, the chat platform, persistence and
// localization, plus a manually driven timer factory for clock control.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/hyeonsong/aria/internal/player"
)

// ---------------------------------------------------------------------------
// Backend
// ---------------------------------------------------------------------------

// PlayCall records one Backend.Play invocation.
type PlayCall struct {
	GuildID string
	Track   player.Track
	Volume  int
}

// Backend is a recording fake for [player.Backend].
type Backend struct {
	mu sync.Mutex

	// ResolveFunc, when set, overrides ResolveResult per call.
	ResolveFunc func(query string) (player.LoadResult, error)

	// ResolveResult is returned by Resolve when ResolveFunc is nil.
	ResolveResult player.LoadResult

	// Err, when non-nil, is returned by every control call.
	Err error

	ResolveCalls  []string
	PlayCalls     []PlayCall
	StopCalls     []string
	PauseCalls    []struct {
		GuildID string
		Paused  bool
	}
	VolumeCalls []struct {
		GuildID string
		Volume  int
	}
	DestroyCalls []string
}

func (b *Backend) Resolve(_ context.Context, query string) (player.LoadResult, error) {
	b.mu.Lock()
	b.ResolveCalls = append(b.ResolveCalls, query)
	fn := b.ResolveFunc
	res := b.ResolveResult
	b.mu.Unlock()
	if fn != nil {
		return fn(query)
	}
	return res, nil
}

func (b *Backend) Play(_ context.Context, guildID string, track player.Track, volume int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PlayCalls = append(b.PlayCalls, PlayCall{GuildID: guildID, Track: track, Volume: volume})
	return b.Err
}

func (b *Backend) Stop(_ context.Context, guildID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StopCalls = append(b.StopCalls, guildID)
	return b.Err
}

func (b *Backend) SetPause(_ context.Context, guildID string, paused bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PauseCalls = append(b.PauseCalls, struct {
		GuildID string
		Paused  bool
	}{guildID, paused})
	return b.Err
}

func (b *Backend) SetVolume(_ context.Context, guildID string, volume int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.VolumeCalls = append(b.VolumeCalls, struct {
		GuildID string
		Volume  int
	}{guildID, volume})
	return b.Err
}

func (b *Backend) Destroy(_ context.Context, guildID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DestroyCalls = append(b.DestroyCalls, guildID)
	return b.Err
}

// LastPlay returns the most recent Play call, or false when none happened.
func (b *Backend) LastPlay() (PlayCall, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.PlayCalls) == 0 {
		return PlayCall{}, false
	}
	return b.PlayCalls[len(b.PlayCalls)-1], true
}

// ---------------------------------------------------------------------------
// Platform
// ---------------------------------------------------------------------------

// PostCall records one Platform.Post invocation.
type PostCall struct {
	Origin        player.Origin
	Content       string
	CancelControl bool
}

// Platform is a recording fake for [player.Platform]. Presence queries are
// answered from the Humans and BotChannels maps, keyed "guild/channel".
type Platform struct {
	mu sync.Mutex

	// PostErr, JoinErr, LeaveErr and StatusErr inject failures.
	PostErr   error
	JoinErr   error
	LeaveErr  error
	StatusErr error

	// NextMessageID is returned by Post; empty falls back to the origin's
	// message id.
	NextMessageID string

	// Humans maps "guild/channel" to the human member count.
	Humans map[string]int

	// BotChannels maps "guild/channel" to whether our user is present.
	BotChannels map[string]bool

	// PrivilegedUsers maps user ids with moderation permissions.
	PrivilegedUsers map[string]bool

	PostCalls        []PostCall
	DisabledControls []string
	DeletedMessages  []string
	StatusCalls      []struct {
		ChannelID string
		Status    string
	}
	JoinCalls []struct {
		GuildID   string
		ChannelID string
	}
	LeaveCalls []string
}

func (p *Platform) Post(_ context.Context, o player.Origin, content string, cancelControl bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PostCalls = append(p.PostCalls, PostCall{Origin: o, Content: content, CancelControl: cancelControl})
	if p.PostErr != nil {
		return "", p.PostErr
	}
	if p.NextMessageID != "" {
		return p.NextMessageID, nil
	}
	return o.MessageID, nil
}

func (p *Platform) DisableControls(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DisabledControls = append(p.DisabledControls, messageID)
	return nil
}

func (p *Platform) DeleteMessage(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DeletedMessages = append(p.DeletedMessages, messageID)
	return nil
}

func (p *Platform) SetChannelStatus(_ context.Context, channelID, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StatusCalls = append(p.StatusCalls, struct {
		ChannelID string
		Status    string
	}{channelID, status})
	return p.StatusErr
}

func (p *Platform) JoinVoice(_ context.Context, guildID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.JoinErr != nil {
		return p.JoinErr
	}
	p.JoinCalls = append(p.JoinCalls, struct {
		GuildID   string
		ChannelID string
	}{guildID, channelID})
	return nil
}

func (p *Platform) LeaveVoice(_ context.Context, guildID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LeaveCalls = append(p.LeaveCalls, guildID)
	return p.LeaveErr
}

func (p *Platform) HumanCount(guildID, channelID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Humans[guildID+"/"+channelID]
}

func (p *Platform) BotInChannel(guildID, channelID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.BotChannels[guildID+"/"+channelID]
}

func (p *Platform) Privileged(_, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PrivilegedUsers[userID]
}

// SetHumans updates the human count for "guild/channel".
func (p *Platform) SetHumans(guildID, channelID string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Humans == nil {
		p.Humans = make(map[string]int)
	}
	p.Humans[guildID+"/"+channelID] = n
}

// SetBotInChannel marks our user present in "guild/channel".
func (p *Platform) SetBotInChannel(guildID, channelID string, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.BotChannels == nil {
		p.BotChannels = make(map[string]bool)
	}
	p.BotChannels[guildID+"/"+channelID] = present
}

// LastPost returns the most recent Post call, or false when none happened.
func (p *Platform) LastPost() (PostCall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.PostCalls) == 0 {
		return PostCall{}, false
	}
	return p.PostCalls[len(p.PostCalls)-1], true
}

// ---------------------------------------------------------------------------
// Store
// ---------------------------------------------------------------------------

// Store is an in-memory fake for [player.Store].
type Store struct {
	mu sync.Mutex

	// Err, when non-nil, is returned by every call.
	Err error

	DefaultVolumes  map[string]int
	ChannelVolumes  map[string]int
	Dedicated       map[string]string
	PlaybackRecords []player.PlaybackRecord
	CommandRecords  []player.CommandRecord
}

func (s *Store) DefaultVolume(_ context.Context, guildID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, false, s.Err
	}
	v, ok := s.DefaultVolumes[guildID]
	return v, ok, nil
}

func (s *Store) SetDefaultVolume(_ context.Context, guildID string, volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.DefaultVolumes == nil {
		s.DefaultVolumes = make(map[string]int)
	}
	s.DefaultVolumes[guildID] = volume
	return nil
}

func (s *Store) ChannelVolume(_ context.Context, channelID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, false, s.Err
	}
	v, ok := s.ChannelVolumes[channelID]
	return v, ok, nil
}

func (s *Store) SetChannelVolume(_ context.Context, channelID string, volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.ChannelVolumes == nil {
		s.ChannelVolumes = make(map[string]int)
	}
	s.ChannelVolumes[channelID] = volume
	return nil
}

func (s *Store) DedicatedChannel(_ context.Context, guildID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", false, s.Err
	}
	ch, ok := s.Dedicated[guildID]
	return ch, ok, nil
}

func (s *Store) SetDedicatedChannel(_ context.Context, guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.Dedicated == nil {
		s.Dedicated = make(map[string]string)
	}
	s.Dedicated[guildID] = channelID
	return nil
}

func (s *Store) DedicatedChannels(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make(map[string]string, len(s.Dedicated))
	for k, v := range s.Dedicated {
		out[k] = v
	}
	return out, nil
}

func (s *Store) InsertPlaybackHistory(_ context.Context, rec player.PlaybackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.PlaybackRecords = append(s.PlaybackRecords, rec)
	return nil
}

func (s *Store) InsertCommandHistory(_ context.Context, rec player.CommandRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.CommandRecords = append(s.CommandRecords, rec)
	return nil
}

// ---------------------------------------------------------------------------
// Translator
// ---------------------------------------------------------------------------

// Translator renders "key" (ignoring locale and params) so tests can assert
// on the semantic key of a posted notice.
type Translator struct{}

func (Translator) Translate(key, _ string, _ map[string]any) string { return key }

// ---------------------------------------------------------------------------
// Clock / timers
// ---------------------------------------------------------------------------

// ManualTimer is a timer that only fires when the test fires it.
type ManualTimer struct {
	mu      sync.Mutex
	Delay   time.Duration
	fn      func()
	stopped bool
}

// Stop cancels the timer.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Fire runs the timer body unless the timer was stopped.
func (t *ManualTimer) Fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}

// Stopped reports whether Stop or Fire already ran.
func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Clock hands out ManualTimers and keeps them for the test to drive.
type Clock struct {
	mu     sync.Mutex
	Timers []*ManualTimer
}

// NewTimer is a [player.TimerFactory].
func (c *Clock) NewTimer(d time.Duration, fn func()) player.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &ManualTimer{Delay: d, fn: fn}
	c.Timers = append(c.Timers, t)
	return t
}

// Last returns the most recently created timer, or nil.
func (c *Clock) Last() *ManualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Timers) == 0 {
		return nil
	}
	return c.Timers[len(c.Timers)-1]
}
