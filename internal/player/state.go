package player

import (
	"sync"
	"time"
)

// State is the mutable per-guild playback record. All methods are safe for
// concurrent use; playback and presence events may touch a state while an
// enqueue workflow holds the guild lock.
type State struct {
	mu             sync.Mutex
	guildID        string
	queue          []Track
	current        *Track
	paused         bool
	volume         int
	voiceChannelID string
	connected      bool
	position       time.Duration
}

func newState(guildID string) *State {
	return &State{guildID: guildID, volume: DefaultVolume}
}

// GuildID returns the guild this state belongs to.
func (s *State) GuildID() string { return s.guildID }

// Append adds tracks to the back of the queue, preserving argument order.
func (s *State) Append(tracks ...Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, tracks...)
}

// PopNext removes and returns the head of the queue.
func (s *State) PopNext() (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Track{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

// Head returns the queue head without removing it.
func (s *State) Head() (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Track{}, false
	}
	return s.queue[0], true
}

// RemoveByMessageID removes every queued track whose status message id
// matches, returning how many were removed. Playlist batches share one
// status message and are removed as a unit.
func (s *State) RemoveByMessageID(messageID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.queue[:0]
	removed := 0
	for _, t := range s.queue {
		if t.Meta.MessageID == messageID {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.queue = kept
	return removed
}

// ClearQueue drops all queued tracks.
func (s *State) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
}

// QueueLen returns the number of queued (not yet playing) tracks.
func (s *State) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Queue returns a copy of the queued tracks in playback order.
func (s *State) Queue() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.queue))
	copy(out, s.queue)
	return out
}

// Current returns the actively playing track, if any.
func (s *State) Current() (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Track{}, false
	}
	return *s.current, true
}

// Playing reports whether a track is actively playing.
func (s *State) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

func (s *State) setCurrent(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &t
	s.position = 0
}

func (s *State) clearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.position = 0
}

// Paused reports the pause flag.
func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *State) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Volume returns the last applied volume.
func (s *State) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *State) setVolume(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

// VoiceChannelID returns the connected voice channel, or "" when not
// connected.
func (s *State) VoiceChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceChannelID
}

// Connected reports whether the voice transport session is established.
func (s *State) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *State) setConnected(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.voiceChannelID = channelID
}

func (s *State) setVoiceChannel(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceChannelID = channelID
}

// Position returns the last known playback position of the current track,
// fed by the node's periodic player updates.
func (s *State) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *State) setPosition(p time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = p
}
