package player

import "context"

// Backend is the external audio node the orchestrator drives. The node owns
// track search, decoding and streaming; the orchestrator only issues
// control-plane calls. Implementations carry their own timeout/retry policy.
type Backend interface {
	// Resolve turns a query (verbatim URL or search-prefixed text) into a
	// classified load result.
	Resolve(ctx context.Context, query string) (LoadResult, error)

	// Play starts playback of track on the guild's node player. A volume of
	// zero leaves the node's current volume untouched; play-start volumes
	// resolved from persistence are never zero.
	Play(ctx context.Context, guildID string, track Track, volume int) error

	Stop(ctx context.Context, guildID string) error
	SetPause(ctx context.Context, guildID string, paused bool) error
	SetVolume(ctx context.Context, guildID string, volume int) error

	// Destroy releases the node-side player for the guild.
	Destroy(ctx context.Context, guildID string) error
}

// Origin identifies where a playback request came from and how to report
// back to it. MessageID is the deferred status message the workflow edits.
type Origin struct {
	GuildID          string
	UserID           string
	VoiceChannelID   string
	TextChannelID    string
	InteractionID    string
	InteractionToken string
	MessageID        string
	Locale           string
}

// Platform is the chat platform surface the orchestrator needs: status
// messages, voice transport join/leave, voice-channel status labels and
// presence/permission queries.
type Platform interface {
	// Post delivers content as the status message for o, attaching an
	// undo-enqueue control when cancelControl is set. It returns the id of
	// the message carrying the content.
	Post(ctx context.Context, o Origin, content string, cancelControl bool) (string, error)

	// DisableControls strips interactive components from a posted message.
	DisableControls(ctx context.Context, channelID, messageID string) error

	DeleteMessage(ctx context.Context, channelID, messageID string) error

	// SetChannelStatus edits a voice channel's status label. An empty status
	// clears it.
	SetChannelStatus(ctx context.Context, channelID, status string) error

	JoinVoice(ctx context.Context, guildID, channelID string) error
	LeaveVoice(ctx context.Context, guildID string) error

	// HumanCount reports how many non-bot members are in the voice channel.
	HumanCount(guildID, channelID string) int

	// BotInChannel reports whether our own user is in the voice channel.
	BotInChannel(guildID, channelID string) bool

	// Privileged reports whether the user holds a moderation permission
	// (administrator, move members or mute members) in the guild.
	Privileged(guildID, userID string) bool
}

// PlaybackRecord is a row of playback history, written when a track starts.
type PlaybackRecord struct {
	ChannelID     string
	InteractionID string
	MessageID     string
	UserID        string
	Identifier    string
	Source        string
	Encoded       string
	URI           string
}

// CommandRecord is a row of play-command history, written per enqueue.
type CommandRecord struct {
	ChannelID     string
	InteractionID string
	MessageID     string
	UserID        string
	Query         string
	LoadType      string
	Tracks        []Track
}

// Store is the persistence collaborator. Volume lookups are synchronous
// reads gating playback start; everything else is best-effort from the
// orchestrator's perspective.
type Store interface {
	DefaultVolume(ctx context.Context, guildID string) (int, bool, error)
	SetDefaultVolume(ctx context.Context, guildID string, volume int) error
	ChannelVolume(ctx context.Context, channelID string) (int, bool, error)
	SetChannelVolume(ctx context.Context, channelID string, volume int) error

	DedicatedChannel(ctx context.Context, guildID string) (string, bool, error)
	SetDedicatedChannel(ctx context.Context, guildID, channelID string) error
	DedicatedChannels(ctx context.Context) (map[string]string, error)

	InsertPlaybackHistory(ctx context.Context, rec PlaybackRecord) error
	InsertCommandHistory(ctx context.Context, rec CommandRecord) error
}

// Translator renders a semantic message key into localized user-visible
// text. The orchestrator never builds literal strings for users.
type Translator interface {
	Translate(key, locale string, params map[string]any) string
}
