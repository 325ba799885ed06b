package player

import "time"

// LoadType classifies the outcome of resolving a query against the audio
// node, mirroring the node's load-result taxonomy.
type LoadType string

const (
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
	LoadTrack    LoadType = "track"
	LoadSearch   LoadType = "search"
	LoadPlaylist LoadType = "playlist"
)

// LoadResult is what the audio backend returns for a resolve call.
type LoadResult struct {
	Type         LoadType
	Tracks       []Track
	PlaylistName string

	// Err carries the node-side failure detail when Type is LoadError.
	// It is surfaced to logs only, never to users.
	Err error
}

// TrackMeta holds the request context attached to a track at enqueue time.
// The fields replace the dynamic attribute bag a looser design would use;
// MessageID in particular drives cancellation-window batch matching.
type TrackMeta struct {
	Query         string
	InteractionID string
	MessageID     string
	ChannelID     string
	Locale        string
}

// Track is a single playable item. Immutable once enqueued except for
// removal from the queue.
type Track struct {
	// Encoded is the opaque playable token issued by the audio node.
	Encoded    string
	Identifier string
	Title      string
	Author     string
	Source     string
	URI        string
	Duration   time.Duration

	// Requester is the user id that enqueued this track.
	Requester string

	Meta TrackMeta
}
