package player

import "errors"

// Sentinel errors returned by the enqueue workflow and the cancellation
// window. Callers render these as localized user notices; anything else is
// an internal failure that has already been logged.
var (
	// ErrNotFound indicates the query resolved to no tracks.
	ErrNotFound = errors.New("player: no matching tracks")

	// ErrLoadFailed indicates the audio node failed to load the query.
	ErrLoadFailed = errors.New("player: track load failed")

	// ErrUnauthorized indicates the invoker may not cancel the queued item.
	ErrUnauthorized = errors.New("player: not authorized to cancel")

	// ErrUnavailable indicates the guarded track is too close to starting
	// (or already started) to retract cleanly.
	ErrUnavailable = errors.New("player: cancellation no longer available")

	// ErrAlreadyDone indicates the cancellation window has already reached
	// a terminal state.
	ErrAlreadyDone = errors.New("player: cancellation window already resolved")

	// ErrNotPlaying indicates no player exists for the guild.
	ErrNotPlaying = errors.New("player: nothing playing in this guild")
)
