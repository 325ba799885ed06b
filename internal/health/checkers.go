package health

import (
	"context"
	"errors"
)

// Pinger is the slice of a database pool the readiness probe needs.
// *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a checker that pings the database.
func Database(p Pinger) Checker {
	return Checker{
		Name:  "database",
		Check: p.Ping,
	}
}

// ErrNodeDown is reported while the audio node websocket session is not
// established.
var ErrNodeDown = errors.New("audio node session not established")

// AudioNode returns a checker that reports ready once the audio node
// websocket session is up. connected is polled per request.
func AudioNode(connected func() bool) Checker {
	return Checker{
		Name: "audio_node",
		Check: func(context.Context) error {
			if !connected() {
				return ErrNodeDown
			}
			return nil
		},
	}
}
