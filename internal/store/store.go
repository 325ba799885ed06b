// Package store provides the PostgreSQL persistence layer: volume
// preferences, dedicated text channels, and the playback, command and
// query history tables. Postgres implements player.Store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyeonsong/aria/internal/player"
)

// Schema is the SQL DDL for every table this package owns. Execute it via
// [Postgres.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS default_volumes (
    guild_id   TEXT PRIMARY KEY,
    volume     INT  NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channel_volumes (
    channel_id TEXT PRIMARY KEY,
    volume     INT  NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dedicated_channels (
    guild_id   TEXT PRIMARY KEY,
    channel_id TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS playback_history (
    id             BIGSERIAL PRIMARY KEY,
    channel_id     TEXT NOT NULL DEFAULT '',
    interaction_id TEXT NOT NULL DEFAULT '',
    message_id     TEXT NOT NULL DEFAULT '',
    user_id        TEXT NOT NULL,
    identifier     TEXT NOT NULL,
    source         TEXT NOT NULL DEFAULT '',
    encoded        TEXT NOT NULL DEFAULT '',
    uri            TEXT NOT NULL DEFAULT '',
    played_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_playback_history_user ON playback_history(user_id);

CREATE TABLE IF NOT EXISTS play_command_history (
    id             BIGSERIAL PRIMARY KEY,
    channel_id     TEXT NOT NULL DEFAULT '',
    interaction_id TEXT NOT NULL DEFAULT '',
    message_id     TEXT NOT NULL DEFAULT '',
    user_id        TEXT NOT NULL,
    query          TEXT NOT NULL,
    load_type      TEXT NOT NULL DEFAULT '',
    tracks         JSONB NOT NULL DEFAULT '[]',
    issued_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_play_command_history_user ON play_command_history(user_id);

CREATE TABLE IF NOT EXISTS query_history (
    id        BIGSERIAL PRIMARY KEY,
    guild_id  TEXT NOT NULL,
    user_id   TEXT NOT NULL,
    query     TEXT NOT NULL,
    issued_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_query_history_user ON query_history(guild_id, user_id, issued_at DESC);
`

// DB is the database interface used by [Postgres]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is the PostgreSQL-backed store.
type Postgres struct {
	db DB
}

var _ player.Store = (*Postgres)(nil)

// New creates a store on the given connection or pool. The caller is
// responsible for calling [Postgres.Migrate] before issuing queries.
func New(db DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects a pool to the database at dsn, verifies it with a ping and
// runs the migration.
func Open(ctx context.Context, dsn string) (*Postgres, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("store: ping: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate executes the [Schema] DDL.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// DefaultVolume returns the guild's default volume preference.
func (s *Postgres) DefaultVolume(ctx context.Context, guildID string) (int, bool, error) {
	var v int
	err := s.db.QueryRow(ctx, `SELECT volume FROM default_volumes WHERE guild_id = $1`, guildID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: default volume for %s: %w", guildID, err)
	}
	return v, true, nil
}

// SetDefaultVolume upserts the guild's default volume preference.
func (s *Postgres) SetDefaultVolume(ctx context.Context, guildID string, volume int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO default_volumes (guild_id, volume) VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET volume = EXCLUDED.volume, updated_at = now()`,
		guildID, volume)
	if err != nil {
		return fmt.Errorf("store: set default volume for %s: %w", guildID, err)
	}
	return nil
}

// ChannelVolume returns the voice channel's volume preference.
func (s *Postgres) ChannelVolume(ctx context.Context, channelID string) (int, bool, error) {
	var v int
	err := s.db.QueryRow(ctx, `SELECT volume FROM channel_volumes WHERE channel_id = $1`, channelID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: channel volume for %s: %w", channelID, err)
	}
	return v, true, nil
}

// SetChannelVolume upserts the voice channel's volume preference.
func (s *Postgres) SetChannelVolume(ctx context.Context, channelID string, volume int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO channel_volumes (channel_id, volume) VALUES ($1, $2)
		ON CONFLICT (channel_id) DO UPDATE SET volume = EXCLUDED.volume, updated_at = now()`,
		channelID, volume)
	if err != nil {
		return fmt.Errorf("store: set channel volume for %s: %w", channelID, err)
	}
	return nil
}

// DedicatedChannel returns the guild's dedicated music text channel.
func (s *Postgres) DedicatedChannel(ctx context.Context, guildID string) (string, bool, error) {
	var ch string
	err := s.db.QueryRow(ctx, `SELECT channel_id FROM dedicated_channels WHERE guild_id = $1`, guildID).Scan(&ch)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: dedicated channel for %s: %w", guildID, err)
	}
	return ch, true, nil
}

// SetDedicatedChannel upserts the guild's dedicated music text channel.
func (s *Postgres) SetDedicatedChannel(ctx context.Context, guildID, channelID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO dedicated_channels (guild_id, channel_id) VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET channel_id = EXCLUDED.channel_id, updated_at = now()`,
		guildID, channelID)
	if err != nil {
		return fmt.Errorf("store: set dedicated channel for %s: %w", guildID, err)
	}
	return nil
}

// DedicatedChannels returns every guild's dedicated channel, for the
// startup cache warm-up.
func (s *Postgres) DedicatedChannels(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.Query(ctx, `SELECT guild_id, channel_id FROM dedicated_channels`)
	if err != nil {
		return nil, fmt.Errorf("store: list dedicated channels: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var guildID, channelID string
		if err := rows.Scan(&guildID, &channelID); err != nil {
			return nil, fmt.Errorf("store: scan dedicated channel: %w", err)
		}
		out[guildID] = channelID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list dedicated channels: %w", err)
	}
	return out, nil
}

// InsertPlaybackHistory records one started track.
func (s *Postgres) InsertPlaybackHistory(ctx context.Context, rec player.PlaybackRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO playback_history (channel_id, interaction_id, message_id, user_id, identifier, source, encoded, uri)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ChannelID, rec.InteractionID, rec.MessageID, rec.UserID, rec.Identifier, rec.Source, rec.Encoded, rec.URI)
	if err != nil {
		return fmt.Errorf("store: insert playback history: %w", err)
	}
	return nil
}

// InsertCommandHistory records one play command with its resolved tracks.
func (s *Postgres) InsertCommandHistory(ctx context.Context, rec player.CommandRecord) error {
	tracksJSON, err := json.Marshal(commandTracks(rec.Tracks))
	if err != nil {
		return fmt.Errorf("store: marshal command tracks: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO play_command_history (channel_id, interaction_id, message_id, user_id, query, load_type, tracks)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ChannelID, rec.InteractionID, rec.MessageID, rec.UserID, rec.Query, rec.LoadType, tracksJSON)
	if err != nil {
		return fmt.Errorf("store: insert command history: %w", err)
	}
	return nil
}

// commandTrack is the JSONB shape of one track in play_command_history.
type commandTrack struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	Source     string `json:"source"`
	URI        string `json:"uri"`
}

func commandTracks(tracks []player.Track) []commandTrack {
	out := make([]commandTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, commandTrack{
			Identifier: t.Identifier,
			Title:      t.Title,
			Author:     t.Author,
			Source:     t.Source,
			URI:        t.URI,
		})
	}
	return out
}

// InsertQuery records a raw search query for autocomplete suggestions.
func (s *Postgres) InsertQuery(ctx context.Context, guildID, userID, query string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO query_history (guild_id, user_id, query) VALUES ($1, $2, $3)`,
		guildID, userID, query)
	if err != nil {
		return fmt.Errorf("store: insert query history: %w", err)
	}
	return nil
}

// RecentQueries returns the user's most recent distinct search queries in
// the guild, newest first.
func (s *Postgres) RecentQueries(ctx context.Context, guildID, userID string, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT query FROM query_history
		WHERE guild_id = $1 AND user_id = $2
		GROUP BY query
		ORDER BY max(issued_at) DESC
		LIMIT $3`,
		guildID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent queries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("store: scan query: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent queries: %w", err)
	}
	return out, nil
}
