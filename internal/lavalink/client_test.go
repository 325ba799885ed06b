package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hyeonsong/aria/internal/player"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	c := NewClient(Config{Address: u.Host, Password: "secret", UserID: "bot-1"})
	c.setSessionID("sess-1")
	return c
}

func TestResolve_Track(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v4/loadtracks" {
			t.Errorf("path = %q, want /v4/loadtracks", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "secret" {
			t.Errorf("Authorization = %q, want secret", got)
		}
		if got := r.URL.Query().Get("identifier"); got != "https://example.com/a" {
			t.Errorf("identifier = %q", got)
		}
		_, _ = w.Write([]byte(`{
			"loadType": "track",
			"data": {
				"encoded": "enc-a",
				"info": {
					"identifier": "a", "author": "someone", "length": 180000,
					"title": "Song A", "uri": "https://example.com/a", "sourceName": "youtube"
				}
			}
		}`))
	})

	res, err := c.Resolve(context.Background(), "https://example.com/a")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Type != player.LoadTrack || len(res.Tracks) != 1 {
		t.Fatalf("result = %+v, want single track", res)
	}
	tr := res.Tracks[0]
	if tr.Encoded != "enc-a" || tr.Title != "Song A" || tr.Duration != 3*time.Minute {
		t.Errorf("track = %+v", tr)
	}
}

func TestResolve_Playlist(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"loadType": "playlist",
			"data": {
				"info": {"name": "Mix"},
				"tracks": [
					{"encoded": "e1", "info": {"identifier": "t1", "title": "One", "length": 1000}},
					{"encoded": "e2", "info": {"identifier": "t2", "title": "Two", "length": 2000}}
				]
			}
		}`))
	})

	res, err := c.Resolve(context.Background(), "https://example.com/playlist")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Type != player.LoadPlaylist || res.PlaylistName != "Mix" || len(res.Tracks) != 2 {
		t.Errorf("result = %+v, want 2-track playlist Mix", res)
	}
}

func TestResolve_SearchAndEmpty(t *testing.T) {
	t.Parallel()

	responses := map[string]string{
		"found":   `{"loadType": "search", "data": [{"encoded": "e1", "info": {"identifier": "t1"}}]}`,
		"nothing": `{"loadType": "empty", "data": {}}`,
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimPrefix(r.URL.Query().Get("identifier"), "ytsearch:")
		_, _ = w.Write([]byte(responses[q]))
	})

	res, err := c.Resolve(context.Background(), "ytsearch:found")
	if err != nil {
		t.Fatalf("Resolve(found) error: %v", err)
	}
	if res.Type != player.LoadSearch || len(res.Tracks) != 1 {
		t.Errorf("search result = %+v", res)
	}

	res, err = c.Resolve(context.Background(), "ytsearch:nothing")
	if err != nil {
		t.Fatalf("Resolve(nothing) error: %v", err)
	}
	if res.Type != player.LoadEmpty {
		t.Errorf("empty result = %+v", res)
	}
}

func TestResolve_Error(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"loadType": "error",
			"data": {"message": "video unavailable", "severity": "common"}
		}`))
	})

	res, err := c.Resolve(context.Background(), "https://example.com/gone")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if res.Type != player.LoadError || res.Err == nil {
		t.Fatalf("result = %+v, want LoadError with detail", res)
	}
	if !strings.Contains(res.Err.Error(), "video unavailable") {
		t.Errorf("Err = %v, want node message preserved", res.Err)
	}
}

func TestPlay_SendsTrackAndVolume(t *testing.T) {
	t.Parallel()

	var got playerUpdateBody
	var path, method string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{}`))
	})

	track := player.Track{Encoded: "enc-a"}
	if err := c.Play(context.Background(), "g1", track, 55); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if method != http.MethodPatch || path != "/v4/sessions/sess-1/players/g1" {
		t.Errorf("request = %s %s", method, path)
	}
	if got.Track == nil || got.Track.Encoded == nil || *got.Track.Encoded != "enc-a" {
		t.Errorf("body track = %+v, want enc-a", got.Track)
	}
	if got.Volume == nil || *got.Volume != 55 {
		t.Errorf("body volume = %v, want 55", got.Volume)
	}
}

func TestPlay_ZeroVolumeOmitted(t *testing.T) {
	t.Parallel()

	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{}`))
	})

	if err := c.Play(context.Background(), "g1", player.Track{Encoded: "enc-a"}, 0); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if _, present := raw["volume"]; present {
		t.Error("volume must be omitted when zero")
	}
}

func TestStop_ClearsTrack(t *testing.T) {
	t.Parallel()

	var raw map[string]json.RawMessage
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{}`))
	})

	if err := c.Stop(context.Background(), "g1"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if string(raw["track"]) != `{"encoded":null}` {
		t.Errorf("track field = %s, want encoded null", raw["track"])
	}
}

func TestDestroy(t *testing.T) {
	t.Parallel()

	var path, method string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Destroy(context.Background(), "g1"); err != nil {
		t.Fatalf("Destroy() error: %v", err)
	}
	if method != http.MethodDelete || path != "/v4/sessions/sess-1/players/g1" {
		t.Errorf("request = %s %s", method, path)
	}
}

func TestDestroy_NotFoundIsFine(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := c.Destroy(context.Background(), "g1"); err != nil {
		t.Fatalf("Destroy() on unknown player error: %v", err)
	}
}

func TestControlCalls_RequireSession(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{Address: "localhost:2333", Password: "secret"})

	err := c.Play(context.Background(), "g1", player.Track{Encoded: "x"}, 0)
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("Play() without session = %v, want ErrNoSession", err)
	}
	// Destroy without a session has nothing to release.
	if err := c.Destroy(context.Background(), "g1"); err != nil {
		t.Fatalf("Destroy() without session error: %v", err)
	}
}
