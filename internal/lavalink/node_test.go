package lavalink

import (
	"context"
	"testing"
	"time"
)

type eventSink struct {
	starts  []string
	ends    []struct {
		GuildID      string
		MayStartNext bool
	}
	updates []struct {
		GuildID  string
		Position time.Duration
	}
}

func (s *eventSink) OnTrackStart(_ context.Context, guildID string) {
	s.starts = append(s.starts, guildID)
}

func (s *eventSink) OnTrackEnd(_ context.Context, guildID string, mayStartNext bool) {
	s.ends = append(s.ends, struct {
		GuildID      string
		MayStartNext bool
	}{guildID, mayStartNext})
}

func (s *eventSink) OnPlayerUpdate(guildID string, position time.Duration) {
	s.updates = append(s.updates, struct {
		GuildID  string
		Position time.Duration
	}{guildID, position})
}

func newTestNode() (*Node, *Client, *eventSink) {
	sink := &eventSink{}
	cfg := Config{Address: "localhost:2333", Password: "secret", UserID: "bot-1"}
	client := NewClient(cfg)
	return NewNode(cfg, client, sink, nil), client, sink
}

func TestHandleMessage_ReadyFeedsSessionID(t *testing.T) {
	t.Parallel()

	n, client, _ := newTestNode()
	n.handleMessage(context.Background(), []byte(`{"op":"ready","resumed":false,"sessionId":"sess-9"}`))

	if !n.Connected() {
		t.Error("node should report connected after ready")
	}
	got, err := client.currentSessionID()
	if err != nil || got != "sess-9" {
		t.Errorf("session id = %q, %v; want sess-9", got, err)
	}
}

func TestHandleMessage_PlayerUpdate(t *testing.T) {
	t.Parallel()

	n, _, sink := newTestNode()
	n.handleMessage(context.Background(), []byte(`{
		"op":"playerUpdate","guildId":"g1",
		"state":{"time":1,"position":42000,"connected":true,"ping":3}
	}`))

	if len(sink.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(sink.updates))
	}
	if u := sink.updates[0]; u.GuildID != "g1" || u.Position != 42*time.Second {
		t.Errorf("update = %+v, want g1 at 42s", u)
	}
}

func TestHandleMessage_TrackLifecycleEvents(t *testing.T) {
	t.Parallel()

	n, _, sink := newTestNode()
	ctx := context.Background()

	n.handleMessage(ctx, []byte(`{"op":"event","type":"TrackStartEvent","guildId":"g1"}`))
	n.handleMessage(ctx, []byte(`{"op":"event","type":"TrackEndEvent","guildId":"g1","reason":"finished"}`))
	n.handleMessage(ctx, []byte(`{"op":"event","type":"TrackEndEvent","guildId":"g1","reason":"replaced"}`))
	n.handleMessage(ctx, []byte(`{"op":"event","type":"TrackEndEvent","guildId":"g1","reason":"stopped"}`))
	n.handleMessage(ctx, []byte(`{"op":"event","type":"TrackEndEvent","guildId":"g1","reason":"loadFailed"}`))

	if len(sink.starts) != 1 || sink.starts[0] != "g1" {
		t.Errorf("starts = %v, want [g1]", sink.starts)
	}
	if len(sink.ends) != 4 {
		t.Fatalf("ends = %d, want 4", len(sink.ends))
	}
	wantNext := []bool{true, false, false, true}
	for i, end := range sink.ends {
		if end.MayStartNext != wantNext[i] {
			t.Errorf("end %d mayStartNext = %v, want %v", i, end.MayStartNext, wantNext[i])
		}
	}
}

func TestHandleMessage_IgnoresNoise(t *testing.T) {
	t.Parallel()

	n, _, sink := newTestNode()
	ctx := context.Background()

	n.handleMessage(ctx, []byte(`{"op":"stats","players":3}`))
	n.handleMessage(ctx, []byte(`{"op":"event","type":"WebSocketClosedEvent","guildId":"g1","code":4006}`))
	n.handleMessage(ctx, []byte(`not json at all`))

	if len(sink.starts)+len(sink.ends)+len(sink.updates) != 0 {
		t.Error("noise payloads must not reach the event sink")
	}
}

func TestMayStartNext(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"finished":   true,
		"loadFailed": true,
		"stopped":    false,
		"replaced":   false,
		"cleanup":    false,
	}
	for reason, want := range cases {
		if got := mayStartNext(reason); got != want {
			t.Errorf("mayStartNext(%q) = %v, want %v", reason, got, want)
		}
	}
}
