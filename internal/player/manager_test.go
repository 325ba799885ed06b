package player_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hyeonsong/aria/internal/observe"
	"github.com/hyeonsong/aria/internal/player"
	"github.com/hyeonsong/aria/internal/player/mock"
)

type fixture struct {
	m        *player.Manager
	backend  *mock.Backend
	platform *mock.Platform
	store    *mock.Store
	clock    *mock.Clock
}

func newFixture() *fixture {
	f := &fixture{
		backend:  &mock.Backend{},
		platform: &mock.Platform{},
		store:    &mock.Store{},
		clock:    &mock.Clock{},
	}
	f.m = player.New(player.Config{
		Backend:    f.backend,
		Platform:   f.platform,
		Store:      f.store,
		Translator: mock.Translator{},
		Timers:     f.clock.NewTimer,
	})
	return f
}

func testTrack(id string, d time.Duration) player.Track {
	return player.Track{
		Encoded:    "enc-" + id,
		Identifier: id,
		Title:      "title-" + id,
		Author:     "author-" + id,
		Source:     "youtube",
		URI:        "https://example.com/" + id,
		Duration:   d,
	}
}

func testOrigin(guildID, userID, messageID string) player.Origin {
	return player.Origin{
		GuildID:          guildID,
		UserID:           userID,
		VoiceChannelID:   "vc-" + guildID,
		TextChannelID:    "tc-" + guildID,
		InteractionID:    "ix-" + messageID,
		InteractionToken: "tok",
		MessageID:        messageID,
		Locale:           "en-US",
	}
}

// startPlayback runs one enqueue that resolves to a single track and starts
// it, leaving the guild connected and playing.
func (f *fixture) startPlayback(t *testing.T, guildID, userID, messageID string, track player.Track) {
	t.Helper()
	f.backend.ResolveResult = player.LoadResult{Type: player.LoadTrack, Tracks: []player.Track{track}}
	res, err := f.m.Enqueue(context.Background(), player.EnqueueRequest{
		Origin: testOrigin(guildID, userID, messageID),
		Query:  track.URI,
	})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if !res.Started {
		t.Fatalf("Enqueue() Started = false, want true")
	}
}

func TestConnect_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	if err := f.m.Connect(ctx, "g1", "vc-1"); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := f.m.Connect(ctx, "g1", "vc-1"); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}

	if len(f.platform.JoinCalls) != 1 {
		t.Errorf("JoinVoice calls = %d, want 1", len(f.platform.JoinCalls))
	}
	st := f.m.State("g1")
	if st == nil || !st.Connected() {
		t.Fatal("expected connected state after Connect")
	}
	if st.VoiceChannelID() != "vc-1" {
		t.Errorf("VoiceChannelID = %q, want %q", st.VoiceChannelID(), "vc-1")
	}
}

func TestConnect_JoinFailureLeavesNoState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.platform.JoinErr = errors.New("no permission")

	if err := f.m.Connect(context.Background(), "g1", "vc-1"); err == nil {
		t.Fatal("Connect() should propagate join failure")
	}
	if f.m.State("g1") != nil {
		t.Error("failed Connect must not leave a player state behind")
	}
}

func TestDisconnect_NotConnectedIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture()

	if err := f.m.Disconnect(context.Background(), "g1", false); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if len(f.platform.LeaveCalls) != 0 {
		t.Errorf("LeaveVoice calls = %d, want 0", len(f.platform.LeaveCalls))
	}
	if len(f.backend.DestroyCalls) != 0 {
		t.Errorf("Destroy calls = %d, want 0", len(f.backend.DestroyCalls))
	}
}

func TestDisconnect_ForcedAlwaysTearsDown(t *testing.T) {
	t.Parallel()

	f := newFixture()

	if err := f.m.Disconnect(context.Background(), "g1", true); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if len(f.platform.LeaveCalls) != 1 {
		t.Errorf("LeaveVoice calls = %d, want 1", len(f.platform.LeaveCalls))
	}
	if len(f.backend.DestroyCalls) != 1 {
		t.Errorf("Destroy calls = %d, want 1", len(f.backend.DestroyCalls))
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	if err := f.m.Disconnect(ctx, "g1", false); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}
	if f.m.State("g1") != nil {
		t.Fatal("state should be gone after Disconnect")
	}

	// Repeating without force must be a no-op despite the missing state.
	if err := f.m.Disconnect(ctx, "g1", false); err != nil {
		t.Fatalf("second Disconnect() error: %v", err)
	}
	if len(f.platform.LeaveCalls) != 1 {
		t.Errorf("LeaveVoice calls = %d, want 1", len(f.platform.LeaveCalls))
	}
}

func TestDisconnect_ClearsChannelStatus(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	if err := f.m.Disconnect(context.Background(), "g1", false); err != nil {
		t.Fatalf("Disconnect() error: %v", err)
	}

	var cleared bool
	for _, c := range f.platform.StatusCalls {
		if c.ChannelID == "vc-g1" && c.Status == "" {
			cleared = true
		}
	}
	if !cleared {
		t.Error("expected voice channel status to be cleared on disconnect")
	}
}

func TestOnTrackStart_RecordsHistoryAndStatus(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	f.m.OnTrackStart(context.Background(), "g1")

	if len(f.store.PlaybackRecords) != 1 {
		t.Fatalf("playback records = %d, want 1", len(f.store.PlaybackRecords))
	}
	rec := f.store.PlaybackRecords[0]
	if rec.Identifier != "a" || rec.UserID != "u1" || rec.MessageID != "m1" {
		t.Errorf("unexpected playback record: %+v", rec)
	}

	last := f.platform.StatusCalls[len(f.platform.StatusCalls)-1]
	if last.ChannelID != "vc-g1" || last.Status != "status.listening" {
		t.Errorf("status call = %+v, want listening status on vc-g1", last)
	}
}

func TestOnTrackEnd_AdvancesQueue(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))
	f.backend.ResolveResult = player.LoadResult{Type: player.LoadTrack, Tracks: []player.Track{testTrack("b", time.Minute)}}
	if _, err := f.m.Enqueue(ctx, player.EnqueueRequest{Origin: testOrigin("g1", "u1", "m2"), Query: "second song"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	f.m.OnTrackEnd(ctx, "g1", true)

	cur, ok := f.m.State("g1").Current()
	if !ok || cur.Identifier != "b" {
		t.Fatalf("current after track end = %+v, want track b", cur)
	}
	if got := len(f.backend.PlayCalls); got != 2 {
		t.Errorf("Play calls = %d, want 2", got)
	}
}

func TestOnTrackEnd_ReplacedDoesNotAdvance(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	f.m.OnTrackEnd(context.Background(), "g1", false)

	if !f.m.State("g1").Playing() {
		t.Error("replaced track end must not clear the current track")
	}
	if len(f.backend.PlayCalls) != 1 {
		t.Errorf("Play calls = %d, want 1", len(f.backend.PlayCalls))
	}
}

func TestOnTrackEnd_EmptyQueueEndsSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	f.m.OnTrackEnd(context.Background(), "g1", true)

	if f.m.State("g1") != nil {
		t.Error("state should be gone after the queue ends")
	}
	if len(f.platform.LeaveCalls) != 1 {
		t.Errorf("LeaveVoice calls = %d, want 1", len(f.platform.LeaveCalls))
	}
	if len(f.backend.DestroyCalls) != 1 {
		t.Errorf("Destroy calls = %d, want 1", len(f.backend.DestroyCalls))
	}
}

func TestSkip_RequiresRequesterOrPrivilege(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	if err := f.m.Skip(ctx, "g1", "stranger"); !errors.Is(err, player.ErrUnauthorized) {
		t.Fatalf("Skip() by stranger = %v, want ErrUnauthorized", err)
	}

	f.platform.PrivilegedUsers = map[string]bool{"mod": true}
	if err := f.m.Skip(ctx, "g1", "mod"); err != nil {
		t.Fatalf("Skip() by privileged user error: %v", err)
	}
}

func TestSkip_EmptyQueueEndsSession(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	if err := f.m.Skip(context.Background(), "g1", "u1"); err != nil {
		t.Fatalf("Skip() error: %v", err)
	}
	if f.m.State("g1") != nil {
		t.Error("state should be gone after skipping the last track")
	}
	if len(f.backend.StopCalls) != 1 {
		t.Errorf("Stop calls = %d, want 1", len(f.backend.StopCalls))
	}
}

func TestSkip_NothingPlaying(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if err := f.m.Skip(context.Background(), "g1", "u1"); !errors.Is(err, player.ErrNotPlaying) {
		t.Fatalf("Skip() = %v, want ErrNotPlaying", err)
	}
}

func TestSetVolume_PersistsRememberedVolumes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	if err := f.m.SetVolume(ctx, "g1", 80); err != nil {
		t.Fatalf("SetVolume(80) error: %v", err)
	}
	if v := f.store.ChannelVolumes["vc-g1"]; v != 80 {
		t.Errorf("persisted channel volume = %d, want 80", v)
	}

	// Near-mute volumes apply live but are not remembered.
	if err := f.m.SetVolume(ctx, "g1", 5); err != nil {
		t.Fatalf("SetVolume(5) error: %v", err)
	}
	if v := f.store.ChannelVolumes["vc-g1"]; v != 80 {
		t.Errorf("persisted channel volume = %d, want 80 after near-mute", v)
	}
	if v := f.m.State("g1").Volume(); v != 5 {
		t.Errorf("live volume = %d, want 5", v)
	}
}

func TestSetPause_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	if err := f.m.SetPause(ctx, "g1", true); err != nil {
		t.Fatalf("SetPause(true) error: %v", err)
	}
	if !f.m.State("g1").Paused() {
		t.Error("expected paused state")
	}
	if err := f.m.SetPause(ctx, "g1", false); err != nil {
		t.Fatalf("SetPause(false) error: %v", err)
	}
	if f.m.State("g1").Paused() {
		t.Error("expected resumed state")
	}
}

func TestSetPause_BackendFailureKeepsState(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	f.backend.Err = errors.New("node down")
	if err := f.m.SetPause(context.Background(), "g1", true); err == nil {
		t.Fatal("SetPause() should propagate the node failure")
	}
	if f.m.State("g1").Paused() {
		t.Error("pause flag must not flip when the node rejected the call")
	}
}

func TestStop_ClearsEverything(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))
	f.backend.ResolveResult = player.LoadResult{Type: player.LoadTrack, Tracks: []player.Track{testTrack("b", time.Minute)}}
	if _, err := f.m.Enqueue(ctx, player.EnqueueRequest{Origin: testOrigin("g1", "u1", "m2"), Query: "b"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	if err := f.m.Stop(ctx, "g1"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if f.m.State("g1") != nil {
		t.Error("state should be gone after Stop")
	}
	if len(f.backend.StopCalls) != 1 {
		t.Errorf("node Stop calls = %d, want 1", len(f.backend.StopCalls))
	}
	if len(f.platform.LeaveCalls) != 1 {
		t.Errorf("LeaveVoice calls = %d, want 1", len(f.platform.LeaveCalls))
	}
}

func TestShutdown_DisconnectsAllGuilds(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))
	f.startPlayback(t, "g2", "u2", "m2", testTrack("b", time.Minute))

	if err := f.m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if f.m.State("g1") != nil || f.m.State("g2") != nil {
		t.Error("all states should be gone after Shutdown")
	}
	if len(f.platform.LeaveCalls) != 2 {
		t.Errorf("LeaveVoice calls = %d, want 2", len(f.platform.LeaveCalls))
	}
	if len(f.backend.DestroyCalls) != 2 {
		t.Errorf("Destroy calls = %d, want 2", len(f.backend.DestroyCalls))
	}
}

func TestOnPlayerUpdate_TracksPosition(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.startPlayback(t, "g1", "u1", "m1", testTrack("a", time.Minute))

	f.m.OnPlayerUpdate("g1", 42*time.Second)
	if got := f.m.State("g1").Position(); got != 42*time.Second {
		t.Errorf("Position = %v, want 42s", got)
	}

	// Unknown guilds are ignored.
	f.m.OnPlayerUpdate("g2", time.Second)
}

func TestEnqueue_RecordsResolveLatency(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	backend := &mock.Backend{ResolveResult: player.LoadResult{
		Type:   player.LoadTrack,
		Tracks: []player.Track{testTrack("a", time.Minute)},
	}}
	clock := &mock.Clock{}
	m := player.New(player.Config{
		Backend:    backend,
		Platform:   &mock.Platform{},
		Store:      &mock.Store{},
		Translator: mock.Translator{},
		Metrics:    metrics,
		Timers:     clock.NewTimer,
	})

	if _, err := m.Enqueue(context.Background(), player.EnqueueRequest{
		Origin: testOrigin("g1", "u1", "m1"),
		Query:  "song",
	}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, want := range []string{"aria.resolve.duration", "aria.enqueue.duration"} {
		found := false
		for _, sm := range rm.ScopeMetrics {
			for _, mt := range sm.Metrics {
				if mt.Name == want {
					found = true
				}
			}
		}
		if !found {
			t.Errorf("%s never recorded", want)
		}
	}
}
