package discord

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/bwmarrin/discordgo"

	"github.com/hyeonsong/aria/internal/player"
)

const (
	// commandCooldown is the refill interval of the per-user token bucket.
	commandCooldown = 3 * time.Second
	cooldownBurst   = 3
	modBurst        = 8

	// autocompleteLimit caps suggestion lists; Discord rejects more than 25.
	autocompleteLimit = 10
)

// QueryHistory persists and serves past /play queries for autocomplete.
type QueryHistory interface {
	InsertQuery(ctx context.Context, guildID, userID, query string) error
	RecentQueries(ctx context.Context, guildID, userID string, limit int) ([]string, error)
}

// PlayerCommands owns the playback slash-command surface: /play, /skip,
// /pause, /resume, /stop, /volume and /dedicated-channel, plus the
// undo-enqueue button handler.
type PlayerCommands struct {
	manager   *player.Manager
	platform  *Platform
	tr        player.Translator
	store     player.Store
	history   QueryHistory
	dedicated *dedicatedCache
	nodeUp    func() bool
	cooldown  *Cooldown
}

// NewPlayerCommands wires the command surface. nodeUp reports whether the
// audio node currently accepts work.
func NewPlayerCommands(manager *player.Manager, platform *Platform, tr player.Translator, store player.Store, history QueryHistory, nodeUp func() bool) *PlayerCommands {
	return &PlayerCommands{
		manager:   manager,
		platform:  platform,
		tr:        tr,
		store:     store,
		history:   history,
		dedicated: newDedicatedCache(),
		nodeUp:    nodeUp,
		cooldown:  NewCooldown(commandCooldown, cooldownBurst, modBurst),
	}
}

// LoadDedicatedChannels primes the dedicated-channel cache from the store.
func (pc *PlayerCommands) LoadDedicatedChannels(ctx context.Context) error {
	return pc.dedicated.load(ctx, pc.store)
}

// SeedGuild makes sure a newly joined guild has a stored default volume.
func (pc *PlayerCommands) SeedGuild(ctx context.Context, guildID string) {
	_, ok, err := pc.store.DefaultVolume(ctx, guildID)
	if err != nil {
		slog.Warn("default volume lookup failed", "guild_id", guildID, "err", err)
		return
	}
	if ok {
		return
	}
	if err := pc.store.SetDefaultVolume(ctx, guildID, player.DefaultVolume); err != nil {
		slog.Warn("default volume seed failed", "guild_id", guildID, "err", err)
	}
}

// ForgetGuild drops per-guild throttling state after the bot leaves.
func (pc *PlayerCommands) ForgetGuild(guildID string) {
	pc.cooldown.Forget(guildID)
}

// Register registers all commands, autocomplete and component handlers.
func (pc *PlayerCommands) Register(router *CommandRouter) {
	router.RegisterCommand("play", playDefinition(), pc.handlePlay)
	router.RegisterAutocomplete("play", pc.handlePlayAutocomplete)

	router.RegisterCommand("skip", simpleDefinition("skip", "Skip the current track"), pc.handleSkip)
	router.RegisterCommand("pause", simpleDefinition("pause", "Pause playback"), pc.handlePause)
	router.RegisterCommand("resume", simpleDefinition("resume", "Resume playback"), pc.handleResume)
	router.RegisterCommand("stop", simpleDefinition("stop", "Stop playback and clear the queue"), pc.handleStop)

	router.RegisterCommand("volume", volumeDefinition(), pc.handleVolume)

	router.RegisterCommand("dedicated-channel", dedicatedDefinition(), pc.handleDedicatedShow)
	router.RegisterSubcommand("dedicated-channel", "show", pc.handleDedicatedShow)
	router.RegisterSubcommand("dedicated-channel", "set", pc.handleDedicatedSet)

	router.RegisterComponent(cancelCustomID, pc.handleCancel)
}

func playDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "play",
		Description: "Play a track or playlist, or queue it behind the current one",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:         "query",
				Description:  "URL or search text",
				Type:         discordgo.ApplicationCommandOptionString,
				Required:     true,
				Autocomplete: true,
			},
		},
	}
}

func simpleDefinition(name, description string) *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{Name: name, Description: description}
}

func volumeDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "volume",
		Description: "Show or change the playback volume",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "level",
				Description: "New volume (omit to show the current one)",
				Type:        discordgo.ApplicationCommandOptionInteger,
			},
		},
	}
}

func dedicatedDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "dedicated-channel",
		Description: "Manage the text channel reserved for music commands",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "show",
				Description: "Show the dedicated channel",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "set",
				Description: "Set the dedicated channel",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "channel",
						Description: "Text channel to reserve",
						Type:        discordgo.ApplicationCommandOptionChannel,
						Required:    true,
					},
				},
			},
		},
	}
}

func invokerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (pc *PlayerCommands) text(i *discordgo.InteractionCreate, key string, params map[string]any) string {
	return pc.tr.Translate(key, string(i.Locale), params)
}

// precheck runs the shared command preconditions: dedicated channel,
// invoker in voice, same channel as the bot's live session, node up and
// per-user cooldown. On failure it replies ephemerally and returns ok
// false; on success it returns the invoker's voice channel.
func (pc *PlayerCommands) precheck(r Responder, i *discordgo.InteractionCreate) (voiceChannelID string, ok bool) {
	guildID, userID := i.GuildID, invokerID(i)

	if dedicated := pc.dedicated.get(guildID); dedicated != "" && i.ChannelID != dedicated {
		RespondEphemeral(r, i, pc.text(i, "error.wrong_channel", map[string]any{"channel": "<#" + dedicated + ">"}))
		return "", false
	}

	voiceChannelID = pc.platform.VoiceChannelOf(guildID, userID)
	if voiceChannelID == "" {
		RespondEphemeral(r, i, pc.text(i, "error.not_in_voice", nil))
		return "", false
	}

	if botCh := pc.platform.BotVoiceChannel(guildID); botCh != "" && botCh != voiceChannelID {
		RespondEphemeral(r, i, pc.text(i, "error.different_channel", nil))
		return "", false
	}

	if !pc.nodeUp() {
		RespondEphemeral(r, i, pc.text(i, "error.node_unavailable", nil))
		return "", false
	}

	if !pc.cooldown.Allow(guildID, userID, pc.platform.Privileged(guildID, userID)) {
		RespondEphemeral(r, i, pc.text(i, "error.cooldown", nil))
		return "", false
	}

	return voiceChannelID, true
}

func (pc *PlayerCommands) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.play(context.Background(), s, i)
}

func (pc *PlayerCommands) play(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	voiceChannelID, ok := pc.precheck(r, i)
	if !ok {
		return
	}

	if !pc.platform.ConnectAllowed(voiceChannelID) {
		RespondEphemeral(r, i, pc.text(i, "error.no_permission", nil))
		return
	}
	if pc.platform.ChannelFull(i.GuildID, voiceChannelID) {
		RespondEphemeral(r, i, pc.text(i, "error.channel_full", nil))
		return
	}

	query, ok := stringOption(i, "query")
	if !ok || query == "" {
		RespondEphemeral(r, i, pc.text(i, "error.internal", nil))
		return
	}

	// The deferred response becomes the public status message; its id keys
	// the undo-enqueue window.
	if err := DeferReply(r, i); err != nil {
		slog.Error("play defer failed", "guild_id", i.GuildID, "err", err)
		return
	}
	msg, err := r.InteractionResponse(i.Interaction)
	if err != nil {
		slog.Error("play response lookup failed", "guild_id", i.GuildID, "err", err)
		return
	}

	userID := invokerID(i)
	if err := pc.history.InsertQuery(ctx, i.GuildID, userID, query); err != nil {
		slog.Warn("query history persist failed", "guild_id", i.GuildID, "err", err)
	}

	_, err = pc.manager.Enqueue(ctx, player.EnqueueRequest{
		Origin: player.Origin{
			GuildID:          i.GuildID,
			UserID:           userID,
			VoiceChannelID:   voiceChannelID,
			TextChannelID:    i.ChannelID,
			InteractionID:    i.ID,
			InteractionToken: i.Token,
			MessageID:        msg.ID,
			Locale:           string(i.Locale),
		},
		Query: query,
	})
	if err != nil && !errors.Is(err, player.ErrNotFound) && !errors.Is(err, player.ErrLoadFailed) {
		// Resolution failures were already reported on the status message.
		slog.Error("enqueue failed", "guild_id", i.GuildID, "err", err)
	}
}

func (pc *PlayerCommands) handlePlayAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.playAutocomplete(context.Background(), s, i)
}

// playAutocomplete suggests the user's recent queries, ranked by edit
// distance to what they have typed so far.
func (pc *PlayerCommands) playAutocomplete(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	typed, _ := stringOption(i, "query")

	queries, err := pc.history.RecentQueries(ctx, i.GuildID, invokerID(i), 25)
	if err != nil {
		slog.Warn("query history lookup failed", "guild_id", i.GuildID, "err", err)
		RespondChoices(r, i, nil)
		return
	}

	if typed != "" {
		sort.SliceStable(queries, func(a, b int) bool {
			return matchr.Levenshtein(typed, queries[a]) < matchr.Levenshtein(typed, queries[b])
		})
	}
	if len(queries) > autocompleteLimit {
		queries = queries[:autocompleteLimit]
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(queries))
	for _, q := range queries {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: q, Value: q})
	}
	RespondChoices(r, i, choices)
}

func (pc *PlayerCommands) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.skip(context.Background(), s, i)
}

func (pc *PlayerCommands) skip(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if _, ok := pc.precheck(r, i); !ok {
		return
	}

	err := pc.manager.Skip(ctx, i.GuildID, invokerID(i))
	switch {
	case errors.Is(err, player.ErrNotPlaying):
		RespondEphemeral(r, i, pc.text(i, "error.not_playing", nil))
	case errors.Is(err, player.ErrUnauthorized):
		RespondEphemeral(r, i, pc.text(i, "skip.unauthorized", nil))
	case err != nil:
		slog.Error("skip failed", "guild_id", i.GuildID, "err", err)
		RespondEphemeral(r, i, pc.text(i, "error.internal", nil))
	default:
		RespondEphemeral(r, i, pc.text(i, "skip.done", nil))
	}
}

func (pc *PlayerCommands) handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.setPause(context.Background(), s, i, true)
}

func (pc *PlayerCommands) handleResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.setPause(context.Background(), s, i, false)
}

func (pc *PlayerCommands) setPause(ctx context.Context, r Responder, i *discordgo.InteractionCreate, paused bool) {
	if _, ok := pc.precheck(r, i); !ok {
		return
	}

	err := pc.manager.SetPause(ctx, i.GuildID, paused)
	switch {
	case errors.Is(err, player.ErrNotPlaying):
		RespondEphemeral(r, i, pc.text(i, "error.not_playing", nil))
	case err != nil:
		slog.Error("pause toggle failed", "guild_id", i.GuildID, "paused", paused, "err", err)
		RespondEphemeral(r, i, pc.text(i, "error.internal", nil))
	case paused:
		RespondEphemeral(r, i, pc.text(i, "pause.done", nil))
	default:
		RespondEphemeral(r, i, pc.text(i, "resume.done", nil))
	}
}

func (pc *PlayerCommands) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.stop(context.Background(), s, i)
}

func (pc *PlayerCommands) stop(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if _, ok := pc.precheck(r, i); !ok {
		return
	}

	err := pc.manager.Stop(ctx, i.GuildID)
	switch {
	case errors.Is(err, player.ErrNotPlaying):
		RespondEphemeral(r, i, pc.text(i, "error.not_playing", nil))
	case err != nil:
		slog.Error("stop failed", "guild_id", i.GuildID, "err", err)
		RespondEphemeral(r, i, pc.text(i, "error.internal", nil))
	default:
		RespondEphemeral(r, i, pc.text(i, "stop.done", nil))
	}
}

func (pc *PlayerCommands) handleVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.volume(context.Background(), s, i)
}

func (pc *PlayerCommands) volume(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	level, hasLevel := intOption(i, "level")
	if !hasLevel {
		RespondEphemeral(r, i, pc.text(i, "volume.current", map[string]any{
			"volume": pc.currentVolume(ctx, i.GuildID),
		}))
		return
	}

	if _, ok := pc.precheck(r, i); !ok {
		return
	}

	if level < 0 || level > pc.manager.MaxVolume() {
		RespondEphemeral(r, i, pc.text(i, "volume.out_of_range", map[string]any{
			"max": pc.manager.MaxVolume(),
		}))
		return
	}

	err := pc.manager.SetVolume(ctx, i.GuildID, level)
	switch {
	case errors.Is(err, player.ErrNotPlaying):
		RespondEphemeral(r, i, pc.text(i, "error.not_playing", nil))
	case err != nil:
		slog.Error("volume change failed", "guild_id", i.GuildID, "err", err)
		RespondEphemeral(r, i, pc.text(i, "error.internal", nil))
	default:
		RespondEphemeral(r, i, pc.text(i, "volume.set", map[string]any{"volume": level}))
	}
}

// currentVolume prefers the live player's volume and falls back to the
// stored guild default.
func (pc *PlayerCommands) currentVolume(ctx context.Context, guildID string) int {
	if st := pc.manager.State(guildID); st != nil {
		return st.Volume()
	}
	if v, ok, err := pc.store.DefaultVolume(ctx, guildID); err == nil && ok {
		return v
	}
	return player.DefaultVolume
}

func (pc *PlayerCommands) handleDedicatedShow(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.dedicatedShow(s, i)
}

func (pc *PlayerCommands) dedicatedShow(r Responder, i *discordgo.InteractionCreate) {
	channelID := pc.dedicated.get(i.GuildID)
	if channelID == "" {
		RespondEphemeral(r, i, pc.text(i, "dedicated.none", nil))
		return
	}
	RespondEphemeral(r, i, pc.text(i, "dedicated.current", map[string]any{
		"channel": "<#" + channelID + ">",
	}))
}

func (pc *PlayerCommands) handleDedicatedSet(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.dedicatedSet(context.Background(), s, i)
}

func (pc *PlayerCommands) dedicatedSet(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if !pc.platform.Privileged(i.GuildID, invokerID(i)) {
		RespondEphemeral(r, i, pc.text(i, "error.moderator_only", nil))
		return
	}

	channelID, ok := channelOption(i, "channel")
	if !ok {
		RespondEphemeral(r, i, pc.text(i, "error.internal", nil))
		return
	}

	if err := pc.store.SetDedicatedChannel(ctx, i.GuildID, channelID); err != nil {
		slog.Error("dedicated channel persist failed", "guild_id", i.GuildID, "err", err)
		RespondEphemeral(r, i, pc.text(i, "error.internal", nil))
		return
	}
	pc.dedicated.set(i.GuildID, channelID)
	RespondEphemeral(r, i, pc.text(i, "dedicated.set", map[string]any{
		"channel": "<#" + channelID + ">",
	}))
}

func (pc *PlayerCommands) handleCancel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.cancel(context.Background(), s, i)
}

// cancel handles the undo-enqueue button. The button sits on the status
// message whose id keys the window, so the interaction itself carries
// everything the manager needs.
func (pc *PlayerCommands) cancel(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if i.Message == nil {
		return
	}
	RespondUpdateDeferred(r, i)

	err := pc.manager.CancelQueuedItem(ctx, i.Message.ID, invokerID(i))
	switch {
	case errors.Is(err, player.ErrUnauthorized):
		FollowUp(r, i, pc.text(i, "cancel.unauthorized", nil))
	case errors.Is(err, player.ErrUnavailable):
		FollowUp(r, i, pc.text(i, "cancel.too_late", nil))
	case errors.Is(err, player.ErrAlreadyDone):
		FollowUp(r, i, pc.text(i, "cancel.already_done", nil))
	case err != nil:
		slog.Error("cancellation failed", "guild_id", i.GuildID, "message_id", i.Message.ID, "err", err)
		FollowUp(r, i, pc.text(i, "error.internal", nil))
	default:
		FollowUp(r, i, pc.text(i, "cancel.done", nil))
	}
}

func stringOption(i *discordgo.InteractionCreate, name string) (string, bool) {
	for _, opt := range flattenOptions(i) {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue(), true
		}
	}
	return "", false
}

func intOption(i *discordgo.InteractionCreate, name string) (int, bool) {
	for _, opt := range flattenOptions(i) {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionInteger {
			return int(opt.IntValue()), true
		}
	}
	return 0, false
}

func channelOption(i *discordgo.InteractionCreate, name string) (string, bool) {
	for _, opt := range flattenOptions(i) {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionChannel {
			if v, ok := opt.Value.(string); ok {
				return v, true
			}
		}
	}
	return "", false
}

// flattenOptions returns the interaction's leaf options, descending one
// level into a subcommand when present.
func flattenOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return opts[0].Options
	}
	return opts
}
