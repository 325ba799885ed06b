// Package discord is the chat-platform layer: it owns the discordgo
// session, routes slash commands and components, implements the playback
// orchestrator's platform interface and bridges gateway voice events into
// presence notifications and audio-node voice credentials.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/hyeonsong/aria/internal/i18n"
	"github.com/hyeonsong/aria/internal/lavalink"
	"github.com/hyeonsong/aria/internal/player"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// GuildID scopes command registration to one guild when set; empty
	// registers commands globally.
	GuildID string `yaml:"guild_id"`
}

// VoiceUpdater receives the voice credentials the audio node needs to
// join a guild's voice channel.
type VoiceUpdater interface {
	UpdateVoice(ctx context.Context, guildID string, voice lavalink.VoiceState) error
}

// presenceSink is the slice of the playback manager the gateway handlers
// feed. *player.Manager satisfies it.
type presenceSink interface {
	OnPresenceChanged(ctx context.Context, ev player.PresenceEvent)
	OnGuildRemove(guildID string)
}

// Bot owns the Discord gateway connection. It dispatches interactions
// through the command router and feeds voice-state changes to the
// playback manager.
type Bot struct {
	mu       sync.Mutex
	session  *discordgo.Session
	router   *CommandRouter
	platform *Platform
	guildID  string
	commands []*discordgo.ApplicationCommand

	manager  presenceSink
	voice    VoiceUpdater
	locales  *i18n.Catalog
	playerCh *PlayerCommands

	// voiceSessions tracks our own gateway voice session id per guild,
	// paired with the voice-server token when it arrives.
	voiceSessions map[string]string

	closeOnce sync.Once
}

// New creates a Bot and connects to the Discord gateway.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	return &Bot{
		session:       session,
		router:        NewCommandRouter(),
		guildID:       cfg.GuildID,
		voiceSessions: make(map[string]string),
	}, nil
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Platform lazily builds the platform adapter over this session.
func (b *Bot) Platform(tr player.Translator) *Platform {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.platform == nil {
		b.platform = NewPlatform(b.session, tr)
	}
	return b.platform
}

// Bind attaches the playback collaborators and installs the gateway
// handlers. Call once, after the manager and command surface exist.
func (b *Bot) Bind(manager *player.Manager, commands *PlayerCommands, voice VoiceUpdater, locales *i18n.Catalog) {
	b.manager = manager
	b.playerCh = commands
	b.voice = voice
	b.locales = locales

	commands.Register(b.router)

	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onVoiceServerUpdate)
	b.session.AddHandler(b.onGuildCreate)
	b.session.AddHandler(b.onGuildDelete)

	b.bindEmojis()
}

// bindEmojis resolves :name: placeholders in localized messages against
// the application's uploaded emoji set.
func (b *Bot) bindEmojis() {
	if b.locales == nil || b.session.State.User == nil {
		return
	}
	emojis, err := b.session.ApplicationEmojis(b.session.State.User.ID)
	if err != nil {
		slog.Warn("application emoji fetch failed", "err", err)
		return
	}
	byName := make(map[string]string, len(emojis))
	for _, e := range emojis {
		byName[e.Name] = e.MessageFormat()
	}
	b.locales.SetEmojiResolver(func(name string) string {
		return byName[name]
	})
	slog.Info("application emojis bound", "count", len(byName))
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
	self := s.State.User != nil && vsu.UserID == s.State.User.ID
	if self {
		b.mu.Lock()
		if vsu.ChannelID == "" {
			delete(b.voiceSessions, vsu.GuildID)
		} else {
			b.voiceSessions[vsu.GuildID] = vsu.SessionID
		}
		b.mu.Unlock()
	}

	ev := player.PresenceEvent{
		GuildID:     vsu.GuildID,
		UserID:      vsu.UserID,
		Self:        self,
		ToChannelID: vsu.ChannelID,
	}
	if vsu.BeforeUpdate != nil {
		ev.FromChannelID = vsu.BeforeUpdate.ChannelID
	}
	if vsu.Member != nil && vsu.Member.User != nil {
		ev.Bot = vsu.Member.User.Bot
	} else if m, err := s.State.Member(vsu.GuildID, vsu.UserID); err == nil && m.User != nil {
		ev.Bot = m.User.Bot
	}

	b.manager.OnPresenceChanged(context.Background(), ev)
}

// onVoiceServerUpdate pairs the server token with our session id and
// hands both to the audio node, which performs the actual voice connect.
func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, vsu *discordgo.VoiceServerUpdate) {
	b.mu.Lock()
	sessionID := b.voiceSessions[vsu.GuildID]
	b.mu.Unlock()
	if sessionID == "" {
		slog.Warn("voice server update without session", "guild_id", vsu.GuildID)
		return
	}

	err := b.voice.UpdateVoice(context.Background(), vsu.GuildID, lavalink.VoiceState{
		Token:     vsu.Token,
		Endpoint:  vsu.Endpoint,
		SessionID: sessionID,
	})
	if err != nil {
		slog.Error("voice credential handoff failed", "guild_id", vsu.GuildID, "err", err)
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if b.playerCh == nil {
		return
	}
	b.playerCh.SeedGuild(context.Background(), g.ID)
}

func (b *Bot) onGuildDelete(s *discordgo.Session, g *discordgo.GuildDelete) {
	b.manager.OnGuildRemove(g.ID)
	if b.playerCh != nil {
		b.playerCh.ForgetGuild(g.ID)
	}
}

// Run registers the slash commands and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.session.State.User.ID
	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close unregisters commands and disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
