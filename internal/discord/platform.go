package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/hyeonsong/aria/internal/player"
)

// cancelCustomID is the custom id of the undo-enqueue button attached to
// queue status messages. The component interaction carries the message it
// sits on, so the id needs no payload.
const cancelCustomID = "queue_cancel"

// restAPI is the slice of the Discord REST/gateway API the platform layer
// calls. *discordgo.Session satisfies it.
type restAPI interface {
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
	Request(method, urlStr string, data any, options ...discordgo.RequestOption) ([]byte, error)
}

// Platform adapts a discordgo session to the playback orchestrator's chat
// platform interface: status messages, voice transport and presence math
// over the gateway state cache.
type Platform struct {
	rest  restAPI
	state *discordgo.State
	tr    player.Translator
	appID string
}

var _ player.Platform = (*Platform)(nil)

// NewPlatform wraps an opened discordgo session.
func NewPlatform(session *discordgo.Session, tr player.Translator) *Platform {
	return &Platform{
		rest:  session,
		state: session.State,
		tr:    tr,
		appID: session.State.User.ID,
	}
}

// Post delivers content as the status message for o. When the origin has
// an interaction token the deferred response is edited in place; otherwise
// a fresh message is sent to the origin's text channel. With cancelControl
// set, an undo button is attached.
func (p *Platform) Post(ctx context.Context, o player.Origin, content string, cancelControl bool) (string, error) {
	var components []discordgo.MessageComponent
	if cancelControl {
		components = []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    p.tr.Translate("cancel.button", o.Locale, nil),
						Style:    discordgo.DangerButton,
						CustomID: cancelCustomID,
					},
				},
			},
		}
	}

	if o.InteractionToken != "" {
		msg, err := p.rest.InteractionResponseEdit(
			&discordgo.Interaction{AppID: p.appID, Token: o.InteractionToken},
			&discordgo.WebhookEdit{Content: &content, Components: &components},
			discordgo.WithContext(ctx),
		)
		if err != nil {
			return "", fmt.Errorf("discord: edit interaction response: %w", err)
		}
		return msg.ID, nil
	}

	msg, err := p.rest.ChannelMessageSendComplex(o.TextChannelID, &discordgo.MessageSend{
		Content:    content,
		Components: components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: send status message: %w", err)
	}
	return msg.ID, nil
}

// DisableControls strips all interactive components from a message.
func (p *Platform) DisableControls(ctx context.Context, channelID, messageID string) error {
	empty := []discordgo.MessageComponent{}
	_, err := p.rest.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    channelID,
		ID:         messageID,
		Components: &empty,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: disable controls: %w", err)
	}
	return nil
}

// DeleteMessage removes a message from a channel.
func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := p.rest.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: delete message: %w", err)
	}
	return nil
}

// SetChannelStatus edits a voice channel's status label. An empty status
// clears it. The endpoint has no discordgo wrapper yet.
func (p *Platform) SetChannelStatus(ctx context.Context, channelID, status string) error {
	body := struct {
		Status string `json:"status"`
	}{Status: status}
	_, err := p.rest.Request("PUT", discordgo.EndpointChannel(channelID)+"/voice-status", body, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: set voice channel status: %w", err)
	}
	return nil
}

// JoinVoice asks the gateway to move our session into the voice channel.
// The node receives the resulting credentials through the voice-server
// update, not through this call.
func (p *Platform) JoinVoice(ctx context.Context, guildID, channelID string) error {
	if err := p.rest.ChannelVoiceJoinManual(guildID, channelID, false, true); err != nil {
		return fmt.Errorf("discord: join voice: %w", err)
	}
	return nil
}

// LeaveVoice disconnects our session from the guild's voice channel.
func (p *Platform) LeaveVoice(ctx context.Context, guildID string) error {
	if err := p.rest.ChannelVoiceJoinManual(guildID, "", false, true); err != nil {
		return fmt.Errorf("discord: leave voice: %w", err)
	}
	return nil
}

// HumanCount reports how many non-bot members the gateway state shows in
// the voice channel. Members missing from the cache count as humans.
func (p *Platform) HumanCount(guildID, channelID string) int {
	guild, err := p.state.Guild(guildID)
	if err != nil {
		return 0
	}
	count := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		if p.state.User != nil && vs.UserID == p.state.User.ID {
			continue
		}
		if m, err := p.state.Member(guildID, vs.UserID); err == nil && m.User != nil && m.User.Bot {
			continue
		}
		count++
	}
	return count
}

// BotInChannel reports whether our own session sits in the voice channel.
func (p *Platform) BotInChannel(guildID, channelID string) bool {
	if p.state.User == nil {
		return false
	}
	vs, err := p.state.VoiceState(guildID, p.state.User.ID)
	if err != nil {
		return false
	}
	return vs.ChannelID == channelID
}

// BotVoiceChannel returns the voice channel our session sits in for the
// guild, or "" when disconnected.
func (p *Platform) BotVoiceChannel(guildID string) string {
	if p.state.User == nil {
		return ""
	}
	vs, err := p.state.VoiceState(guildID, p.state.User.ID)
	if err != nil {
		return ""
	}
	return vs.ChannelID
}

// Privileged reports whether the user holds a moderation permission in
// the guild.
func (p *Platform) Privileged(guildID, userID string) bool {
	guild, err := p.state.Guild(guildID)
	if err != nil {
		return false
	}
	member, err := p.state.Member(guildID, userID)
	if err != nil {
		return false
	}
	return isModerator(guild, member)
}

// VoiceChannelOf returns the voice channel the user currently sits in,
// or "" when they are not in voice.
func (p *Platform) VoiceChannelOf(guildID, userID string) string {
	vs, err := p.state.VoiceState(guildID, userID)
	if err != nil {
		return ""
	}
	return vs.ChannelID
}

// ConnectAllowed reports whether our session holds the connect permission
// for the voice channel.
func (p *Platform) ConnectAllowed(channelID string) bool {
	if p.state.User == nil {
		return false
	}
	perms, err := p.state.UserChannelPermissions(p.state.User.ID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionVoiceConnect != 0
}

// ChannelFull reports whether the voice channel's user limit leaves no
// room for our session. A channel we already sit in is never full.
func (p *Platform) ChannelFull(guildID, channelID string) bool {
	ch, err := p.state.Channel(channelID)
	if err != nil || ch.UserLimit == 0 {
		return false
	}
	if p.BotInChannel(guildID, channelID) {
		return false
	}
	return p.HumanCount(guildID, channelID) >= ch.UserLimit
}
