// Package mock provides test doubles for Discord interaction and REST
// testing.
package mock

import "github.com/bwmarrin/discordgo"

// InteractionResponder records interaction responses for test assertions.
type InteractionResponder struct {
	// Responses records all InteractionRespond calls.
	Responses []*discordgo.InteractionResponse

	// FollowUps records all FollowupMessageCreate calls.
	FollowUps []*discordgo.WebhookParams

	// ResponseMessage is returned by InteractionResponse, standing in for
	// the deferred status message.
	ResponseMessage *discordgo.Message

	// Err is returned by every call when non-nil, allowing error injection.
	Err error
}

// InteractionRespond records the response and returns the configured error.
func (m *InteractionResponder) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	m.Responses = append(m.Responses, resp)
	return m.Err
}

// InteractionResponse returns the configured response message.
func (m *InteractionResponder) InteractionResponse(i *discordgo.Interaction, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.ResponseMessage != nil {
		return m.ResponseMessage, nil
	}
	return &discordgo.Message{ID: "mock-response"}, nil
}

// FollowupMessageCreate records the follow-up and returns a stub message.
func (m *InteractionResponder) FollowupMessageCreate(i *discordgo.Interaction, wait bool, params *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.FollowUps = append(m.FollowUps, params)
	if m.Err != nil {
		return nil, m.Err
	}
	return &discordgo.Message{ID: "mock-followup"}, nil
}

// LastResponse returns the most recently recorded response, or nil.
func (m *InteractionResponder) LastResponse() *discordgo.InteractionResponse {
	if len(m.Responses) == 0 {
		return nil
	}
	return m.Responses[len(m.Responses)-1]
}

// LastFollowUp returns the most recently recorded follow-up, or nil.
func (m *InteractionResponder) LastFollowUp() *discordgo.WebhookParams {
	if len(m.FollowUps) == 0 {
		return nil
	}
	return m.FollowUps[len(m.FollowUps)-1]
}

// RequestRecord is one raw REST request seen by the Rest recorder.
type RequestRecord struct {
	Method string
	URL    string
	Body   any
}

// Rest records the REST calls the platform adapter issues.
type Rest struct {
	// Edits records InteractionResponseEdit payloads.
	Edits []*discordgo.WebhookEdit

	// Sends records ChannelMessageSendComplex payloads, keyed in order.
	Sends []*discordgo.MessageSend
	// SendChannels records the channel of each send.
	SendChannels []string

	// MessageEdits records ChannelMessageEditComplex payloads.
	MessageEdits []*discordgo.MessageEdit

	// Deleted records "channel/message" pairs passed to ChannelMessageDelete.
	Deleted []string

	// VoiceJoins records "guild/channel" pairs from ChannelVoiceJoinManual.
	VoiceJoins []string

	// Requests records raw Request calls.
	Requests []RequestRecord

	// NextMessageID is the id of messages returned from edit/send calls.
	NextMessageID string

	// Err is returned by every call when non-nil.
	Err error
}

func (r *Rest) message() *discordgo.Message {
	id := r.NextMessageID
	if id == "" {
		id = "mock-message"
	}
	return &discordgo.Message{ID: id}
}

func (r *Rest) InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.Edits = append(r.Edits, newresp)
	if r.Err != nil {
		return nil, r.Err
	}
	return r.message(), nil
}

func (r *Rest) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.Sends = append(r.Sends, data)
	r.SendChannels = append(r.SendChannels, channelID)
	if r.Err != nil {
		return nil, r.Err
	}
	return r.message(), nil
}

func (r *Rest) ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.MessageEdits = append(r.MessageEdits, m)
	if r.Err != nil {
		return nil, r.Err
	}
	return r.message(), nil
}

func (r *Rest) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	r.Deleted = append(r.Deleted, channelID+"/"+messageID)
	return r.Err
}

func (r *Rest) ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error {
	r.VoiceJoins = append(r.VoiceJoins, gID+"/"+cID)
	return r.Err
}

func (r *Rest) Request(method, urlStr string, data any, options ...discordgo.RequestOption) ([]byte, error) {
	r.Requests = append(r.Requests, RequestRecord{Method: method, URL: urlStr, Body: data})
	if r.Err != nil {
		return nil, r.Err
	}
	return []byte("{}"), nil
}
