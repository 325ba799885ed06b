package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc processes a Discord interaction.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

// CommandRouter dispatches interactions to registered handlers. Slash
// commands are keyed "command" or "command/subcommand"; message components
// are keyed by their custom id.
type CommandRouter struct {
	commands     map[string]*registeredCommand
	autocomplete map[string]HandlerFunc
	components   map[string]HandlerFunc
}

type registeredCommand struct {
	definition *discordgo.ApplicationCommand
	handler    HandlerFunc
	sub        map[string]HandlerFunc
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:     make(map[string]*registeredCommand),
		autocomplete: make(map[string]HandlerFunc),
		components:   make(map[string]HandlerFunc),
	}
}

// RegisterCommand registers a top-level slash command with its definition.
// The handler runs when the command is invoked without a subcommand, or
// when the invoked subcommand has no dedicated handler.
func (r *CommandRouter) RegisterCommand(name string, def *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.commands[name] = &registeredCommand{
		definition: def,
		handler:    handler,
		sub:        make(map[string]HandlerFunc),
	}
}

// RegisterSubcommand registers a handler for "command/subcommand". The
// parent command must be registered first.
func (r *CommandRouter) RegisterSubcommand(command, sub string, handler HandlerFunc) {
	rc, ok := r.commands[command]
	if !ok {
		panic("discord: subcommand registered before command " + command)
	}
	rc.sub[sub] = handler
}

// RegisterAutocomplete registers an autocomplete handler for a command
// key ("command" or "command/subcommand").
func (r *CommandRouter) RegisterAutocomplete(key string, handler HandlerFunc) {
	r.autocomplete[key] = handler
}

// RegisterComponent registers a handler for a message component custom id.
func (r *CommandRouter) RegisterComponent(customID string, handler HandlerFunc) {
	r.components[customID] = handler
}

// ApplicationCommands returns all registered command definitions for bulk
// registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, rc := range r.commands {
		defs = append(defs, rc.definition)
	}
	return defs
}

// Handle dispatches one interaction. Unknown commands and components get
// a generic ephemeral notice so the interaction does not hang.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		r.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		r.handleComponent(s, i)
	}
}

func (r *CommandRouter) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	rc, ok := r.commands[data.Name]
	if !ok {
		slog.Warn("unhandled command", "name", data.Name)
		RespondEphemeral(s, i, "Unknown command.")
		return
	}

	if sub, ok := subcommandName(data); ok {
		if h, ok := rc.sub[sub]; ok {
			h(s, i)
			return
		}
	}
	rc.handler(s, i)
}

func (r *CommandRouter) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	key := data.Name
	if sub, ok := subcommandName(data); ok {
		key = data.Name + "/" + sub
	}
	h, ok := r.autocomplete[key]
	if !ok {
		// An empty choice list is the only valid reply here.
		RespondChoices(s, i, nil)
		return
	}
	h(s, i)
}

func (r *CommandRouter) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	h, ok := r.components[customID]
	if !ok {
		slog.Warn("unhandled component", "custom_id", customID)
		RespondEphemeral(s, i, "This control is no longer active.")
		return
	}
	h(s, i)
}

func subcommandName(data discordgo.ApplicationCommandInteractionData) (string, bool) {
	if len(data.Options) == 1 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Name, true
	}
	return "", false
}
