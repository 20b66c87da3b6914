package asylum

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// DiscordSessionHandler is the subset of *discordgo.Session the bot
// uses, extracted so tests can substitute a fake session.
type DiscordSessionHandler interface {
	Open() error
	Close() error
	AddHandler(handler any) func()
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	FollowupMessageCreate(
		interaction *discordgo.Interaction,
		wait bool,
		data *discordgo.WebhookParams,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	UpdateCustomStatus(state string) error
}

// Discord manages the gateway session: opening it, registering the
// slash commands, and feeding interaction events to the dispatcher.
type Discord struct {
	session DiscordSessionHandler
	config  *DiscordConfig
	logger  *slog.Logger

	connected         atomic.Bool
	metricConnects    atomic.Int64
	metricDisconnects atomic.Int64
	metricGuilds      atomic.Int64

	discordgoRemoveHandlerFuncs []func()

	a *Asylum
}

// newDiscord initializes the Discord integration with the provided
// configuration.
func newDiscord(config *DiscordConfig, logHandler slog.Handler) *Discord {
	return &Discord{
		config: config,
		logger: slog.New(logHandler).With(loggerNameKey, "discord"),
	}
}

// newSession creates the underlying discordgo session. SyncEvents keeps
// gateway event handling serialized, which is what makes unguarded
// dispatcher access to the Tracker safe.
func (d *Discord) newSession(ctx context.Context) (DiscordSessionHandler, error) {
	session, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.SyncEvents = true
	session.StateEnabled = false
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	if d.config.httpClient != nil {
		session.Client = d.config.httpClient
	}

	discordgo.Logger = discordgoLoggerFunc(
		ctx,
		newLogHandler(d.config.DiscordGoLogLevel),
	)

	return session, nil
}

// Connected reports whether the gateway connection is currently up.
func (d *Discord) Connected() bool {
	return d.connected.Load()
}

// GuildCount returns the number of guilds seen in the Ready payload.
func (d *Discord) GuildCount() int64 {
	return d.metricGuilds.Load()
}

// ConnectCount returns the number of gateway connects since boot.
func (d *Discord) ConnectCount() int64 {
	return d.metricConnects.Load()
}

// DisconnectCount returns the number of gateway disconnects since boot.
func (d *Discord) DisconnectCount() int64 {
	return d.metricDisconnects.Load()
}

// applicationCommands returns the full slash-command set to register.
func applicationCommands() []*discordgo.ApplicationCommand {
	genreChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, 4)
	for _, genre := range promptGenres() {
		genreChoices = append(genreChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  genre,
			Value: genre,
		})
	}

	minWords := 1.0
	textOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        optionText,
			Description: description,
			Required:    true,
		}
	}

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        SlashCommandPing,
			Description: "Check that the bot is awake",
		},
		{
			Name:        SlashCommandPrompt,
			Description: "Get a writing prompt",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionGenre,
					Description: "dark, fantasy, romance or scifi",
					Choices:     genreChoices,
				},
			},
		},
		{
			Name:        SlashCommandWrite,
			Description: "Log a writing session",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionWords,
					Description: "How many words you wrote",
					Required:    true,
					MinValue:    &minWords,
				},
			},
		},
		{
			Name:        SlashCommandProfile,
			Description: "Your word total and streak",
		},
		{
			Name:        SlashCommandOutline,
			Description: "Turn an idea into a story outline",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionIdea,
					Description: "Your story idea",
					Required:    true,
				},
			},
		},
		{
			Name:        SlashCommandWordCount,
			Description: "Count words and characters",
			Options:     []*discordgo.ApplicationCommandOption{textOption("Text to count")},
		},
		{
			Name:        SlashCommandSetMeme,
			Description: "Choose the channel for memes",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        optionChannel,
					Description: "Channel to post memes in",
					Required:    true,
				},
			},
		},
		{
			Name:        SlashCommandSetVerse,
			Description: "Choose the channel for the daily verse",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        optionChannel,
					Description: "Channel to post the daily verse in",
					Required:    true,
				},
			},
		},
		{
			Name:        SlashCommandMeme,
			Description: "Post a meme right now",
		},
	}

	transformDescriptions := map[TransformKind]string{
		TransformRewrite:   "Rewrite text in a chosen style",
		TransformImprove:   "Improve text while keeping your voice",
		TransformProofread: "Proofread text and list issues",
		TransformGrammar:   "Fix grammar",
		TransformTone:      "Adjust the tone of text",
		TransformShorten:   "Make text shorter",
		TransformExpand:    "Make text longer",
		TransformTitle:     "Suggest a title",
		TransformFeedback:  "Get feedback on text",
	}
	for _, kind := range transformKinds() {
		cmd := &discordgo.ApplicationCommand{
			Name:        string(kind),
			Description: transformDescriptions[kind],
			Options:     []*discordgo.ApplicationCommandOption{textOption("Text to work on")},
		}
		switch kind {
		case TransformRewrite, TransformImprove:
			cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionStyle,
				Description: "Style to aim for (default: creative)",
			})
		case TransformTone:
			cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        optionTone,
				Description: "Tone to aim for (default: friendly)",
			})
		}
		commands = append(commands, cmd)
	}

	return commands
}

// registerCommands bulk-overwrites the application's slash commands.
func (d *Discord) registerCommands() error {
	registered, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		d.config.GuildID,
		applicationCommands(),
	)
	if err != nil {
		return fmt.Errorf("error registering commands: %w", err)
	}
	d.logger.Info("registered commands", "count", len(registered))
	return nil
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, r *discordgo.Ready) {
		d.metricGuilds.Store(int64(len(r.Guilds)))
		d.logger.Info(
			"Ready",
			"session_id", r.SessionID,
			"user_id", r.User.ID,
			"username", r.User.Username,
			"guilds", len(r.Guilds),
		)
		if d.config.CustomStatus != "" {
			if err := d.session.UpdateCustomStatus(d.config.CustomStatus); err != nil {
				d.logger.Warn("error setting custom status", tint.Err(err))
			}
		}
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	e *discordgo.Connect,
) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)
		d.logger.Info("Connected")
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	e *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.metricDisconnects.Add(1)
		d.connected.Store(false)
		d.logger.Warn("Disconnected")
	}
}

func (d *Discord) handlerInteractionCreate(ctx context.Context) func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		d.a.handleInteraction(ctx, i)
	}
}

// addHandlers registers the gateway event handlers, keeping the remove
// funcs for shutdown.
func (d *Discord) addHandlers(ctx context.Context) {
	d.discordgoRemoveHandlerFuncs = append(
		d.discordgoRemoveHandlerFuncs,
		d.session.AddHandler(d.handlerReady()),
		d.session.AddHandler(d.handlerConnect()),
		d.session.AddHandler(d.handlerDisconnect()),
		d.session.AddHandler(d.handlerInteractionCreate(ctx)),
	)
}

func (d *Discord) removeHandlers() {
	for _, remove := range d.discordgoRemoveHandlerFuncs {
		remove()
	}
	d.discordgoRemoveHandlerFuncs = nil
}
