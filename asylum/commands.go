package asylum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// Slash command names. Each maps to exactly one Command variant below.
const (
	SlashCommandPing      = "ping"
	SlashCommandPrompt    = "prompt"
	SlashCommandWrite     = "write"
	SlashCommandProfile   = "profile"
	SlashCommandOutline   = "outline"
	SlashCommandWordCount = "wordcount"
	SlashCommandSetMeme   = "setmeme"
	SlashCommandSetVerse  = "setverse"
	SlashCommandMeme      = "meme"
)

const (
	optionGenre   = "genre"
	optionWords   = "words"
	optionIdea    = "idea"
	optionText    = "text"
	optionStyle   = "style"
	optionTone    = "tone"
	optionChannel = "channel"
)

const pingResponse = "🖋️ Author's Asylum is awake."

// Command is one parsed slash-command invocation. The set of variants
// is closed; Dispatcher.Dispatch matches it exhaustively.
type Command interface {
	commandName() string
}

type PingCommand struct{}

type PromptCommand struct {
	// Genre may be empty or unrecognized; both fall back to the union
	// of all prompt pools
	Genre string
}

type WriteCommand struct {
	Words int64
}

type ProfileCommand struct{}

type OutlineCommand struct {
	Idea string
}

type TransformCommand struct {
	Kind TransformKind
	Text string
	// Style doubles as tone for the tone command; empty means the
	// kind's fixed default
	Style string
}

type WordCountCommand struct {
	Text string
}

type SetChannelCommand struct {
	Role      ChannelRole
	ChannelID string
}

type MemeNowCommand struct{}

// UnknownCommand carries a command name with no handler; it gets a
// user-visible "unknown command" reply rather than a silent drop.
type UnknownCommand struct {
	Raw string
}

func (PingCommand) commandName() string { return SlashCommandPing }
func (PromptCommand) commandName() string { return SlashCommandPrompt }
func (WriteCommand) commandName() string { return SlashCommandWrite }
func (ProfileCommand) commandName() string { return SlashCommandProfile }
func (OutlineCommand) commandName() string { return SlashCommandOutline }
func (c TransformCommand) commandName() string {
	return string(c.Kind)
}
func (WordCountCommand) commandName() string { return SlashCommandWordCount }
func (c SetChannelCommand) commandName() string {
	if c.Role == ChannelRoleVerse {
		return SlashCommandSetVerse
	}
	return SlashCommandSetMeme
}
func (MemeNowCommand) commandName() string { return SlashCommandMeme }
func (c UnknownCommand) commandName() string { return c.Raw }

// parseCommand maps an interaction's command name and option bag onto a
// typed Command variant. Matching is exact and case-sensitive.
func parseCommand(i *discordgo.InteractionCreate) Command {
	data := i.ApplicationCommandData()
	options := discordInteractionOptions(i)

	stringOption := func(name string) string {
		if opt, ok := options[name]; ok {
			return opt.StringValue()
		}
		return ""
	}

	switch data.Name {
	case SlashCommandPing:
		return PingCommand{}
	case SlashCommandPrompt:
		return PromptCommand{Genre: stringOption(optionGenre)}
	case SlashCommandWrite:
		var words int64
		if opt, ok := options[optionWords]; ok {
			words = opt.IntValue()
		}
		return WriteCommand{Words: words}
	case SlashCommandProfile:
		return ProfileCommand{}
	case SlashCommandOutline:
		return OutlineCommand{Idea: stringOption(optionIdea)}
	case SlashCommandWordCount:
		return WordCountCommand{Text: stringOption(optionText)}
	case SlashCommandSetMeme, SlashCommandSetVerse:
		role := ChannelRoleMeme
		if data.Name == SlashCommandSetVerse {
			role = ChannelRoleVerse
		}
		var channelID string
		if opt, ok := options[optionChannel]; ok {
			channelID = opt.ChannelValue(nil).ID
		}
		return SetChannelCommand{Role: role, ChannelID: channelID}
	case SlashCommandMeme:
		return MemeNowCommand{}
	}

	for _, kind := range transformKinds() {
		if data.Name != string(kind) {
			continue
		}
		style := stringOption(optionStyle)
		if kind == TransformTone {
			style = stringOption(optionTone)
		}
		return TransformCommand{
			Kind:  kind,
			Text:  stringOption(optionText),
			Style: style,
		}
	}

	return UnknownCommand{Raw: data.Name}
}

// Dispatcher routes parsed commands to their handlers and owns the
// reply lifecycle: every invocation gets exactly one primary reply, and
// no handler failure or panic escapes past Dispatch.
type Dispatcher struct {
	tracker     *Tracker
	registry    *Registry
	chain       *TransformChain
	broadcaster *Broadcaster
	logger      *slog.Logger

	errorMessage          string
	unknownCommandMessage string
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(
	tracker *Tracker,
	registry *Registry,
	chain *TransformChain,
	broadcaster *Broadcaster,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tracker:               tracker,
		registry:              registry,
		chain:                 chain,
		broadcaster:           broadcaster,
		logger:                logger.With(loggerNameKey, "dispatcher"),
		errorMessage:          DefaultDiscordErrorMessage,
		unknownCommandMessage: DefaultDiscordUnknownCommand,
	}
}

// Dispatch runs one command to completion, replying through the
// handler. It returns the audit outcome and, for failures, the
// underlying error (which is never shown to the user verbatim).
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	handler InteractionHandler,
	cmd Command,
	user *discordgo.User,
) (outcome string, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			d.logger.ErrorContext(
				ctx,
				"panic in command handler",
				"command", cmd.commandName(),
				"recovered", rv,
				"stack", string(debug.Stack()),
			)
			outcome = interactionOutcomeError
			err = fmt.Errorf("panic: %v", rv)
			handler.Reply(ctx, d.errorMessage)
		}
	}()

	switch c := cmd.(type) {
	case PingCommand:
		handler.Reply(ctx, pingResponse)
	case PromptCommand:
		handler.Reply(ctx, fmt.Sprintf("🩸 **Prompt:** %s", randomPrompt(c.Genre)))
	case WriteCommand:
		return d.handleWrite(ctx, handler, c, user)
	case ProfileCommand:
		record := d.tracker.GetProfile(user.ID)
		handler.Reply(ctx, fmt.Sprintf(
			"📓 **%s**\nTotal words: %d\nStreak: %d day(s)",
			user.Username,
			record.TotalWords,
			record.StreakDays,
		))
	case OutlineCommand:
		handler.Reply(ctx, outlineTemplate(c.Idea))
	case TransformCommand:
		return d.handleTransform(ctx, handler, c)
	case WordCountCommand:
		handler.Reply(ctx, fmt.Sprintf(
			"Words: %d\nCharacters: %d",
			wordCount(c.Text),
			charCount(c.Text),
		))
	case SetChannelCommand:
		return d.handleSetChannel(ctx, handler, c)
	case MemeNowCommand:
		return d.handleMemeNow(ctx, handler)
	case UnknownCommand:
		d.logger.WarnContext(ctx, "unknown command", "command", c.Raw)
		handler.Reply(ctx, d.unknownCommandMessage)
		return interactionOutcomeUnknown, nil
	}
	return interactionOutcomeOK, nil
}

func (d *Dispatcher) handleWrite(
	ctx context.Context,
	handler InteractionHandler,
	c WriteCommand,
	user *discordgo.User,
) (string, error) {
	record, err := d.tracker.LogSession(user.ID, c.Words)
	if err != nil {
		if errors.Is(err, ErrInvalidWordCount) {
			handler.Reply(ctx, "Word count has to be a positive number.")
			return interactionOutcomeError, err
		}
		d.logger.ErrorContext(ctx, "error logging session", tint.Err(err))
		handler.Reply(ctx, d.errorMessage)
		return interactionOutcomeError, err
	}
	handler.Reply(ctx, fmt.Sprintf(
		"✍️ Logged %d words. Total: %d. Streak: %d day(s)!",
		c.Words,
		record.TotalWords,
		record.StreakDays,
	))
	return interactionOutcomeOK, nil
}

func (d *Dispatcher) handleTransform(
	ctx context.Context,
	handler InteractionHandler,
	c TransformCommand,
) (string, error) {
	// AI calls can take a while; defer so the interaction token
	// doesn't lapse before the reply
	if err := handler.Ack(ctx); err != nil {
		d.logger.WarnContext(ctx, "error deferring response", tint.Err(err))
	}

	result, err := d.chain.Transform(ctx, TransformRequest{
		Kind:  c.Kind,
		Text:  c.Text,
		Style: c.Style,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "transform chain exhausted", tint.Err(err))
		handler.Reply(ctx, d.errorMessage)
		return interactionOutcomeError, err
	}
	handler.Reply(ctx, result)
	return interactionOutcomeOK, nil
}

func (d *Dispatcher) handleSetChannel(
	ctx context.Context,
	handler InteractionHandler,
	c SetChannelCommand,
) (string, error) {
	if c.ChannelID == "" {
		handler.Reply(ctx, "Pick a channel to bind.")
		return interactionOutcomeError, ErrMissingChannel
	}
	if err := d.registry.SetChannel(c.Role, c.ChannelID); err != nil {
		d.logger.ErrorContext(ctx, "error binding channel", tint.Err(err))
		handler.Reply(ctx, d.errorMessage)
		return interactionOutcomeError, err
	}

	switch c.Role {
	case ChannelRoleMeme:
		handler.Reply(ctx, fmt.Sprintf("Memes will be posted in <#%s>.", c.ChannelID))
	case ChannelRoleVerse:
		handler.Reply(ctx, fmt.Sprintf("The daily verse will be posted in <#%s>.", c.ChannelID))
	}

	// send one immediately so the binding is visibly working
	if d.broadcaster != nil {
		role := c.Role
		go func() {
			var err error
			if role == ChannelRoleMeme {
				err = d.broadcaster.SendMeme(context.Background())
			} else {
				err = d.broadcaster.SendVerse(context.Background())
			}
			if err != nil {
				d.logger.Warn("initial broadcast failed", "role", string(role), tint.Err(err))
			}
		}()
	}
	return interactionOutcomeOK, nil
}

func (d *Dispatcher) handleMemeNow(
	ctx context.Context,
	handler InteractionHandler,
) (string, error) {
	if _, ok := d.registry.Channel(ChannelRoleMeme); !ok {
		handler.Reply(ctx, "⚠️ No meme channel configured. Use /setmeme first.")
		return interactionOutcomeOK, nil
	}
	if err := d.broadcaster.SendMeme(ctx); err != nil {
		d.logger.WarnContext(ctx, "meme fetch failed", tint.Err(err))
		handler.Reply(ctx, "Couldn't fetch a meme right now. Try again later.")
		return interactionOutcomeError, err
	}
	handler.Reply(ctx, "Meme delivered. 🖤")
	return interactionOutcomeOK, nil
}

// outlineTemplate renders the fixed four-part story outline around the
// user's idea.
func outlineTemplate(idea string) string {
	idea = strings.TrimSpace(idea)
	return fmt.Sprintf(
		"📝 **Outline**\n"+
			"**Beginning:** Introduce %s and the world it disturbs.\n"+
			"**Middle:** Complications mount; the stakes become personal.\n"+
			"**Climax:** Everything collides in a single irreversible choice.\n"+
			"**Ending:** The dust settles on a changed world.",
		idea,
	)
}
