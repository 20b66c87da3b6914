package asylum

import (
	"context"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler is an in-memory InteractionHandler for dispatcher
// tests.
type recordingHandler struct {
	acked    bool
	ackCalls int
	replies  []string
}

func (h *recordingHandler) Ack(_ context.Context) error {
	h.acked = true
	h.ackCalls++
	return nil
}

func (h *recordingHandler) Reply(_ context.Context, content string) {
	h.acked = true
	h.replies = append(h.replies, content)
}

func (h *recordingHandler) Acknowledged() bool { return h.acked }

func commandInteraction(
	name string,
	options ...*discordgo.ApplicationCommandInteractionDataOption,
) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			ID:   "interaction-id",
			Type: discordgo.InteractionApplicationCommand,
			Data: discordgo.ApplicationCommandInteractionData{
				Name:    name,
				Options: options,
			},
		},
	}
}

func stringOption(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func intOption(name string, value float64) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionInteger,
		Value: value,
	}
}

func channelOption(name, channelID string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionChannel,
		Value: channelID,
	}
}

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		name        string
		interaction *discordgo.InteractionCreate
		expected    Command
	}{
		{
			name:        "ping",
			interaction: commandInteraction(SlashCommandPing),
			expected:    PingCommand{},
		},
		{
			name: "prompt with genre",
			interaction: commandInteraction(
				SlashCommandPrompt,
				stringOption(optionGenre, "dark"),
			),
			expected: PromptCommand{Genre: "dark"},
		},
		{
			name:        "prompt without genre",
			interaction: commandInteraction(SlashCommandPrompt),
			expected:    PromptCommand{},
		},
		{
			name: "write",
			interaction: commandInteraction(
				SlashCommandWrite,
				intOption(optionWords, 500),
			),
			expected: WriteCommand{Words: 500},
		},
		{
			name:        "profile",
			interaction: commandInteraction(SlashCommandProfile),
			expected:    ProfileCommand{},
		},
		{
			name: "outline",
			interaction: commandInteraction(
				SlashCommandOutline,
				stringOption(optionIdea, "a haunted lighthouse"),
			),
			expected: OutlineCommand{Idea: "a haunted lighthouse"},
		},
		{
			name: "wordcount",
			interaction: commandInteraction(
				SlashCommandWordCount,
				stringOption(optionText, "The quick brown fox"),
			),
			expected: WordCountCommand{Text: "The quick brown fox"},
		},
		{
			name: "rewrite with style",
			interaction: commandInteraction(
				string(TransformRewrite),
				stringOption(optionText, "some text"),
				stringOption(optionStyle, "noir"),
			),
			expected: TransformCommand{
				Kind:  TransformRewrite,
				Text:  "some text",
				Style: "noir",
			},
		},
		{
			name: "tone uses the tone option",
			interaction: commandInteraction(
				string(TransformTone),
				stringOption(optionText, "some text"),
				stringOption(optionTone, "formal"),
			),
			expected: TransformCommand{
				Kind:  TransformTone,
				Text:  "some text",
				Style: "formal",
			},
		},
		{
			name: "setmeme",
			interaction: commandInteraction(
				SlashCommandSetMeme,
				channelOption(optionChannel, "chan-1"),
			),
			expected: SetChannelCommand{Role: ChannelRoleMeme, ChannelID: "chan-1"},
		},
		{
			name: "setverse",
			interaction: commandInteraction(
				SlashCommandSetVerse,
				channelOption(optionChannel, "chan-2"),
			),
			expected: SetChannelCommand{Role: ChannelRoleVerse, ChannelID: "chan-2"},
		},
		{
			name:        "meme",
			interaction: commandInteraction(SlashCommandMeme),
			expected:    MemeNowCommand{},
		},
		{
			name:        "unknown",
			interaction: commandInteraction("banish"),
			expected:    UnknownCommand{Raw: "banish"},
		},
		{
			name:        "matching is case-sensitive",
			interaction: commandInteraction("Ping"),
			expected:    UnknownCommand{Raw: "Ping"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseCommand(tc.interaction))
		})
	}
}

func newTestDispatcher(t testing.TB) *Dispatcher {
	t.Helper()
	store := newTestStore(t)
	tracker := NewTracker(store, nil)
	registry := NewRegistry(store, nil)
	chain := NewTransformChain(nil, NewOfflineTransformer(NewProofreader(nil)))
	return NewDispatcher(tracker, registry, chain, nil, nil)
}

func testUser() *discordgo.User {
	return &discordgo.User{ID: "user-1", Username: "poe"}
}

func TestDispatchPing(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(context.Background(), handler, PingCommand{}, testUser())
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Equal(t, pingResponse, handler.replies[0])
}

func TestDispatchPrompt(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		PromptCommand{Genre: "dark"},
		testUser(),
	)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "Prompt:")
}

func TestDispatchWrite(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		WriteCommand{Words: 500},
		testUser(),
	)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "Logged 500 words")
	assert.Contains(t, handler.replies[0], "Total: 500")
	assert.Contains(t, handler.replies[0], "Streak: 1 day(s)")
}

func TestDispatchWriteInvalidWordCount(t *testing.T) {
	d := newTestDispatcher(t)

	for _, words := range []int64{0, -10} {
		handler := &recordingHandler{}
		outcome, err := d.Dispatch(
			context.Background(),
			handler,
			WriteCommand{Words: words},
			testUser(),
		)
		assert.ErrorIs(t, err, ErrInvalidWordCount)
		assert.Equal(t, interactionOutcomeError, outcome)
		require.Len(t, handler.replies, 1)
		assert.Equal(t, "Word count has to be a positive number.", handler.replies[0])
	}

	record := d.tracker.GetProfile("user-1")
	assert.Zero(t, record.TotalWords)
	assert.Zero(t, record.StreakDays)
}

func TestDispatchProfile(t *testing.T) {
	d := newTestDispatcher(t)
	user := testUser()

	_, err := d.Dispatch(context.Background(), &recordingHandler{}, WriteCommand{Words: 250}, user)
	require.NoError(t, err)

	handler := &recordingHandler{}
	outcome, err := d.Dispatch(context.Background(), handler, ProfileCommand{}, user)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "poe")
	assert.Contains(t, handler.replies[0], "Total words: 250")
	assert.Contains(t, handler.replies[0], "Streak: 1 day(s)")
}

func TestDispatchOutline(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		OutlineCommand{Idea: "a haunted lighthouse"},
		testUser(),
	)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	for _, section := range []string{"Beginning", "Middle", "Climax", "Ending"} {
		assert.Contains(t, handler.replies[0], section)
	}
	assert.Contains(t, handler.replies[0], "a haunted lighthouse")
}

func TestDispatchWordCount(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		WordCountCommand{Text: "The quick brown fox"},
		testUser(),
	)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "Words: 4")
	assert.Contains(t, handler.replies[0], "Characters: 19")
}

func TestDispatchTransformDefersBeforeReplying(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		TransformCommand{Kind: TransformRewrite, Text: "the the night was cold"},
		testUser(),
	)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	assert.Equal(t, 1, handler.ackCalls)
	require.Len(t, handler.replies, 1)
	assert.Equal(t, "The night was cold.", handler.replies[0])
}

func TestDispatchTransformExhaustedChain(t *testing.T) {
	d := newTestDispatcher(t)
	d.chain = NewTransformChain(nil)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		TransformCommand{Kind: TransformRewrite, Text: "text"},
		testUser(),
	)
	assert.ErrorIs(t, err, errNoTransformProviders)
	assert.Equal(t, interactionOutcomeError, outcome)
	require.Len(t, handler.replies, 1)
	assert.Equal(t, d.errorMessage, handler.replies[0])
}

func TestDispatchSetChannel(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		SetChannelCommand{Role: ChannelRoleMeme, ChannelID: "chan-1"},
		testUser(),
	)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "<#chan-1>")

	channelID, ok := d.registry.Channel(ChannelRoleMeme)
	assert.True(t, ok)
	assert.Equal(t, "chan-1", channelID)
}

func TestDispatchSetChannelMissingChannel(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		SetChannelCommand{Role: ChannelRoleVerse},
		testUser(),
	)
	assert.ErrorIs(t, err, ErrMissingChannel)
	assert.Equal(t, interactionOutcomeError, outcome)
	require.Len(t, handler.replies, 1)
	assert.Equal(t, "Pick a channel to bind.", handler.replies[0])

	_, ok := d.registry.Channel(ChannelRoleVerse)
	assert.False(t, ok)
}

func TestDispatchMemeNowUnbound(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(context.Background(), handler, MemeNowCommand{}, testUser())
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "/setmeme")
}

func TestDispatchMemeNow(t *testing.T) {
	sender := &stubChannelSender{}
	b, registry := newTestBroadcaster(
		t,
		sender,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"url": "https://i.example.com/meme.png"}`))
		},
		nil,
	)
	require.NoError(t, registry.SetChannel(ChannelRoleMeme, "meme-channel"))

	d := newTestDispatcher(t)
	d.registry = registry
	d.broadcaster = b
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(context.Background(), handler, MemeNowCommand{}, testUser())
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeOK, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "Meme delivered")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "https://i.example.com/meme.png", sender.sent[0].content)
}

func TestDispatchMemeNowFeedFailure(t *testing.T) {
	sender := &stubChannelSender{}
	b, registry := newTestBroadcaster(
		t,
		sender,
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		nil,
	)
	require.NoError(t, registry.SetChannel(ChannelRoleMeme, "meme-channel"))

	d := newTestDispatcher(t)
	d.registry = registry
	d.broadcaster = b
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(context.Background(), handler, MemeNowCommand{}, testUser())
	assert.ErrorIs(t, err, ErrFeedUnavailable)
	assert.Equal(t, interactionOutcomeError, outcome)
	require.Len(t, handler.replies, 1)
	assert.Contains(t, handler.replies[0], "Couldn't fetch a meme")
	assert.Empty(t, sender.sent)
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	outcome, err := d.Dispatch(
		context.Background(),
		handler,
		UnknownCommand{Raw: "banish"},
		testUser(),
	)
	require.NoError(t, err)
	assert.Equal(t, interactionOutcomeUnknown, outcome)
	require.Len(t, handler.replies, 1)
	assert.Equal(t, d.unknownCommandMessage, handler.replies[0])
}

func TestDispatchRecoversFromPanic(t *testing.T) {
	d := newTestDispatcher(t)
	handler := &recordingHandler{}

	// a nil user makes the profile handler dereference nil
	outcome, err := d.Dispatch(context.Background(), handler, ProfileCommand{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
	assert.Equal(t, interactionOutcomeError, outcome)
	require.Len(t, handler.replies, 1, "a panicking handler still gets exactly one reply")
	assert.Equal(t, d.errorMessage, handler.replies[0])
}

func TestDispatchRepliesExactlyOnce(t *testing.T) {
	d := newTestDispatcher(t)

	commands := []Command{
		PingCommand{},
		PromptCommand{},
		WriteCommand{Words: 10},
		ProfileCommand{},
		OutlineCommand{Idea: "an idea"},
		TransformCommand{Kind: TransformProofread, Text: "text"},
		WordCountCommand{Text: "text"},
		MemeNowCommand{},
		SetChannelCommand{Role: ChannelRoleMeme, ChannelID: "chan-1"},
		UnknownCommand{Raw: "banish"},
	}
	for _, cmd := range commands {
		handler := &recordingHandler{}
		_, _ = d.Dispatch(context.Background(), handler, cmd, testUser())
		assert.Len(
			t,
			handler.replies,
			1,
			"command %q must reply exactly once",
			cmd.commandName(),
		)
		assert.True(t, handler.Acknowledged())
	}
}

func TestOutlineTemplate(t *testing.T) {
	outline := outlineTemplate("  a haunted lighthouse ")
	assert.Contains(t, outline, "Introduce a haunted lighthouse")
	assert.NotContains(t, outline, "  a haunted lighthouse")
}
