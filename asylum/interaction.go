package asylum

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// InteractionLog is an audit row written for every dispatched command.
// Writes are best-effort: a failed insert is logged and never surfaced
// to the user.
//
//nolint:lll // struct tags can't be split
type InteractionLog struct {
	ModelUintID
	InteractionID string `json:"interaction_id" gorm:"not null;index"`
	UserID        string `json:"user_id" gorm:"not null;index"`
	Username      string `json:"username" gorm:"type:string"`
	GuildID       string `json:"guild_id" gorm:"type:string"`
	ChannelID     string `json:"channel_id" gorm:"type:string"`
	Command       string `json:"command" gorm:"type:string"`
	Outcome       string `json:"outcome" gorm:"type:string"`
	Error         string `json:"error" gorm:"type:string"`
	DurationMS    int64  `json:"duration_ms"`
	CreatedAt     int64  `gorm:"autoCreateTime:milli" json:"created_at,omitempty"`
}

const (
	interactionOutcomeOK      = "ok"
	interactionOutcomeError   = "error"
	interactionOutcomeUnknown = "unknown_command"
)

func newInteractionLog(
	i *discordgo.InteractionCreate,
	u *discordgo.User,
	command string,
) *InteractionLog {
	entry := &InteractionLog{
		InteractionID: i.ID,
		GuildID:       i.GuildID,
		ChannelID:     i.ChannelID,
		Command:       command,
	}
	if u != nil {
		entry.UserID = u.ID
		entry.Username = u.String()
	}
	return entry
}

// InteractionHandler sends replies for one interaction, tracking the
// primary acknowledgment so every event is acknowledged exactly once:
// the first Reply (or Ack) is the primary response, and everything
// after it goes out as an interaction edit or follow-up.
type InteractionHandler interface {
	// Ack sends a deferred "thinking..." primary response
	Ack(ctx context.Context) error
	// Reply sends content, as the primary response if none has been
	// sent yet, otherwise as an edit/follow-up
	Reply(ctx context.Context, content string)
	// Acknowledged reports whether a primary response has been sent
	Acknowledged() bool
}

// gatewayInteractionHandler replies to interactions received over the
// Discord gateway websocket.
type gatewayInteractionHandler struct {
	session     DiscordSessionHandler
	interaction *discordgo.InteractionCreate
	logger      *slog.Logger

	// acked flips when the primary response goes out
	acked atomic.Bool
	// deferred records that the primary response was a deferral, so
	// the next Reply edits it instead of following up
	deferred atomic.Bool
}

func newGatewayInteractionHandler(
	session DiscordSessionHandler,
	i *discordgo.InteractionCreate,
	logger *slog.Logger,
) *gatewayInteractionHandler {
	return &gatewayInteractionHandler{
		session:     session,
		interaction: i,
		logger:      logger,
	}
}

func (h *gatewayInteractionHandler) Acknowledged() bool {
	return h.acked.Load()
}

func (h *gatewayInteractionHandler) Ack(_ context.Context) error {
	if !h.acked.CompareAndSwap(false, true) {
		return nil
	}
	err := h.session.InteractionRespond(
		h.interaction.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		},
	)
	if err != nil {
		// treat the interaction as unacknowledged so Reply can still
		// attempt a primary response
		h.acked.Store(false)
		return err
	}
	h.deferred.Store(true)
	return nil
}

func (h *gatewayInteractionHandler) Reply(ctx context.Context, content string) {
	content = shortenString(content, discordMaxMessageLength)

	if h.acked.CompareAndSwap(false, true) {
		err := h.session.InteractionRespond(
			h.interaction.Interaction,
			&discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseChannelMessageWithSource,
				Data: &discordgo.InteractionResponseData{Content: content},
			},
		)
		if err == nil {
			return
		}
		h.logger.ErrorContext(
			ctx,
			"error sending interaction response",
			tint.Err(err),
		)
		return
	}

	if h.deferred.CompareAndSwap(true, false) {
		_, err := h.session.InteractionResponseEdit(
			h.interaction.Interaction,
			&discordgo.WebhookEdit{Content: &content},
		)
		if err == nil {
			return
		}
		h.logger.ErrorContext(
			ctx,
			"error editing deferred response",
			tint.Err(err),
		)
		return
	}

	_, err := h.session.FollowupMessageCreate(
		h.interaction.Interaction,
		true,
		&discordgo.WebhookParams{Content: content},
	)
	if err != nil {
		h.logger.ErrorContext(ctx, "error sending followup", tint.Err(err))
	}
}

// auditInteraction persists the InteractionLog row for a dispatched
// command.
func (a *Asylum) auditInteraction(
	entry *InteractionLog,
	started time.Time,
	outcome string,
	cmdErr error,
) {
	if a.db == nil {
		return
	}
	entry.Outcome = outcome
	entry.DurationMS = time.Since(started).Milliseconds()
	if cmdErr != nil {
		entry.Error = cmdErr.Error()
	}
	if err := a.db.Create(entry).Error; err != nil {
		a.logger.Error("error writing interaction log", tint.Err(err))
	}
}
