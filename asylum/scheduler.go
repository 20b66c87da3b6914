package asylum

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-co-op/gocron"
	"github.com/lmittmann/tint"
)

// ChannelSender posts a message to a channel. Satisfied by
// DiscordSessionHandler; extracted so broadcaster tests don't need a
// full session fake.
type ChannelSender interface {
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Broadcaster runs the repeating meme and daily-verse jobs. The jobs
// only read the Registry and call the feed collaborators; they never
// touch the Tracker, so they can interleave freely with command
// handling.
type Broadcaster struct {
	registry  *Registry
	feeds     *Feeds
	sender    ChannelSender
	scheduler *gocron.Scheduler
	config    *BroadcastConfig
	logger    *slog.Logger
}

// NewBroadcaster wires the broadcast jobs. Jobs don't run until Start.
func NewBroadcaster(
	registry *Registry,
	feeds *Feeds,
	sender ChannelSender,
	config *BroadcastConfig,
	logger *slog.Logger,
) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		registry: registry,
		feeds:    feeds,
		sender:   sender,
		config:   config,
		logger:   logger.With(loggerNameKey, "broadcaster"),
	}
}

// Start fires one immediate send for each bound channel, the way the
// bot has always announced itself, then schedules the repeating jobs.
// The scheduled jobs first run one interval after Start.
func (b *Broadcaster) Start(ctx context.Context) {
	if err := b.SendMeme(ctx); err != nil {
		b.logger.Warn("startup meme broadcast failed", tint.Err(err))
	}
	if err := b.SendVerse(ctx); err != nil {
		b.logger.Warn("startup verse broadcast failed", tint.Err(err))
	}

	b.scheduler = gocron.NewScheduler(time.Local)
	_, err := b.scheduler.Every(b.config.MemeInterval).Do(func() {
		if err := b.SendMeme(ctx); err != nil {
			b.logger.Warn("meme broadcast failed", tint.Err(err))
		}
	})
	if err != nil {
		b.logger.Error("error scheduling meme job", tint.Err(err))
	}

	_, err = b.scheduler.Every(b.config.VerseInterval).Do(func() {
		if err := b.SendVerse(ctx); err != nil {
			b.logger.Warn("verse broadcast failed", tint.Err(err))
		}
	})
	if err != nil {
		b.logger.Error("error scheduling verse job", tint.Err(err))
	}

	b.scheduler.StartAsync()
}

// Stop halts the scheduled jobs.
func (b *Broadcaster) Stop() {
	if b.scheduler != nil {
		b.scheduler.Stop()
	}
}

// SendMeme fetches one meme and posts it to the bound channel. An
// unbound channel is a silent no-op.
func (b *Broadcaster) SendMeme(ctx context.Context) error {
	channelID, ok := b.registry.Channel(ChannelRoleMeme)
	if !ok {
		b.logger.Debug("no meme channel bound, skipping")
		return nil
	}

	url, err := b.feeds.FetchMemeURL(ctx)
	if err != nil {
		return err
	}
	if _, err = b.sender.ChannelMessageSend(channelID, url); err != nil {
		return fmt.Errorf("error posting meme: %w", err)
	}
	b.logger.Info("meme posted", "channel_id", channelID)
	return nil
}

// SendVerse fetches the daily verse and posts it to the bound channel.
// An unbound channel is a silent no-op.
func (b *Broadcaster) SendVerse(ctx context.Context) error {
	channelID, ok := b.registry.Channel(ChannelRoleVerse)
	if !ok {
		b.logger.Debug("no verse channel bound, skipping")
		return nil
	}

	verse, err := b.feeds.FetchVerse(ctx)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("📖 **%s**\n%s", verse.Reference, verse.Text)
	if _, err = b.sender.ChannelMessageSend(channelID, message); err != nil {
		return fmt.Errorf("error posting verse: %w", err)
	}
	b.logger.Info("verse posted", "channel_id", channelID, "reference", verse.Reference)
	return nil
}
