// Package asylum implements Author's Asylum, a Discord bot for writers:
// writing prompts, AI-assisted rewriting with an offline fallback,
// per-user word-count streaks, scheduled meme and daily-verse posts,
// and a small HTTP status endpoint.
package asylum

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/Lucifurge/Author-s-Asylum-Bot/asylum.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// Asylum is the main application struct, owning every component of the
// bot: the JSON store and its tracker/registry, the interaction-log
// database, the Discord session, the AI/offline transform chain, the
// feed collaborators and their scheduler, and the status API.
type Asylum struct {
	config *Config

	logger     *slog.Logger
	logHandler slog.Handler

	store    *Store
	tracker  *Tracker
	registry *Registry

	// db holds the gorm connection for the interaction audit log
	db *gorm.DB

	discord     *Discord
	openai      *OpenAI
	proofreader *Proofreader
	chain       *TransformChain
	feeds       *Feeds
	broadcaster *Broadcaster
	api         *API
	dispatcher  *Dispatcher

	// The time Run was called
	startedAt time.Time

	// signalStop enables an explicit stop signal to be sent to the bot
	signalStop chan struct{}

	// prevents Run from executing concurrently
	runMu sync.Mutex
}

// New validates the config and assembles the bot. It's the only place
// a missing credential is fatal; nothing a command handler does can
// exit the process.
func New(config *Config) (*Asylum, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logHandler := newLogHandler(config.LogLevel)
	logger := slog.New(logHandler).With(loggerNameKey, "asylum")
	slog.SetDefault(slog.New(logHandler))

	store, err := NewStore(config.DataDir, logger)
	if err != nil {
		return nil, err
	}

	a := &Asylum{
		config:     config,
		logger:     logger,
		logHandler: logHandler,
		store:      store,
		tracker:    NewTracker(store, logger),
		registry:   NewRegistry(store, logger),
		signalStop: make(chan struct{}, 1),
	}

	a.discord = newDiscord(config.Discord, newLogHandler(config.Discord.LogLevel))
	a.discord.a = a
	a.discord.config.httpClient = config.HTTPClient

	a.openai = newOpenAI(config.OpenAI, config.HTTPClient)
	a.proofreader = NewProofreader(logger)

	providers := []TextTransformer{}
	if a.openai != nil {
		providers = append(providers, NewAITransformer(a.openai))
	} else {
		logger.Warn("no openai token configured, text commands use the offline path only")
	}
	providers = append(providers, NewOfflineTransformer(a.proofreader))
	a.chain = NewTransformChain(logger, providers...)

	a.feeds = NewFeeds(config.Broadcast, config.HTTPClient, logger)
	a.api = newAPI(a, config.API)

	return a, nil
}

// Run starts the bot and blocks until the context is canceled or Stop
// is called, then shuts down gracefully.
func (a *Asylum) Run(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.startedAt = time.Now()

	startupCtx, startupCancel := context.WithTimeout(ctx, a.config.StartupTimeout)
	defer startupCancel()

	db, err := openDatabase(a.config, newLogHandler(a.config.DatabaseLogLevel))
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	a.db = db

	session, err := a.discord.newSession(ctx)
	if err != nil {
		return err
	}
	a.discord.session = session

	a.broadcaster = NewBroadcaster(
		a.registry,
		a.feeds,
		session,
		a.config.Broadcast,
		a.logger,
	)
	a.dispatcher = NewDispatcher(
		a.tracker,
		a.registry,
		a.chain,
		a.broadcaster,
		a.logger,
	)

	a.discord.addHandlers(ctx)
	if err = session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}

	if err = a.discord.registerCommands(); err != nil {
		a.shutdown()
		return err
	}

	if startupCtx.Err() != nil && ctx.Err() == nil {
		a.shutdown()
		return fmt.Errorf("startup timed out after %s", a.config.StartupTimeout)
	}

	a.broadcaster.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.api.Serve(gctx)
	})

	a.logger.Info(
		"bot is up",
		"version", Version,
		"config", a.config,
	)

	select {
	case <-gctx.Done():
	case <-a.signalStop:
	}

	a.shutdown()
	if err = g.Wait(); err != nil {
		a.logger.Error("status server error", tint.Err(err))
		return err
	}
	return nil
}

// Stop signals a running bot to shut down.
func (a *Asylum) Stop() {
	select {
	case a.signalStop <- struct{}{}:
	default:
	}
}

func (a *Asylum) shutdown() {
	if a.broadcaster != nil {
		a.broadcaster.Stop()
	}
	a.discord.removeHandlers()
	if a.discord.session != nil {
		if err := a.discord.session.Close(); err != nil {
			a.logger.Warn("error closing discord session", tint.Err(err))
		}
	}
	a.logger.Info("shutdown complete")
}

// handleInteraction is the single entry point for command events: it
// parses the interaction into a typed command, dispatches it, makes
// sure the event was acknowledged, and writes the audit row.
func (a *Asylum) handleInteraction(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	started := time.Now()
	user := getDiscordUser(i)
	if user == nil {
		a.logger.Warn("interaction without a user", "interaction_id", i.ID)
		return
	}

	handler := newGatewayInteractionHandler(a.discord.session, i, a.logger)
	cmd := parseCommand(i)
	entry := newInteractionLog(i, user, cmd.commandName())

	outcome, err := a.dispatcher.Dispatch(ctx, handler, cmd, user)

	// every event gets acknowledged exactly once, even if a handler
	// path somehow returned without replying
	if !handler.Acknowledged() {
		handler.Reply(ctx, a.dispatcher.errorMessage)
	}

	a.auditInteraction(entry, started, outcome, err)
}
