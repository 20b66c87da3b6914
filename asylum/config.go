//nolint:lll // struct tags can't be split
package asylum

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	EnvvarSetEnvPrefix = "ASYLUM_ENV_PREFIX"
	DefaultEnvPrefix   = "ASYLUM"

	DefaultDataDir      = "data"
	DefaultDatabaseType = "sqlite"
	DefaultDatabase     = "asylum.sqlite3"
	DefaultLogLevel     = slog.LevelInfo

	DefaultStartupTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultDatabaseSlowThreshold = 200 * time.Millisecond
	DefaultDatabaseLogLevel      = slog.LevelInfo
	DefaultDiscordLogLevel       = slog.LevelInfo
	DefaultDiscordgoLogLevel     = slog.LevelWarn
	DefaultOpenAILogLevel        = slog.LevelInfo
	DefaultAPILogLevel           = slog.LevelInfo

	DefaultOpenAIModel                 = "gpt-4o-mini"
	DefaultOpenAIRequestTimeout        = 30 * time.Second
	DefaultOpenAIMaxRequestsPerSecond  = 1
	DefaultOpenAISystemPrompt          = "You are a helpful writing assistant."
	DefaultCollaboratorRequestTimeout  = 7 * time.Second
	DefaultMemeInterval                = 15 * time.Minute
	DefaultVerseInterval               = 24 * time.Hour
	DefaultMemeURL                     = "https://meme-api.com/gimme"
	DefaultVerseURL                    = "https://bible-api.com/john 3:16"
	DefaultAPIListen                   = "127.0.0.1:3000"
	DefaultReadTimeout                 = 5 * time.Second
	DefaultReadHeaderTimeout           = 5 * time.Second
	DefaultWriteTimeout                = 10 * time.Second
	DefaultIdleTimeout                 = 30 * time.Second
	DefaultDiscordErrorMessage         = "Something shook the asylum. Try again in a moment."
	DefaultDiscordUnknownCommand       = "I don't recognize that command."
	DefaultDiscordStartupStatus        = "/prompt for inspiration"
	defaultListenNetwork               = "tcp"
	discordMaxMessageLength            = 2000
)

var (
	// ErrMissingDiscordToken is returned from New when no bot token is
	// configured. This is the only class of process-fatal error: the bot
	// refuses to start without credentials, and never exits for anything
	// a command handler does.
	ErrMissingDiscordToken = errors.New("missing discord bot token")

	// ErrMissingApplicationID is returned from New when no Discord
	// application ID is configured.
	ErrMissingApplicationID = errors.New("missing discord application id")
)

// Config is the top-level bot configuration, bound from the config file,
// ASYLUM_-prefixed environment variables and command-line flags.
type Config struct {
	// DataDir is the directory holding the writers/config JSON documents
	// (and the sqlite database, unless overridden)
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" json:"data_dir"`

	// Database connection string (filename for sqlite, DSN for postgres)
	Database string `yaml:"database" mapstructure:"database" json:"database"`

	// DatabaseType specifies the type of database, either 'sqlite' or 'postgres'
	DatabaseType string `yaml:"database_type" mapstructure:"database_type" json:"database_type" binding:"oneof=sqlite postgres"`

	// DatabaseLogLevel sets the log level for database operations
	DatabaseLogLevel *slog.LevelVar `yaml:"database_log_level" mapstructure:"database_log_level" json:"database_log_level"`

	// DatabaseSlowThreshold is the duration threshold for identifying slow database queries
	DatabaseSlowThreshold time.Duration `yaml:"database_slow_threshold" mapstructure:"database_slow_threshold" json:"database_slow_threshold"`

	// LogLevel is the base log level, for the default logger
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// StartupTimeout bounds the time the bot has to finish initializing
	StartupTimeout time.Duration `yaml:"startup_timeout" mapstructure:"startup_timeout" json:"startup_timeout"`

	// ShutdownTimeout is the time allowed for a graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" json:"shutdown_timeout"`

	// Discord configures the Discord bot itself
	Discord *DiscordConfig `yaml:"discord" mapstructure:"discord" json:"discord"`

	// OpenAI configures the AI completion collaborator. Optional: without
	// an API key, text commands fall back to the offline proofreader.
	OpenAI *OpenAIConfig `yaml:"openai" mapstructure:"openai" json:"openai"`

	// API configures the HTTP status server
	API *APIConfig `yaml:"api" mapstructure:"api" json:"api"`

	// Broadcast configures the meme/verse background jobs
	Broadcast *BroadcastConfig `yaml:"broadcast" mapstructure:"broadcast" json:"broadcast"`

	HTTPClient *http.Client `log:"[redacted]"`
}

func (c Config) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DiscordConfig configures the discord bot itself.
//
//nolint:lll // can't break tags
type DiscordConfig struct {
	// Discord bot token (from the 'Bot' tab in the discord dev portal)
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]" binding:"required"`

	// Discord application ID (from the 'General Information' tab in the discord dev portal)
	ApplicationID string `yaml:"application_id" mapstructure:"application_id" json:"application_id" binding:"required"`

	// GuildID specifies the guild ID used when registering slash commands.
	// Leave empty for commands to be registered as global.
	GuildID string `yaml:"guild_id" mapstructure:"guild_id" json:"guild_id"`

	// Base discord logging level
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`

	// Log level for the `discordgo` library's logger
	DiscordGoLogLevel *slog.LevelVar `yaml:"discordgo_log_level" mapstructure:"discordgo_log_level" json:"discordgo_log_level"`

	// CustomStatus is the activity string shown under the bot's name
	CustomStatus string `yaml:"custom_status" mapstructure:"custom_status" json:"custom_status"`

	httpClient *http.Client
}

func (c DiscordConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// OpenAIConfig configures the OpenAI completion collaborator.
//
//nolint:lll // can't break tags
type OpenAIConfig struct {
	// OpenAI API key. Leave empty to disable the AI provider entirely.
	Token string `yaml:"token" mapstructure:"token" json:"token" log:"[redacted]"`

	// Model is the chat completion model name
	Model string `yaml:"model" mapstructure:"model" json:"model"`

	// SystemPrompt is sent as the system message on every completion
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt" json:"system_prompt"`

	// RequestTimeout bounds a single completion call. Expiry is treated
	// as a normal collaborator failure, not a crash.
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`

	// MaxRequestsPerSecond limits the rate of completion calls
	MaxRequestsPerSecond int `yaml:"max_requests_per_second" mapstructure:"max_requests_per_second" json:"max_requests_per_second"`

	// LogLevel sets the log level for OpenAI operations
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c OpenAIConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// APIConfig configures the HTTP status server.
//
//nolint:lll // can't break tags
type APIConfig struct {
	// Listen address, like "127.0.0.1:3000"
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	ReadTimeout       time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" json:"idle_timeout"`

	// LogLevel sets the log level for API requests
	LogLevel *slog.LevelVar `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
}

func (c APIConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// BroadcastConfig configures the scheduled meme/verse broadcasts and the
// collaborator endpoints behind them.
//
//nolint:lll // can't break tags
type BroadcastConfig struct {
	// MemeInterval is the delay between meme posts to the bound channel
	MemeInterval time.Duration `yaml:"meme_interval" mapstructure:"meme_interval" json:"meme_interval"`

	// VerseInterval is the delay between verse posts to the bound channel
	VerseInterval time.Duration `yaml:"verse_interval" mapstructure:"verse_interval" json:"verse_interval"`

	// MemeURL is the meme API endpoint
	MemeURL string `yaml:"meme_url" mapstructure:"meme_url" json:"meme_url"`

	// VerseURL is the verse API endpoint
	VerseURL string `yaml:"verse_url" mapstructure:"verse_url" json:"verse_url"`

	// RequestTimeout bounds a single collaborator fetch
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout"`
}

func (c BroadcastConfig) LogValue() slog.Value {
	return structToSlogValue(c)
}

// DefaultConfig returns a Config with default values set, suitable for
// binding with viper.
func DefaultConfig() *Config {
	logLevel := &slog.LevelVar{}
	logLevel.Set(DefaultLogLevel)

	dbLogLevel := &slog.LevelVar{}
	dbLogLevel.Set(DefaultDatabaseLogLevel)

	discordLogLevel := &slog.LevelVar{}
	discordLogLevel.Set(DefaultDiscordLogLevel)

	discordgoLogLevel := &slog.LevelVar{}
	discordgoLogLevel.Set(DefaultDiscordgoLogLevel)

	openaiLogLevel := &slog.LevelVar{}
	openaiLogLevel.Set(DefaultOpenAILogLevel)

	apiLogLevel := &slog.LevelVar{}
	apiLogLevel.Set(DefaultAPILogLevel)

	return &Config{
		DataDir:               DefaultDataDir,
		Database:              DefaultDatabase,
		DatabaseType:          DefaultDatabaseType,
		DatabaseLogLevel:      dbLogLevel,
		DatabaseSlowThreshold: DefaultDatabaseSlowThreshold,
		LogLevel:              logLevel,
		StartupTimeout:        DefaultStartupTimeout,
		ShutdownTimeout:       DefaultShutdownTimeout,
		Discord: &DiscordConfig{
			LogLevel:          discordLogLevel,
			DiscordGoLogLevel: discordgoLogLevel,
			CustomStatus:      DefaultDiscordStartupStatus,
		},
		OpenAI: &OpenAIConfig{
			Model:                DefaultOpenAIModel,
			SystemPrompt:         DefaultOpenAISystemPrompt,
			RequestTimeout:       DefaultOpenAIRequestTimeout,
			MaxRequestsPerSecond: DefaultOpenAIMaxRequestsPerSecond,
			LogLevel:             openaiLogLevel,
		},
		API: &APIConfig{
			Listen:            DefaultAPIListen,
			ReadTimeout:       DefaultReadTimeout,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			LogLevel:          apiLogLevel,
		},
		Broadcast: &BroadcastConfig{
			MemeInterval:   DefaultMemeInterval,
			VerseInterval:  DefaultVerseInterval,
			MemeURL:        DefaultMemeURL,
			VerseURL:       DefaultVerseURL,
			RequestTimeout: DefaultCollaboratorRequestTimeout,
		},
	}
}

// Validate checks the parts of the config the bot can't start without.
func (c *Config) Validate() error {
	if c.Discord == nil || c.Discord.Token == "" {
		return ErrMissingDiscordToken
	}
	if c.Discord.ApplicationID == "" {
		return ErrMissingApplicationID
	}
	return nil
}
