package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/Lucifurge/Author-s-Asylum-Bot/asylum"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = asylum.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "asylum [flags]",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes log level strings into *slog.LevelVar
// during viper unmarshaling.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

// Execute runs the root command, wiring OS signals to context
// cancellation.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("data_dir", asylum.DefaultDataDir)
	viper.SetDefault("database", asylum.DefaultDatabase)
	viper.SetDefault("database_type", asylum.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		asylum.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		asylum.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("log_level", asylum.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", asylum.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", asylum.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.custom_status", asylum.DefaultDiscordStartupStatus)
	viper.SetDefault(
		"discord.log_level",
		asylum.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		asylum.DefaultDiscordgoLogLevel.String(),
	)

	// OpenAI config
	viper.SetDefault("openai.token", "")
	viper.SetDefault("openai.model", asylum.DefaultOpenAIModel)
	viper.SetDefault("openai.system_prompt", asylum.DefaultOpenAISystemPrompt)
	viper.SetDefault("openai.request_timeout", asylum.DefaultOpenAIRequestTimeout)
	viper.SetDefault(
		"openai.max_requests_per_second",
		asylum.DefaultOpenAIMaxRequestsPerSecond,
	)
	viper.SetDefault("openai.log_level", asylum.DefaultOpenAILogLevel.String())

	// API config
	viper.SetDefault("api.listen", asylum.DefaultAPIListen)
	viper.SetDefault("api.read_timeout", asylum.DefaultReadTimeout)
	viper.SetDefault(
		"api.read_header_timeout",
		asylum.DefaultReadHeaderTimeout,
	)
	viper.SetDefault("api.write_timeout", asylum.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", asylum.DefaultIdleTimeout)
	viper.SetDefault("api.log_level", asylum.DefaultAPILogLevel.String())

	// Broadcast config
	viper.SetDefault("broadcast.meme_interval", asylum.DefaultMemeInterval)
	viper.SetDefault("broadcast.verse_interval", asylum.DefaultVerseInterval)
	viper.SetDefault("broadcast.meme_url", asylum.DefaultMemeURL)
	viper.SetDefault("broadcast.verse_url", asylum.DefaultVerseURL)
	viper.SetDefault(
		"broadcast.request_timeout",
		asylum.DefaultCollaboratorRequestTimeout,
	)

	envPrefix := os.Getenv(asylum.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = asylum.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	for _, key := range []string{
		"log_level",
		"database_log_level",
		"discord.log_level",
		"discord.discordgo_log_level",
		"openai.log_level",
		"api.log_level",
	} {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load",
	)
}
