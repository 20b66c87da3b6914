package asylum

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ChannelRole names a channel binding the bot broadcasts to.
type ChannelRole string

const (
	ChannelRoleMeme  ChannelRole = "meme"
	ChannelRoleVerse ChannelRole = "verse"
)

var (
	ErrUnknownChannelRole = errors.New("unknown channel role")

	// ErrMissingChannel is returned when a channel-binding command
	// arrives without a channel argument.
	ErrMissingChannel = errors.New("missing channel")
)

// BotConfig is the single process-wide channel-binding record. Both
// bindings are optional; an absent binding disables the feature.
type BotConfig struct {
	MemeChannelID  string `json:"meme_channel_id,omitempty"`
	VerseChannelID string `json:"verse_channel_id,omitempty"`
}

func (c BotConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("meme_channel_id", c.MemeChannelID),
		slog.String("verse_channel_id", c.VerseChannelID),
	)
}

// Registry holds the in-memory BotConfig, loaded once at startup and
// overwritten wholesale through the Store on every mutation.
type Registry struct {
	store  *Store
	config BotConfig
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRegistry loads the channel bindings from the store.
func NewRegistry(store *Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		store:  store,
		config: store.LoadBotConfig(),
		logger: logger.With(loggerNameKey, "registry"),
	}
}

// SetChannel overwrites the named binding and persists immediately.
// The ID isn't validated against Discord; a bad channel just makes the
// broadcast sends fail and get logged.
func (r *Registry) SetChannel(role ChannelRole, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch role {
	case ChannelRoleMeme:
		r.config.MemeChannelID = channelID
	case ChannelRoleVerse:
		r.config.VerseChannelID = channelID
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannelRole, role)
	}

	if err := r.store.SaveBotConfig(r.config); err != nil {
		return err
	}
	r.logger.Info("channel bound", "role", string(role), "channel_id", channelID)
	return nil
}

// Channel returns the bound channel ID for the role, with ok=false when
// the role is unbound (or unknown).
func (r *Registry) Channel(role ChannelRole) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var id string
	switch role {
	case ChannelRoleMeme:
		id = r.config.MemeChannelID
	case ChannelRoleVerse:
		id = r.config.VerseChannelID
	}
	return id, id != ""
}
