package asylum

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/lmittmann/tint"
)

const (
	writersFilename   = "writers.json"
	botConfigFilename = "config.json"
)

// Store reads and writes the bot's flat JSON documents (the writer table
// and the channel-binding config) under a single data directory.
//
// A missing or unparseable document is treated as empty: Load* methods
// log the condition once and return the caller's zero value rather than
// an error. Saves fully overwrite the previous content via a temp-file
// rename. All access is serialized by a mutex, since discordgo handlers
// and the scheduler run on OS threads rather than the single event loop
// the original data layout assumed.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewStore creates a Store rooted at dir, creating the directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("error creating data dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger.With(loggerNameKey, "store"),
	}, nil
}

// LoadWriters loads the writer table, returning an empty table when the
// document is missing or corrupt.
func (s *Store) LoadWriters() WriterTable {
	table := WriterTable{}
	s.load(writersFilename, &table)
	if table == nil {
		table = WriterTable{}
	}
	return table
}

// SaveWriters overwrites the writer table document.
func (s *Store) SaveWriters(table WriterTable) error {
	return s.save(writersFilename, table)
}

// LoadBotConfig loads the channel-binding config, returning an empty
// record when the document is missing or corrupt. Absent bindings mean
// "feature disabled", never an error.
func (s *Store) LoadBotConfig() BotConfig {
	var cfg BotConfig
	s.load(botConfigFilename, &cfg)
	return cfg
}

// SaveBotConfig overwrites the channel-binding config document.
func (s *Store) SaveBotConfig(cfg BotConfig) error {
	return s.save(botConfigFilename, cfg)
}

func (s *Store) load(name string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path) // #nosec G304 -- path is config-owned
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn(
				"error reading document, using default",
				"path", path,
				tint.Err(err),
			)
		}
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn(
			"corrupt document, using default",
			"path", path,
			tint.Err(err),
		)
	}
}

func (s *Store) save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("error writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("error replacing %s: %w", name, err)
	}
	return nil
}
