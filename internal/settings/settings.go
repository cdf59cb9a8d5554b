// Package settings persists the user's preferences in a TOML file.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	fileMode   = 0o600
	dirMode    = 0o700

	keySelectedAccount  = "selected_account"
	keyLastNotebook     = "last_notebook"
	keyAutoOpenNotebook = "auto_open_notebook"
	keyBulkDelete       = "bulk_delete"
	keyLanguage         = "language"
)

// Settings are the user's saved preferences.
type Settings struct {
	SelectedAccount  int    `toml:"selected_account" json:"selectedAccount"`
	LastNotebook     string `toml:"last_notebook" json:"lastNotebook"`
	AutoOpenNotebook bool   `toml:"auto_open_notebook" json:"autoOpenNotebook"`
	BulkDelete       bool   `toml:"bulk_delete" json:"bulkDelete"`
	Language         string `toml:"language" json:"language"`
}

// Defaults returns the settings used before anything is saved.
func Defaults() Settings {
	return Settings{BulkDelete: true, Language: "en"}
}

// Store reads and writes config.toml in a directory. Environment variables
// prefixed NLMSEND_ override file values on read.
type Store struct {
	dir string

	mu  sync.Mutex
	cfg *viper.Viper
}

// NewStore returns a store for dir. The directory is created on first
// write.
func NewStore(dir string) *Store {
	cfg := viper.New()
	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(dir)
	cfg.SetEnvPrefix("NLMSEND")
	cfg.AutomaticEnv()

	d := Defaults()
	cfg.SetDefault(keySelectedAccount, d.SelectedAccount)
	cfg.SetDefault(keyLastNotebook, d.LastNotebook)
	cfg.SetDefault(keyAutoOpenNotebook, d.AutoOpenNotebook)
	cfg.SetDefault(keyBulkDelete, d.BulkDelete)
	cfg.SetDefault(keyLanguage, d.Language)

	return &Store{dir: dir, cfg: cfg}
}

// Path is the settings file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, configName+"."+configType)
}

// Load reads the current settings. A missing file yields the defaults.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (Settings, error) {
	if err := s.cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return Settings{
		SelectedAccount:  s.cfg.GetInt(keySelectedAccount),
		LastNotebook:     s.cfg.GetString(keyLastNotebook),
		AutoOpenNotebook: s.cfg.GetBool(keyAutoOpenNotebook),
		BulkDelete:       s.cfg.GetBool(keyBulkDelete),
		Language:         s.cfg.GetString(keyLanguage),
	}, nil
}

// Update applies fn to the saved settings and writes the result. It starts
// from the file alone, so NLMSEND_ overrides in the environment are never
// persisted.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.saved()
	if err != nil {
		return Settings{}, err
	}
	fn(&current)
	if current.SelectedAccount < 0 {
		return Settings{}, fmt.Errorf("selected account must not be negative: %d", current.SelectedAccount)
	}
	if err := s.write(current); err != nil {
		return Settings{}, err
	}
	return current, nil
}

// saved decodes config.toml over the defaults, ignoring the environment.
func (s *Store) saved() (Settings, error) {
	st := Defaults()
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &st); err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}
	return st, nil
}

func (s *Store) write(st Settings) error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tempFile, err := os.CreateTemp(s.dir, ".config-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp settings file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tempName, s.Path()); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	cleanup = false
	return nil
}
