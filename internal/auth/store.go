package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "nlmsend"
	keyringUser    = "cookies"

	// CookiesEnv is the environment and env-file key holding the cookie header.
	CookiesEnv = "NLM_COOKIES"
)

// ErrNoCredentials is returned when no cookies have been stored.
var ErrNoCredentials = errors.New("no stored credentials")

// CredentialStore keeps the browser cookie header in the OS keyring and
// falls back to an env file in dir when no keyring is available.
type CredentialStore struct {
	dir        string
	useKeyring bool
}

// NewCredentialStore returns a store rooted at dir.
func NewCredentialStore(dir string, useKeyring bool) *CredentialStore {
	return &CredentialStore{dir: dir, useKeyring: useKeyring}
}

// EnvPath is the fallback file.
func (s *CredentialStore) EnvPath() string {
	return filepath.Join(s.dir, "env")
}

// Load returns the stored cookie header.
func (s *CredentialStore) Load() (string, error) {
	// Keyring errors fall through to the env file; headless hosts often
	// have no keyring at all.
	if s.useKeyring {
		if cookies, err := keyring.Get(keyringService, keyringUser); err == nil && cookies != "" {
			return cookies, nil
		}
	}

	env, err := godotenv.Read(s.EnvPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredentials
		}
		return "", fmt.Errorf("read env file: %w", err)
	}
	if cookies := env[CookiesEnv]; cookies != "" {
		return cookies, nil
	}
	return "", ErrNoCredentials
}

// Save stores cookies, preferring the keyring. It reports where they went.
func (s *CredentialStore) Save(cookies string) (string, error) {
	if s.useKeyring {
		if err := keyring.Set(keyringService, keyringUser, cookies); err == nil {
			return "keyring", nil
		}
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	env, err := godotenv.Read(s.EnvPath())
	if err != nil {
		env = map[string]string{}
	}
	env[CookiesEnv] = cookies
	if err := godotenv.Write(env, s.EnvPath()); err != nil {
		return "", fmt.Errorf("write env file: %w", err)
	}
	if err := os.Chmod(s.EnvPath(), 0o600); err != nil {
		return "", fmt.Errorf("chmod env file: %w", err)
	}
	return s.EnvPath(), nil
}

// Clear removes stored cookies from both locations.
func (s *CredentialStore) Clear() error {
	if s.useKeyring {
		if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete keyring entry: %w", err)
		}
	}
	env, err := godotenv.Read(s.EnvPath())
	if err != nil {
		return nil
	}
	delete(env, CookiesEnv)
	return godotenv.Write(env, s.EnvPath())
}
