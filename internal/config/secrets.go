package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// fileSecrets reads secrets from a 0600 JSON file keyed by config key, e.g.
// {"ai.openrouter_api_key": "sk-..."}.
type fileSecrets struct{}

func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "devharvest", "secrets.json")
}

func (fileSecrets) Get(account string) (string, error) {
	secrets, err := readSecrets(secretsFilePath())
	if err != nil {
		return "", err
	}
	val, ok := secrets[account]
	if !ok {
		return "", fmt.Errorf("secret %q not found", account)
	}
	return val, nil
}

// SetSecret stores a secret config value in the secrets file.
func SetSecret(key, value string) error {
	spec, ok := lookupSpec(key)
	if !ok || !spec.secret {
		return fmt.Errorf("%q is not a secret config key", key)
	}
	return writeSecret(secretsFilePath(), key, value)
}

func readSecrets(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secrets not available: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func writeSecret(path, key, value string) error {
	secrets, err := readSecrets(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		secrets = nil
	case err != nil:
		return err
	}
	if secrets == nil {
		secrets = make(map[string]string)
	}
	secrets[key] = value

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}
