package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// Credentials live in the OS keyring under this service name. Headless
// machines without a keyring daemon fall back to a 0600 JSON file.
const credentialService = "wpforge"

var ErrCredentialNotFound = errors.New("credential not found")

// Seams for tests, which run without a keyring daemon.
var (
	keyringGet    = keyring.Get
	keyringSet    = keyring.Set
	keyringDelete = keyring.Delete
	userHomeDir   = os.UserHomeDir
)

// envKeyNames maps provider names to the environment variables that may carry
// their API keys. Environment wins over stored credentials so CI runs never
// touch the keyring.
var envKeyNames = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// APIKeyFor returns the key for a provider, preferring the environment over
// the keyring and file fallback.
func APIKeyFor(providerName string) (string, error) {
	if env := envKeyNames[providerName]; env != "" {
		if key := strings.TrimSpace(os.Getenv(env)); key != "" {
			return key, nil
		}
	}
	return LoadCredential(providerName)
}

// ValidateCredential rejects keys that would break HTTP header encoding.
func ValidateCredential(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("credential is empty")
	}
	if strings.ContainsAny(key, " \t\n") {
		return errors.New("credential contains whitespace")
	}
	return nil
}

// StoreCredential saves a key under the provider name, trying the keyring
// first and the file vault when no keyring answers.
func StoreCredential(name, key string) error {
	name, key = strings.TrimSpace(name), strings.TrimSpace(key)
	if name == "" {
		return errors.New("credential key name is empty")
	}
	if err := ValidateCredential(key); err != nil {
		return err
	}
	if err := keyringSet(credentialService, name, key); err == nil {
		return nil
	}
	return vault.put(name, key)
}

// LoadCredential reads a key by provider name, keyring first.
func LoadCredential(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("credential key name is empty")
	}
	if key, err := keyringGet(credentialService, name); err == nil {
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	return vault.get(name)
}

// DeleteCredential removes a key from both stores. Absence in either store
// is not an error.
func DeleteCredential(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("credential key name is empty")
	}
	_ = keyringDelete(credentialService, name)
	return vault.drop(name)
}

// fileVault is the JSON file behind the keyring. One mutex serializes all
// access since the CLI probes several providers concurrently.
type fileVault struct {
	mu sync.Mutex
}

var vault fileVault

func (v *fileVault) path() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if strings.TrimSpace(home) == "" {
		return "", errors.New("home directory is empty")
	}
	return filepath.Join(home, ".config", "wpforge", "credentials.json"), nil
}

func (v *fileVault) get(name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.read()
	if err != nil {
		return "", err
	}
	key := entries[name]
	if key == "" {
		return "", ErrCredentialNotFound
	}
	return key, nil
}

func (v *fileVault) put(name, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.read()
	if err != nil {
		return err
	}
	entries[name] = key
	return v.write(entries)
}

func (v *fileVault) drop(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	entries, err := v.read()
	if err != nil {
		return err
	}
	if _, ok := entries[name]; !ok {
		return nil
	}
	delete(entries, name)
	return v.write(entries)
}

// read loads the vault file, dropping blank keys and values so a hand-edited
// file cannot produce phantom credentials.
func (v *fileVault) read() (map[string]string, error) {
	path, err := v.path()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	if strings.TrimSpace(string(raw)) == "" {
		return map[string]string{}, nil
	}

	var onDisk map[string]string
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return nil, fmt.Errorf("decode credential file: %w", err)
	}
	entries := make(map[string]string, len(onDisk))
	for name, key := range onDisk {
		name, key = strings.TrimSpace(name), strings.TrimSpace(key)
		if name != "" && key != "" {
			entries[name] = key
		}
	}
	return entries, nil
}

func (v *fileVault) write(entries map[string]string) error {
	path, err := v.path()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = map[string]string{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	payload, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write credential temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace credential file: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("set credential file permissions: %w", err)
	}
	return nil
}
