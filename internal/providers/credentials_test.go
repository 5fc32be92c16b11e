package providers

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// stubCredentialStores points the home directory at a temp dir and replaces
// the keyring seams, restoring everything when the test ends. The returned
// map holds whatever the fake keyring accepted.
func stubCredentialStores(t *testing.T, keyringWorks bool) (string, map[string]string) {
	t.Helper()

	origGet, origSet, origDelete, origHome := keyringGet, keyringSet, keyringDelete, userHomeDir
	t.Cleanup(func() {
		keyringGet, keyringSet, keyringDelete, userHomeDir = origGet, origSet, origDelete, origHome
	})

	home := t.TempDir()
	userHomeDir = func() (string, error) { return home, nil }

	held := make(map[string]string)
	if keyringWorks {
		keyringSet = func(service, user, password string) error {
			held[user] = password
			return nil
		}
		keyringGet = func(service, user string) (string, error) {
			if v := held[user]; v != "" {
				return v, nil
			}
			return "", errors.New("not found")
		}
		keyringDelete = func(service, user string) error {
			delete(held, user)
			return nil
		}
	} else {
		down := errors.New("keyring unavailable")
		keyringSet = func(service, user, password string) error { return down }
		keyringGet = func(service, user string) (string, error) { return "", down }
		keyringDelete = func(service, user string) error { return down }
	}
	return home, held
}

func vaultFile(home string) string {
	return filepath.Join(home, ".config", "wpforge", "credentials.json")
}

func TestStoreCredentialFallsBackToFileWhenKeyringUnavailable(t *testing.T) {
	home, _ := stubCredentialStores(t, false)

	if err := StoreCredential("openai", "sk-test"); err != nil {
		t.Fatalf("store credential: %v", err)
	}

	info, err := os.Stat(vaultFile(home))
	if err != nil {
		t.Fatalf("stat credential file: %v", err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Fatalf("expected credential file mode 0600, got %o", got)
	}

	got, err := LoadCredential("openai")
	if err != nil {
		t.Fatalf("load credential: %v", err)
	}
	if got != "sk-test" {
		t.Fatalf("expected stored credential, got %q", got)
	}
}

func TestStoreCredentialPrefersKeyring(t *testing.T) {
	home, held := stubCredentialStores(t, true)

	if err := StoreCredential("anthropic", "sk-ant"); err != nil {
		t.Fatalf("store credential: %v", err)
	}
	if held["anthropic"] != "sk-ant" {
		t.Fatalf("expected keyring value persisted, got %q", held["anthropic"])
	}
	if _, err := os.Stat(vaultFile(home)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no fallback file when keyring works, got err=%v", err)
	}
}

func TestDeleteCredentialClearsBothStores(t *testing.T) {
	stubCredentialStores(t, false)

	if err := StoreCredential("openai", "sk-test"); err != nil {
		t.Fatalf("store credential: %v", err)
	}
	if err := DeleteCredential("openai"); err != nil {
		t.Fatalf("delete credential: %v", err)
	}
	if _, err := LoadCredential("openai"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected ErrCredentialNotFound after delete, got %v", err)
	}
}

func TestVaultIgnoresBlankEntries(t *testing.T) {
	home, _ := stubCredentialStores(t, false)

	path := vaultFile(home)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"openai": "  ", "": "sk-orphan", "anthropic": "sk-ant"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadCredential("openai"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected blank value treated as missing, got %v", err)
	}
	got, err := LoadCredential("anthropic")
	if err != nil || got != "sk-ant" {
		t.Fatalf("expected surviving entry, got %q err=%v", got, err)
	}
}

func TestAPIKeyForPrefersEnvironment(t *testing.T) {
	_, held := stubCredentialStores(t, true)
	held["openai"] = "sk-from-keyring"

	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	got, err := APIKeyFor("openai")
	if err != nil {
		t.Fatalf("api key for openai: %v", err)
	}
	if got != "sk-from-env" {
		t.Fatalf("expected environment to win, got %q", got)
	}
}

func TestValidateCredential(t *testing.T) {
	if err := ValidateCredential("  "); err == nil {
		t.Fatal("expected error for blank credential")
	}
	if err := ValidateCredential("sk-abc def"); err == nil {
		t.Fatal("expected error for credential with whitespace")
	}
	if err := ValidateCredential("token"); err != nil {
		t.Fatalf("expected plain token to validate, got %v", err)
	}
}
