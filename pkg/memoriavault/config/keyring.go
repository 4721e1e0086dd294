package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "memoriavault"

	// KeyringAPIKey is the key name for the OpenAI API key.
	KeyringAPIKey = "openai_api_key"

	envAPIKey = "OPENAI_API_KEY"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__memoriavault_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveAPIKey fills cfg.Extraction.OpenAI.APIKey using the priority chain:
//  1. OS keyring (encrypted by the OS, requires user session)
//  2. OPENAI_API_KEY, from the environment or a .env file
//  3. config.yaml value (plaintext on disk)
//
// An unresolved reference is cleared so OpenAI capabilities are treated as
// unavailable.
func ResolveAPIKey(cfg *Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	if val := GetKeyring(KeyringAPIKey); val != "" {
		cfg.Extraction.OpenAI.APIKey = val
		logger.Debug("API key loaded from OS keyring")
		return
	}

	if val := os.Getenv(envAPIKey); val != "" {
		cfg.Extraction.OpenAI.APIKey = val
		logger.Debug("API key loaded from environment")
		return
	}

	if key := cfg.Extraction.OpenAI.APIKey; key != "" && !IsEnvReference(key) {
		if strings.HasPrefix(key, "sk-") {
			logger.Warn("API key appears to be hardcoded in config",
				"hint", "Run 'memoriavault setup' to move it to the OS keyring")
		}
		return
	}

	cfg.Extraction.OpenAI.APIKey = ""
	logger.Debug("no OpenAI API key configured; OpenAI capabilities disabled")
}

// ReadPassword prints prompt and reads a line without echo. Falls back to a
// plain read when stdin is not a terminal.
func ReadPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
