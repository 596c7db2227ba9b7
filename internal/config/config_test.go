package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"IMAP_SERVER", "EMAIL_USER", "EMAIL_PASSWORD", "API_BASE_URL"} {
		t.Setenv(k, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
username: ops@example.com
password: app-password
server: mail.example.com
poll_interval_seconds: 5
`)
	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com", cfg.Server)
	assert.Equal(t, "imap", cfg.GetProtocol())
	assert.Equal(t, 993, cfg.GetPort())
	assert.Equal(t, "INBOX", cfg.GetMailbox())
	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, "data/email-attachments", cfg.GetAttachmentsDir())
	assert.Equal(t, 5, cfg.PollIntervalSeconds)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
username: file-user@example.com
password: file-password
server: file.example.com
`)
	t.Setenv("EMAIL_USER", "env-user@example.com")
	t.Setenv("IMAP_SERVER", "env.example.com")
	t.Setenv("API_BASE_URL", "http://api.internal:8080/api")

	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "env-user@example.com", cfg.Username)
	assert.Equal(t, "file-password", cfg.Password, "file value kept when env is unset")
	assert.Equal(t, "env.example.com", cfg.Server)
	assert.Equal(t, "http://api.internal:8080/api", cfg.APIBaseURL)
}

func TestLoadEnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMAIL_USER", "ops@example.com")
	t.Setenv("EMAIL_PASSWORD", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	require.NoError(t, err)

	assert.Equal(t, "imap.gmail.com", cfg.Server)
	assert.Equal(t, "ops@example.com", cfg.Username)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.Error(t, err, "an explicitly given config path must exist")
}

func TestValidateMissingCredentials(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `server: mail.example.com`)

	_, err := Load(path, false)
	assert.True(t, errors.Is(err, ErrMissingCredentials))
}

func TestValidateBadProtocol(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
username: u@example.com
password: p
protocol: nntp
`)
	_, err := Load(path, false)
	assert.ErrorContains(t, err, "protocol")
}

func TestPOP3Defaults(t *testing.T) {
	cfg := &Config{Protocol: "pop3"}
	assert.Equal(t, 995, cfg.GetPort())

	cfg = &Config{}
	assert.Equal(t, 993, cfg.GetPort())
	assert.Equal(t, 30.0, cfg.PollInterval().Seconds())
}
