package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lms-monitor/internal/credential"
	"github.com/nhle/lms-monitor/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(model.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
}

func TestNewLogger_Invalid(t *testing.T) {
	_, err := NewLogger(model.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewLogger(model.LogConfig{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestLoadConfig_FillsSecretsFromVault(t *testing.T) {
	path := writeConfig(t, `
portal:
  username: student
notify:
  telegram:
    token: file-token
    chat_id: "42"
`)

	vault := credential.NewVault(keyring.NewArrayKeyring(nil))
	require.NoError(t, vault.Set(credential.KeyPortalPassword, "secret"))
	require.NoError(t, vault.Set(credential.KeyTelegramToken, "vault-token"))

	cfg, err := LoadConfig(path, vault)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Portal.Password)
	assert.Equal(t, "file-token", cfg.Notify.Telegram.Token)
	assert.Equal(t, "student", cfg.Portal.Username)
}

func TestLoadConfig_NoSecretSource(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "portal:\n  username: student\n"), nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Portal.Password)
}

func testConfig(t *testing.T) *model.Config {
	t.Helper()
	cfg, err := LoadConfig(writeConfig(t, "portal:\n  username: student\n"), nil)
	require.NoError(t, err)
	cfg.Store.Path = filepath.Join(t.TempDir(), "sent.db")
	return cfg
}

func TestNew_OpensStoreAndCloses(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	require.NoError(t, a.Store.Ping(context.Background()))
	n, err := a.Dedup.SentCount(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close(), "second close is a no-op")
}

func TestNewMonitor_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.NewMonitor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Password")
}

func TestNewMonitor_Wires(t *testing.T) {
	cfg := testConfig(t)
	cfg.Portal.Password = "secret"
	cfg.Notify.URLs = []string{"generic://example.com/hook"}

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	m, err := a.NewMonitor(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.NotNil(t, a.Metrics)
	assert.False(t, a.Reporter.Enabled())
}
