package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/lms-monitor/internal/credential"
	"github.com/nhle/lms-monitor/internal/model"
	"github.com/nhle/lms-monitor/internal/store"
)

type harness struct {
	dir    string
	config string
	vault  *credential.Vault
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		vault:  credential.NewVault(keyring.NewArrayKeyring(nil)),
	}

	body := "store:\n  path: " + filepath.Join(dir, "sent.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(h.config, []byte(body), 0o600))
	return h
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	opts := &options{openVault: func() (*credential.Vault, error) { return h.vault, nil }}
	cmd := newRootCommand(opts)

	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.config}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) seed(t *testing.T, recs ...model.SentNotification) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(h.dir, "sent.db"))
	require.NoError(t, err)
	defer s.Close()
	for _, rec := range recs {
		require.NoError(t, s.UpsertSent(context.Background(), rec))
	}
}

func TestStats_Empty(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent notifications")
	assert.Contains(t, out, "Nothing has been sent yet.")
}

func TestStats_ListsRecords(t *testing.T) {
	h := newHarness(t)
	h.seed(t, model.SentNotification{
		Kind:               model.KindExam,
		IdentityKey:        "exam:1",
		ContentFingerprint: "abc",
		Title:              "Midterm",
		SentAt:             time.Now().UTC(),
	})

	out, err := h.run(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Midterm")
	assert.Contains(t, out, "Most recent")
}

func TestPrune(t *testing.T) {
	h := newHarness(t)
	h.seed(t,
		model.SentNotification{
			Kind:        model.KindAnnouncement,
			IdentityKey: "announcement:old",
			Title:       "Old",
			SentAt:      time.Now().Add(-200 * 24 * time.Hour).UTC(),
		},
		model.SentNotification{
			Kind:        model.KindAnnouncement,
			IdentityKey: "announcement:new",
			Title:       "New",
			SentAt:      time.Now().UTC(),
		},
	)

	out, err := h.run(t, "", "prune", "--older-than", "2160h")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 record(s)")
}

func TestPrune_RejectsNonPositiveAge(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "prune", "--older-than", "0s")
	assert.Error(t, err)
}

func TestRun_InvalidConfigFails(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestCredentials_SetFromStdinAndDelete(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "hunter2\n", "credentials", "set", credential.KeyPortalPassword, "--stdin")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored portal-password")

	got, err := h.vault.Get(credential.KeyPortalPassword)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", got)

	_, err = h.run(t, "", "credentials", "delete", credential.KeyPortalPassword)
	require.NoError(t, err)
	_, err = h.vault.Get(credential.KeyPortalPassword)
	assert.ErrorIs(t, err, keyring.ErrKeyNotFound)
}

func TestCredentials_UnknownKey(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "x\n", "credentials", "set", "api-token", "--stdin")
	assert.Error(t, err)
}

func TestInit_WritesDefaults(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "fresh", "config.yaml")

	out, err := h.run(t, "", "init", "--defaults", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "shoutrrr", cfg.Notify.Channel)
	assert.Empty(t, cfg.Portal.Password)
}

func TestInit_RefusesToOverwrite(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "", "init", "--defaults")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestExecute_ExitCode(t *testing.T) {
	assert.Equal(t, 1, Execute(context.Background(), []string{"no-such-command"}))
}
