package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
listenAddr: ":9090"
logMode: prod
sqlitePath: /data/procus.db
webhookToken: hunter2
scanInterval: 15m
answerMin: 1
answerMax: 7
restartReopensIteration: false
actor: starter
gateway:
  url: https://sms.example.test/send
  token: gw-secret
  timeout: 5s
  maxFailures: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, "/data/procus.db", cfg.SQLitePath)
	assert.Equal(t, "hunter2", cfg.WebhookToken)
	assert.Equal(t, 15*time.Minute, cfg.ScanInterval.Std())
	assert.Equal(t, 1, cfg.AnswerMin)
	assert.Equal(t, 7, cfg.AnswerMax)
	assert.False(t, cfg.RestartReopensIteration)
	assert.Equal(t, "starter", cfg.Actor)
	assert.Equal(t, "https://sms.example.test/send", cfg.Gateway.URL)
	assert.Equal(t, "gw-secret", cfg.Gateway.Token)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout.Std())
	assert.EqualValues(t, 3, cfg.Gateway.MaxFailures)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "webhookToken: hunter2\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "procus.db", cfg.SQLitePath)
	assert.Equal(t, 30*time.Minute, cfg.ScanInterval.Std())
	assert.Equal(t, 1, cfg.AnswerMin)
	assert.Equal(t, 5, cfg.AnswerMax)
	assert.True(t, cfg.RestartReopensIteration, "restart reopens by default")
	assert.Equal(t, 10*time.Second, cfg.Gateway.Timeout.Std())
	assert.EqualValues(t, 5, cfg.Gateway.MaxFailures)
}

func TestWebhookTokenFromEnvironment(t *testing.T) {
	t.Setenv("PROCUS_WEBHOOK_TOKEN", "env-secret")
	path := writeConfig(t, "sqlitePath: x.db\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.WebhookToken)
}

func TestMissingWebhookTokenFails(t *testing.T) {
	t.Setenv("PROCUS_WEBHOOK_TOKEN", "")
	path := writeConfig(t, "sqlitePath: x.db\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhookToken")
}

func TestInvertedAnswerBoundsFail(t *testing.T) {
	path := writeConfig(t, `
webhookToken: hunter2
answerMin: 5
answerMax: 1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "answerMin")
}

func TestBadDurationFails(t *testing.T) {
	path := writeConfig(t, `
webhookToken: hunter2
scanInterval: soon
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
