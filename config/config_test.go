package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/sirw-engine/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sirw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(config.New(""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sirw.db", cfg.DB.Path)
	assert.Equal(t, 20, cfg.Policy.DaysAllowed)
	assert.Equal(t, 14, cfg.Policy.ConsecutiveLimit)
	assert.Equal(t, 7, cfg.Policy.ProximityDays)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
}

func TestLoad_FileThenEnv(t *testing.T) {
	// GIVEN: a file setting the policy and a port
	path := writeFile(t, `
server:
  port: 9090
policy:
  days_allowed: 25
  proximity_days: 0
kafka:
  brokers: ["k1:9092", "k2:9092"]
scheduler:
  interval: 15m
log:
  level: DEBUG
`)
	// AND: the environment overrides one limit
	t.Setenv("SIRW_POLICY_CONSECUTIVE_LIMIT", "10")

	cfg, err := config.Load(config.New(path))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Policy.DaysAllowed)
	assert.Equal(t, 10, cfg.Policy.ConsecutiveLimit)
	assert.Equal(t, 0, cfg.Policy.ProximityDays, "zero proximity is valid")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_PolicyFile(t *testing.T) {
	// GIVEN: a policy document that sets two limits
	dir := t.TempDir()
	doc := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(doc, []byte("name: pilot\ndays_allowed: 30\nconsecutive_limit: 10\n"), 0o600))

	// AND: a config whose policy section sets a different proximity window
	path := writeFile(t, "policy:\n  days_allowed: 25\n  proximity_days: 3\npolicy_file: "+doc+"\n")

	// WHEN
	cfg, err := config.Load(config.New(path))
	require.NoError(t, err)

	// THEN: the document wins, and the omitted limit comes from the config
	assert.Equal(t, 30, cfg.Policy.DaysAllowed)
	assert.Equal(t, 10, cfg.Policy.ConsecutiveLimit)
	assert.Equal(t, 3, cfg.Policy.ProximityDays)
}

func TestLoad_PolicyFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("days_allowed: -1\n"), 0o600))

	_, err := config.Load(config.New(writeFile(t, "policy_file: "+bad+"\n")))
	assert.ErrorContains(t, err, "policy file")

	_, err = config.Load(config.New(writeFile(t, "policy_file: "+filepath.Join(dir, "missing.yaml")+"\n")))
	assert.ErrorContains(t, err, "read policy file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"negative allowance", "policy:\n  days_allowed: -3\n", "days_allowed"},
		{"bad log level", "log:\n  level: verbose\n", "log.level"},
		{"kafka without topic", "kafka:\n  brokers: [k1:9092]\n  topic: \"\"\n", "kafka.topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(config.New(writeFile(t, tt.content)))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidate_ClampsSchedulerInterval(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scheduler.Interval = time.Second

	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
}
