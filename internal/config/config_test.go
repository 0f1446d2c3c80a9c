package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 600*time.Second, cfg.Scheduler.Delay)
	assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.ReconcileInterval)
	assert.Equal(t, 100, cfg.Scheduler.ReconcileBatch)
	assert.Equal(t, "source/", cfg.Storage.SourcePrefix)
	assert.Equal(t, "target/", cfg.Storage.TargetPrefix)
	assert.Equal(t, "Unassigned", cfg.Owner.Defaults.OwnerName)
	assert.Equal(t, "not-available@example.com", cfg.Owner.Defaults.OwnerEmail)
	assert.Equal(t, 3, cfg.Ingestion.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingestion.Retry.InitialInterval)
	assert.Empty(t, cfg.Notification.Channels)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: memory
  bucket: leads
scheduler:
  delay: 120s
  max_attempts: 5
notification:
  channels: [chat]
  chat:
    webhook_url: http://chat.local/hook
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "leads", cfg.Storage.Bucket)
	assert.Equal(t, 120*time.Second, cfg.Scheduler.Delay)
	assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	assert.Equal(t, []string{"chat"}, cfg.Notification.Channels)
}

func TestLegacyEnvironmentVariables(t *testing.T) {
	t.Setenv("BUCKET_NAME", "legacy-bucket")
	t.Setenv("LOOKUP_BUCKET", "legacy-owners")
	t.Setenv("SLACK_WEBHOOK_URL", "http://chat.local/hook")
	t.Setenv("USE_SLACK", "true")
	t.Setenv("USE_EMAIL", "false")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "legacy-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "legacy-owners", cfg.Owner.LookupBucket)
	assert.Equal(t, []string{"chat"}, cfg.Notification.Channels)
}

func TestDelayAboveCapIsRejected(t *testing.T) {
	path := writeConfig(t, "scheduler:\n  delay: 901s\n")

	_, err := LoadConfig(path)
	require.Error(t, err)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "scheduler.delay", vErr.Field)
}

func TestValidateStaticCollectsAllErrors(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	cfg.Scheduler.MaxAttempts = 0
	cfg.Notification.Channels = []string{"email", "pager"}
	cfg.Owner.Source = "ldap"

	err = ValidateStatic(cfg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "scheduler.max_attempts")
	assert.Contains(t, msg, "notification.email.recipients")
	assert.Contains(t, msg, `unknown channel "pager"`)
	assert.Contains(t, msg, "owner.source")
}

func TestValidateOwnerSources(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "http needs placeholder",
			mutate:  func(c *Config) { c.Owner.Source = "http"; c.Owner.LookupURL = "http://owners.local/x" },
			wantErr: "owner.lookup_url",
		},
		{
			name: "http with placeholder",
			mutate: func(c *Config) {
				c.Owner.Source = "http"
				c.Owner.LookupURL = "http://owners.local/{lead_id}.json"
			},
		},
		{
			name:    "mongodb needs database",
			mutate:  func(c *Config) { c.Owner.Source = "mongodb" },
			wantErr: "database.mongodb.uri",
		},
		{
			name: "postgres table must be identifier",
			mutate: func(c *Config) {
				c.Owner.Source = "postgresql"
				c.Database.Postgres = PostgresConfig{Host: "db", Port: 5432, User: "u", DBName: "d"}
				c.Owner.Postgres.Table = "owners; drop table x"
			},
			wantErr: "owner.postgres.table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	p := RetryConfig{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 4 * time.Second, Multiplier: 2}.Policy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialInterval)
	assert.Equal(t, -1.0, p.Jitter)
}
