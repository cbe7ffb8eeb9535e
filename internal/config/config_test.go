package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DATABASE_MODE", "SQLITE_DB_PATH", "STORAGE_MODE", "S3_BUCKET_NAME",
		"OPENAI_API_KEY", "VOICE_UPLOAD_PERSIST", "PORT", "LOG_LEVEL", "LOCAL_STORAGE_PATH",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.Database.Mode)
	require.Equal(t, "local", cfg.Storage.Mode)
	require.Equal(t, 16000, cfg.Audio.SampleRate)
	require.False(t, cfg.Audio.PersistUploads)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
server:
  port: 8080
database:
  mode: SQLite
  sqlite_path: from-file.db
storage:
  mode: local
`), 0644)
	require.NoError(t, err)

	t.Setenv("SQLITE_DB_PATH", "from-env.db")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VOICE_UPLOAD_PERSIST", "YES")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Mode)
	require.Equal(t, "from-env.db", cfg.Database.SQLitePath)
	require.Equal(t, "sk-test", cfg.Transcription.APIKey)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
	require.Equal(t, "sk-test", cfg.TTS.APIKey)
	require.True(t, cfg.Audio.PersistUploads)
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{name: "defaults", mutate: func(*Config) {}, valid: true},
		{name: "unknown database mode", mutate: func(c *Config) { c.Database.Mode = "postgres" }},
		{name: "unknown storage mode", mutate: func(c *Config) { c.Storage.Mode = "gcs" }},
		{name: "unknown llm provider", mutate: func(c *Config) { c.LLM.Provider = "other" }},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "zero window", mutate: func(c *Config) { c.Diarization.WindowSeconds = 0 }},
		{name: "dynamodb", mutate: func(c *Config) { c.Database.Mode = "dynamodb" }, valid: true},
		{name: "absolute workspace dir", mutate: func(c *Config) { c.Storage.WorkspaceDir = "/srv/workspaces" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}
