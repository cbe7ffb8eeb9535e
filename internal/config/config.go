package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Diarization   DiarizationConfig   `yaml:"diarization"`
	LLM           LLMConfig           `yaml:"llm"`
	TTS           TTSConfig           `yaml:"tts"`
	Database      DatabaseConfig      `yaml:"database"`
	Storage       StorageConfig       `yaml:"storage"`
	AWS           AWSConfig           `yaml:"aws"`
	Sessions      SessionConfig       `yaml:"sessions"`
	Cleanup       CleanupConfig       `yaml:"cleanup"`
	GoogleDrive   GoogleDriveConfig   `yaml:"google_drive"`
	Workers       WorkersConfig       `yaml:"workers"`
	Limits        LimitsConfig        `yaml:"limits"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AudioConfig controls the ffmpeg conversion and temp file handling.
type AudioConfig struct {
	FFmpegPath     string `yaml:"ffmpeg_path"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	TempDir        string `yaml:"temp_dir"`
	PersistUploads bool   `yaml:"persist_uploads"`
}

type TranscriptionConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DiarizationConfig struct {
	WindowSeconds          float64 `yaml:"window_seconds"`
	StreamingWindowSeconds float64 `yaml:"streaming_window_seconds"`
	SpeakerModelURL        string  `yaml:"speaker_model_url"`
	Concurrency            int     `yaml:"concurrency"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

type TTSConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Voice   string `yaml:"voice"`
}

type DatabaseConfig struct {
	Mode             string `yaml:"mode"`
	SQLitePath       string `yaml:"sqlite_path"`
	DynamoRegion     string `yaml:"dynamodb_region"`
	DynamoEndpoint   string `yaml:"dynamodb_endpoint"`
	ProjectsTable    string `yaml:"projects_table"`
	AnnotationsTable string `yaml:"annotations_table"`
}

type StorageConfig struct {
	Mode         string `yaml:"mode"`
	LocalPath    string `yaml:"local_path"`
	WorkspaceDir string `yaml:"workspace_dir"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Region     string `yaml:"s3_region"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	PresignTTL   int    `yaml:"presign_ttl_seconds"`
}

// AWSConfig holds credentials shared by the S3 and DynamoDB backends.
type AWSConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseDefaultChain bool   `yaml:"use_default_chain"`
}

type SessionConfig struct {
	MaxSegments    int `yaml:"max_segments"`
	IdleTTLMinutes int `yaml:"idle_ttl_minutes"`
}

type CleanupConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
	MaxAgeHours     int `yaml:"max_age_hours"`
}

type GoogleDriveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	FolderName      string `yaml:"folder_name"`
}

type WorkersConfig struct {
	Count int `yaml:"count"`
}

type LimitsConfig struct {
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 5050, StaticDir: "web"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Audio: AudioConfig{
			FFmpegPath: "ffmpeg",
			SampleRate: 16000,
			Channels:   1,
			TempDir:    "uploads",
		},
		Transcription: TranscriptionConfig{
			BaseURL:        "https://api.openai.com",
			Model:          "whisper-1",
			TimeoutSeconds: 120,
		},
		Diarization: DiarizationConfig{
			WindowSeconds:          10,
			StreamingWindowSeconds: 5,
			Concurrency:            1,
		},
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://api.openai.com/v1",
			Model:    "gpt-4o-mini",
		},
		TTS: TTSConfig{
			BaseURL: "https://api.openai.com",
			Model:   "tts-1",
			Voice:   "alloy",
		},
		Database: DatabaseConfig{
			Mode:             "sqlite",
			SQLitePath:       "audio_annotations.db",
			DynamoRegion:     "us-east-1",
			ProjectsTable:    "voice_stream_projects",
			AnnotationsTable: "voice_stream_annotations",
		},
		Storage: StorageConfig{
			Mode:         "local",
			LocalPath:    ".",
			WorkspaceDir: "workspaces",
			S3Region:     "us-east-1",
			PresignTTL:   3600,
		},
		Sessions: SessionConfig{MaxSegments: 500, IdleTTLMinutes: 30},
		Cleanup:  CleanupConfig{IntervalMinutes: 30, MaxAgeHours: 24},
		GoogleDrive: GoogleDriveConfig{
			CredentialsFile: "config/credentials.json",
			TokenFile:       "config/token.json",
			FolderName:      "Voice Annotations",
		},
		Workers: WorkersConfig{Count: 2},
		Limits:  LimitsConfig{MaxFileSizeMB: 100},
	}
}

// Load reads the YAML file at path on top of the defaults and applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.Mode, "DATABASE_MODE")
	setString(&c.Database.SQLitePath, "SQLITE_DB_PATH")
	setString(&c.Database.DynamoRegion, "DYNAMODB_REGION")
	setString(&c.Database.ProjectsTable, "DYNAMODB_PROJECTS_TABLE")
	setString(&c.Database.AnnotationsTable, "DYNAMODB_ANNOTATIONS_TABLE")
	setString(&c.Storage.Mode, "STORAGE_MODE")
	setString(&c.Storage.S3Bucket, "S3_BUCKET_NAME")
	setString(&c.Storage.S3Region, "S3_REGION")
	setString(&c.Storage.LocalPath, "LOCAL_STORAGE_PATH")
	setString(&c.AWS.AccessKeyID, "AWS_ACCESS_KEY_ID")
	setString(&c.AWS.SecretAccessKey, "AWS_SECRET_ACCESS_KEY")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Transcription.APIKey == "" {
			c.Transcription.APIKey = key
		}
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.TTS.APIKey == "" {
			c.TTS.APIKey = key
		}
	}

	if v, ok := os.LookupEnv("VOICE_UPLOAD_PERSIST"); ok {
		c.Audio.PersistUploads = strings.EqualFold(v, "yes")
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) normalize() {
	c.Database.Mode = strings.ToLower(strings.TrimSpace(c.Database.Mode))
	c.Storage.Mode = strings.ToLower(strings.TrimSpace(c.Storage.Mode))
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// Validate performs validation of every configuration section
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Diarization.Validate(); err != nil {
		return fmt.Errorf("diarization config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if c.Cleanup.IntervalMinutes < 1 {
		return fmt.Errorf("cleanup: interval_minutes must be at least 1, got %d", c.Cleanup.IntervalMinutes)
	}
	if c.Limits.MaxFileSizeMB < 1 {
		return fmt.Errorf("limits: max_file_size_mb must be at least 1, got %d", c.Limits.MaxFileSizeMB)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of debug, info, warn, error, got '%s'", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be 'text' or 'json', got '%s'", l.Format)
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", a.SampleRate)
	}
	if a.Channels < 1 {
		return fmt.Errorf("channels must be at least 1, got %d", a.Channels)
	}
	if a.TempDir == "" {
		return fmt.Errorf("temp_dir cannot be empty")
	}
	return nil
}

func (d *DiarizationConfig) Validate() error {
	if d.WindowSeconds <= 0 || d.StreamingWindowSeconds <= 0 {
		return fmt.Errorf("window sizes must be positive, got %.1f and %.1f",
			d.WindowSeconds, d.StreamingWindowSeconds)
	}
	if d.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", d.Concurrency)
	}
	return nil
}

func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case "openai", "langchain":
	default:
		return fmt.Errorf("provider must be 'openai' or 'langchain', got '%s'", l.Provider)
	}
	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	return nil
}

func (d *DatabaseConfig) Validate() error {
	switch d.Mode {
	case "sqlite":
		if d.SQLitePath == "" {
			return fmt.Errorf("sqlite_path cannot be empty")
		}
	case "dynamodb":
		if d.ProjectsTable == "" || d.AnnotationsTable == "" {
			return fmt.Errorf("dynamodb table names cannot be empty")
		}
	default:
		return fmt.Errorf("mode must be 'sqlite' or 'dynamodb', got '%s'", d.Mode)
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	switch s.Mode {
	case "local", "s3":
	default:
		return fmt.Errorf("mode must be 'local' or 's3', got '%s'", s.Mode)
	}
	if s.LocalPath == "" {
		return fmt.Errorf("local_path cannot be empty")
	}
	if s.WorkspaceDir == "" {
		return fmt.Errorf("workspace_dir cannot be empty")
	}
	if filepath.IsAbs(s.WorkspaceDir) || strings.Contains(s.WorkspaceDir, "..") {
		return fmt.Errorf("workspace_dir must be a relative path inside the storage root, got '%s'", s.WorkspaceDir)
	}
	return nil
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (t TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (s SessionConfig) IdleTTL() time.Duration {
	return time.Duration(s.IdleTTLMinutes) * time.Minute
}

func (s StorageConfig) PresignDuration() time.Duration {
	return time.Duration(s.PresignTTL) * time.Second
}
