package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Session  SessionConfig
	TTS      TTSConfig
	Media    MediaConfig
	LLM      LLMConfig
	Draft    DraftConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxUploadBytes int64
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string // empty: migrations embedded in the binary
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SessionConfig struct {
	Secret     string
	CookieName string
	TTL        time.Duration
}

type TTSConfig struct {
	CredentialsFile string // empty: application default credentials
	ProfilesPath    string
	DefaultLanguage string
	VoiceCacheTTL   time.Duration // 0: cached until invalidated
	AudioCacheTTL   time.Duration
}

type MediaConfig struct {
	Dir string
	TTL time.Duration // per-session audio is purged after this long
}

type LLMConfig struct {
	GeminiKey        string
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
}

type DraftConfig struct {
	Template    string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

type StorageConfig struct {
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

// DefaultDraftTemplate is the prompt used to draft an introduction speech.
// {{input}} is replaced with the user's topic.
const DefaultDraftTemplate = "Create a 1-minute long introduction speech to welcome the audience at GCP Data Cloud Live, " +
	"which is 1-day event in Bucharest. Return only the speech, the language should be English. " +
	"Here's the input: {{input}}"

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	sessionTTL, err := getEnvDuration("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	voiceTTL, err := getEnvDuration("VOICE_CACHE_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid VOICE_CACHE_TTL: %w", err)
	}

	audioTTL, err := getEnvDuration("AUDIO_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIO_CACHE_TTL: %w", err)
	}

	mediaTTL, err := getEnvDuration("MEDIA_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid MEDIA_TTL: %w", err)
	}

	maxTokens, err := getEnvInt("DRAFT_MAX_TOKENS", 8192)
	if err != nil {
		return nil, fmt.Errorf("invalid DRAFT_MAX_TOKENS: %w", err)
	}

	temperature, err := getEnvFloat("DRAFT_TEMPERATURE", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DRAFT_TEMPERATURE: %w", err)
	}

	topP, err := getEnvFloat("DRAFT_TOP_P", 0.95)
	if err != nil {
		return nil, fmt.Errorf("invalid DRAFT_TOP_P: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
			MaxUploadBytes: int64(maxUpload),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Session: SessionConfig{
			Secret:     getEnv("SESSION_SECRET", ""),
			CookieName: getEnv("SESSION_COOKIE", "speechstudio_session"),
			TTL:        sessionTTL,
		},
		TTS: TTSConfig{
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			ProfilesPath:    getEnv("AUDIO_PROFILES_PATH", "static/audio_profile_id.json"),
			DefaultLanguage: getEnv("DEFAULT_LANGUAGE", "English (United States)"),
			VoiceCacheTTL:   voiceTTL,
			AudioCacheTTL:   audioTTL,
		},
		Media: MediaConfig{
			Dir: getEnv("MEDIA_DIR", "media"),
			TTL: mediaTTL,
		},
		LLM: LLMConfig{
			GeminiKey:        getEnv("GEMINI_API_KEY", ""),
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "gemini"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gemini-1.5-pro"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Draft: DraftConfig{
			Template:    getEnv("DRAFT_TEMPLATE", DefaultDraftTemplate),
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		},
		Storage: StorageConfig{
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "audio"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ArchiveEnabled reports whether produced audio should be uploaded to storage.
func (c *Config) ArchiveEnabled() bool {
	return c.Storage.SupabaseURL != "" && c.Storage.SupabaseKey != ""
}

func (c *Config) Validate() error {
	var missing []string
	if c.Session.Secret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if c.Media.Dir == "" {
		missing = append(missing, "MEDIA_DIR")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}
