package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth（サーバーモードのみ）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionMaxAge int

	// AI
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIModel           string
	OpenAITranscribeModel string
	OpenAITTSModel        string
	OpenAITTSVoice        string
	AITimeout             time.Duration
	QuestionBankPath      string

	// Narration
	NarrationCacheSize int
	NarrationCacheTTL  time.Duration
	PrefetchTimeout    time.Duration

	// Upload / Import
	AudioMaxSize  int64
	ImportTimeout time.Duration
	ImportMaxSize int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitAI      int

	// Workers
	ReanalyzeInterval    time.Duration
	ReanalyzeMaxPerCycle int
	ReanalyzeConcurrency int
	AbandonAfter         time.Duration
	SessionRetentionDays int
	CleanupInterval      time.Duration

	// Server
	ServerPort string
	BaseURL    string
	LogLevel   string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// LocalMode はSQLiteを使うローカルモードかを返す。
func (c *Config) LocalMode() bool {
	return strings.HasPrefix(c.DatabaseURL, "sqlite://")
}

// AIEnabled はAIプロバイダのAPIキーが設定されているかを返す。
func (c *Config) AIEnabled() bool {
	return c.OpenAIAPIKey != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// Google OAuthの設定はサーバーモード（PostgreSQL）の場合のみ必須。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.DatabaseURL != "" && !cfg.LocalMode() {
		if cfg.GoogleClientID == "" {
			missing = append(missing, "GOOGLE_CLIENT_ID")
		}
		if cfg.GoogleClientSecret == "" {
			missing = append(missing, "GOOGLE_CLIENT_SECRET")
		}
		if cfg.GoogleRedirectURL == "" {
			missing = append(missing, "GOOGLE_REDIRECT_URL")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAITranscribeModel = getEnvString("OPENAI_TRANSCRIBE_MODEL", "whisper-1")
	cfg.OpenAITTSModel = getEnvString("OPENAI_TTS_MODEL", "tts-1")
	cfg.OpenAITTSVoice = getEnvString("OPENAI_TTS_VOICE", "alloy")
	cfg.AITimeout = getEnvDuration("AI_TIMEOUT", 60*time.Second)
	cfg.QuestionBankPath = os.Getenv("QUESTION_BANK_PATH")

	cfg.NarrationCacheSize = getEnvInt("NARRATION_CACHE_SIZE", 256)
	cfg.NarrationCacheTTL = getEnvDuration("NARRATION_CACHE_TTL", 6*time.Hour)
	cfg.PrefetchTimeout = getEnvDuration("PREFETCH_TIMEOUT", 30*time.Second)

	cfg.AudioMaxSize = getEnvInt64("AUDIO_MAX_SIZE", 25*1024*1024)
	cfg.ImportTimeout = getEnvDuration("IMPORT_TIMEOUT", 10*time.Second)
	cfg.ImportMaxSize = getEnvInt64("IMPORT_MAX_SIZE", 5*1024*1024)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAI = getEnvInt("RATE_LIMIT_AI", 20)

	cfg.ReanalyzeInterval = getEnvDuration("REANALYZE_INTERVAL", 5*time.Minute)
	cfg.ReanalyzeMaxPerCycle = getEnvInt("REANALYZE_MAX_PER_CYCLE", 50)
	cfg.ReanalyzeConcurrency = getEnvInt("REANALYZE_CONCURRENCY", 4)
	cfg.AbandonAfter = getEnvDuration("ABANDON_AFTER", 720*time.Hour)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 180)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGIN", []string{"http://localhost:3000"})

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvList はカンマ区切りの値を返す。空要素は除く。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
