package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"

	UploadLocal = "local"
	UploadR2    = "r2"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type Graph struct {
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxPolls     int
}

type Instagram struct {
	UserID      string
	AccessToken string
	APIVersion  string
}

type Facebook struct {
	PageID      string
	AccessToken string
	APIVersion  string
}

type Scheduler struct {
	FirstPublishInterval time.Duration
	RetryInterval        time.Duration
	Jitter               time.Duration
	Concurrency          int
	DispatchMode         string
	LockTTL              time.Duration
}

type PostDefaults struct {
	MaxRetryAttempts int
	RetryDelay       time.Duration
	Platforms        []string
}

type CaptionProvider struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Captions struct {
	Providers  []string
	Prompt     string
	Timeout    time.Duration
	OpenRouter CaptionProvider
	TogetherAI CaptionProvider
}

type Config struct {
	Port          string
	BaseURL       string
	UploadDir     string
	UploadBackend string
	MongoURI      string
	DatabaseName  string
	PostgresURI   string
	RedisURI      string
	SecretKey     string
	CookieName    string
	TokenTTL      time.Duration
	LogLevel      string
	LogFormat     string
	R2            R2
	Graph         Graph
	Instagram     Instagram
	Facebook      Facebook
	Scheduler     Scheduler
	Posts         PostDefaults
	Captions      Captions
}

const defaultCaptionPrompt = "Write a short, stylish Instagram caption for this photo. " +
	"Make it captivating and confident. Add popular hashtags and emojis to boost engagement. " +
	"Return only the caption text, no explanation."

// LoadConfig reads .env (if present) and the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	cfg := &Config{
		Port:          getEnv("PORT", "3000"),
		BaseURL:       strings.TrimRight(getEnv("BASE_URL", "http://localhost:3000"), "/"),
		UploadDir:     getEnv("UPLOAD_DIR", "public/uploads"),
		UploadBackend: getEnv("UPLOAD_BACKEND", UploadLocal),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DatabaseName:  getEnv("DATABASE_NAME", "instagram_scheduler"),
		PostgresURI:   getEnv("POSTGRES_URI", ""),
		RedisURI:      getEnv("REDIS_URI", ""),
		SecretKey:     getEnv("SECRET_KEY", ""),
		CookieName:    getEnv("COOKIE_NAME", "postflow_token"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  strings.TrimRight(getEnv("R2_PUBLIC_URL", ""), "/"),
		},
		Graph: Graph{
			BaseURL: strings.TrimRight(getEnv("GRAPH_API_URL", "https://graph.facebook.com"), "/"),
		},
		Instagram: Instagram{
			UserID:      getEnv("IG_USER_ID", ""),
			AccessToken: getEnv("IG_ACCESS_TOKEN", ""),
			APIVersion:  getEnv("INSTAGRAM_API_VERSION", "v22.0"),
		},
		Facebook: Facebook{
			PageID:      getEnv("FB_PAGE_ID", ""),
			AccessToken: getEnv("FB_ACCESS_TOKEN", ""),
			APIVersion:  getEnv("FACEBOOK_API_VERSION", "v18.0"),
		},
		Scheduler: Scheduler{
			DispatchMode: getEnv("DISPATCH_MODE", DispatchInline),
		},
		Posts: PostDefaults{
			Platforms: getEnvList("DEFAULT_PLATFORMS", "instagram"),
		},
		Captions: Captions{
			Providers: getEnvList("CAPTION_PROVIDERS", "openrouter,togetherai"),
			Prompt:    getEnv("CAPTION_PROMPT", defaultCaptionPrompt),
			OpenRouter: CaptionProvider{
				APIKey:  getEnv("OPENROUTER_API_KEY", ""),
				Model:   getEnv("OPENROUTER_MODEL", "meta-llama/llama-3.2-11b-vision-instruct:free"),
				BaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			},
			TogetherAI: CaptionProvider{
				APIKey:  getEnv("TOGETHERAI_API_KEY", ""),
				Model:   getEnv("TOGETHERAI_MODEL", "meta-llama/Llama-Vision-Free"),
				BaseURL: getEnv("TOGETHERAI_BASE_URL", "https://api.together.xyz/v1"),
			},
		},
	}

	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"TOKEN_TTL", "24h", &cfg.TokenTTL},
		{"HTTP_TIMEOUT", "30s", &cfg.Graph.Timeout},
		{"CONTAINER_POLL_INTERVAL", "2s", &cfg.Graph.PollInterval},
		{"FIRST_PUBLISH_INTERVAL", "1m", &cfg.Scheduler.FirstPublishInterval},
		{"RETRY_INTERVAL", "5m", &cfg.Scheduler.RetryInterval},
		{"SCHEDULER_JITTER", "0s", &cfg.Scheduler.Jitter},
		{"LOCK_TTL", "10m", &cfg.Scheduler.LockTTL},
		{"DEFAULT_RETRY_DELAY", "60s", &cfg.Posts.RetryDelay},
		{"CAPTION_TIMEOUT", "30s", &cfg.Captions.Timeout},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"CONTAINER_MAX_POLLS", 10, &cfg.Graph.MaxPolls},
		{"SCHEDULER_CONCURRENCY", 4, &cfg.Scheduler.Concurrency},
		{"DEFAULT_MAX_RETRY_ATTEMPTS", 5, &cfg.Posts.MaxRetryAttempts},
	}
	for _, i := range ints {
		v, err := getEnvInt(i.key, i.def)
		if err != nil {
			return nil, err
		}
		*i.dest = v
	}

	return cfg, nil
}

// lockMargin covers the store writes around the remote calls of one attempt.
const lockMargin = time.Minute

// AttemptTimeout is the longest one publish attempt may run: every Graph call
// of the Instagram protocol at HTTP_TIMEOUT plus the poll spacing. Attempts
// are cut off at this bound so a post lease of LOCK_TTL never expires mid-attempt.
func (c *Config) AttemptTimeout() time.Duration {
	calls := time.Duration(c.Graph.MaxPolls + 3)
	return calls*c.Graph.Timeout + time.Duration(c.Graph.MaxPolls)*c.Graph.PollInterval
}

// Validate checks what every command needs.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.Graph.MaxPolls < 1 {
		return fmt.Errorf("CONTAINER_MAX_POLLS must be at least 1")
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("SCHEDULER_CONCURRENCY must be at least 1")
	}
	if c.Posts.MaxRetryAttempts < 1 {
		return fmt.Errorf("DEFAULT_MAX_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Scheduler.RetryInterval < c.Scheduler.FirstPublishInterval {
		return fmt.Errorf("RETRY_INTERVAL must not be shorter than FIRST_PUBLISH_INTERVAL")
	}
	if need := c.AttemptTimeout() + lockMargin; c.Scheduler.LockTTL < need {
		return fmt.Errorf("LOCK_TTL must be at least %s (worst-case attempt %s plus %s)", need, c.AttemptTimeout(), lockMargin)
	}

	switch c.Scheduler.DispatchMode {
	case DispatchInline:
	case DispatchQueue:
		if c.RedisURI == "" {
			return fmt.Errorf("REDIS_URI is required when DISPATCH_MODE is queue")
		}
	default:
		return fmt.Errorf("invalid DISPATCH_MODE: %s (must be 'inline' or 'queue')", c.Scheduler.DispatchMode)
	}
	return nil
}

// ValidateForServing checks the HTTP surface on top of Validate.
func (c *Config) ValidateForServing() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	switch c.UploadBackend {
	case UploadLocal:
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required")
		}
	case UploadR2:
		if c.R2.AccountID == "" || c.R2.AccessKey == "" || c.R2.SecretKey == "" || c.R2.BucketName == "" {
			return fmt.Errorf("R2_ACCOUNT_ID, R2_ACCESS_KEY, R2_SECRET_KEY and R2_BUCKET_NAME are required when UPLOAD_BACKEND is r2")
		}
		if c.R2.PublicURL == "" {
			return fmt.Errorf("R2_PUBLIC_URL is required when UPLOAD_BACKEND is r2")
		}
	default:
		return fmt.Errorf("invalid UPLOAD_BACKEND: %s (must be 'local' or 'r2')", c.UploadBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	v, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
