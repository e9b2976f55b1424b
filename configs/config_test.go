package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "3000", cfg.Port)
		assert.Equal(t, "instagram_scheduler", cfg.DatabaseName)
		assert.Equal(t, "v22.0", cfg.Instagram.APIVersion)
		assert.Equal(t, "v18.0", cfg.Facebook.APIVersion)
		assert.Equal(t, 2*time.Second, cfg.Graph.PollInterval)
		assert.Equal(t, 10, cfg.Graph.MaxPolls)
		assert.Equal(t, time.Minute, cfg.Scheduler.FirstPublishInterval)
		assert.Equal(t, 5*time.Minute, cfg.Scheduler.RetryInterval)
		assert.Equal(t, 5, cfg.Posts.MaxRetryAttempts)
		assert.Equal(t, 60*time.Second, cfg.Posts.RetryDelay)
		assert.Equal(t, []string{"instagram"}, cfg.Posts.Platforms)
		assert.Equal(t, []string{"openrouter", "togetherai"}, cfg.Captions.Providers)
		assert.Equal(t, DispatchInline, cfg.Scheduler.DispatchMode)
		assert.Equal(t, 10*time.Minute, cfg.Scheduler.LockTTL)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("custom values", func(t *testing.T) {
		t.Setenv("BASE_URL", "https://cdn.example.com/")
		t.Setenv("DEFAULT_PLATFORMS", "instagram, facebook,")
		t.Setenv("CONTAINER_MAX_POLLS", "3")
		t.Setenv("RETRY_INTERVAL", "10m")

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "https://cdn.example.com", cfg.BaseURL)
		assert.Equal(t, []string{"instagram", "facebook"}, cfg.Posts.Platforms)
		assert.Equal(t, 3, cfg.Graph.MaxPolls)
		assert.Equal(t, 10*time.Minute, cfg.Scheduler.RetryInterval)
	})

	t.Run("invalid duration", func(t *testing.T) {
		t.Setenv("CONTAINER_POLL_INTERVAL", "soon")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CONTAINER_POLL_INTERVAL")
	})

	t.Run("invalid integer", func(t *testing.T) {
		t.Setenv("SCHEDULER_CONCURRENCY", "many")

		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SCHEDULER_CONCURRENCY")
	})
}

func validConfig() *Config {
	return &Config{
		MongoURI:      "mongodb://localhost:27017",
		SecretKey:     "secret",
		UploadBackend: UploadLocal,
		UploadDir:     "public/uploads",
		Graph:         Graph{MaxPolls: 10, Timeout: 30 * time.Second, PollInterval: 2 * time.Second},
		Scheduler: Scheduler{
			LockTTL:              10 * time.Minute,
			FirstPublishInterval: time.Minute,
			RetryInterval:        5 * time.Minute,
			Concurrency:          4,
			DispatchMode:         DispatchInline,
		},
		Posts: PostDefaults{MaxRetryAttempts: 5},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validConfig().ValidateForServing())
	})

	t.Run("queue dispatch needs redis", func(t *testing.T) {
		cfg := validConfig()
		cfg.Scheduler.DispatchMode = DispatchQueue
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "REDIS_URI")

		cfg.RedisURI = "redis://localhost:6379/0"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("retry interval shorter than first publish", func(t *testing.T) {
		cfg := validConfig()
		cfg.Scheduler.RetryInterval = time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("lock ttl shorter than an attempt", func(t *testing.T) {
		cfg := validConfig()
		// 13 calls at 30s plus 10 polls 2s apart.
		assert.Equal(t, 410*time.Second, cfg.AttemptTimeout())

		cfg.Scheduler.LockTTL = 2 * time.Minute
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LOCK_TTL")

		cfg.Scheduler.LockTTL = cfg.AttemptTimeout() + time.Minute
		assert.NoError(t, cfg.Validate())
	})

	t.Run("shorter http timeout allows a shorter lock", func(t *testing.T) {
		cfg := validConfig()
		cfg.Graph.Timeout = 5 * time.Second
		cfg.Scheduler.LockTTL = 3 * time.Minute
		assert.NoError(t, cfg.Validate())
	})

	t.Run("serving needs secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.SecretKey = ""
		err := cfg.ValidateForServing()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SECRET_KEY")
	})

	t.Run("r2 backend needs credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.UploadBackend = UploadR2
		err := cfg.ValidateForServing()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "R2_")
	})
}
