package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Agent struct {
		ID              string        `yaml:"id"`
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"agent"`

	Backend struct {
		Address         string        `yaml:"address"`
		PublicWSURL     string        `yaml:"public_ws_url"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"backend"`

	API struct {
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout"`
		UserID      string        `yaml:"user_id"`
		CounselorID string        `yaml:"counselor_id"`

		Retry struct {
			Enabled      bool          `yaml:"enabled"`
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`

		CircuitBreaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			SuccessThreshold int           `yaml:"success_threshold"`
			Timeout          time.Duration `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"api"`

	Channels struct {
		PingInterval         time.Duration `yaml:"ping_interval"`
		PongTimeout          time.Duration `yaml:"pong_timeout"`
		WriteTimeout         time.Duration `yaml:"write_timeout"`
		ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
		MaxMessageSizeBytes  int64         `yaml:"max_message_size_bytes"`
	} `yaml:"channels"`

	Renderer struct {
		MaxFPS      float64 `yaml:"max_fps"`
		MailboxSize int     `yaml:"mailbox_size"`
		Width       int     `yaml:"width"`
		Height      int     `yaml:"height"`
	} `yaml:"renderer"`

	Session struct {
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		SubtitleHistory int           `yaml:"subtitle_history"`
		ResumeTTL       time.Duration `yaml:"resume_ttl"`
		// CacheTTL bounds how long the backend serves a session from memory
		// before rereading the store. Zero disables the cache.
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"session"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		HealthInterval    time.Duration `yaml:"health_interval"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		ChannelTokenTTL time.Duration `yaml:"channel_token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Agent
	if c.Agent.ID == "" {
		return fmt.Errorf("agent.id must not be empty")
	}
	if c.Agent.Address == "" {
		return fmt.Errorf("agent.address must not be empty")
	}
	if c.Agent.ReadTimeout <= 0 {
		return fmt.Errorf("agent.read_timeout must be > 0")
	}
	if c.Agent.WriteTimeout <= 0 {
		return fmt.Errorf("agent.write_timeout must be > 0")
	}
	if c.Agent.ShutdownTimeout <= 0 {
		return fmt.Errorf("agent.shutdown_timeout must be > 0")
	}

	// Backend
	if c.Backend.Address == "" {
		return fmt.Errorf("backend.address must not be empty")
	}
	if c.Backend.ReadTimeout <= 0 {
		return fmt.Errorf("backend.read_timeout must be > 0")
	}
	if c.Backend.ShutdownTimeout <= 0 {
		return fmt.Errorf("backend.shutdown_timeout must be > 0")
	}

	// API
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}
	if c.API.Retry.Enabled {
		if c.API.Retry.MaxAttempts <= 0 {
			return fmt.Errorf("api.retry.max_attempts must be > 0 when retry is enabled")
		}
		if c.API.Retry.InitialDelay <= 0 {
			return fmt.Errorf("api.retry.initial_delay must be > 0 when retry is enabled")
		}
		if c.API.Retry.MaxDelay < c.API.Retry.InitialDelay {
			return fmt.Errorf("api.retry.max_delay must be >= initial_delay")
		}
	}
	if c.API.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("api.circuit_breaker.failure_threshold must be > 0")
	}
	if c.API.CircuitBreaker.SuccessThreshold <= 0 {
		return fmt.Errorf("api.circuit_breaker.success_threshold must be > 0")
	}
	if c.API.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("api.circuit_breaker.timeout must be > 0")
	}

	// Channels
	if c.Channels.PingInterval <= 0 {
		return fmt.Errorf("channels.ping_interval must be > 0")
	}
	if c.Channels.PongTimeout <= c.Channels.PingInterval {
		return fmt.Errorf("channels.pong_timeout must be > ping_interval")
	}
	if c.Channels.WriteTimeout <= 0 {
		return fmt.Errorf("channels.write_timeout must be > 0")
	}
	if c.Channels.MaxReconnectAttempts < 0 {
		return fmt.Errorf("channels.max_reconnect_attempts must be >= 0")
	}
	if c.Channels.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("channels.max_message_size_bytes must be >= 0")
	}

	// Renderer
	if c.Renderer.MaxFPS < 0 {
		return fmt.Errorf("renderer.max_fps must be >= 0")
	}
	if c.Renderer.MailboxSize <= 0 {
		return fmt.Errorf("renderer.mailbox_size must be > 0")
	}

	// Session
	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session.idle_timeout must be >= 0")
	}
	if c.Session.SubtitleHistory <= 0 {
		return fmt.Errorf("session.subtitle_history must be > 0")
	}
	if c.Session.ResumeTTL < 0 {
		return fmt.Errorf("session.resume_ttl must be >= 0")
	}
	if c.Session.CacheTTL < 0 {
		return fmt.Errorf("session.cache_ttl must be >= 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.ChannelTokenTTL <= 0 {
		return fmt.Errorf("auth.channel_token_ttl must be > 0")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFirst tries each path in order and returns the first configuration that loads.
func LoadFirst(paths ...string) (*Config, string, error) {
	var lastErr error
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err == nil {
			return cfg, path, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg, "", nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Agent.ID = "local"
	cfg.Agent.Address = ":7070"
	cfg.Agent.ReadTimeout = 15 * time.Second
	cfg.Agent.WriteTimeout = 15 * time.Second
	cfg.Agent.ShutdownTimeout = 10 * time.Second

	cfg.Backend.Address = ":8000"
	cfg.Backend.PublicWSURL = "ws://localhost:8000"
	cfg.Backend.ReadTimeout = 15 * time.Second
	cfg.Backend.ShutdownTimeout = 10 * time.Second

	cfg.API.BaseURL = "http://localhost:8000"
	cfg.API.Timeout = 10 * time.Second
	cfg.API.UserID = "guest"
	cfg.API.CounselorID = "default"
	// No retries by default: a failed start/end surfaces straight to the caller.
	cfg.API.Retry.Enabled = false
	cfg.API.Retry.MaxAttempts = 3
	cfg.API.Retry.InitialDelay = 200 * time.Millisecond
	cfg.API.Retry.MaxDelay = 2 * time.Second
	cfg.API.CircuitBreaker.FailureThreshold = 5
	cfg.API.CircuitBreaker.SuccessThreshold = 2
	cfg.API.CircuitBreaker.Timeout = 30 * time.Second

	cfg.Channels.PingInterval = 25 * time.Second
	cfg.Channels.PongTimeout = 60 * time.Second
	cfg.Channels.WriteTimeout = 10 * time.Second
	cfg.Channels.ReconnectDelay = 2 * time.Second
	cfg.Channels.MaxReconnectAttempts = 5
	cfg.Channels.MaxMessageSizeBytes = 512 * 1024

	cfg.Renderer.MaxFPS = 30
	cfg.Renderer.MailboxSize = 8
	cfg.Renderer.Width = 640
	cfg.Renderer.Height = 480

	cfg.Session.IdleTimeout = 10 * time.Minute
	cfg.Session.SubtitleHistory = 20
	cfg.Session.ResumeTTL = 24 * time.Hour
	cfg.Session.CacheTTL = 5 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthInterval = 30 * time.Second

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.ChannelTokenTTL = 2 * time.Hour

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 20
	cfg.RateLimiting.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("BEMORE_AGENT_ID"); id != "" {
		c.Agent.ID = id
	}
	if addr := os.Getenv("BEMORE_AGENT_ADDRESS"); addr != "" {
		c.Agent.Address = addr
	}
	if addr := os.Getenv("BEMORE_BACKEND_ADDRESS"); addr != "" {
		c.Backend.Address = addr
	}
	if url := os.Getenv("BEMORE_API_BASE_URL"); url != "" {
		c.API.BaseURL = url
	}
	if url := os.Getenv("BEMORE_PUBLIC_WS_URL"); url != "" {
		c.Backend.PublicWSURL = url
	}
	if level := os.Getenv("BEMORE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("BEMORE_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("BEMORE_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
