package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrNoDatabaseURL is returned with an otherwise usable Config when
// DATABASE_URL is empty.
var ErrNoDatabaseURL = errors.New("DATABASE_URL not set")

type Config struct {
	Env          string
	ListenAddr   string
	DatabaseURL  string
	DBMaxConns   int
	ScanWorkers  int
	PollInterval time.Duration
	LogLevel     string
	AutoMigrate  bool

	OpenAIKey       string
	OpenAIModel     string
	AnthropicKey    string
	AnthropicModel  string
	GeminiKey       string
	GeminiModel     string
	PerplexityKey   string
	PerplexityModel string

	ResearchMaxConcurrency int
	ResearchDelay          time.Duration
	CrawlDelay             time.Duration
	DispatchSchedule       string
	FlagCacheTTL           time.Duration
	StepMaxRetries         int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("scan_workers", 2)
	v.SetDefault("db_max_conns", 10)
	v.SetDefault("poll_interval", 500*time.Millisecond)
	v.SetDefault("log_level", "info")
	v.SetDefault("auto_migrate", false)
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("perplexity_model", "sonar")
	v.SetDefault("research_max_concurrency", 1)
	v.SetDefault("research_delay", time.Second)
	v.SetDefault("crawl_delay", 200*time.Millisecond)
	v.SetDefault("dispatch_schedule", "0 * * * *")
	v.SetDefault("flag_cache_ttl", time.Minute)
	v.SetDefault("step_max_retries", 3)
}

// Load reads configuration from the environment (and a .env file when present).
// A missing DATABASE_URL is returned as an error so callers can decide.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Env:          v.GetString("app_env"),
		ListenAddr:   v.GetString("listen_addr"),
		DatabaseURL:  v.GetString("database_url"),
		DBMaxConns:   v.GetInt("db_max_conns"),
		ScanWorkers:  v.GetInt("scan_workers"),
		PollInterval: v.GetDuration("poll_interval"),
		LogLevel:     v.GetString("log_level"),
		AutoMigrate:  v.GetBool("auto_migrate"),

		OpenAIKey:       v.GetString("openai_api_key"),
		OpenAIModel:     v.GetString("openai_model"),
		AnthropicKey:    v.GetString("anthropic_api_key"),
		AnthropicModel:  v.GetString("anthropic_model"),
		GeminiKey:       v.GetString("gemini_api_key"),
		GeminiModel:     v.GetString("gemini_model"),
		PerplexityKey:   v.GetString("perplexity_api_key"),
		PerplexityModel: v.GetString("perplexity_model"),

		ResearchMaxConcurrency: v.GetInt("research_max_concurrency"),
		ResearchDelay:          v.GetDuration("research_delay"),
		CrawlDelay:             v.GetDuration("crawl_delay"),
		DispatchSchedule:       v.GetString("dispatch_schedule"),
		FlagCacheTTL:           v.GetDuration("flag_cache_ttl"),
		StepMaxRetries:         v.GetInt("step_max_retries"),
	}
	if cfg.ResearchMaxConcurrency < 1 {
		cfg.ResearchMaxConcurrency = 1
	}
	if cfg.DatabaseURL == "" {
		// Not fatal for local runs; the in-memory store is used instead.
		return cfg, ErrNoDatabaseURL
	}
	return cfg, nil
}
