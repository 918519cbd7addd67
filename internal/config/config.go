package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	StateStore string
	Redis      RedisConfig

	HTTPAddr string

	Usage     UsageConfig
	Plan      PlanConfig
	Executor  ExecutorConfig
	Workflow  WorkflowConfig
	Search    SearchConfig
	LLM       LLMConfig
	Notify    NotifyConfig
	Scheduler SchedulerConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type UsageConfig struct {
	TimeZone   string
	AuditCap   int
	HistoryCap int
}

type PlanConfig struct {
	TrialDays int
}

type ExecutorConfig struct {
	MaxAttempts          int
	BackoffUnit          time.Duration
	RateLimitBackoffUnit time.Duration
}

type WorkflowConfig struct {
	MaxBatchTerms      int
	MaxAccepted        int
	ContentBudgetBytes int
	CallDelay          time.Duration
	DistributedPacing  bool
	// PageCacheTTL keeps fetched pages for reuse across terms; zero disables it.
	PageCacheTTL time.Duration
}

type SearchConfig struct {
	Endpoint       string
	APIKey         string
	EngineID       string
	ResultsPerTerm int
	Timeout        time.Duration
}

type LLMConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

type NotifyConfig struct {
	WebhookURL string
	Channel    string
}

type SchedulerConfig struct {
	Enabled      bool
	Interval     time.Duration
	BatchEnabled bool
	BatchLockTTL time.Duration
	EnabledJobs  []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:      getenv("APP_SERVICE", "prospector"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "prospector"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "prospector.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		StateStore: strings.ToLower(getenv("STATE_STORE", "gorm")),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
			Prefix:   getenv("REDIS_PREFIX", "prospector:"),
		},

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		Usage: UsageConfig{
			TimeZone:   getenv("USAGE_TIMEZONE", "UTC"),
			AuditCap:   getenvInt("USAGE_AUDIT_CAP", 500),
			HistoryCap: getenvInt("USAGE_HISTORY_CAP", 365),
		},
		Plan: PlanConfig{
			TrialDays: getenvInt("PLAN_TRIAL_DAYS", 14),
		},
		Executor: ExecutorConfig{
			MaxAttempts:          getenvInt("EXECUTOR_MAX_ATTEMPTS", 3),
			BackoffUnit:          getenvDuration("EXECUTOR_BACKOFF_UNIT", 500*time.Millisecond),
			RateLimitBackoffUnit: getenvDuration("EXECUTOR_RATE_LIMIT_BACKOFF_UNIT", time.Second),
		},
		Workflow: WorkflowConfig{
			MaxBatchTerms:      getenvInt("WORKFLOW_MAX_BATCH_TERMS", 10),
			MaxAccepted:        getenvInt("WORKFLOW_MAX_ACCEPTED", 20),
			ContentBudgetBytes: getenvInt("WORKFLOW_CONTENT_BUDGET_BYTES", 8000),
			CallDelay:          getenvDuration("WORKFLOW_CALL_DELAY", time.Second),
			DistributedPacing:  getenvBool("WORKFLOW_DISTRIBUTED_PACING", false),
			PageCacheTTL:       getenvDuration("WORKFLOW_PAGE_CACHE_TTL", 30*time.Minute),
		},
		Search: SearchConfig{
			Endpoint:       getenv("SEARCH_ENDPOINT", "https://www.googleapis.com/customsearch/v1"),
			APIKey:         strings.TrimSpace(getenv("SEARCH_API_KEY", "")),
			EngineID:       strings.TrimSpace(getenv("SEARCH_ENGINE_ID", "")),
			ResultsPerTerm: getenvInt("SEARCH_RESULTS_PER_TERM", 5),
			Timeout:        getenvDuration("SEARCH_TIMEOUT", 15*time.Second),
		},
		LLM: LLMConfig{
			APIKey:    strings.TrimSpace(getenv("LLM_API_KEY", "")),
			Model:     getenv("LLM_MODEL", "gpt-4o-mini"),
			BaseURL:   strings.TrimSpace(getenv("LLM_BASE_URL", "")),
			MaxTokens: getenvInt("LLM_MAX_TOKENS", 1024),
			Timeout:   getenvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		Notify: NotifyConfig{
			WebhookURL: strings.TrimSpace(getenv("NOTIFY_WEBHOOK_URL", "")),
			Channel:    getenv("NOTIFY_CHANNEL", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getenvBool("SCHEDULER_ENABLED", true),
			Interval:     getenvDuration("SCHEDULER_INTERVAL", 5*time.Minute),
			BatchEnabled: getenvBool("SCHEDULER_BATCH_ENABLED", false),
			BatchLockTTL: getenvDuration("SCHEDULER_BATCH_LOCK_TTL", 30*time.Minute),
			EnabledJobs:  parseList(getenv("SCHEDULER_JOBS", "")),
		},
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewScoringConfigHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
