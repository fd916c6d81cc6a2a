package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Helpdesk   HelpdeskConfig
	Tracker    TrackerConfig
	Knowledge  KnowledgeConfig
	AI         AIConfig
	Directory  DirectoryConfig
	MQTT       MQTTConfig
	Pipeline   PipelineConfig
	Assignment AssignmentConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver        string
	RunMigrations bool
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// SQLiteConfig configures the embedded store.
type SQLiteConfig struct {
	Path string
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines operator token and webhook secret parameters.
type AuthConfig struct {
	JWTSecret             string
	Issuer                string
	AccessTokenTTLMinutes int
	WebhookSecretHash     string
}

// HelpdeskConfig configures the helpdesk REST client.
type HelpdeskConfig struct {
	BaseURL       string
	AccountsURL   string
	OrgID         string
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	TokenCacheKey string
	Timeout       time.Duration
}

// TrackerConfig configures the optional issue tracker.
type TrackerConfig struct {
	BaseURL    string
	Email      string
	APIToken   string
	ProjectKey string
	IssueType  string
	Timeout    time.Duration
}

// Enabled reports whether enough settings exist to create issues.
func (t TrackerConfig) Enabled() bool {
	return t.BaseURL != "" && t.APIToken != "" && t.ProjectKey != ""
}

// KnowledgeConfig configures the knowledge-base search client.
type KnowledgeConfig struct {
	BaseURL string
	APIKey  string
	User    string
	Timeout time.Duration
}

// AIConfig selects and configures the language model backend.
type AIConfig struct {
	Provider          string
	AnthropicKey      string
	AnthropicBaseURL  string
	OpenAIKey         string
	OpenAIBaseURL     string
	Model             string
	ClassifyMaxTokens int
	GenerateMaxTokens int
	Timeout           time.Duration
}

// DirectoryConfig configures the account directory used by workflows.
type DirectoryConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// MQTTConfig configures pipeline event publishing.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
}

// PipelineConfig tunes the ticket processing pipeline.
type PipelineConfig struct {
	MaxDuration            time.Duration
	ReplyFromAddress       string
	ConsolidateMaxLength   int
	WorkflowPrioritiesFile string
}

// AssignmentConfig selects the agent selection policy.
type AssignmentConfig struct {
	Policy string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres))
	if driver != StoreDriverPostgres && driver != StoreDriverSQLite {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", driver)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-pipeline"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver:        driver,
			RunMigrations: getEnvAsBool("STORE_RUN_MIGRATIONS", true),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		SQLite: SQLiteConfig{
			Path: getEnv("SQLITE_PATH", "helpdesk.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			Issuer:                getEnv("AUTH_ISSUER", "helpdesk-pipeline"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			WebhookSecretHash:     os.Getenv("WEBHOOK_SECRET_HASH"),
		},
		Helpdesk: HelpdeskConfig{
			BaseURL:       getEnv("HELPDESK_BASE_URL", "https://desk.zoho.com"),
			AccountsURL:   getEnv("HELPDESK_ACCOUNTS_URL", "https://accounts.zoho.com"),
			OrgID:         os.Getenv("HELPDESK_ORG_ID"),
			ClientID:      os.Getenv("HELPDESK_CLIENT_ID"),
			ClientSecret:  os.Getenv("HELPDESK_CLIENT_SECRET"),
			RefreshToken:  os.Getenv("HELPDESK_REFRESH_TOKEN"),
			TokenCacheKey: getEnv("HELPDESK_TOKEN_CACHE_KEY", "helpdesk:access_token"),
			Timeout:       getEnvAsDuration("HELPDESK_TIMEOUT", 15*time.Second),
		},
		Tracker: TrackerConfig{
			BaseURL:    os.Getenv("TRACKER_BASE_URL"),
			Email:      os.Getenv("TRACKER_EMAIL"),
			APIToken:   os.Getenv("TRACKER_API_TOKEN"),
			ProjectKey: os.Getenv("TRACKER_PROJECT_KEY"),
			IssueType:  getEnv("TRACKER_ISSUE_TYPE", "Task"),
			Timeout:    getEnvAsDuration("TRACKER_TIMEOUT", 15*time.Second),
		},
		Knowledge: KnowledgeConfig{
			BaseURL: getEnv("KNOWLEDGE_BASE_URL", "https://api.dify.ai/v1"),
			APIKey:  os.Getenv("KNOWLEDGE_API_KEY"),
			User:    getEnv("KNOWLEDGE_USER", "helpdesk-pipeline"),
			Timeout: getEnvAsDuration("KNOWLEDGE_TIMEOUT", 20*time.Second),
		},
		AI: AIConfig{
			Provider:          strings.ToLower(getEnv("AI_PROVIDER", "anthropic")),
			AnthropicKey:      os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL:  getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:     os.Getenv("OPENAI_BASE_URL"),
			Model:             os.Getenv("AI_MODEL"),
			ClassifyMaxTokens: getEnvAsInt("AI_CLASSIFY_MAX_TOKENS", 1024),
			GenerateMaxTokens: getEnvAsInt("AI_GENERATE_MAX_TOKENS", 2048),
			Timeout:           getEnvAsDuration("AI_TIMEOUT", 30*time.Second),
		},
		Directory: DirectoryConfig{
			BaseURL: os.Getenv("DIRECTORY_BASE_URL"),
			APIKey:  os.Getenv("DIRECTORY_API_KEY"),
			Timeout: getEnvAsDuration("DIRECTORY_TIMEOUT", 10*time.Second),
		},
		MQTT: MQTTConfig{
			BrokerURL:   os.Getenv("MQTT_BROKER_URL"),
			ClientID:    getEnv("MQTT_CLIENT_ID", "helpdesk-pipeline"),
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
			TopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "helpdesk"),
			QoS:         getEnvAsInt("MQTT_QOS", 1),
		},
		Pipeline: PipelineConfig{
			MaxDuration:            getEnvAsDuration("PIPELINE_MAX_DURATION", 60*time.Second),
			ReplyFromAddress:       getEnv("PIPELINE_REPLY_FROM", "support@example.com"),
			ConsolidateMaxLength:   getEnvAsInt("PIPELINE_CONSOLIDATE_MAX_LENGTH", 200),
			WorkflowPrioritiesFile: os.Getenv("WORKFLOW_PRIORITIES_FILE"),
		},
		Assignment: AssignmentConfig{
			Policy: strings.ToLower(getEnv("ASSIGNMENT_POLICY", "least_loaded")),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
