package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Slack      SlackConfig      `mapstructure:"slack"`
	Session    SessionConfig    `mapstructure:"session"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Dialogue   DialogueConfig   `mapstructure:"dialogue"`
	ServiceNow ServiceNowConfig `mapstructure:"servicenow"`
	Health     HealthConfig     `mapstructure:"health"`
}

type SlackConfig struct {
	BotToken string `mapstructure:"bot_token"`
	AppToken string `mapstructure:"app_token"`
}

// SessionConfig selects the session store backend: memory, redis, or postgres.
type SessionConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ClassifierConfig selects the intent classifier: rule or gpt.
type ClassifierConfig struct {
	Provider      string  `mapstructure:"provider"`
	MinConfidence float64 `mapstructure:"min_confidence"`
}

type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

type DialogueConfig struct {
	MaxTurns        int           `mapstructure:"max_turns"`
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout"`
	BackendTimeout  time.Duration `mapstructure:"backend_timeout"`
}

type ServiceNowConfig struct {
	Instance string        `mapstructure:"instance"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.ttl", "15m")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("classifier.provider", "rule")
	v.SetDefault("classifier.min_confidence", 0.7)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 200)
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("dialogue.max_turns", 8)
	v.SetDefault("dialogue.classify_timeout", "5s")
	v.SetDefault("dialogue.backend_timeout", "5s")
	v.SetDefault("servicenow.timeout", "5s")
	v.SetDefault("health.addr", ":8080")

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		config.Database = dbConfig
	}

	// Get secrets from environment variables
	if token := v.GetString("SLACK_BOT_TOKEN"); token != "" {
		config.Slack.BotToken = token
	}
	if token := v.GetString("SLACK_APP_TOKEN"); token != "" {
		config.Slack.AppToken = token
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if addr := v.GetString("REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if instance := v.GetString("SERVICENOW_INSTANCE"); instance != "" {
		config.ServiceNow.Instance = instance
	}
	if user := v.GetString("SERVICENOW_USERNAME"); user != "" {
		config.ServiceNow.Username = user
	}
	if password := v.GetString("SERVICENOW_PASSWORD"); password != "" {
		config.ServiceNow.Password = password
	}

	return &config, nil
}
