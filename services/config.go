package services

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	AI        AIConfig
	Auth      AuthConfig
	WebSocket WebSocketConfig
	Session   SessionConfig
	AMQP      AMQPConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	URL             string
	LogLevel        string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type AIConfig struct {
	GeminiAPIKey string
	Model        string
	Timeout      time.Duration
	Temperature  float32
}

type AuthConfig struct {
	JWTSecret string
}

type WebSocketConfig struct {
	AllowedOrigins string
}

type SessionConfig struct {
	IdleTimeout     time.Duration
	SweepInterval   time.Duration
	InterviewerName string
}

type AMQPConfig struct {
	URL      string
	Exchange string
}

type MetricsConfig struct {
	Enabled bool
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() *Config {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("websocket.allowed_origins", "")
	viper.SetDefault("gemini.api_key", "")
	viper.SetDefault("ai.model", DefaultModelName)
	viper.SetDefault("ai.timeout", "30s")
	viper.SetDefault("ai.temperature", "0.3")
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("database.log_level", "silent")
	viper.SetDefault("database.max_idle_conns", "10")
	viper.SetDefault("database.max_open_conns", "100")
	viper.SetDefault("database.conn_max_lifetime", "1h")
	viper.SetDefault("database.auto_migrate", "true")
	viper.SetDefault("session.idle_timeout", "10m")
	viper.SetDefault("session.sweep_interval", "30s")
	viper.SetDefault("session.interviewer_name", "Alex")
	viper.SetDefault("amqp.url", "")
	viper.SetDefault("amqp.exchange", "interviews")
	viper.SetDefault("metrics.enabled", "true")

	// Map environment variables to config keys
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")
	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("ai.model", "AI_MODEL")
	viper.BindEnv("ai.timeout", "AI_TIMEOUT")
	viper.BindEnv("ai.temperature", "AI_TEMPERATURE")
	viper.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")
	viper.BindEnv("database.url", "DATABASE_URL")
	viper.BindEnv("database.log_level", "DATABASE_LOG_LEVEL")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("database.conn_max_lifetime", "DATABASE_CONN_MAX_LIFETIME")
	viper.BindEnv("database.auto_migrate", "DATABASE_AUTO_MIGRATE")
	viper.BindEnv("session.idle_timeout", "SESSION_IDLE_TIMEOUT")
	viper.BindEnv("session.sweep_interval", "SESSION_SWEEP_INTERVAL")
	viper.BindEnv("session.interviewer_name", "SESSION_INTERVIEWER_NAME")
	viper.BindEnv("amqp.url", "AMQP_URL")
	viper.BindEnv("amqp.exchange", "AMQP_EXCHANGE")
	viper.BindEnv("metrics.enabled", "METRICS_ENABLED")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("Config file not found, using defaults and environment variables")
		} else {
			slog.Error("Error reading config file", "error", err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
		},
		Database: DatabaseConfig{
			URL:             viper.GetString("database.url"),
			LogLevel:        viper.GetString("database.log_level"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     viper.GetBool("database.auto_migrate"),
		},
		AI: AIConfig{
			GeminiAPIKey: viper.GetString("gemini.api_key"),
			Model:        viper.GetString("ai.model"),
			Timeout:      viper.GetDuration("ai.timeout"),
			Temperature:  float32(viper.GetFloat64("ai.temperature")),
		},
		Auth: AuthConfig{
			JWTSecret: viper.GetString("auth.jwt_secret"),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins: viper.GetString("websocket.allowed_origins"),
		},
		Session: SessionConfig{
			IdleTimeout:     viper.GetDuration("session.idle_timeout"),
			SweepInterval:   viper.GetDuration("session.sweep_interval"),
			InterviewerName: viper.GetString("session.interviewer_name"),
		},
		AMQP: AMQPConfig{
			URL:      viper.GetString("amqp.url"),
			Exchange: viper.GetString("amqp.exchange"),
		},
		Metrics: MetricsConfig{
			Enabled: viper.GetBool("metrics.enabled"),
		},
	}
}
