package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the alert fan-out service
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	API      APIConfig      `mapstructure:"api"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Listener ListenerConfig `mapstructure:"listener"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN returns the key/value connection string understood by both lib/pq and pgx.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	CommandsTopic string   `mapstructure:"commands_topic"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ChannelsConfig holds push provider configurations
type ChannelsConfig struct {
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Expo     ExpoConfig     `mapstructure:"expo"`
}

// FirebaseConfig holds Firebase push notification configuration
type FirebaseConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
	ProjectID       string `mapstructure:"project_id"`
	FallbackTopic   string `mapstructure:"fallback_topic"`
}

// ExpoConfig holds the secondary push endpoint configuration
type ExpoConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DeliveryConfig holds retry and rate limit policy for push fan-out
type DeliveryConfig struct {
	RateLimit          int           `mapstructure:"rate_limit"`
	EmergencyRateLimit int           `mapstructure:"emergency_rate_limit"`
	MaxBatchSize       int           `mapstructure:"max_batch_size"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BaseBackoff        time.Duration `mapstructure:"base_backoff"`
	RecencyWindow      time.Duration `mapstructure:"recency_window"`
}

// ListenerConfig holds the database change listener configuration
type ListenerConfig struct {
	Channel              string        `mapstructure:"channel"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectAttempts int           `mapstructure:"max_reconnect_attempts"`
	ClaimTTL             time.Duration `mapstructure:"claim_ttl"`
}

// WorkersConfig holds background worker pool sizing
type WorkersConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

// MetricsConfig holds monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		log.Println("Config file not found, using environment variables and defaults")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "tracking")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "alert-events")
	v.SetDefault("kafka.commands_topic", "alert-commands")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 3001)

	// Channel defaults
	v.SetDefault("channels.firebase.fallback_topic", "alerts")
	v.SetDefault("channels.expo.endpoint", "https://exp.host/--/api/v2/push/send")
	v.SetDefault("channels.expo.timeout", 10*time.Second)

	// Delivery defaults
	v.SetDefault("delivery.rate_limit", 100)
	v.SetDefault("delivery.emergency_rate_limit", 1000)
	v.SetDefault("delivery.max_batch_size", 50)
	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.base_backoff", time.Second)
	v.SetDefault("delivery.recency_window", 24*time.Hour)

	// Listener defaults
	v.SetDefault("listener.channel", "alert_inserted")
	v.SetDefault("listener.reconnect_delay", 5*time.Second)
	v.SetDefault("listener.max_reconnect_attempts", 10)
	v.SetDefault("listener.claim_ttl", 10*time.Minute)

	v.SetDefault("workers.pool_size", 32)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)
	v.SetDefault("metrics.path", "/metrics")

	// Map environment variables
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.database", "DB_NAME")
	v.BindEnv("database.ssl_mode", "DB_SSLMODE")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("channels.firebase.credentials_path", "FIREBASE_CREDENTIALS_PATH")
	v.BindEnv("channels.firebase.project_id", "FIREBASE_PROJECT_ID")
	v.BindEnv("channels.expo.access_token", "EXPO_ACCESS_TOKEN")
	v.BindEnv("delivery.rate_limit", "DELIVERY_RATE_LIMIT")
	v.BindEnv("delivery.recency_window", "DELIVERY_RECENCY_WINDOW")
	v.BindEnv("listener.reconnect_delay", "LISTENER_RECONNECT_DELAY")
	v.BindEnv("listener.max_reconnect_attempts", "LISTENER_MAX_RECONNECT_ATTEMPTS")
}
