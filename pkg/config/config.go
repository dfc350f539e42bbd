package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Market  MarketConfig  `mapstructure:"market"`
	Orders  OrdersConfig  `mapstructure:"orders"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Auditor AuditorConfig `mapstructure:"auditor"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type MarketConfig struct {
	// Symbols seeded at startup with their base prices. No dynamic
	// instrument creation after boot.
	Instruments map[string]float64 `mapstructure:"instruments"`

	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
	SnapshotStagger   time.Duration `mapstructure:"snapshot_stagger"`
}

type OrdersConfig struct {
	RiskPassRate float64 `mapstructure:"risk_pass_rate"` // 0..1
	FillRate     float64 `mapstructure:"fill_rate"`      // 0..1

	ValidationDelayMin time.Duration `mapstructure:"validation_delay_min"`
	ValidationDelayMax time.Duration `mapstructure:"validation_delay_max"`
	RiskDelayMin       time.Duration `mapstructure:"risk_delay_min"`
	RiskDelayMax       time.Duration `mapstructure:"risk_delay_max"`
	MatchingDelayMin   time.Duration `mapstructure:"matching_delay_min"`
	MatchingDelayMax   time.Duration `mapstructure:"matching_delay_max"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// AuditorConfig tunes the order-event consumer service.
type AuditorConfig struct {
	NumWorkers   int           `mapstructure:"num_workers"`
	HistoryLimit int64         `mapstructure:"history_limit"` // events kept per client
	RetentionTTL time.Duration `mapstructure:"retention_ttl"`
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`    // debug, info, warn, error
	Encoding string `mapstructure:"encoding"` // json, console
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults so the gateway runs with no environment at all
	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("market.instruments", map[string]float64{
		"BTC/USD": 45000,
		"ETH/USD": 2500,
		"AAPL":    180,
	})
	v.SetDefault("market.broadcast_interval", 2*time.Second)
	v.SetDefault("market.snapshot_stagger", 100*time.Millisecond)

	v.SetDefault("orders.risk_pass_rate", 0.9)
	v.SetDefault("orders.fill_rate", 0.7)
	v.SetDefault("orders.validation_delay_min", 100*time.Millisecond)
	v.SetDefault("orders.validation_delay_max", 300*time.Millisecond)
	v.SetDefault("orders.risk_delay_min", 200*time.Millisecond)
	v.SetDefault("orders.risk_delay_max", 500*time.Millisecond)
	v.SetDefault("orders.matching_delay_min", 1*time.Second)
	v.SetDefault("orders.matching_delay_max", 3*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "order_events")
	v.SetDefault("kafka.group_id", "order-auditors")

	v.SetDefault("auditor.num_workers", 4)
	v.SetDefault("auditor.history_limit", 100)
	v.SetDefault("auditor.retention_ttl", 24*time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	// 3. Configure Viper to read Environment Variables
	// Maps dot-notation to underscores (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys so flat env vars reach nested structs
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "market.broadcast_interval", "market.snapshot_stagger")
	bindEnv(v, "orders.risk_pass_rate", "orders.fill_rate")
	bindEnv(v, "orders.matching_delay_min", "orders.matching_delay_max")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id")
	bindEnv(v, "auditor.num_workers", "auditor.history_limit", "auditor.retention_ttl")
	bindEnv(v, "logger.level", "logger.encoding")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %v", err)
	}

	// 6. Basic Validation
	if len(cfg.Market.Instruments) == 0 {
		return nil, fmt.Errorf("market instruments cannot be empty")
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers cannot be empty when kafka is enabled")
	}
	if cfg.Orders.RiskPassRate < 0 || cfg.Orders.RiskPassRate > 1 {
		return nil, fmt.Errorf("orders.risk_pass_rate must be within [0,1]")
	}
	if cfg.Orders.FillRate < 0 || cfg.Orders.FillRate > 1 {
		return nil, fmt.Errorf("orders.fill_rate must be within [0,1]")
	}
	if cfg.Auditor.NumWorkers < 1 {
		return nil, fmt.Errorf("auditor.num_workers must be at least 1")
	}

	return &cfg, nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
