// Package config loads the storefront settings from an optional YAML file
// and lets environment variables override individual values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/payment"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort        string        `yaml:"http_port"`
	GRPCPort        string        `yaml:"grpc_port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	HealthInterval  time.Duration `yaml:"health_interval"`

	Postgres Postgres `yaml:"postgres"`
	Catalog  Catalog  `yaml:"catalog"`
	Mongo    Mongo    `yaml:"mongo"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`

	JWTSecret string              `yaml:"jwt_secret"`
	VNPay     payment.VNPayConfig `yaml:"vnpay"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
	LogLevel     string `yaml:"log_level"`
	Development  bool   `yaml:"development"`
}

type Postgres struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type Catalog struct {
	Path string `yaml:"path"`
}

type Mongo struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func defaults() *Config {
	return &Config{
		HTTPPort:        "8080",
		GRPCPort:        "50051",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		HealthInterval:  10 * time.Second,
		Postgres: Postgres{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "ecommerce",
			SSLMode:  "disable",
		},
		Catalog: Catalog{Path: "./catalog.db"},
		Mongo:   Mongo{URI: "mongodb://localhost:27017", Database: "cart_db"},
		Redis:   Redis{Addr: "localhost:6379", CacheTTL: 15 * time.Minute},
		Kafka:   Kafka{Brokers: []string{"localhost:9092"}, Topic: "order-events"},
		VNPay: payment.VNPayConfig{
			PayURL:    "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
			ReturnURL: "http://localhost:8080/api/payments/vnpay-return",
			Locale:    "vn",
		},
		LogLevel: "info",
	}
}

// Load reads path when it is not empty, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.GRPCPort = getEnv("GRPC_PORT", c.GRPCPort)

	c.Postgres.Host = getEnv("DB_HOST", c.Postgres.Host)
	c.Postgres.User = getEnv("DB_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("DB_PASSWORD", c.Postgres.Password)
	c.Postgres.DBName = getEnv("DB_NAME", c.Postgres.DBName)
	c.Postgres.SSLMode = getEnv("DB_SSLMODE", c.Postgres.SSLMode)
	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DB_PORT: %w", err)
		}
		c.Postgres.Port = port
	}

	c.Catalog.Path = getEnv("CATALOG_DB_PATH", c.Catalog.Path)
	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DB", c.Mongo.Database)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.VNPay.TmnCode = getEnv("VNPAY_TMN_CODE", c.VNPay.TmnCode)
	c.VNPay.HashSecret = getEnv("VNPAY_HASH_SECRET", c.VNPay.HashSecret)
	c.VNPay.PayURL = getEnv("VNPAY_URL", c.VNPay.PayURL)
	c.VNPay.ReturnURL = getEnv("VNPAY_RETURN_URL", c.VNPay.ReturnURL)

	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("LOG_DEVELOPMENT"); v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_DEVELOPMENT: %w", err)
		}
		c.Development = dev
	}

	for key, dst := range map[string]*time.Duration{
		"REQUEST_TIMEOUT":  &c.RequestTimeout,
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
		"HEALTH_INTERVAL":  &c.HealthInterval,
		"CART_CACHE_TTL":   &c.Redis.CacheTTL,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}
	return nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required (JWT_SECRET)")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.New("at least one kafka broker is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
