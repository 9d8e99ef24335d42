package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all tunable parameters for the dispatch service. Values are
// loaded from environment variables (optionally seeded from a .env file) with
// defaults that let the binary run locally without excessive setup.
type Config struct {
	HTTP struct {
		Port            int
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		IdleTimeout     time.Duration
		ShutdownTimeout time.Duration
	}

	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		GeoKey   string
	}

	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}

	Kafka struct {
		Brokers []string // empty disables the analytics feed
		Topic   string
	}

	JWT struct {
		SecretKey string
		AccessTTL time.Duration
	}

	Dispatch struct {
		OfferWindow      time.Duration
		BatchSize        int
		InitialRadiusKM  float64
		MaxRadiusKM      float64
		RadiusMultiplier float64
	}
}

// Load reads configuration from the environment. A .env file at envPath is
// applied first when present; real environment variables win.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		// missing file is fine: containers inject env directly
		_ = godotenv.Load(envPath)
	}

	cfg := defaults()
	var errs []error

	setInt(&cfg.HTTP.Port, "HTTP_PORT", &errs)
	setDuration(&cfg.HTTP.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDuration(&cfg.HTTP.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDuration(&cfg.HTTP.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDuration(&cfg.HTTP.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT", &errs)
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	setString(&cfg.Redis.GeoKey, "REDIS_GEO_KEY")

	setString(&cfg.RabbitMQ.Host, "RABBITMQ_HOST")
	setInt(&cfg.RabbitMQ.Port, "RABBITMQ_PORT", &errs)
	setString(&cfg.RabbitMQ.User, "RABBITMQ_USER")
	setString(&cfg.RabbitMQ.Password, "RABBITMQ_PASSWORD")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitAndTrim(brokers)
	}
	setString(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	setString(&cfg.JWT.SecretKey, "JWT_SECRET")
	setDuration(&cfg.JWT.AccessTTL, "JWT_ACCESS_TTL", &errs)

	setDuration(&cfg.Dispatch.OfferWindow, "DISPATCH_OFFER_WINDOW", &errs)
	setInt(&cfg.Dispatch.BatchSize, "DISPATCH_BATCH_SIZE", &errs)
	setFloat(&cfg.Dispatch.InitialRadiusKM, "DISPATCH_INITIAL_RADIUS_KM", &errs)
	setFloat(&cfg.Dispatch.MaxRadiusKM, "DISPATCH_MAX_RADIUS_KM", &errs)
	setFloat(&cfg.Dispatch.RadiusMultiplier, "DISPATCH_RADIUS_MULTIPLIER", &errs)

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.HTTP.Port = 3000
	cfg.HTTP.ReadTimeout = 10 * time.Second
	cfg.HTTP.WriteTimeout = 15 * time.Second
	cfg.HTTP.IdleTimeout = 60 * time.Second
	cfg.HTTP.ShutdownTimeout = 10 * time.Second

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.GeoKey = "drivers_geo"

	cfg.RabbitMQ.Host = "localhost"
	cfg.RabbitMQ.Port = 5672

	cfg.Kafka.Topic = "driver-location-pings"

	cfg.JWT.AccessTTL = 2 * time.Hour

	cfg.Dispatch.OfferWindow = 30 * time.Second
	cfg.Dispatch.BatchSize = 5
	cfg.Dispatch.InitialRadiusKM = 3.0
	cfg.Dispatch.MaxRadiusKM = 15.0
	cfg.Dispatch.RadiusMultiplier = 2.0

	return cfg
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, "HTTP_PORT must be in 1..65535")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "DB_PORT must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "DB_USER is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "DB_NAME is required")
	}
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "RABBITMQ_PORT must be in 1..65535")
	}
	if c.JWT.SecretKey == "" {
		problems = append(problems, "JWT_SECRET is required")
	}
	if c.Dispatch.OfferWindow <= 0 {
		problems = append(problems, "DISPATCH_OFFER_WINDOW must be positive")
	}
	if c.Dispatch.BatchSize <= 0 {
		problems = append(problems, "DISPATCH_BATCH_SIZE must be > 0")
	}
	if c.Dispatch.InitialRadiusKM <= 0 || c.Dispatch.MaxRadiusKM < c.Dispatch.InitialRadiusKM {
		problems = append(problems, "dispatch radius bounds must satisfy 0 < initial <= max")
	}
	if c.Dispatch.RadiusMultiplier <= 1.0 {
		problems = append(problems, "DISPATCH_RADIUS_MULTIPLIER must be > 1.0")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func setString(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func setInt(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = n
	}
}

func setFloat(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setDuration(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
