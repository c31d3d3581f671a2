package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/wellywell/skborders/internal/queue"
)

/*
адрес и порт запуска сервиса: переменная окружения ОС RUN_ADDRESS или флаг -a;
адрес подключения к базе данных: переменная окружения ОС DATABASE_URI или флаг -d;
адрес API СКБ-Техно: переменная окружения ОС SKB_BASE_URL или флаг -s.
*/

type RetryConfig struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	Backoff     string        `env:"BACKOFF"`
	BaseDelay   time.Duration `env:"BASE_DELAY"`
	MaxDelay    time.Duration `env:"MAX_DELAY"`
}

func (rc RetryConfig) Policy() queue.Policy {
	return queue.Policy{
		MaxAttempts: rc.MaxAttempts,
		Backoff:     queue.Backoff(rc.Backoff),
		BaseDelay:   rc.BaseDelay,
		MaxDelay:    rc.MaxDelay,
	}
}

type ServerConfig struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseDSN string `env:"DATABASE_URI"`
	APIKey      string `env:"API_KEY"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	SKBBaseURL  string        `env:"SKB_BASE_URL"`
	SKBAPIKey   string        `env:"SKB_API_KEY"`
	SKBPriority int           `env:"SKB_PRIORITY" envDefault:"1"`
	SKBTimeout  time.Duration `env:"SKB_TIMEOUT" envDefault:"30s"`

	RedisURL         string        `env:"REDIS_URL"`
	TaskWorkers      int           `env:"TASK_WORKERS" envDefault:"4"`
	TaskPollInterval time.Duration `env:"TASK_POLL_INTERVAL" envDefault:"1s"`
	TaskLease        time.Duration `env:"TASK_LEASE" envDefault:"5m"`
	TaskTimeout      time.Duration `env:"TASK_TIMEOUT" envDefault:"2m"`

	PollInitialDelay time.Duration `env:"POLL_INITIAL_DELAY" envDefault:"30m"`
	Submit           RetryConfig   `envPrefix:"SUBMIT_"`
	Poll             RetryConfig   `envPrefix:"POLL_"`
	Finalize         RetryConfig   `envPrefix:"FINALIZE_"`

	S3Endpoint  string        `env:"S3_ENDPOINT"`
	S3AccessKey string        `env:"S3_ACCESS_KEY"`
	S3SecretKey string        `env:"S3_SECRET_KEY"`
	S3Bucket    string        `env:"S3_BUCKET" envDefault:"orders"`
	S3UseSSL    bool          `env:"S3_USE_SSL" envDefault:"false"`
	S3LinkTTL   time.Duration `env:"S3_LINK_TTL" envDefault:"1h"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPSender   string `env:"SMTP_SENDER" envDefault:"noreply@localhost"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"order-send"`
}

var ErrAPIKeyEmpty = errors.New("API_KEY cannot be empty")

func defaults() ServerConfig {
	return ServerConfig{
		Submit:   RetryConfig{MaxAttempts: 3, Backoff: "fixed", BaseDelay: time.Minute, MaxDelay: time.Minute},
		Poll:     RetryConfig{MaxAttempts: 10, Backoff: "exponential", BaseDelay: 15 * time.Minute, MaxDelay: 2 * time.Hour},
		Finalize: RetryConfig{MaxAttempts: 5, Backoff: "exponential", BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute},
	}
}

func NewConfig() (*ServerConfig, error) {
	return parse(os.Args[1:])
}

func parse(args []string) (*ServerConfig, error) {
	params := defaults()
	err := env.Parse(&params)
	if err != nil {
		return nil, err
	}

	var commandLineParams ServerConfig

	fs := flag.NewFlagSet("skborders", flag.ContinueOnError)
	fs.StringVar(&commandLineParams.RunAddress, "a", "localhost:8080", "Base address to listen on")
	fs.StringVar(&commandLineParams.DatabaseDSN, "d", "postgres://postgres@localhost:5432/skborders?sslmode=disable", "Database DSN")
	fs.StringVar(&commandLineParams.SKBBaseURL, "s", "http://localhost:8081", "SKB-Tekhno API base address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if params.RunAddress == "" {
		params.RunAddress = commandLineParams.RunAddress
	}
	if params.DatabaseDSN == "" {
		params.DatabaseDSN = commandLineParams.DatabaseDSN
	}
	if params.SKBBaseURL == "" {
		params.SKBBaseURL = commandLineParams.SKBBaseURL
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}

func (c *ServerConfig) Validate() error {
	if c.APIKey == "" {
		return ErrAPIKeyEmpty
	}
	for name, rc := range map[string]RetryConfig{"SUBMIT": c.Submit, "POLL": c.Poll, "FINALIZE": c.Finalize} {
		if rc.MaxAttempts < 1 {
			return fmt.Errorf("%s_MAX_ATTEMPTS must be >= 1", name)
		}
		if rc.Backoff != "fixed" && rc.Backoff != "exponential" {
			return fmt.Errorf("%s_BACKOFF must be fixed or exponential, got %q", name, rc.Backoff)
		}
		if rc.BaseDelay < 0 || rc.MaxDelay < 0 {
			return fmt.Errorf("%s delays must be >= 0", name)
		}
	}
	if c.TaskWorkers < 1 {
		return fmt.Errorf("TASK_WORKERS must be >= 1")
	}
	if c.TaskTimeout <= 0 || c.TaskLease <= c.TaskTimeout {
		return fmt.Errorf("TASK_LEASE (%s) must exceed TASK_TIMEOUT (%s)", c.TaskLease, c.TaskTimeout)
	}
	return nil
}
