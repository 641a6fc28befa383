package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MinBatchSize = 1
	MaxBatchSize = 100
)

// Notification transports of the bot process
const (
	TransportTelegram = "telegram"
	TransportAMQP     = "amqp"
	TransportLog      = "log"
)

type Config struct {
	DatabaseDriver string
	DatabaseURL    string
	LogLevel       string
	LogFormat      string
	LogFile        string

	BatchSize             int
	InboundPollInterval   time.Duration
	OutboundPollInterval  time.Duration
	ReminderInterval      time.Duration
	ReminderLookaheadDays int
	MaintenanceInterval   time.Duration
	DeadLetterRetention   time.Duration
	PairingCodeLength     int
	MetricsPort           string

	BotToken        string
	NotifyTransport string
	RabbitMQURL     string
	NotifyExchange  string
	NotifyQueue     string
}

func Load() *Config {
	_ = godotenv.Load()

	batchSize := getEnvInt("BATCH_SIZE", 5)

	if batchSize > MaxBatchSize {
		slog.Warn("BATCH_SIZE exceeds safety limit. Clamping to maximum", "requested", batchSize, "limit", MaxBatchSize)
		batchSize = MaxBatchSize
	} else if batchSize < MinBatchSize {
		batchSize = MinBatchSize
	}

	codeLength := getEnvInt("PAIRING_CODE_LENGTH", 6)
	if codeLength < 4 || codeLength > 12 {
		slog.Warn("PAIRING_CODE_LENGTH out of range, using default", "requested", codeLength)
		codeLength = 6
	}

	return &Config{
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
		DatabaseURL:    getEnv("DATABASE_URL", "sub_manager.sqlite"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		LogFormat:      getEnv("LOG_FORMAT", "TEXT"),
		LogFile:        getEnv("LOG_FILE", ""),

		BatchSize:             batchSize,
		InboundPollInterval:   time.Duration(getEnvInt("INBOUND_POLL_INTERVAL_SEC", 3)) * time.Second,
		OutboundPollInterval:  time.Duration(getEnvInt("OUTBOUND_POLL_INTERVAL_SEC", 5)) * time.Second,
		ReminderInterval:      time.Duration(getEnvInt("REMINDER_INTERVAL_HOURS", 4)) * time.Hour,
		ReminderLookaheadDays: getEnvInt("REMINDER_LOOKAHEAD_DAYS", 3),
		MaintenanceInterval:   time.Duration(getEnvInt("MAINTENANCE_INTERVAL_MIN", 30)) * time.Minute,
		DeadLetterRetention:   time.Duration(getEnvInt("DEAD_LETTER_RETENTION_HOURS", 168)) * time.Hour,
		PairingCodeLength:     codeLength,
		MetricsPort:           getEnv("METRICS_PORT", "9091"),

		BotToken:        getEnv("BOT_TOKEN", ""),
		NotifyTransport: strings.ToLower(getEnv("NOTIFY_TRANSPORT", TransportTelegram)),
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		NotifyExchange:  getEnv("NOTIFY_EXCHANGE", "subsync.notifications"),
		NotifyQueue:     getEnv("NOTIFY_QUEUE", "subsync.notifications.telegram"),
	}
}

// ValidateBot checks the settings the bot process cannot run without
func (c *Config) ValidateBot() error {
	switch c.NotifyTransport {
	case TransportTelegram:
		if c.BotToken == "" {
			return errors.New("BOT_TOKEN is required for the telegram transport")
		}
	case TransportAMQP:
		if c.RabbitMQURL == "" {
			return errors.New("RABBITMQ_URL is required for the amqp transport")
		}
	case TransportLog:
	default:
		return errors.New("NOTIFY_TRANSPORT must be one of telegram, amqp, log")
	}
	return nil
}

// ValidateGateway checks the settings of the amqp to telegram gateway
func (c *Config) ValidateGateway() error {
	if c.RabbitMQURL == "" {
		return errors.New("RABBITMQ_URL is required")
	}
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
