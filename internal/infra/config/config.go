package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without zoneinfo

	"github.com/joho/godotenv"
)

// ErrNoChatIDs is returned when no destination chat could be parsed from the environment.
var ErrNoChatIDs = errors.New("no valid chat ids in TELEGRAM_CHAT_IDS or TELEGRAM_CHAT_ID")

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken      string
	DatabaseURL        string
	ChatIDs            []int64
	AdminTelegramID    int64 // optional; may use bot commands alongside the configured chats
	LogLevel           string
	Environment        string
	CheckInterval      time.Duration
	Timezone           *time.Location
	DigestCronSpec     string
	ListingBaseURL     string
	ChangedRowsLimit   int
	SendRatePerSec     int
	DBRetryAttempts    int
	DBRetryBaseDelay   time.Duration
	MetricsAddr        string
	BotCommandsEnabled bool
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = firstEnv("TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL, err = dsnFromParts()
		if err != nil {
			return nil, err
		}
	}

	cfg.ChatIDs = ParseChatIDs(firstEnv("TELEGRAM_CHAT_IDS", "TELEGRAM_CHAT_ID"))
	if len(cfg.ChatIDs) == 0 {
		return nil, ErrNoChatIDs
	}

	if adminIDStr := os.Getenv("ADMIN_TELEGRAM_ID"); adminIDStr != "" {
		cfg.AdminTelegramID, err = strconv.ParseInt(adminIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID: %w", err)
		}
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	intervalSec, err := envInt("CHECK_INTERVAL", 10)
	if err != nil {
		return nil, err
	}
	if intervalSec <= 0 {
		return nil, fmt.Errorf("CHECK_INTERVAL must be positive, got %d", intervalSec)
	}
	cfg.CheckInterval = time.Duration(intervalSec) * time.Second

	tzName := envOr("TIMEZONE", "Asia/Almaty")
	cfg.Timezone, err = time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tzName, err)
	}

	cfg.DigestCronSpec = envOr("DIGEST_CRON_SPEC", "0 9 * * *") // Default: 09:00 daily
	cfg.ListingBaseURL = envOr("LISTING_BASE_URL", "https://livin.kz/apartment/")

	if cfg.ChangedRowsLimit, err = envInt("CHANGED_ROWS_LIMIT", 200); err != nil {
		return nil, err
	}
	if cfg.SendRatePerSec, err = envInt("SEND_RATE_PER_SEC", 20); err != nil {
		return nil, err
	}
	if cfg.DBRetryAttempts, err = envInt("DB_RETRY_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	retryDelayMs, err := envInt("DB_RETRY_BASE_DELAY_MS", 500)
	if err != nil {
		return nil, err
	}
	cfg.DBRetryBaseDelay = time.Duration(retryDelayMs) * time.Millisecond

	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	if v := os.Getenv("BOT_COMMANDS_ENABLED"); v != "" {
		cfg.BotCommandsEnabled, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid BOT_COMMANDS_ENABLED: %w", err)
		}
	}

	return cfg, nil
}

// ParseChatIDs parses a comma separated list of chat ids. Whitespace is ignored,
// entries that are not integers are skipped and duplicates are dropped keeping the first occurrence.
func ParseChatIDs(raw string) []int64 {
	var ids []int64
	seen := make(map[int64]struct{})
	for _, part := range strings.Split(strings.ReplaceAll(raw, " ", ""), ",") {
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// dsnFromParts assembles a lib/pq key=value connection string from DB_* variables.
func dsnFromParts() (string, error) {
	host := os.Getenv("DB_HOST")
	name := os.Getenv("DB_NAME")
	if host == "" || name == "" {
		return "", fmt.Errorf("DATABASE_URL is not set and DB_HOST/DB_NAME are incomplete")
	}
	return "host=" + host +
		" port=" + envOr("DB_PORT", "5432") +
		" user=" + os.Getenv("DB_USER") +
		" password=" + os.Getenv("DB_PASSWORD") +
		" dbname=" + name +
		" sslmode=" + envOr("DB_SSLMODE", "disable"), nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
