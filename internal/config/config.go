package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server, the background
// worker and the client tooling.
type Config struct {
	ListenAddr string

	BotToken  string
	JWTSecret string
	MockAuth  bool
	MockUser  int64

	MySQLDSN string
	RedisURL string

	ModelAPIKey  string
	ModelBaseURL string
	ModelName    string

	RequestTimeout   time.Duration
	PollInterval     time.Duration
	PollMaxAttempts  int
	GalleryPageLimit int

	ContentDir string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string

	// Client side.
	APIBaseURL string
	StateDir   string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	const defaultModelBaseURL = "https://api.kie.ai"

	cfg := Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8000"),
		MockAuth:         getBool("MOCK_AUTH", false),
		MockUser:         getInt64("MOCK_TELEGRAM_USER_ID", 90847291),
		RedisURL:         getEnv("REDIS_URL", ""),
		ModelBaseURL:     normalizeModelBaseURL(getEnv("MODEL_BASE_URL", defaultModelBaseURL), defaultModelBaseURL),
		ModelName:        getEnv("MODEL_NAME", "gpt-image-1.5"),
		RequestTimeout:   time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		PollInterval:     time.Second * time.Duration(getInt("POLL_INTERVAL_SECONDS", 1)),
		PollMaxAttempts:  getInt("POLL_MAX_ATTEMPTS", 60),
		GalleryPageLimit: getInt("GALLERY_PAGE_LIMIT", 20),
		ContentDir:       getEnv("CONTENT_DIR", "content"),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3Region:         os.Getenv("S3_REGION"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:  os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:   getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:         getEnv("S3_PREFIX", "uploads"),
		APIBaseURL:       getEnv("API_BASE_URL", "http://localhost:8000"),
		StateDir:         getEnv("STATE_DIR", defaultStateDir()),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.JWTSecret = getEnv("JWT_SECRET", "super-secret-key-change-me")
	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.ModelAPIKey = os.Getenv("MODEL_API_KEY")

	if cfg.BotToken == "" {
		// Without a bot token the Telegram signature cannot be checked and
		// Stars invoices cannot be issued. Dev setups run with mock auth.
		cfg.MockAuth = true
	}

	return cfg, nil
}

// ValidateServer checks the variables the API server cannot run without.
// The client CLI loads the same Config but needs almost none of them.
func (c Config) ValidateServer() error {
	var missing []string
	if c.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if c.ModelAPIKey == "" {
		missing = append(missing, "MODEL_API_KEY")
	}
	if c.S3Region == "" {
		missing = append(missing, "S3_REGION")
	}
	if c.S3AccessKey == "" {
		missing = append(missing, "S3_ACCESS_KEY")
	}
	if c.S3SecretKey == "" {
		missing = append(missing, "S3_SECRET_KEY")
	}
	if c.S3Bucket == "" {
		missing = append(missing, "S3_BUCKET")
	}
	if c.S3PublicBaseURL == "" {
		missing = append(missing, "S3_PUBLIC_BASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// normalizeModelBaseURL ensures we always hit the documented API host. Some
// docs pages use the root domain, which returns HTML instead of JSON.
func normalizeModelBaseURL(raw string, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fallback
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	if parsed.Host == "" {
		parsed.Host = parsed.Path
		parsed.Path = ""
	}

	if parsed.Host == "kie.ai" {
		parsed.Host = "api.kie.ai"
	}

	return parsed.String()
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pixelpop"
	}
	return filepath.Join(home, ".pixelpop")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// No env file is fine; everything may come from the environment.
	return nil
}
