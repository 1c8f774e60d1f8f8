package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Mode         string
	DatabasePath string
	LogLevel     string

	UserID    string
	UserName  string
	UserPhone string
	Secret    string

	GRPCAddress string
	MCPAddress  string
	WSAddress   string
	AMQPURL     string
	PushWorker  bool

	PageSize       int
	CacheRetention int
}

func Load() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.CommandLine exits on parse errors; this only sees bad env values.
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Ensure directories exist
	os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755)

	return cfg
}

// Parse reads configuration from args, with environment variables as
// defaults.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".chat-sync")

	pageSize, err := getEnvInt("CHAT_PAGE_SIZE", 50)
	if err != nil {
		return nil, err
	}
	retention, err := getEnvInt("CHAT_CACHE_RETENTION", 500)
	if err != nil {
		return nil, err
	}

	pushWorker, err := getEnvBool("CHAT_PUSH_WORKER", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	fs.StringVar(&cfg.Mode, "mode", "server", "Run mode: server, interactive, or headless")
	fs.StringVar(&cfg.DatabasePath, "db", getEnv("CHAT_DATABASE_PATH", filepath.Join(dataDir, "cache.db")), "Local cache database path")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("CHAT_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.UserID, "user", getEnv("CHAT_USER_ID", ""), "Current user identifier")
	fs.StringVar(&cfg.UserName, "name", getEnv("CHAT_USER_NAME", ""), "Current user display name")
	fs.StringVar(&cfg.UserPhone, "phone", getEnv("CHAT_USER_PHONE", ""), "Current user phone number")
	fs.StringVar(&cfg.Secret, "secret", getEnv("CHAT_SECRET", ""), "Shared message encryption secret")
	fs.StringVar(&cfg.GRPCAddress, "grpc-addr", getEnv("CHAT_GRPC_ADDRESS", "127.0.0.1:50061"), "gRPC server address")
	fs.StringVar(&cfg.MCPAddress, "mcp-addr", getEnv("CHAT_MCP_ADDRESS", "127.0.0.1:8090"), "MCP SSE server address")
	fs.StringVar(&cfg.WSAddress, "ws-addr", getEnv("CHAT_WS_ADDRESS", "127.0.0.1:8091"), "WebSocket event stream address")
	fs.StringVar(&cfg.AMQPURL, "amqp", getEnv("CHAT_AMQP_URL", ""), "RabbitMQ URL (empty disables notifications)")
	fs.BoolVar(&cfg.PushWorker, "push-worker", pushWorker, "Consume expired notifications and send pushes (requires -amqp)")
	fs.IntVar(&cfg.PageSize, "page-size", pageSize, "Messages per live window and history page (0 = unlimited window)")
	fs.IntVar(&cfg.CacheRetention, "cache-retention", retention, "Cached messages kept per room (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every mode needs.
func (c *Config) Validate() error {
	switch c.Mode {
	case "server", "interactive", "headless":
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.UserID == "" {
		return errors.New("user id is required (-user or CHAT_USER_ID)")
	}
	if strings.ContainsAny(c.UserID, "_/") {
		return fmt.Errorf("user id %q must not contain '_' or '/'", c.UserID)
	}
	if c.Secret == "" {
		return errors.New("encryption secret is required (-secret or CHAT_SECRET)")
	}
	if c.PushWorker && c.AMQPURL == "" {
		return errors.New("push worker requires a RabbitMQ URL (-amqp or CHAT_AMQP_URL)")
	}
	if c.PageSize < 0 || c.CacheRetention < 0 {
		return errors.New("page size and cache retention must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
