package qlizator

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Outernet-Project/qlizator-go/internal/protocol"
)

// ConnectionConfig holds parsed connection string parameters
type ConnectionConfig struct {
	Host     string        // Server host
	Port     string        // Server port
	Database string        // Logical database name
	Path     string        // Server-side filesystem location of the database file
	Timeout  time.Duration // Socket connect/read/write timeout (default: 2s)
	LogLevel string        // Log level: debug, info, warn, error (default: warn)
}

// DefaultConnectionConfig returns default configuration
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:  protocol.DefaultTimeout,
		LogLevel: "warn",
	}
}

// ParseConnectionString parses a connection string with optional query parameters.
//
// Format: qlizator://host:port/database?param1=value1&param2=value2
//
// Supported parameters:
//   - path=/server/side/file.sqlite : filesystem location of the database on the server
//   - timeout=2s                    : socket connect/read/write timeout (Go duration)
//   - log_level=debug|info|warn|error : set logging level (default: warn)
//
// Examples:
//   - "qlizator://localhost:8080/main?path=/srv/main.sqlite"
//   - "qlizator://10.0.0.5:8080/main?path=/srv/main.sqlite&timeout=5s&log_level=debug"
func ParseConnectionString(connStr string) (*ConnectionConfig, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}
	if u.Scheme != "qlizator" {
		return nil, fmt.Errorf("invalid connection string scheme: expected 'qlizator', got %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("connection string must include host and port")
	}

	config := DefaultConnectionConfig()
	config.Host = u.Hostname()
	config.Port = u.Port()

	config.Database = strings.TrimPrefix(u.Path, "/")
	if config.Database == "" {
		return nil, fmt.Errorf("connection string must include a database name")
	}

	queryParams := u.Query()

	config.Path = queryParams.Get("path")

	// Parse timeout parameter
	if timeoutStr := queryParams.Get("timeout"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout parameter: %w", err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("invalid timeout parameter: must be positive, got %s", timeout)
		}
		config.Timeout = timeout
	}

	// Parse log_level parameter
	if logLevel := queryParams.Get("log_level"); logLevel != "" {
		logLevel = strings.ToLower(logLevel)
		switch logLevel {
		case "debug", "info", "warn", "error":
			config.LogLevel = logLevel
		default:
			return nil, fmt.Errorf("invalid log_level parameter: must be 'debug', 'info', 'warn', or 'error', got %q", logLevel)
		}
	}

	return config, nil
}

// Addr returns the host:port dial address.
func (c *ConnectionConfig) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// GetZapLevel converts log level string to zap.Level
func (c *ConnectionConfig) GetZapLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	}
}
