package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP       string
	ListenAddrPort     string
	DatabaseName       string
	DocumentPath       string
	RenderScale        float64
	TurnDurationMS     int
	FrameIntervalMS    int
	PrefetchRadius     int
	SessionIdleMinutes int
	ValidateOnOpen     bool
	MaxSessions        int
}

// TurnDuration is the wall-clock length of one page-turn animation.
func (c ServerConfig) TurnDuration() time.Duration {
	return time.Duration(c.TurnDurationMS) * time.Millisecond
}

// FrameInterval is the period of the animation clock driving turn progress.
func (c ServerConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// SessionIdleTimeout is how long a session may sit untouched before the
// sweeper closes it.
func (c ServerConfig) SessionIdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Server configuration
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "")

	// Database configuration (recents store, sqlite only)
	serverConfigLive.DatabaseName = getEnv("DATABASE_NAME", "gopageturn")

	// Document storage configuration
	documentPathRelative := filepath.ToSlash(getEnv("DOCUMENT_PATH", "documents"))
	documentPathAbs, err := filepath.Abs(documentPathRelative)
	if err != nil {
		logger.Error("Failed creating absolute path for document directory", "error", err)
	}
	serverConfigLive.DocumentPath = documentPathAbs

	// Render configuration
	serverConfigLive.RenderScale = getEnvFloat("RENDER_SCALE", 2.0)
	if serverConfigLive.RenderScale <= 0 {
		logger.Warn("Invalid RENDER_SCALE, falling back to 2.0", "value", serverConfigLive.RenderScale)
		serverConfigLive.RenderScale = 2.0
	}
	serverConfigLive.ValidateOnOpen = getEnvBool("VALIDATE_ON_OPEN", true)
	serverConfigLive.PrefetchRadius = getEnvInt("PREFETCH_RADIUS", 1)

	// Animation configuration
	serverConfigLive.TurnDurationMS = getEnvInt("TURN_DURATION_MS", 650)
	serverConfigLive.FrameIntervalMS = getEnvInt("FRAME_INTERVAL_MS", 16)

	// Session configuration
	serverConfigLive.SessionIdleMinutes = getEnvInt("SESSION_IDLE_MINUTES", 30)
	serverConfigLive.MaxSessions = getEnvInt("MAX_SESSIONS", 64)

	fmt.Println("\n========================================")
	fmt.Println("   goPageTurn - PDF Page Turn Viewer")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "gopageturn.log"))
	fmt.Println("Initializing...")

	logger.Info("Viewer configuration loaded",
		"renderScale", serverConfigLive.RenderScale,
		"turnDurationMS", serverConfigLive.TurnDurationMS,
		"frameIntervalMS", serverConfigLive.FrameIntervalMS,
		"prefetchRadius", serverConfigLive.PrefetchRadius)

	return serverConfigLive, logger
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	logLevel := getEnv("LOG_LEVEL", "debug")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelDebug
	}

	handlerOptions := &slog.HandlerOptions{Level: level}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "gopageturn.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	handler := slog.NewTextHandler(logWriter, handlerOptions)
	return slog.New(handler)
}
