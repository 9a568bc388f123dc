// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr     string
	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// DatabaseURL selects the postgres store; empty means the in-memory
	// store, which is fine for development and tests only.
	DatabaseURL string

	// GeminiAPIKey is the long-lived key the gateway holds. Sessions get
	// short-lived tokens minted from it; the key itself never leaves the
	// gateway unless token minting is disabled.
	GeminiAPIKey string
	MintTokens   bool
	TokenTTL     time.Duration

	// Model is the live model sessions connect to; ReportModel is the
	// plain text model used for report summaries.
	Model       string
	ReportModel string
	VoiceName   string

	// QuestionsFile optionally points at a JSON array of questions to ask
	// instead of the built-in set.
	QuestionsFile string

	CORSAllowedOrigins map[string]struct{}

	MaxBodyBytes int64

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOXPREP_ADDR", ":8790"),
		AuthMode:            AuthMode(strings.ToLower(envOr("VOXPREP_AUTH_MODE", string(AuthModeDisabled)))),
		APIKeys:             make(map[string]struct{}),
		DatabaseURL:         strings.TrimSpace(os.Getenv("VOXPREP_DATABASE_URL")),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("VOXPREP_GEMINI_API_KEY")),
		MintTokens:          envBoolOr("VOXPREP_MINT_TOKENS", true),
		TokenTTL:            envDurationOr("VOXPREP_TOKEN_TTL", 30*time.Minute),
		Model:               envOr("VOXPREP_MODEL", "gemini-2.0-flash-live-001"),
		ReportModel:         envOr("VOXPREP_REPORT_MODEL", "gemini-2.0-flash"),
		VoiceName:           envOr("VOXPREP_VOICE", "Puck"),
		QuestionsFile:       strings.TrimSpace(os.Getenv("VOXPREP_QUESTIONS_FILE")),
		CORSAllowedOrigins:  make(map[string]struct{}),
		MaxBodyBytes:        envInt64Or("VOXPREP_MAX_BODY_BYTES", 1<<20),
		ReadHeaderTimeout:   envDurationOr("VOXPREP_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("VOXPREP_READ_TIMEOUT", 30*time.Second),
		HandlerTimeout:      envDurationOr("VOXPREP_TOTAL_REQUEST_TIMEOUT", time.Minute),
		ShutdownGracePeriod: envDurationOr("VOXPREP_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("VOXPREP_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("VOXPREP_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("VOXPREP_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("VOXPREP_GEMINI_API_KEY must be set")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("VOXPREP_MAX_BODY_BYTES must be > 0")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("VOXPREP_TOKEN_TTL must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 || cfg.ReadTimeout <= 0 || cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("timeouts must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOXPREP_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("VOXPREP_API_KEYS must be set when VOXPREP_AUTH_MODE=required")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
