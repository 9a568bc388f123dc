package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/voxprep/voxprep/pkg/interview"
)

func TestParseCLIConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := parseCLIConfig(nil, func(string) string { return "" })
	if err != nil {
		t.Fatalf("parseCLIConfig: %v", err)
	}
	if cfg.GatewayURL != defaultGatewayURL {
		t.Fatalf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.SessionID == "" {
		t.Fatal("SessionID should default to a generated id")
	}
	if cfg.Threshold != interview.DefaultVoiceActivityThreshold {
		t.Fatalf("Threshold = %v", cfg.Threshold)
	}
}

func TestParseCLIConfig_Flags(t *testing.T) {
	t.Parallel()
	cfg, err := parseCLIConfig(
		[]string{"-gateway", "http://gw:9999", "-session", "sess-1", "-threshold", "0.05"},
		func(key string) string {
			if key == "VOXPREP_API_KEY" {
				return " vp-key \n"
			}
			return ""
		})
	if err != nil {
		t.Fatalf("parseCLIConfig: %v", err)
	}
	if cfg.GatewayURL != "http://gw:9999" || cfg.SessionID != "sess-1" || cfg.Threshold != 0.05 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.GatewayAPIKey != "vp-key" {
		t.Fatalf("GatewayAPIKey = %q, want trimmed key", cfg.GatewayAPIKey)
	}
}

func TestLoadCLIConfig_ReadsAPIKeyFromDotenv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("VOXPREP_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	// Register restoration, then clear so the .env value is the only source.
	t.Setenv("VOXPREP_API_KEY", "placeholder")
	os.Unsetenv("VOXPREP_API_KEY")
	t.Chdir(dir)

	cfg, err := loadCLIConfig([]string{"-session", "sess-env"})
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	if cfg.GatewayAPIKey != "from-dotenv" {
		t.Fatalf("GatewayAPIKey = %q, want value from .env", cfg.GatewayAPIKey)
	}
}
