package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGatewayConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg GatewayConfig
	cfg.SetDefaults()

	if cfg.Server.AdminAddr != "127.0.0.1:5000" {
		t.Errorf("AdminAddr = %q, want %q", cfg.Server.AdminAddr, "127.0.0.1:5000")
	}
	if cfg.Server.DetectionAddr != "127.0.0.1:5001" {
		t.Errorf("DetectionAddr = %q, want %q", cfg.Server.DetectionAddr, "127.0.0.1:5001")
	}
	if cfg.Server.ProxyAddr != "127.0.0.1:5002" {
		t.Errorf("ProxyAddr = %q, want %q", cfg.Server.ProxyAddr, "127.0.0.1:5002")
	}
	if cfg.Server.AdminMaxConcurrent != 50 || cfg.Server.DetectionMaxConcurrent != 400 || cfg.Server.ProxyMaxConcurrent != 300 {
		t.Errorf("concurrency defaults = %d/%d/%d, want 50/400/300",
			cfg.Server.AdminMaxConcurrent, cfg.Server.DetectionMaxConcurrent, cfg.Server.ProxyMaxConcurrent)
	}
	if cfg.Detection.MaxContextLength != 7168 {
		t.Errorf("MaxContextLength = %d, want 7168", cfg.Detection.MaxContextLength)
	}
	if cfg.DeploymentMode != "enterprise" {
		t.Errorf("DeploymentMode = %q, want %q", cfg.DeploymentMode, "enterprise")
	}
	if cfg.DefaultLang != "en" {
		t.Errorf("DefaultLang = %q, want %q", cfg.DefaultLang, "en")
	}
}

func TestGatewayConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := GatewayConfig{
		Server: ServerConfig{AdminAddr: ":9999"},
		Detection: DetectionConfig{
			MaxContextLength: 2048,
		},
	}
	cfg.SetDefaults()

	if cfg.Server.AdminAddr != ":9999" {
		t.Errorf("AdminAddr was overwritten: got %q", cfg.Server.AdminAddr)
	}
	if cfg.Detection.MaxContextLength != 2048 {
		t.Errorf("MaxContextLength was overwritten: got %d", cfg.Detection.MaxContextLength)
	}
	// Untouched sibling fields still get defaults.
	if cfg.Server.DetectionAddr != "127.0.0.1:5001" {
		t.Errorf("DetectionAddr default not applied: got %q", cfg.Server.DetectionAddr)
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gatekeep.yaml")
	_ = os.WriteFile(cfgPath, []byte("server:\n  admin_addr: :9090\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "gatekeep"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestGatewayConfig_Validate_RejectsBadDeploymentMode(t *testing.T) {
	t.Parallel()

	cfg := GatewayConfig{DeploymentMode: "bogus"}
	cfg.SetDefaults()
	cfg.DeploymentMode = "bogus"

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for bad deployment_mode")
	}
}

func TestGatewayConfig_Validate_AcceptsDefaults(t *testing.T) {
	t.Parallel()

	var cfg GatewayConfig
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}
