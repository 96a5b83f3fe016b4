package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for gatekeep.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("gatekeep")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GATEKEEP_SERVER_ADMIN_ADDR, etc.
	viper.SetEnvPrefix("GATEKEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// store_detection_results defaults true; viper's BindEnv/SetDefault runs
	// before ReadInConfig/Unmarshal so an absent key still resolves true.
	viper.SetDefault("audit_log.store_detection_results", true)
}

// findConfigFile searches standard locations for a gatekeep config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "gatekeep" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".gatekeep"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "gatekeep"))
		}
	} else {
		paths = append(paths, "/etc/gatekeep")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for gatekeep.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "gatekeep"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// Load reads the configuration file, applies environment overrides, sets
// defaults, and returns the validated GatewayConfig.
func Load() (*GatewayConfig, error) {
	cfg, err := LoadRaw()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadRaw reads configuration and applies defaults but does not validate,
// so CLI flags may still override DevMode/ports before validation.
func LoadRaw() (*GatewayConfig, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg GatewayConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
