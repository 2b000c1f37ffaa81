// config.go: settings struct and functions to load and save the application
// configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// InferenceProviderMock selects the offline demonstration provider.
const InferenceProviderMock = "mock"

// InferenceProviderRemote selects the HTTP inference backend.
const InferenceProviderRemote = "remote"

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name     string // application instance name
	LogLevel string // minimum log level: trace, debug, info, warn, error
}

// InferenceSettings selects and tunes the inference provider.
type InferenceSettings struct {
	Provider    string // "mock" or "remote"
	MockDelayMs int    // simulated latency of the mock provider
}

// GatewaySettings configures the backend gateway clients.
type GatewaySettings struct {
	APIURL         string // base URL of the record-persistence backend
	TimeoutSeconds int    // per-request HTTP timeout
	Inference      InferenceSettings
}

// StateSettings configures local state persistence.
type StateSettings struct {
	Path string // directory holding the persisted state snapshot
}

// DemoServerSettings configures the embedded demo backend.
type DemoServerSettings struct {
	Listen   string // listen address, e.g. ":8000"
	DataPath string // directory for the demo database and uploaded images
}

// Settings is the root configuration for the application.
type Settings struct {
	Debug bool // true to enable debug output

	Main       MainSettings
	Gateway    GatewaySettings
	State      StateSettings
	DemoServer DemoServerSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Environment overrides, e.g. DEFECTSCAN_GATEWAY_APIURL
	viper.SetEnvPrefix("defectscan")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the
// default config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the search paths for the configuration file,
// in priority order: the current working directory, then the user config
// directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return paths, nil
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	paths = append(paths, filepath.Join(configDir, "defectscan"))

	return paths, nil
}
