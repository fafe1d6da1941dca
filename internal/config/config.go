// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/keeper/internal/domain"
	"github.com/autobrr/keeper/internal/license"
)

const (
	envPrefix           = "KEEPER__"
	appName             = "keeper"
	configFileName      = "config.toml"
	databaseFileName    = "keeper.db"
	licenseFileName     = "license.json"
	defaultCheckEvery   = time.Hour
	defaultActivationTO = 30
)

// keys lists every setting that can be overridden from the environment
var keys = []string{
	"host",
	"port",
	"baseUrl",
	"apiToken",
	"logLevel",
	"logPath",
	"dataDir",
	"licenseFile",
	"metricsEnabled",
	"pprofEnabled",
	"checkInterval",
	"publisher.vendorId",
	"publisher.productId",
	"publisher.apiKey",
	"publisher.publicKey",
	"publisher.publicKeyFile",
	"publisher.validDays",
	"publisher.trialDays",
	"activation.serverUrl",
	"activation.timeout",
	"activation.redeemRatePerMinute",
	"httpTimeouts.readTimeout",
	"httpTimeouts.writeTimeout",
	"httpTimeouts.idleTimeout",
}

type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper

	configPath string
	dataDir    string

	logFile *os.File
	mu      sync.Mutex
}

// New loads the configuration from configPath, which may be a directory or a
// .toml file. An empty path uses the OS specific default directory. A missing
// file is created with defaults.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	c.defaults()

	if configPath == "" {
		configPath = GetDefaultConfigDir()
	}
	c.configPath = c.resolveConfigPath(configPath)

	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(c.configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		log.Info().Str("path", c.configPath).Msg("Created default configuration file")
	}

	c.viper.SetConfigFile(c.configPath)
	c.viper.SetConfigType("toml")
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", c.configPath, err)
	}

	for _, key := range keys {
		if err := c.viper.BindEnv(key, envName(key)); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if c.Config.DataDir != "" {
		c.dataDir = c.Config.DataDir
	}

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 7477)
	c.viper.SetDefault("baseUrl", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("licenseFile", "")
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("pprofEnabled", false)
	c.viper.SetDefault("checkInterval", defaultCheckEvery.String())

	c.viper.SetDefault("publisher.validDays", license.DefaultValidDays)
	c.viper.SetDefault("publisher.trialDays", license.DefaultTrialDays)

	c.viper.SetDefault("activation.serverUrl", "http://localhost:7478")
	c.viper.SetDefault("activation.timeout", defaultActivationTO)
	c.viper.SetDefault("activation.redeemRatePerMinute", 0)

	c.viper.SetDefault("httpTimeouts.readTimeout", 60)
	c.viper.SetDefault("httpTimeouts.writeTimeout", 120)
	c.viper.SetDefault("httpTimeouts.idleTimeout", 180)
}

// resolveConfigPath turns a directory or file argument into a config file path
func (c *AppConfig) resolveConfigPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		return path
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return filepath.Join(path, configFileName)
}

// ConfigPath returns the file the configuration was loaded from
func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// SetDataDir overrides the directory holding the database and license file
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
	c.Config.DataDir = dir
}

// GetDataDir returns the data directory, defaulting to the config directory
func (c *AppConfig) GetDataDir() string {
	if c.dataDir != "" {
		return c.dataDir
	}
	return filepath.Dir(c.configPath)
}

func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.GetDataDir(), databaseFileName)
}

// GetLicenseFilePath returns the configured license file, or license.json in
// the data directory. A leading ~ is kept for the store to expand.
func (c *AppConfig) GetLicenseFilePath() string {
	if c.Config.LicenseFile != "" {
		return c.Config.LicenseFile
	}
	return filepath.Join(c.GetDataDir(), licenseFileName)
}

// CheckInterval parses checkInterval, falling back to one hour
func (c *AppConfig) CheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Config.CheckInterval)
	if err != nil || d <= 0 {
		if c.Config.CheckInterval != "" {
			log.Warn().Str("checkInterval", c.Config.CheckInterval).Msg("Invalid check interval, using default")
		}
		return defaultCheckEvery
	}
	return d
}

// Preferences builds the validated publisher preferences. The public key is read
// from publicKeyFile when set.
func (c *AppConfig) Preferences() (license.Preferences, error) {
	pub := c.Config.Publisher

	publicKey := pub.PublicKey
	if pub.PublicKeyFile != "" {
		path, err := homedir.Expand(pub.PublicKeyFile)
		if err != nil {
			return license.Preferences{}, fmt.Errorf("failed to expand public key path: %w", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return license.Preferences{}, fmt.Errorf("failed to read public key file: %w", err)
		}
		publicKey = string(data)
	}

	return license.NewPreferences(license.Preferences{
		VendorID:  pub.VendorID,
		ProductID: pub.ProductID,
		APIKey:    pub.APIKey,
		PublicKey: strings.TrimSpace(publicKey),
		ValidDays: pub.ValidDays,
		TrialDays: pub.TrialDays,
	})
}

// ApplyLogConfig sets the global log level and output file
func (c *AppConfig) ApplyLogConfig() {
	c.mu.Lock()
	defer c.mu.Unlock()

	setLogLevel(c.Config.LogLevel)

	if c.Config.LogPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.Config.LogPath), 0755); err != nil {
		log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to create log directory")
		return
	}

	f, err := os.OpenFile(c.Config.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to open log file")
		return
	}
	if c.logFile != nil {
		c.logFile.Close()
	}
	c.logFile = f

	log.Logger = zerolog.New(f).With().Timestamp().Logger()
}

// Watch reloads the log level whenever the config file changes
func (c *AppConfig) Watch() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		level := c.viper.GetString("logLevel")

		c.mu.Lock()
		c.Config.LogLevel = level
		c.mu.Unlock()

		setLogLevel(level)
		log.Info().Str("file", e.Name).Str("logLevel", level).Msg("Config file changed, log level reloaded")
	})
	c.viper.WatchConfig()
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// envName maps a config key to its environment variable, e.g.
// publisher.apiKey -> KEEPER__PUBLISHER__API_KEY
func envName(key string) string {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		var b strings.Builder
		for j, r := range part {
			if unicode.IsUpper(r) && j > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToUpper(r))
		}
		parts[i] = b.String()
	}
	return envPrefix + strings.Join(parts, "__")
}

// GetDefaultConfigDir returns the OS specific configuration directory
func GetDefaultConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return appData + `\` + appName
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		// containers mount the config volume directly
		if xdg == "/config" {
			return xdg
		}
		return filepath.Join(xdg, appName)
	}

	home, err := homedir.Dir()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to determine home directory, using current directory")
		return "."
	}
	return filepath.Join(home, ".config", appName)
}

var defaultConfigTemplate = template.Must(template.New("config").Parse(`# config.toml - keeper license daemon

# Hostname / IP the local API listens on
# Default: "localhost"
host = "{{ .Host }}"

# Port
# Default: 7477
port = 7477

# Base URL when served behind a reverse proxy, e.g. "/keeper/"
#baseUrl = ""

# Require this value in the X-API-Key header of local API requests
#apiToken = ""

# Log level: ERROR, WARN, INFO, DEBUG, TRACE
logLevel = "INFO"

# Log file path, stdout when unset
#logPath = "log/keeper.log"

# Directory for keeper.db and license.json, defaults to the config directory
#dataDir = ""

# License file location, defaults to <dataDir>/license.json
#licenseFile = "~/.config/keeper/license.json"

# How often serve mode re-checks the license
checkInterval = "1h"

# Expose Prometheus metrics at /metrics
metricsEnabled = false

# Start a pprof server on :6060
pprofEnabled = false

[publisher]
vendorId = ""
productId = ""
apiKey = ""
# PEM, JWK or <RSAKeyValue> public key used to verify license files
#publicKey = ""
#publicKeyFile = "~/.config/keeper/publisher.pem"
validDays = 90
trialDays = 14

[activation]
serverUrl = "http://localhost:7478"
# Request timeout in seconds, 0 disables
timeout = 30
# Client side limit for product key redemption, 0 disables
redeemRatePerMinute = 0

[httpTimeouts]
# Seconds
readTimeout = 60
writeTimeout = 120
idleTimeout = 180
`))

// WriteDefaultConfig writes a default config file. An existing file is left
// untouched.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	host := "localhost"
	if _, err := os.Stat("/.dockerenv"); err == nil {
		host = "0.0.0.0"
	}

	var buf bytes.Buffer
	if err := defaultConfigTemplate.Execute(&buf, struct{ Host string }{Host: host}); err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
