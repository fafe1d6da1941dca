// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Host           string           `toml:"host" mapstructure:"host"`
	Port           int              `toml:"port" mapstructure:"port"`
	BaseURL        string           `toml:"baseUrl" mapstructure:"baseUrl"`
	APIToken       string           `toml:"apiToken" mapstructure:"apiToken"`
	LogLevel       string           `toml:"logLevel" mapstructure:"logLevel"`
	LogPath        string           `toml:"logPath" mapstructure:"logPath"`
	DataDir        string           `toml:"dataDir" mapstructure:"dataDir"`
	LicenseFile    string           `toml:"licenseFile" mapstructure:"licenseFile"`
	MetricsEnabled bool             `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	PprofEnabled   bool             `toml:"pprofEnabled" mapstructure:"pprofEnabled"`
	CheckInterval  string           `toml:"checkInterval" mapstructure:"checkInterval"`
	Publisher      PublisherConfig  `toml:"publisher" mapstructure:"publisher"`
	Activation     ActivationConfig `toml:"activation" mapstructure:"activation"`
	HTTPTimeouts   HTTPTimeouts     `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout"`   // seconds
}

// PublisherConfig identifies the vendor and product a license must be issued for.
// PublicKeyFile takes precedence over an inline PublicKey.
type PublisherConfig struct {
	VendorID      string `toml:"vendorId" mapstructure:"vendorId"`
	ProductID     string `toml:"productId" mapstructure:"productId"`
	APIKey        string `toml:"apiKey" mapstructure:"apiKey"`
	PublicKey     string `toml:"publicKey" mapstructure:"publicKey"`
	PublicKeyFile string `toml:"publicKeyFile" mapstructure:"publicKeyFile"`
	ValidDays     int    `toml:"validDays" mapstructure:"validDays"`
	TrialDays     int    `toml:"trialDays" mapstructure:"trialDays"`
}

// ActivationConfig points at the activation service
type ActivationConfig struct {
	ServerURL           string `toml:"serverUrl" mapstructure:"serverUrl"`
	Timeout             int    `toml:"timeout" mapstructure:"timeout"` // seconds, 0 disables
	RedeemRatePerMinute int    `toml:"redeemRatePerMinute" mapstructure:"redeemRatePerMinute"`
}
