package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-alias-scanner/internal/scan"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Scanner  ScannerConfig  `json:"scanner" yaml:"scanner"`
	OCR      OCRConfig      `json:"ocr" yaml:"ocr"`
	Alias    AliasConfig    `json:"alias" yaml:"alias"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Transfer TransferConfig `json:"transfer" yaml:"transfer"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// ScannerConfig holds the timing and geometry of the scan pipeline.
// Durations are strings such as "150ms".
type ScannerConfig struct {
	InitialDelay       string  `json:"initial_delay" yaml:"initial_delay"`
	VisionInterval     string  `json:"vision_interval" yaml:"vision_interval"`
	OCRInterval        string  `json:"ocr_interval" yaml:"ocr_interval"`
	DebounceInterval   string  `json:"debounce_interval" yaml:"debounce_interval"`
	AccumulationWindow string  `json:"accumulation_window" yaml:"accumulation_window"`
	StabilityThreshold float64 `json:"stability_threshold" yaml:"stability_threshold"`
	CropWidthRatio     float64 `json:"crop_width_ratio" yaml:"crop_width_ratio"`
	CropHeightRatio    float64 `json:"crop_height_ratio" yaml:"crop_height_ratio"`
	Rotation           int     `json:"rotation" yaml:"rotation"`
	SensorInterval     string  `json:"sensor_interval" yaml:"sensor_interval"`
}

type OCRConfig struct {
	Enabled      bool    `json:"enabled" yaml:"enabled"`
	URL          string  `json:"url" yaml:"url"`
	Model        string  `json:"model" yaml:"model"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	SystemPrompt string  `json:"system_prompt" yaml:"system_prompt"`
	UserPrompt   string  `json:"user_prompt" yaml:"user_prompt"`
	JPEGQuality  int     `json:"jpeg_quality" yaml:"jpeg_quality"`
	Timeout      string  `json:"timeout" yaml:"timeout"`
}

type AliasConfig struct {
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Currency string `json:"currency" yaml:"currency"`
	Timeout  string `json:"timeout" yaml:"timeout"`
}

// AuthConfig selects the token source: a static token, a token command or
// the password grant, in that order of precedence.
type AuthConfig struct {
	URL          string   `json:"url" yaml:"url"`
	ClientID     string   `json:"client_id" yaml:"client_id"`
	Audience     string   `json:"audience" yaml:"audience"`
	Username     string   `json:"username" yaml:"username"`
	Password     string   `json:"password" yaml:"password"`
	Scope        string   `json:"scope" yaml:"scope"`
	Connection   string   `json:"connection" yaml:"connection"`
	Device       string   `json:"device" yaml:"device"`
	Claim        string   `json:"claim" yaml:"claim"`
	TokenTTL     string   `json:"token_ttl" yaml:"token_ttl"`
	StaticToken  string   `json:"static_token" yaml:"static_token"`
	TokenCommand []string `json:"token_command" yaml:"token_command"`
}

type TransferConfig struct {
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	DeviceID   string `json:"device_id" yaml:"device_id"`
	Category   string `json:"category" yaml:"category"`
	TOTPSecret string `json:"totp_secret" yaml:"totp_secret"`
	PinHash    string `json:"pin_hash" yaml:"pin_hash"`
	Issuer     string `json:"issuer" yaml:"issuer"`
	Currency   string `json:"currency_symbol" yaml:"currency_symbol"`
}

type ServerConfig struct {
	Host                 string `json:"host" yaml:"host"`
	Port                 int    `json:"port" yaml:"port"`
	Mode                 string `json:"mode" yaml:"mode"`
	EnableDecodeFallback bool   `json:"enable_decode_fallback" yaml:"enable_decode_fallback"`
	DecodeRateLimit      int    `json:"decode_rate_limit" yaml:"decode_rate_limit"`
	FrameQueue           int    `json:"frame_queue" yaml:"frame_queue"`
	MaxUploadBytes       int64  `json:"max_upload_bytes" yaml:"max_upload_bytes"`
}

type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	File        string `json:"file" yaml:"file"`
	Service     string `json:"service" yaml:"service"`
	Environment string `json:"environment" yaml:"environment"`
}

// LoadConfig reads defaults, then the file at path (JSON or YAML by
// extension), then environment overrides. A .env file in the working
// directory is loaded first when present. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	config := getDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, data, config); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	loadFromEnvironment(config)

	if _, err := config.Scanner.Pipeline(); err != nil {
		return nil, err
	}
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(data, config)
	}
}

// Save writes the configuration as JSON or YAML depending on the extension
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func getDefaultConfig() *Config {
	return &Config{
		Scanner: ScannerConfig{
			InitialDelay:       "500ms",
			VisionInterval:     "150ms",
			OCRInterval:        "1.5s",
			DebounceInterval:   "3s",
			AccumulationWindow: "500ms",
			StabilityThreshold: 0.4,
			CropWidthRatio:     0.95,
			CropHeightRatio:    0.85,
			Rotation:           90,
			SensorInterval:     "100ms",
		},
		OCR: OCRConfig{
			Enabled:     true,
			Temperature: 0.0,
			JPEGQuality: 60,
			Timeout:     "15s",
		},
		Alias: AliasConfig{
			Currency: "ars",
			Timeout:  "15s",
		},
		Auth: AuthConfig{
			Scope:    "openid profile email offline_access",
			TokenTTL: "25m",
		},
		Transfer: TransferConfig{
			Category: "varios",
			Issuer:   "Alias Scanner",
			Currency: "$",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			Mode:            "release",
			DecodeRateLimit: 30,
			FrameQueue:      4,
			MaxUploadBytes:  8 << 20,
		},
		Database: DatabaseConfig{
			Port:            3306,
			Database:        "alias_scanner",
			Username:        "scanner",
			PoolSize:        10,
			ConnMaxLifetime: "30m",
			AutoMigrate:     true,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Service:     "alias-scanner",
			Environment: "development",
		},
	}
}

// loadFromEnvironment overrides configuration from environment variables
func loadFromEnvironment(config *Config) {
	// Database configuration
	config.Database.Host = getEnv("DB_HOST", config.Database.Host)
	config.Database.Port = getEnvAsInt("DB_PORT", config.Database.Port)
	config.Database.Database = getEnv("DB_NAME", config.Database.Database)
	config.Database.Username = getEnv("DB_USERNAME", config.Database.Username)
	config.Database.Password = getEnv("DB_PASSWORD", config.Database.Password)

	// Server configuration
	config.Server.Host = getEnv("SERVER_HOST", config.Server.Host)
	config.Server.Port = getEnvAsInt("SERVER_PORT", config.Server.Port)
	config.Server.Mode = getEnv("GIN_MODE", config.Server.Mode)
	config.Server.EnableDecodeFallback = getEnvAsBool("ENABLE_SERVER_DECODE", config.Server.EnableDecodeFallback)

	// Remote services
	config.OCR.URL = getEnv("OCR_URL", config.OCR.URL)
	config.OCR.Enabled = getEnvAsBool("OCR_ENABLED", config.OCR.Enabled)
	config.Alias.BaseURL = getEnv("ALIAS_BASE_URL", config.Alias.BaseURL)
	config.Transfer.Endpoint = getEnv("TRANSFER_ENDPOINT", config.Transfer.Endpoint)
	config.Transfer.DeviceID = getEnv("TRANSFER_DEVICE_ID", config.Transfer.DeviceID)
	config.Transfer.TOTPSecret = getEnv("TRANSFER_TOTP_SECRET", config.Transfer.TOTPSecret)
	config.Transfer.PinHash = getEnv("TRANSFER_PIN_HASH", config.Transfer.PinHash)

	// Auth configuration
	config.Auth.URL = getEnv("AUTH_URL", config.Auth.URL)
	config.Auth.ClientID = getEnv("AUTH_CLIENT_ID", config.Auth.ClientID)
	config.Auth.Audience = getEnv("AUTH_AUDIENCE", config.Auth.Audience)
	config.Auth.Username = getEnv("AUTH_USERNAME", config.Auth.Username)
	config.Auth.Password = getEnv("AUTH_PASSWORD", config.Auth.Password)
	config.Auth.StaticToken = getEnv("AUTH_TOKEN", config.Auth.StaticToken)

	// Scanner configuration
	config.Scanner.Rotation = getEnvAsInt("SCANNER_ROTATION", config.Scanner.Rotation)

	// Logging configuration
	config.Logging.Level = getEnv("LOG_LEVEL", config.Logging.Level)
	config.Logging.File = getEnv("LOG_FILE", config.Logging.File)
	config.Logging.Environment = getEnv("ENVIRONMENT", config.Logging.Environment)
}

// Pipeline converts the scanner section into the core configuration
func (s ScannerConfig) Pipeline() (scan.Config, error) {
	defaults := scan.DefaultConfig()

	rotation, err := scan.ParseRotation(s.Rotation)
	if err != nil {
		return scan.Config{}, err
	}

	cfg := scan.Config{
		InitialDelay:       parseDuration(s.InitialDelay, defaults.InitialDelay),
		VisionInterval:     parseDuration(s.VisionInterval, defaults.VisionInterval),
		OCRInterval:        parseDuration(s.OCRInterval, defaults.OCRInterval),
		DebounceInterval:   parseDuration(s.DebounceInterval, defaults.DebounceInterval),
		AccumulationWindow: parseDuration(s.AccumulationWindow, defaults.AccumulationWindow),
		StabilityThreshold: orFloat(s.StabilityThreshold, defaults.StabilityThreshold),
		CropWidthRatio:     orFloat(s.CropWidthRatio, defaults.CropWidthRatio),
		CropHeightRatio:    orFloat(s.CropHeightRatio, defaults.CropHeightRatio),
		Rotation:           rotation,
	}
	if err := cfg.Validate(); err != nil {
		return scan.Config{}, err
	}
	return cfg, nil
}

// GetSensorInterval returns the accelerometer interval
func (s ScannerConfig) GetSensorInterval() time.Duration {
	return parseDuration(s.SensorInterval, 100*time.Millisecond)
}

func (o OCRConfig) GetTimeout() time.Duration {
	return parseDuration(o.Timeout, 15*time.Second)
}

func (a AliasConfig) GetTimeout() time.Duration {
	return parseDuration(a.Timeout, 15*time.Second)
}

func (a AuthConfig) GetTokenTTL() time.Duration {
	return parseDuration(a.TokenTTL, 25*time.Minute)
}

// Address returns host:port for the HTTP listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func orFloat(value, fallback float64) float64 {
	if value == 0 {
		return fallback
	}
	return value
}
