package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Storage     StorageConfig
	Instrument  InstrumentConfig
	Sweep       SweepConfig
	Measurement MeasurementConfig
	Fit         FitConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Env            string
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration. An empty URL keeps the run
// index in memory.
type DatabaseConfig struct {
	URL string
}

// StorageConfig holds artifact mirroring configuration
type StorageConfig struct {
	Driver    string // none, s3 or minio
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// InstrumentConfig holds VNA connection configuration
type InstrumentConfig struct {
	Driver      string // sim, prologix or tcp
	Address     string // serial port for prologix, host[:port] for tcp
	GPIBAddress int
	Dialect     string // pna or zva
	Channel     int
	Timeout     time.Duration
	Seed        int64
}

// SweepConfig holds acquisition timing
type SweepConfig struct {
	PollInterval time.Duration
	SettleDelay  time.Duration
	SafetyMargin time.Duration
}

// MeasurementConfig holds where results go and how they are aggregated
type MeasurementConfig struct {
	BasePath           string
	DefaultAttenuation int
	MinPower           int
	MaxPower           int
}

// FitConfig holds the external fit command. An empty command disables fitting.
type FitConfig struct {
	Command   string
	Script    string
	Extension string
}

var keys = []string{
	"PORT", "ENVIRONMENT", "ALLOWED_ORIGINS",
	"DATABASE_URL",
	"STORAGE_DRIVER", "S3_BUCKET", "S3_ENDPOINT", "AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
	"INSTRUMENT_DRIVER", "INSTRUMENT_ADDRESS", "INSTRUMENT_GPIB_ADDRESS", "INSTRUMENT_DIALECT",
	"INSTRUMENT_CHANNEL", "INSTRUMENT_TIMEOUT", "INSTRUMENT_SEED",
	"SWEEP_POLL_INTERVAL", "SWEEP_SETTLE_DELAY", "SWEEP_SAFETY_MARGIN",
	"MEASUREMENT_BASE_PATH", "DEFAULT_ATTENUATION", "MIN_POWER", "MAX_POWER",
	"FIT_COMMAND", "FIT_SCRIPT", "FIT_EXTENSION",
}

// Load loads configuration from environment variables and .env files
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "dev")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("STORAGE_DRIVER", "none")
	viper.SetDefault("S3_BUCKET", "resonara-measurements")
	viper.SetDefault("S3_ENDPOINT", "")
	viper.SetDefault("AWS_REGION", "us-east-1")
	viper.SetDefault("AWS_ACCESS_KEY_ID", "")
	viper.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	viper.SetDefault("INSTRUMENT_DRIVER", "sim")
	viper.SetDefault("INSTRUMENT_ADDRESS", "")
	viper.SetDefault("INSTRUMENT_GPIB_ADDRESS", 16)
	viper.SetDefault("INSTRUMENT_DIALECT", "pna")
	viper.SetDefault("INSTRUMENT_CHANNEL", 1)
	viper.SetDefault("INSTRUMENT_TIMEOUT", "5s")
	viper.SetDefault("INSTRUMENT_SEED", 1)
	viper.SetDefault("SWEEP_POLL_INTERVAL", "20ms")
	viper.SetDefault("SWEEP_SETTLE_DELAY", "200ms")
	viper.SetDefault("SWEEP_SAFETY_MARGIN", "5s")
	viper.SetDefault("MEASUREMENT_BASE_PATH", "./measurements")
	viper.SetDefault("DEFAULT_ATTENUATION", -70)
	viper.SetDefault("MIN_POWER", -200)
	viper.SetDefault("MAX_POWER", -70)
	viper.SetDefault("FIT_COMMAND", "")
	viper.SetDefault("FIT_SCRIPT", "")
	viper.SetDefault("FIT_EXTENSION", ".fit")

	// Read from .env files based on environment
	env := viper.GetString("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	viper.SetConfigName(".env." + env)
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // file may not exist

	// Environment variables override .env file values
	viper.AutomaticEnv()
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var config Config
	config.Server.Port = viper.GetString("PORT")
	config.Server.Env = viper.GetString("ENVIRONMENT")
	config.Server.AllowedOrigins = splitList(viper.GetString("ALLOWED_ORIGINS"))
	config.Database.URL = viper.GetString("DATABASE_URL")
	config.Storage.Driver = strings.ToLower(viper.GetString("STORAGE_DRIVER"))
	config.Storage.Bucket = viper.GetString("S3_BUCKET")
	config.Storage.Endpoint = viper.GetString("S3_ENDPOINT")
	config.Storage.Region = viper.GetString("AWS_REGION")
	config.Storage.AccessKey = viper.GetString("AWS_ACCESS_KEY_ID")
	config.Storage.SecretKey = viper.GetString("AWS_SECRET_ACCESS_KEY")
	config.Instrument.Driver = strings.ToLower(viper.GetString("INSTRUMENT_DRIVER"))
	config.Instrument.Address = viper.GetString("INSTRUMENT_ADDRESS")
	config.Instrument.GPIBAddress = viper.GetInt("INSTRUMENT_GPIB_ADDRESS")
	config.Instrument.Dialect = viper.GetString("INSTRUMENT_DIALECT")
	config.Instrument.Channel = viper.GetInt("INSTRUMENT_CHANNEL")
	config.Instrument.Timeout = viper.GetDuration("INSTRUMENT_TIMEOUT")
	config.Instrument.Seed = viper.GetInt64("INSTRUMENT_SEED")
	config.Sweep.PollInterval = viper.GetDuration("SWEEP_POLL_INTERVAL")
	config.Sweep.SettleDelay = viper.GetDuration("SWEEP_SETTLE_DELAY")
	config.Sweep.SafetyMargin = viper.GetDuration("SWEEP_SAFETY_MARGIN")
	config.Measurement.BasePath = viper.GetString("MEASUREMENT_BASE_PATH")
	config.Measurement.DefaultAttenuation = viper.GetInt("DEFAULT_ATTENUATION")
	config.Measurement.MinPower = viper.GetInt("MIN_POWER")
	config.Measurement.MaxPower = viper.GetInt("MAX_POWER")
	config.Fit.Command = viper.GetString("FIT_COMMAND")
	config.Fit.Script = viper.GetString("FIT_SCRIPT")
	config.Fit.Extension = viper.GetString("FIT_EXTENSION")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("env", config.Server.Env).
		Str("instrument", config.Instrument.Driver).
		Str("storage", config.Storage.Driver).
		Bool("database", config.Database.URL != "").
		Strs("allowed_origins", config.Server.AllowedOrigins).
		Msg("Configuration loaded")

	return &config, nil
}

// Validate checks the enumerated settings
func (c *Config) Validate() error {
	switch c.Instrument.Driver {
	case "sim", "prologix", "tcp":
	default:
		return fmt.Errorf("invalid INSTRUMENT_DRIVER %q: want sim, prologix or tcp", c.Instrument.Driver)
	}
	if c.Instrument.Driver != "sim" && c.Instrument.Address == "" {
		return fmt.Errorf("INSTRUMENT_ADDRESS is required for driver %s", c.Instrument.Driver)
	}
	switch c.Storage.Driver {
	case "none", "s3", "minio":
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q: want none, s3 or minio", c.Storage.Driver)
	}
	if c.Measurement.MinPower > c.Measurement.MaxPower {
		return fmt.Errorf("MIN_POWER %d exceeds MAX_POWER %d", c.Measurement.MinPower, c.Measurement.MaxPower)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
