package config

import (
	"io"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server settings
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Debug           bool          `yaml:"debug"`
	Version         string        `yaml:"version"`

	// Worker pool
	Workers    int  `yaml:"workers"`
	QueueSize  int  `yaml:"queue_size"`
	QueueBlock bool `yaml:"queue_block"`

	// Inference backend
	OllamaBaseURL    string        `yaml:"ollama_base_url"`
	InferenceTimeout time.Duration `yaml:"inference_timeout"` // zero disables the timeout
	ModelsTimeout    time.Duration `yaml:"models_timeout"`
	DefaultModel     string        `yaml:"default_model"`

	// Transcript fetch
	TranscriptTimeout  time.Duration `yaml:"transcript_timeout"`
	TranscriptLanguage string        `yaml:"transcript_language"`

	// Rate limiting, 0 requests per minute disables it
	RateLimitRPM   int `yaml:"rate_limit_rpm"`
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogDir    string `yaml:"log_dir"`

	// Optional sqlite run log, empty disables it
	RunLogPath string `yaml:"run_log_path"`
}

func defaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            "8001",
		ReadTimeout:     15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		Version:         "dev",

		Workers:   defaultWorkers(),
		QueueSize: 100,

		OllamaBaseURL: "http://127.0.0.1:11434",
		ModelsTimeout: 5 * time.Second,
		DefaultModel:  "gpt-oss:20b",

		TranscriptTimeout:  30 * time.Second,
		TranscriptLanguage: "en",

		RateLimitRPM:   60,
		RateLimitBurst: 10,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() *Config {
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg
}

// LoadConfigFile reads a YAML file over the defaults, then applies the environment on top.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Host = GetEnv("TLDR_IP", cfg.Host)
	cfg.Port = GetEnv("TLDR_PORT", cfg.Port)
	cfg.ReadTimeout = getEnvAsDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.IdleTimeout = getEnvAsDuration("IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Debug = getEnvAsBool("DEBUG", cfg.Debug)
	cfg.Version = GetEnv("VERSION", cfg.Version)

	cfg.Workers = getEnvAsInt("TLDR_WORKERS", cfg.Workers)
	cfg.QueueSize = getEnvAsInt("TLDR_QUEUE_SIZE", cfg.QueueSize)
	cfg.QueueBlock = getEnvAsBool("TLDR_QUEUE_BLOCK", cfg.QueueBlock)

	cfg.OllamaBaseURL = GetEnv("OLLAMA_BASE_URL", cfg.OllamaBaseURL)
	cfg.InferenceTimeout = getEnvAsSeconds("OLLAMA_TIMEOUT", cfg.InferenceTimeout)
	cfg.ModelsTimeout = getEnvAsDuration("OLLAMA_MODELS_TIMEOUT", cfg.ModelsTimeout)
	cfg.DefaultModel = GetEnv("DEFAULT_MODEL", cfg.DefaultModel)

	cfg.TranscriptTimeout = getEnvAsDuration("TRANSCRIPT_TIMEOUT", cfg.TranscriptTimeout)
	cfg.TranscriptLanguage = GetEnv("TRANSCRIPT_LANGUAGE", cfg.TranscriptLanguage)

	cfg.RateLimitRPM = getEnvAsInt("RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.RateLimitBurst = getEnvAsInt("RATE_LIMIT_BURST", cfg.RateLimitBurst)

	cfg.LogLevel = GetEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = GetEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.LogDir = GetEnv("LOG_DIR", cfg.LogDir)

	cfg.RunLogPath = GetEnv("RUN_LOG_PATH", cfg.RunLogPath)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func defaultWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		logrus.WithFields(logrus.Fields{
			"key":          key,
			"value":        value,
			"defaultValue": defaultValue,
		}).Warn("Invalid duration, using default")
	}
	return defaultValue
}

// getEnvAsSeconds reads a whole number of seconds.
func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		logrus.WithFields(logrus.Fields{
			"key":          key,
			"value":        value,
			"defaultValue": defaultValue,
		}).Warn("Invalid number of seconds, using default")
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logrus.WithFields(logrus.Fields{
			"key":          key,
			"value":        value,
			"defaultValue": defaultValue,
		}).Warn("Invalid integer, using default")
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		logrus.WithFields(logrus.Fields{
			"key":          key,
			"value":        value,
			"defaultValue": defaultValue,
		}).Warn("Invalid boolean, using default")
	}
	return defaultValue
}

func ValidateConfig(cfg *Config) error {
	if cfg.Port == "" {
		return errors.New("server port is required")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return errors.Wrapf(err, "server port %q is not a number", cfg.Port)
	}
	if cfg.Workers <= 0 {
		return errors.New("worker count must be greater than 0")
	}
	if cfg.QueueSize < 0 {
		return errors.New("queue size must not be negative")
	}
	if cfg.InferenceTimeout < 0 {
		return errors.New("inference timeout must not be negative")
	}
	if cfg.TranscriptTimeout <= 0 {
		return errors.New("transcript timeout must be greater than 0")
	}
	if cfg.ModelsTimeout <= 0 {
		return errors.New("models timeout must be greater than 0")
	}
	if cfg.ReadTimeout <= 0 {
		return errors.New("read timeout must be greater than 0")
	}
	if cfg.IdleTimeout <= 0 {
		return errors.New("idle timeout must be greater than 0")
	}
	if cfg.RateLimitRPM < 0 || cfg.RateLimitBurst < 0 {
		return errors.New("rate limit values must not be negative")
	}
	u, err := url.Parse(cfg.OllamaBaseURL)
	if err != nil {
		return errors.Wrap(err, "invalid inference backend URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("inference backend URL must use http or https, got %q", cfg.OllamaBaseURL)
	}
	if u.Host == "" {
		return errors.Errorf("inference backend URL must have a host, got %q", cfg.OllamaBaseURL)
	}
	return nil
}
