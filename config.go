package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ocrio/pkg/ocr"

	"github.com/sirupsen/logrus"
)

// Config holds the service settings read from the environment.
type Config struct {
	Port           string
	GinMode        string
	JWTSecret      string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	Language       string
	TessdataPrefix string
	Selection      string
	SingleStrategy string
	Strategies     string
	TargetMinSide  int
	MaxSide        int
	Deskew         bool
	Workers        int
	CallTimeout    time.Duration
	RequestTimeout time.Duration
	MaxUploadBytes int

	MinAlnumRatio        float64
	MaxSpecialRatio      float64
	NormalizePunctuation bool
	Substitutions        bool
}

func loadConfig() *Config {
	return &Config{
		Port:           getEnv("PORT", "8000"),
		GinMode:        getEnv("GIN_MODE", ""),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),

		Language:       getEnv("OCR_LANG", ocr.DefaultLanguage),
		TessdataPrefix: os.Getenv("TESSDATA_PREFIX"),
		Selection:      getEnv("OCR_SELECTION", string(ocr.SelectExhaustive)),
		SingleStrategy: getEnv("OCR_SINGLE_STRATEGY", string(ocr.DefaultSingleStrategy)),
		Strategies:     os.Getenv("OCR_STRATEGIES"),
		TargetMinSide:  getIntEnv("OCR_TARGET_MIN_SIDE", ocr.DefaultTargetMinSide),
		MaxSide:        getIntEnv("OCR_MAX_SIDE", ocr.DefaultMaxSide),
		Deskew:         getBoolEnv("OCR_DESKEW", true),
		Workers:        getIntEnv("OCR_WORKERS", 0),
		CallTimeout:    getDurationEnv("OCR_CALL_TIMEOUT", ocr.DefaultCallTimeout),
		RequestTimeout: getDurationEnv("OCR_REQUEST_TIMEOUT", ocr.DefaultRequestTimeout),
		MaxUploadBytes: getIntEnv("MAX_UPLOAD_BYTES", ocr.DefaultMaxUploadBytes),

		MinAlnumRatio:        getFloatEnv("OCR_MIN_ALNUM_RATIO", ocr.DefaultMinAlnumRatio),
		MaxSpecialRatio:      getFloatEnv("OCR_MAX_SPECIAL_RATIO", ocr.DefaultMaxSpecialRatio),
		NormalizePunctuation: getBoolEnv("OCR_NORMALIZE_PUNCTUATION", false),
		Substitutions:        getBoolEnv("OCR_SUBSTITUTIONS", false),
	}
}

// PipelineOptions turns the environment settings into pipeline options.
func (c *Config) PipelineOptions() (ocr.Options, error) {
	opts := ocr.DefaultOptions()

	sel, err := ocr.ParseSelection(c.Selection)
	if err != nil {
		return opts, err
	}
	opts.Selection = sel
	opts.SingleStrategy = ocr.StrategyName(strings.ToLower(strings.TrimSpace(c.SingleStrategy)))

	if strings.TrimSpace(c.Strategies) != "" {
		cfgs, err := ocr.ConfigsFor(ocr.ParseStrategyNames(c.Strategies))
		if err != nil {
			return opts, fmt.Errorf("OCR_STRATEGIES: %w", err)
		}
		opts.Configs = cfgs
	}

	if c.MaxUploadBytes <= ocr.DefaultMinUploadBytes {
		return opts, fmt.Errorf("MAX_UPLOAD_BYTES must exceed %d", ocr.DefaultMinUploadBytes)
	}
	opts.Limits.MaxBytes = c.MaxUploadBytes

	if c.MinAlnumRatio < 0 || c.MinAlnumRatio > 1 || c.MaxSpecialRatio < 0 || c.MaxSpecialRatio > 1 {
		return opts, fmt.Errorf("ratios must be within [0,1] (alnum %v, special %v)", c.MinAlnumRatio, c.MaxSpecialRatio)
	}
	opts.Policy.MinAlnumRatio = c.MinAlnumRatio
	opts.Policy.MaxSpecialRatio = c.MaxSpecialRatio
	opts.Policy.NormalizePunctuation = c.NormalizePunctuation
	opts.Policy.Substitutions = c.Substitutions

	opts.TargetMinSide = c.TargetMinSide
	opts.MaxSide = c.MaxSide
	opts.Deskew = c.Deskew
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}
	if c.CallTimeout <= 0 || c.RequestTimeout <= 0 {
		return opts, fmt.Errorf("timeouts must be positive")
	}
	opts.CallTimeout = c.CallTimeout
	opts.RequestTimeout = c.RequestTimeout
	return opts, nil
}

// configureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func (c *Config) configureLogging() {
	if strings.EqualFold(c.LogFormat, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithField("value", c.LogLevel).Warn("invalid LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		logrus.WithField("key", key).Warn("ignoring non-integer value")
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		logrus.WithField("key", key).Warn("ignoring non-numeric value")
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("45s") or bare seconds ("45").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	logrus.WithField("key", key).Warn("ignoring invalid duration")
	return defaultValue
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
