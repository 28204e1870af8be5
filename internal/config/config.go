package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"invoice-extractor/internal/cache"
	"invoice-extractor/internal/invoice"
	"invoice-extractor/internal/logger"
	"invoice-extractor/internal/ocr"
	"invoice-extractor/internal/pipeline"
	"invoice-extractor/internal/server"
)

// Config is the complete service configuration, read from the environment.
type Config struct {
	// HTTP server
	HTTPAddr                 string
	RequestTimeout           time.Duration
	ShutdownTimeout          time.Duration
	MaxUploadBytes           int64
	MaxConcurrentExtractions int
	RateLimit                float64
	RateBurst                int
	CORSAllowedOrigins       []string

	// Extraction pipeline
	WorkDir        string
	RasterDPI      float64
	OCREngine      string
	OCRLanguage    string
	OCRConcurrency int

	// LLM (OpenAI-compatible chat completions)
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAITemperature    float32
	CompletionMaxRetries int

	// Result cache
	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Google Cloud
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string
	GoogleSheetURL        string
	GoogleSheetWorksheet  string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Supported OCR engines.
const (
	OCREngineTesseract  = "tesseract"
	OCREngineVision     = "vision"
	OCREngineDocumentAI = "documentai"
)

// Supported cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
	CacheBackendNone   = "none"
)

func Load() (*Config, error) {
	config := &Config{
		HTTPAddr:                 getEnv("HTTP_ADDR", ":3000"),
		RequestTimeout:           getDurationEnv("REQUEST_TIMEOUT", 120*time.Second),
		ShutdownTimeout:          getDurationEnv("SHUTDOWN_TIMEOUT", 0),
		MaxUploadBytes:           int64(getIntEnv("MAX_UPLOAD_BYTES", 20<<20)),
		MaxConcurrentExtractions: getIntEnv("MAX_CONCURRENT_EXTRACTIONS", 10),
		RateLimit:                getFloatEnv("RATE_LIMIT", 100),
		RateBurst:                getIntEnv("RATE_BURST", 20),
		CORSAllowedOrigins:       splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		WorkDir:                  getEnv("WORK_DIR", os.TempDir()),
		RasterDPI:                getFloatEnv("RASTER_DPI", 300),
		OCREngine:                strings.ToLower(getEnv("OCR_ENGINE", OCREngineTesseract)),
		OCRLanguage:              getEnv("OCR_LANGUAGE", "eng"),
		OCRConcurrency:           getIntEnv("OCR_CONCURRENCY", 4),
		OpenAIAPIKey:             getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:            getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:              getEnv("OPENAI_MODEL", "gpt-4"),
		OpenAITemperature:        float32(getFloatEnv("OPENAI_TEMPERATURE", 0)),
		CompletionMaxRetries:     getIntEnv("COMPLETION_MAX_RETRIES", 3),
		CacheBackend:             strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory)),
		CacheTTL:                 getDurationEnv("CACHE_TTL", 24*time.Hour),
		RedisAddr:                getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:            getEnv("REDIS_PASSWORD", ""),
		RedisDB:                  getIntEnv("REDIS_DB", 0),
		GoogleCloudProject:       getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:      getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID:    getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		GoogleSheetURL:           getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:     getEnv("GOOGLE_SHEET_WORKSHEET", "Invoices"),
		LogLevel:                 getEnv("LOG_LEVEL", "info"),
		LogFormat:                getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:            getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:                getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.OCREngine {
	case OCREngineTesseract, OCREngineVision:
	case OCREngineDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for OCR_ENGINE=%s", c.OCREngine)
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required for OCR_ENGINE=%s", c.OCREngine)
		}
	default:
		return fmt.Errorf("unsupported OCR_ENGINE %q", c.OCREngine)
	}

	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis, CacheBackendNone:
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.CacheBackend)
	}

	if c.OCRConcurrency < 1 {
		return fmt.Errorf("OCR_CONCURRENCY must be at least 1")
	}
	if c.MaxConcurrentExtractions < 1 {
		return fmt.Errorf("MAX_CONCURRENT_EXTRACTIONS must be at least 1")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.RasterDPI < 36 || c.RasterDPI > 1200 {
		return fmt.Errorf("RASTER_DPI must be between 36 and 1200, got %v", c.RasterDPI)
	}
	if c.CompletionMaxRetries < 1 {
		return fmt.Errorf("COMPLETION_MAX_RETRIES must be at least 1")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// PipelineConfig returns the text extraction pipeline settings
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		WorkDir:        c.WorkDir,
		Language:       c.OCRLanguage,
		OCRConcurrency: c.OCRConcurrency,
	}
}

// OCREngineConfig returns the settings for ocr.NewEngine
func (c *Config) OCREngineConfig() ocr.EngineConfig {
	return ocr.EngineConfig{
		Name: c.OCREngine,
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:   c.GoogleCloudProject,
			Location:    c.GoogleCloudLocation,
			ProcessorID: c.DocumentAIProcessorID,
		},
	}
}

// CompletionConfig returns the LLM client settings
func (c *Config) CompletionConfig() invoice.CompletionConfig {
	cfg := invoice.DefaultCompletionConfig()
	cfg.APIKey = c.OpenAIAPIKey
	cfg.BaseURL = c.OpenAIBaseURL
	cfg.Model = c.OpenAIModel
	cfg.Temperature = c.OpenAITemperature
	cfg.MaxRetries = c.CompletionMaxRetries
	return cfg
}

// CacheConfig returns the result cache settings
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Backend: c.CacheBackend,
		Redis: cache.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		},
	}
}

// ServerOptions returns the HTTP server settings
func (c *Config) ServerOptions(version string) server.Options {
	return server.Options{
		Addr:           c.HTTPAddr,
		RequestTimeout: c.RequestTimeout,
		MaxUploadBytes: c.MaxUploadBytes,
		MaxConcurrent:  c.MaxConcurrentExtractions,
		RateLimit:      c.RateLimit,
		RateBurst:      c.RateBurst,
		AllowedOrigins: c.CORSAllowedOrigins,
		// zero lets running extractions use their full RequestTimeout
		ShutdownTimeout: c.ShutdownTimeout,
		Version:         version,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("90s") or a bare number of seconds.
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
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
