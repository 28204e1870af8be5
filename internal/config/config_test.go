package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OCR_ENGINE", "")
	t.Setenv("CACHE_BACKEND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, OCREngineTesseract, cfg.OCREngine)
	assert.Equal(t, "eng", cfg.OCRLanguage)
	assert.Equal(t, 4, cfg.OCRConcurrency)
	assert.Equal(t, float64(300), cfg.RasterDPI)
	assert.Equal(t, "gpt-4", cfg.OpenAIModel)
	assert.Equal(t, CacheBackendMemory, cfg.CacheBackend)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("REQUEST_TIMEOUT", "45")
	t.Setenv("CACHE_TTL", "10m")
	t.Setenv("OCR_ENGINE", "Vision")
	t.Setenv("OCR_CONCURRENCY", "8")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 45*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, OCREngineVision, cfg.OCREngine)
	assert.Equal(t, 8, cfg.OCRConcurrency)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown engine", map[string]string{"OCR_ENGINE": "abbyy"}, "unsupported OCR_ENGINE"},
		{"documentai without project", map[string]string{"OCR_ENGINE": "documentai", "GOOGLE_CLOUD_PROJECT": ""}, "GOOGLE_CLOUD_PROJECT"},
		{"unknown cache", map[string]string{"CACHE_BACKEND": "memcached"}, "unsupported CACHE_BACKEND"},
		{"zero concurrency", map[string]string{"OCR_CONCURRENCY": "0"}, "OCR_CONCURRENCY"},
		{"dpi out of range", map[string]string{"RASTER_DPI": "5000"}, "RASTER_DPI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ComponentSettings(t *testing.T) {
	t.Setenv("OCR_ENGINE", "documentai")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "acme")
	t.Setenv("GOOGLE_CLOUD_LOCATION", "eu")
	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "proc-1")
	t.Setenv("OCR_LANGUAGE", "deu+eng")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := Load()
	require.NoError(t, err)

	engine := cfg.OCREngineConfig()
	assert.Equal(t, OCREngineDocumentAI, engine.Name)
	assert.Equal(t, "projects/acme/locations/eu/processors/proc-1", engine.DocumentAI.ProcessorName())

	assert.Equal(t, "deu+eng", cfg.PipelineConfig().Language)
	assert.Equal(t, cfg.OCRConcurrency, cfg.PipelineConfig().OCRConcurrency)

	cacheCfg := cfg.CacheConfig()
	assert.Equal(t, CacheBackendRedis, cacheCfg.Backend)
	assert.Equal(t, "cache:6379", cacheCfg.Redis.Addr)

	assert.Equal(t, cfg.OpenAIModel, cfg.CompletionConfig().Model)
	assert.Equal(t, "v1", cfg.ServerOptions("v1").Version)
}
