package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/bloodmate?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "http://localhost:5000", cfg.PublicBaseURL)
	assert.Equal(t, DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, []string{"png", "jpg", "jpeg", "pdf"}, cfg.AllowedUploadExtensions)
	assert.Equal(t, "eng", cfg.OCRLanguage)
	assert.Equal(t, 24*time.Hour, cfg.RasterRetention)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("DATABASE_URL", "file:bloodmate.db")
	t.Setenv("PUBLIC_BASE_URL", "https://bloodmate.example.org/")
	t.Setenv("ALLOWED_UPLOAD_EXTENSIONS", "PNG, jpg ,pdf,bmp,tiff")
	t.Setenv("OCR_TIMEOUT", "15s")
	t.Setenv("OCR_PAGE_CONCURRENCY", "4")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, "https://bloodmate.example.org", cfg.PublicBaseURL)
	assert.Equal(t, []string{"png", "jpg", "pdf", "bmp", "tiff"}, cfg.AllowedUploadExtensions)
	assert.Equal(t, 15*time.Second, cfg.OCRTimeout)
	assert.Equal(t, 4, cfg.OCRPageConcurrency)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoadConfigYAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bloodmate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
database_driver: sqlite3
database_url: "file:from-yaml.db"
max_upload_bytes: 5242880
ocr_language: deu
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OCR_LANGUAGE", "eng")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, "file:from-yaml.db", cfg.DatabaseURL)
	assert.Equal(t, int64(5*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, "eng", cfg.OCRLanguage)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"missing database url": {"DATABASE_URL": ""},
		"unknown driver":       {"DATABASE_URL": "x", "DATABASE_DRIVER": "mysql"},
		"bad strategy":         {"DATABASE_URL": "x", "UPLOAD_FILENAME_STRATEGY": "random"},
		"bad concurrency":      {"DATABASE_URL": "x", "OCR_PAGE_CONCURRENCY": "0"},
		"unparsable duration":  {"DATABASE_URL": "x", "OCR_TIMEOUT": "soon"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
