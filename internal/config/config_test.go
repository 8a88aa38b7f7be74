package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 180*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "gemini-2.5-flash-image", cfg.Gemini.Model)
	assert.Equal(t, StoreDynamo, cfg.Store.Backend)
	assert.Equal(t, LockMemory, cfg.Lock.Backend)
	assert.Equal(t, 6, cfg.Staging.ChatContextMessages)
	assert.False(t, cfg.Versioning.Enabled)
	assert.Equal(t, 10, cfg.Versioning.MaxVersions)
	assert.Equal(t, 30*time.Second, cfg.Image.FetchTimeout)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VISTA_STORE_BACKEND", "memory")
	t.Setenv("VISTA_SERVER_PORT", "9090")
	t.Setenv("VISTA_VERSIONING_ENABLED", "true")
	t.Setenv("VISTA_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Versioning.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "vista.yaml")
	yaml := "store:\n  backend: sqlite\n  sqlite_path: /tmp/x.db\nlock:\n  backend: redis\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, "/tmp/x.db", cfg.Store.SQLitePath)
	assert.Equal(t, LockRedis, cfg.Lock.Backend)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("VISTA_GEMINI_MODEL=gemini-test-model\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VISTA_GEMINI_MODEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini-test-model", cfg.Gemini.Model)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Server:     ServerConfig{Port: 8080},
			Blob:       BlobConfig{Backend: BlobMemory},
			Store:      StoreConfig{Backend: StoreMemory},
			Lock:       LockConfig{Backend: LockMemory},
			Staging:    StagingConfig{ChatContextMessages: 6, MutateAttempts: 3},
			Versioning: VersioningConfig{MaxVersions: 10},
			Image:      ImageConfig{MaxDimension: 1024},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown store", func(c *Config) { c.Store.Backend = "mongo" }, true},
		{"unknown blob", func(c *Config) { c.Blob.Backend = "gcs" }, true},
		{"unknown lock", func(c *Config) { c.Lock.Backend = "etcd" }, true},
		{"dynamo without table", func(c *Config) { c.Store.Backend = StoreDynamo }, true},
		{"s3 without bucket", func(c *Config) { c.Blob.Backend = BlobS3 }, true},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"zero chat context", func(c *Config) { c.Staging.ChatContextMessages = 0 }, true},
		{"versioning zero max", func(c *Config) { c.Versioning = VersioningConfig{Enabled: true} }, true},
		{"versioning disabled zero max", func(c *Config) { c.Versioning = VersioningConfig{} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBlobBaseURL(t *testing.T) {
	c := &Config{Blob: BlobConfig{Bucket: "vista-resources"}}
	assert.Equal(t, "https://vista-resources.s3.ap-southeast-2.amazonaws.com/", c.BlobBaseURL("ap-southeast-2"))
	assert.Equal(t, "https://vista-resources.s3.amazonaws.com/", c.BlobBaseURL(""))

	c.Blob.BaseURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/", c.BlobBaseURL("us-east-1"))
}
