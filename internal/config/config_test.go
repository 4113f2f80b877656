package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "askdocs", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, 512, cfg.Ingest.ChunkSize)
	assert.Equal(t, 64, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 4, cfg.LLM.SearchTopK)
	assert.Equal(t, 3, cfg.RabbitMQ.MaxAttempts)
	assert.Equal(t, 1536, cfg.Qdrant.EmbeddingDim)
	assert.NotEmpty(t, cfg.LLM.SystemPrompt)
	assert.NotEmpty(t, cfg.LLM.RetrieverPrompt)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("LLM_MODEL", "llama3")
	t.Setenv("INGEST_CHUNK_SIZE", "256")
	t.Setenv("RABBITMQ_MAX_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 256, cfg.Ingest.ChunkSize)
	assert.Equal(t, 5, cfg.RabbitMQ.MaxAttempts)
}

func TestMySQLDSN(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)
	cfg.MySQL.User = "app"
	cfg.MySQL.Password = "pw"
	cfg.MySQL.Host = "db"
	cfg.MySQL.Port = 3307
	cfg.MySQL.DB = "askdocs"
	cfg.MySQL.Params = "parseTime=true"

	assert.Equal(t, "app:pw@tcp(db:3307)/askdocs?parseTime=true", cfg.MySQLDSN())
}
