package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentline/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("UPLOAD_DIR", filepath.Join(t.TempDir(), "uploads"))

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 5*time.Minute, cfg.EditWindow)
	assert.Equal(t, 3*time.Second, cfg.TypingIdle)
	assert.Equal(t, 3, cfg.SendRetries)
	assert.Equal(t, 5000, cfg.MaxMessageSize)
	assert.Equal(t, "0.0.0.0:8000", cfg.HTTPAddr())
	assert.NotEmpty(t, cfg.CORSOrigins)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "oracle")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("UPLOAD_DIR", filepath.Join(t.TempDir(), "uploads"))
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("MESSAGE_PAGE_SIZE", "25")
	t.Setenv("EDIT_WINDOW_MINUTES", "10")
	t.Setenv("CORS_ORIGINS", "https://rentline.ge, https://app.rentline.ge")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Driver)
	assert.Contains(t, cfg.DatabaseURL, "db.internal")
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 10*time.Minute, cfg.EditWindow)
	assert.Equal(t, []string{"https://rentline.ge", "https://app.rentline.ge"}, cfg.CORSOrigins)
}
