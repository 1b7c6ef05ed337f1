package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paiban/busplan/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "busplan", cfg.App.Name)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 20.0, cfg.Planner.RangeBufferPercent)
	assert.False(t, cfg.Planner.Jitter)
	assert.False(t, cfg.Planner.CheckWeeklyHours)
	assert.Equal(t, 2, cfg.Planner.WeeksBefore)
	assert.Equal(t, 8, cfg.Planner.Weeks)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.Equal(t, []string{"*"}, cfg.API.CORS.Origins)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("PLANNER_JITTER", "true")
	t.Setenv("PLANNER_RANGE_BUFFER", "12.5")
	t.Setenv("REDIS_TTL", "30s")
	t.Setenv("API_CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
	assert.True(t, cfg.Planner.Jitter)
	assert.Equal(t, 12.5, cfg.Planner.RangeBufferPercent)
	assert.Equal(t, 30*time.Second, cfg.Redis.TTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.CORS.Origins)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("REDIS_PORT=6380\nPLANNER_WEEKS=10\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("REDIS_PORT")
		os.Unsetenv("PLANNER_WEEKS")
	})

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:6380", cfg.Redis.Addr())
	assert.Equal(t, 10, cfg.Planner.Weeks)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"未知存储", "STORE_DRIVER", "sqlite"},
		{"端口越界", "APP_PORT", "70000"},
		{"负余量", "PLANNER_RANGE_BUFFER", "-1"},
		{"窗口为空", "PLANNER_WEEKS", "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.CodeValidationFail))
		})
	}
}
