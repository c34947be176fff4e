package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"titan/internal/config"
	"titan/internal/models"
)

var testPool = config.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxLifetime: time.Minute}

func TestOpen(t *testing.T) {
	t.Run("Should open SQLite store and migrate tables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "titan.db")
		db, err := Open("sqlite://"+path, testPool, false)
		require.NoError(t, err)
		defer Close(db)

		assert.True(t, db.Migrator().HasTable(&models.ConnectionProfile{}))
		assert.True(t, db.Migrator().HasTable(&models.ConnectionEvent{}))

		profile := models.ConnectionProfile{Name: "local", Host: "localhost", Port: 5432}
		require.NoError(t, db.Create(&profile).Error)
		assert.NotEmpty(t, profile.ID)
		assert.Equal(t, models.DriverPostgres, profile.Driver)
	})

	t.Run("Should reject unknown URL scheme", func(t *testing.T) {
		_, err := Open("mongodb://localhost", testPool, false)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database URL format")
	})
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgres://***@db:5432/titan", redactURL("postgres://user:pw@db:5432/titan"))
	assert.Equal(t, "sqlite:///tmp/titan.db", redactURL("sqlite:///tmp/titan.db"))
	assert.Equal(t, "", redactURL(""))
}

func TestClose(t *testing.T) {
	assert.NoError(t, Close(nil))
}
