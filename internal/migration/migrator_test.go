package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/bistro/internal/config"
	repo "github.com/Additional-Code/bistro/internal/repository/order"
)

func TestMemoryDriverNeedsNoMigrations(t *testing.T) {
	cfg := config.Config{}
	cfg.Database.Driver = "memory"

	m, err := New(cfg, nil, repo.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, m.Up(context.Background()))
	assert.NoError(t, m.Down(context.Background(), 1, false))
}

func TestMongoDriverRequiresIndexEnsurer(t *testing.T) {
	cfg := config.Config{}
	cfg.Database.Driver = "mongodb"

	m, err := New(cfg, nil, repo.NewMemoryStore(), zap.NewNop())
	require.NoError(t, err)

	err = m.Up(context.Background())
	assert.ErrorContains(t, err, "cannot create indexes")
}

func TestGooseDialect(t *testing.T) {
	for driver, want := range map[string]string{"postgres": "postgres", "pg": "postgres", "mysql": "mysql"} {
		got, err := gooseDialect(driver)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := gooseDialect("sqlite")
	assert.Error(t, err)
}
