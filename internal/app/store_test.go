package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ariefcatur/go-realtime-checkout/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenStoreSQLite(t *testing.T) {
	cfg := config.Config{StoreDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "app.db")}
	s, err := OpenStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	ps, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ps)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.Config{StoreDriver: "mysql"}, zap.NewNop())
	assert.Error(t, err)
}
