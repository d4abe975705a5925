package db

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reputation-engine/pkg/config"
)

func newTestGorm(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return gdb
}

func TestMetricRegistersDBStats(t *testing.T) {
	gdb := newTestGorm(t)

	cfg := &config.Config{}
	cfg.Database.DBNAME = "reputation_test"

	require.NoError(t, Metric(gdb, cfg))

	// pool stats must be gatherable from the default registry /metrics serves
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "gorm_dbstats_open_connections" {
			found = true
			break
		}
	}
	require.True(t, found)
}

func TestDialectSelectsSQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.DBNAME = "local.db"

	require.Equal(t, "sqlite", Dialect(cfg).Name())
}

func TestDialectDefaultsToPostgres(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = "postgres"
	cfg.Database.DBNAME = "reputation"

	require.Equal(t, "postgres", Dialect(cfg).Name())
}
