/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  ConnectionConfig
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  ConnectionConfig{Type: "postgres", DSN: "postgres://u@h/db", Host: "ignored"},
			want: "postgres://u@h/db",
		},
		{
			name: "postgres",
			cfg:  ConnectionConfig{Type: "pgx", Username: "u", Password: "p", Host: "h", Port: 5432, DBName: "app", ConnectTimeout: 5 * time.Second},
			want: "postgres://u:p@h:5432/app?sslmode=disable&connect_timeout=5",
		},
		{
			name: "mysql",
			cfg:  ConnectionConfig{Type: "mysql", Username: "u", Password: "p", Host: "h", Port: 3306, DBName: "app", ConnectTimeout: time.Second, ReadTimeout: time.Second, WriteTimeout: time.Second},
			want: "u:p@tcp(h:3306)/app?charset=utf8mb4&parseTime=True&loc=Local&timeout=1s&readTimeout=1s&writeTimeout=1s",
		},
		{
			name: "sqlite file",
			cfg:  ConnectionConfig{Type: "sqlite", DBName: "app"},
			want: "app.db",
		},
		{
			name: "sqlite memory",
			cfg:  ConnectionConfig{Type: "sqlite3", DBName: ":memory:"},
			want: "file::memory:",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, buildDSN(&tc.cfg))
		})
	}
}

func TestDriverForUnsupported(t *testing.T) {
	_, _, err := driverFor("oracle")
	assert.EqualError(t, err, "unsupported database type: oracle")
}

func memoryConfig() *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.Type = "sqlite"
	cfg.DBName = sqliteMemory
	cfg.HealthCheckInterval = 0
	cfg.SlowQueryTime = 0
	return cfg
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	dm := NewDatabaseManager(memoryConfig())
	dm.SetLogger(quietLogger())

	assert.Error(t, dm.Ping(ctx))
	assert.False(t, dm.HealthCheck(ctx).Healthy)

	require.NoError(t, dm.Connect(ctx))
	require.NoError(t, dm.Connect(ctx))
	require.NoError(t, dm.Ping(ctx))

	status := dm.HealthCheck(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, dm.GetStats().MaxOpenConns)
	assert.NotNil(t, dm.GetSQLDB())

	require.NoError(t, dm.Disconnect())
	assert.Nil(t, dm.GetDB())
	assert.Equal(t, &DBStats{}, dm.GetStats())
	require.NoError(t, dm.Disconnect())
}

func TestFactoryRejectsUnsupportedType(t *testing.T) {
	f := NewDatabaseFactory()
	_, err := f.CreateFromConfig(&ConnectionConfig{Type: "oracle"})
	assert.Error(t, err)
	_, err = f.CreateFromConfig(nil)
	assert.Error(t, err)
	assert.Error(t, f.InitializeDatabase(context.Background()))
	assert.False(t, f.GetHealthStatus(context.Background()).Healthy)
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_MAX_OPEN_CONNS", "nope")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90")
	t.Setenv("DB_ENABLE_QUERY_LOG", "true")

	cfg := DefaultConnectionConfig()
	overrideFromEnv(cfg)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, 100, cfg.MaxOpenConns)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.True(t, cfg.EnableQueryLog)
}

func TestInitDBGlobals(t *testing.T) {
	t.Cleanup(func() { _ = CloseDB() })
	cfg := DefaultConfig()
	cfg.ConnectionConfig = *memoryConfig()
	cfg.UnitOfWork.ValidateAffectedRows = true

	db, err := InitDB(cfg)
	require.NoError(t, err)
	assert.Same(t, db, GetDB())
	assert.NotNil(t, GetDatabaseManager())
	assert.True(t, UnitOfWorkOptions().ValidateAffectedRows)
	assert.True(t, GetHealthStatus(context.Background()).Healthy)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.False(t, UnitOfWorkOptions().ValidateAffectedRows)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.yaml")
	yml := `
connection:
  type: postgres
  host: localhost
  port: 5432
  dbname: shop
  slow_query_time: 500ms
unit_of_work:
  validate_affected_rows: true
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("UOW_ENABLE_DEFAULT_LOGGING", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, 5432, cfg.ConnectionConfig.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns)
	assert.True(t, cfg.UnitOfWork.UseTransactions)
	assert.True(t, cfg.UnitOfWork.ValidateAffectedRows)
	assert.False(t, cfg.UnitOfWork.EnableDefaultLogging)
}

func TestQueryHookPrintsRowsAffected(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	var buf bytes.Buffer
	db.AddQueryHook(NewQueryHook(WithQueryHookWriter(&buf)))

	s := newTestSession(db)
	require.NoError(t, s.Tracker().Add(&customer{Name: "rae", Email: "rae@example.com"}))
	_, err := s.Flush(ctx)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "INSERT INTO")
	assert.Contains(t, out, "rows=1")

	buf.Reset()
	SetQueryLogSilent(true)
	t.Cleanup(func() { SetQueryLogSilent(false) })
	assert.Equal(t, 1, countCustomers(t, db))
	assert.Empty(t, buf.String())
}

func TestCreateTablesUsesRegistry(t *testing.T) {
	RegisterModel((*siteSettings)(nil), 2)
	RegisterModel((*customer)(nil), 1)
	models := RegisteredModelInstances()
	require.GreaterOrEqual(t, len(models), 2)
	assert.IsType(t, (*customer)(nil), models[0])

	require.NoError(t, CreateTables(context.Background(), newTestDB(t)))
}
