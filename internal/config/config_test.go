package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9090
database:
  url: postgres://import:pw@db:5432/analytics?sslmode=disable
snowflake:
  account: myacct
  user: importer
  database: ANALYTICS
  schema: EVENTS
  warehouse: IMPORT_WH
storage:
  bucket: import-uploads
  region: us-east-1
reclamation:
  enabled: true
  retention_days: 14
  run_hour_utc: 5
auth:
  ops_token: secret-ops
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://import:pw@db:5432/analytics?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "myacct", cfg.Snowflake.Account)
	assert.Equal(t, "IMPORT_WH", cfg.Snowflake.Warehouse)
	assert.True(t, cfg.Reclamation.Enabled)
	require.NotNil(t, cfg.Reclamation.RetentionDays)
	assert.Equal(t, 14, *cfg.Reclamation.RetentionDays)
	require.NotNil(t, cfg.Reclamation.RunHourUTC)
	assert.Equal(t, 5, *cfg.Reclamation.RunHourUTC)
	assert.Equal(t, "secret-ops", cfg.Auth.OpsToken)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "/var/lib/analytics-import/uploads", cfg.Storage.LocalDir)
	assert.Equal(t, "us-west-2", cfg.Storage.Region)
	require.NotNil(t, cfg.Reclamation.RetentionDays)
	assert.Equal(t, 7, *cfg.Reclamation.RetentionDays)
	require.NotNil(t, cfg.Reclamation.RunHourUTC)
	assert.Equal(t, 3, *cfg.Reclamation.RunHourUTC)
	assert.False(t, cfg.Reclamation.Enabled)
}

func TestLoad_ExplicitZeroesSurviveDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
reclamation:
  enabled: true
  retention_days: 0
  run_hour_utc: 0
`))
	require.NoError(t, err)

	// run_hour_utc: 0 means midnight, not "unset"; same for a zero
	// retention that reclaims terminal files on the next pass.
	require.NotNil(t, cfg.Reclamation.RunHourUTC)
	assert.Equal(t, 0, *cfg.Reclamation.RunHourUTC)
	require.NotNil(t, cfg.Reclamation.RetentionDays)
	assert.Equal(t, 0, *cfg.Reclamation.RetentionDays)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://env:pw@db/analytics")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("SNOWFLAKE_PASSWORD", "env-secret")
	t.Setenv("STORAGE_BUCKET", "env-bucket")
	t.Setenv("OPS_TOKEN", "env-ops")

	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
database:
  url: postgres://file:pw@db/analytics
`))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "env should win over file")
	assert.Equal(t, "postgres://env:pw@db/analytics", cfg.Database.URL)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "env-secret", cfg.Snowflake.Password)
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "env-ops", cfg.Auth.OpsToken)
}

func TestLoad_SnowflakeConnectionString(t *testing.T) {
	t.Setenv("SNOWFLAKE_CONNECTION_STRING",
		"scheme=https;ACCOUNT=envacct;USER=envuser;PASSWORD=envpw;DB=ANALYTICS.EVENTS;")
	// A discrete variable still wins over the connection string.
	t.Setenv("SNOWFLAKE_USER", "override-user")

	cfg, err := Load(writeConfig(t, `
snowflake:
  account: fileacct
  warehouse: IMPORT_WH
`))
	require.NoError(t, err)

	assert.Equal(t, "envacct", cfg.Snowflake.Account)
	assert.Equal(t, "override-user", cfg.Snowflake.User)
	assert.Equal(t, "envpw", cfg.Snowflake.Password)
	assert.Equal(t, "ANALYTICS", cfg.Snowflake.Database)
	assert.Equal(t, "EVENTS", cfg.Snowflake.Schema)
	assert.Equal(t, "IMPORT_WH", cfg.Snowflake.Warehouse, "fields absent from the string are untouched")
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestStorageConfig_RemoteAndPrefix(t *testing.T) {
	local := StorageConfig{LocalDir: "/data/uploads"}
	assert.False(t, local.Remote())
	assert.Equal(t, "/data/uploads", local.Prefix())

	remote := StorageConfig{LocalDir: "/data/uploads", Bucket: "imports"}
	assert.True(t, remote.Remote())
	assert.Equal(t, "", remote.Prefix(), "remote keys are bucket-rooted")
}
