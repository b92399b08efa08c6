package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/analytics-import/internal/eventstore"
)

// Config holds all configuration for the import service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Snowflake   SnowflakeConfig   `yaml:"snowflake"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	Reclamation ReclamationConfig `yaml:"reclamation"`
	Auth        AuthConfig        `yaml:"auth"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds the Postgres connection for import records.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SnowflakeConfig holds the event warehouse connection.
type SnowflakeConfig struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
}

// RedisConfig holds the progress cache connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig holds file artifact storage settings. When Bucket is set,
// uploaded files live in S3; otherwise under LocalDir.
type StorageConfig struct {
	LocalDir   string `yaml:"local_dir"`
	Bucket     string `yaml:"bucket"`
	Region     string `yaml:"region"`
	AWSProfile string `yaml:"aws_profile"`
}

// Remote reports whether artifacts live in object storage.
func (s StorageConfig) Remote() bool { return s.Bucket != "" }

// Prefix is the location prefix upload locations are derived under: the
// local base directory, or empty for bucket-rooted keys.
func (s StorageConfig) Prefix() string {
	if s.Remote() {
		return ""
	}
	return s.LocalDir
}

// ReclamationConfig holds the file reclamation schedule. The numeric fields
// are pointers so an explicit zero (retain nothing, run at midnight) is
// distinguishable from an absent key that takes the default.
type ReclamationConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays *int `yaml:"retention_days"`
	RunHourUTC    *int `yaml:"run_hour_utc"`
}

// AuthConfig holds the operator token for admin endpoints. Site-scoped
// authorization is resolved against the sites database, not config.
type AuthConfig struct {
	OpsToken string `yaml:"ops_token"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides. A .env file alongside the process is honored when present.
func Load(path string) (*Config, error) {
	// Best effort; absence of .env is normal outside local dev.
	godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Server.Port = n
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		c.Database.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		c.Redis.Password = pass
	}
	// A full connection string fills every Snowflake field at once; the
	// discrete SNOWFLAKE_* variables below still win for any part they set.
	if connStr := os.Getenv("SNOWFLAKE_CONNECTION_STRING"); connStr != "" {
		parsed := eventstore.ParseConnectionString(connStr)
		if parsed.Account != "" {
			c.Snowflake.Account = parsed.Account
		}
		if parsed.User != "" {
			c.Snowflake.User = parsed.User
		}
		if parsed.Password != "" {
			c.Snowflake.Password = parsed.Password
		}
		if parsed.Database != "" {
			c.Snowflake.Database = parsed.Database
		}
		if parsed.Schema != "" {
			c.Snowflake.Schema = parsed.Schema
		}
	}
	if account := os.Getenv("SNOWFLAKE_ACCOUNT"); account != "" {
		c.Snowflake.Account = account
	}
	if user := os.Getenv("SNOWFLAKE_USER"); user != "" {
		c.Snowflake.User = user
	}
	if password := os.Getenv("SNOWFLAKE_PASSWORD"); password != "" {
		c.Snowflake.Password = password
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		c.Storage.Bucket = bucket
	}
	if token := os.Getenv("OPS_TOKEN"); token != "" {
		c.Auth.OpsToken = token
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "/var/lib/analytics-import/uploads"
	}
	if c.Storage.Region == "" {
		c.Storage.Region = "us-west-2"
	}
	if c.Reclamation.RetentionDays == nil {
		days := 7
		c.Reclamation.RetentionDays = &days
	}
	if c.Reclamation.RunHourUTC == nil {
		hour := 3
		c.Reclamation.RunHourUTC = &hour
	}
}
