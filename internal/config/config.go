package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// FileEnvVar names the environment variable holding an optional config file path.
const FileEnvVar = "DATABRIDGE_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	CORS     CORSConfig
	Pipeline PipelineConfig
	S3       S3Config
	Watch    WatchConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver     string
	SQLitePath string
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// PipelineConfig tunes the import orchestrator.
type PipelineConfig struct {
	Workers            int
	ProgressInterval   int
	MatchMinConfidence float64
	RequireParcelMatch bool
	AddressMatching    bool
	RulesFile          string
}

// S3Config configures the S3 file source.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// WatchConfig names the intake folders polled by the watch command.
type WatchConfig struct {
	PermitFolder   string
	PropertyFolder string
	ArchiveFolder  string
}

// Load reads configuration from environment variables, merged over the file
// named by DATABRIDGE_CONFIG when that variable is set.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnvVar))
}

// LoadFile reads configuration from environment variables merged over an
// optional YAML or TOML file. Environment variables win.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults for development
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("DB_HOST", "host.docker.internal")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "databridge")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("SQLITE_PATH", "databridge.db")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("IMPORT_WORKERS", 4)
	v.SetDefault("PROGRESS_INTERVAL", 100)
	v.SetDefault("MATCH_MIN_CONFIDENCE", 70)
	v.SetDefault("MATCH_REQUIRE_PARCEL", false)
	v.SetDefault("ADDRESS_MATCHING", true)
	v.SetDefault("RULES_FILE", "")
	v.SetDefault("S3_REGION", "us-west-2")
	v.SetDefault("S3_USE_PATH_STYLE", false)
	v.SetDefault("WATCH_ARCHIVE_FOLDER", "archive")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// Bind environment variables
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("PORT"),
			Env:      v.GetString("ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("STORE_DRIVER")),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
		Pipeline: PipelineConfig{
			Workers:            v.GetInt("IMPORT_WORKERS"),
			ProgressInterval:   v.GetInt("PROGRESS_INTERVAL"),
			MatchMinConfidence: v.GetFloat64("MATCH_MIN_CONFIDENCE"),
			RequireParcelMatch: v.GetBool("MATCH_REQUIRE_PARCEL"),
			AddressMatching:    v.GetBool("ADDRESS_MATCHING"),
			RulesFile:          v.GetString("RULES_FILE"),
		},
		S3: S3Config{
			Region:          v.GetString("S3_REGION"),
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UsePathStyle:    v.GetBool("S3_USE_PATH_STYLE"),
		},
		Watch: WatchConfig{
			PermitFolder:   v.GetString("WATCH_PERMIT_FOLDER"),
			PropertyFolder: v.GetString("WATCH_PROPERTY_FOLDER"),
			ArchiveFolder:  v.GetString("WATCH_ARCHIVE_FOLDER"),
		},
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	// Validate store config
	switch c.Store.Driver {
	case "postgres":
		if err := c.Database.validate(); err != nil {
			return err
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or sqlite, got %q", c.Store.Driver)
	}

	// Validate CORS config
	if len(c.CORS.Origins) == 0 {
		return fmt.Errorf("CORS_ORIGINS is required")
	}

	// Validate pipeline config
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("IMPORT_WORKERS must be at least 1")
	}
	if c.Pipeline.ProgressInterval < 0 {
		return fmt.Errorf("PROGRESS_INTERVAL must be non-negative")
	}
	if c.Pipeline.MatchMinConfidence < 0 || c.Pipeline.MatchMinConfidence > 100 {
		return fmt.Errorf("MATCH_MIN_CONFIDENCE must be between 0 and 100")
	}

	// Watch folders may not archive into themselves
	archive := c.Watch.ArchiveFolder
	if archive != "" && (archive == c.Watch.PermitFolder || archive == c.Watch.PropertyFolder) {
		return fmt.Errorf("WATCH_ARCHIVE_FOLDER must differ from the intake folders")
	}

	return nil
}

func (d DatabaseConfig) validate() error {
	if d.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if d.Port == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	if d.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if d.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if d.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if d.PoolMin < 0 {
		return fmt.Errorf("DB_POOL_MIN must be non-negative")
	}
	if d.PoolMax < 1 {
		return fmt.Errorf("DB_POOL_MAX must be at least 1")
	}
	if d.PoolMin > d.PoolMax {
		return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
	}
	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
