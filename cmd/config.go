package cmd

import (
	"errors"
	"fmt"
	"regexp"
)

// Static errors for configuration validation
var (
	ErrListenAddrRequired     = errors.New("listen address is required")
	ErrAuthUserRequired       = errors.New("auth username is required")
	ErrAuthPasswordRequired   = errors.New("auth password is required")
	ErrExportFormatInvalid    = errors.New("export format must be one of: csv, xlsx")
	ErrChunkSizeMinimum       = errors.New("chunk size must be at least 100")
	ErrChunkSizeMaximum       = errors.New("chunk size must not exceed 100000")
	ErrConnectTimeoutInvalid  = errors.New("connect timeout must be between 1 and 300 seconds")
	ErrS3ConfigIncomplete     = errors.New("S3 upload requires endpoint, bucket, access key and secret key")
	ErrSeedProjectNameMissing = errors.New("seeded project is missing a name")
	ErrSeedProjectIncomplete  = errors.New("seeded project is missing host, database, username or password")
	ErrSeedProjectPortInvalid = errors.New("seeded project port must be between 1 and 65535")
)

// Config holds the full server configuration, populated from flags,
// environment variables and the optional YAML config file via viper.
type Config struct {
	Debug     bool
	LogFormat string
	Listen    string

	// ConnectTimeout is the per-project connection timeout in seconds.
	ConnectTimeout int

	// ChunkSize is the number of rows buffered per write during table export.
	ChunkSize int

	// ExportFormat is the default tabular format for export files (csv, xlsx).
	ExportFormat string

	Auth AuthConfig
	S3   S3Config

	// Projects are seeded into the registry at startup without the
	// connectivity check that registration via the API performs.
	Projects []SeedProject
}

// AuthConfig holds the operator credentials for the login endpoint.
type AuthConfig struct {
	Username string
	Password string
}

// S3Config configures the optional post-export archive upload. Upload is
// enabled only when Endpoint and Bucket are both set.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// Enabled reports whether archive upload has been configured at all.
func (s *S3Config) Enabled() bool {
	return s.Endpoint != "" || s.Bucket != "" || s.AccessKey != "" || s.SecretKey != ""
}

// SeedProject is a project definition loaded from the config file.
type SeedProject struct {
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Port     int    `mapstructure:"port"`
}

// validPostgreSQLIdentifier checks if a string is a valid PostgreSQL identifier
// to prevent SQL injection attacks
var validPostgreSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidTableName validates that a table name is safe to use in SQL queries
func isValidTableName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return validPostgreSQLIdentifier.MatchString(name)
}

// isValidExportFormat validates the export file format
func isValidExportFormat(format string) bool {
	validFormats := map[string]bool{
		"csv":  true,
		"xlsx": true,
	}
	return validFormats[format]
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return ErrListenAddrRequired
	}

	if c.Auth.Username == "" {
		return ErrAuthUserRequired
	}
	if c.Auth.Password == "" {
		return ErrAuthPasswordRequired
	}

	if !isValidExportFormat(c.ExportFormat) {
		return fmt.Errorf("%w: '%s'", ErrExportFormatInvalid, c.ExportFormat)
	}

	if c.ChunkSize < 100 {
		return fmt.Errorf("%w, got %d", ErrChunkSizeMinimum, c.ChunkSize)
	}
	if c.ChunkSize > 100000 {
		return fmt.Errorf("%w, got %d", ErrChunkSizeMaximum, c.ChunkSize)
	}

	if c.ConnectTimeout < 1 || c.ConnectTimeout > 300 {
		return fmt.Errorf("%w, got %d", ErrConnectTimeoutInvalid, c.ConnectTimeout)
	}

	// S3 upload is optional, but a partial configuration is a mistake
	if c.S3.Enabled() {
		if c.S3.Endpoint == "" || c.S3.Bucket == "" || c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			return ErrS3ConfigIncomplete
		}
	}

	for i := range c.Projects {
		p := &c.Projects[i]
		if p.Name == "" {
			return fmt.Errorf("%w (index %d)", ErrSeedProjectNameMissing, i)
		}
		if p.Host == "" || p.Database == "" || p.Username == "" || p.Password == "" {
			return fmt.Errorf("%w: '%s'", ErrSeedProjectIncomplete, p.Name)
		}
		if p.Port == 0 {
			p.Port = 5432
		}
		if p.Port < 1 || p.Port > 65535 {
			return fmt.Errorf("%w: '%s' has port %d", ErrSeedProjectPortInvalid, p.Name, p.Port)
		}
	}

	return nil
}
