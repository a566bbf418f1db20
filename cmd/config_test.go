package cmd

import (
	"errors"
	"testing"
)

func validTestConfig() *Config {
	return &Config{
		Listen:         ":8080",
		ConnectTimeout: 10,
		ChunkSize:      1000,
		ExportFormat:   "csv",
		Auth: AuthConfig{
			Username: "admin",
			Password: "secret",
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		expectErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing listen address",
			mutate:    func(c *Config) { c.Listen = "" },
			expectErr: ErrListenAddrRequired,
		},
		{
			name:      "missing auth username",
			mutate:    func(c *Config) { c.Auth.Username = "" },
			expectErr: ErrAuthUserRequired,
		},
		{
			name:      "missing auth password",
			mutate:    func(c *Config) { c.Auth.Password = "" },
			expectErr: ErrAuthPasswordRequired,
		},
		{
			name:      "invalid export format",
			mutate:    func(c *Config) { c.ExportFormat = "parquet" },
			expectErr: ErrExportFormatInvalid,
		},
		{
			name:   "xlsx export format",
			mutate: func(c *Config) { c.ExportFormat = "xlsx" },
		},
		{
			name:      "chunk size too small",
			mutate:    func(c *Config) { c.ChunkSize = 50 },
			expectErr: ErrChunkSizeMinimum,
		},
		{
			name:      "chunk size too large",
			mutate:    func(c *Config) { c.ChunkSize = 200000 },
			expectErr: ErrChunkSizeMaximum,
		},
		{
			name:      "connect timeout zero",
			mutate:    func(c *Config) { c.ConnectTimeout = 0 },
			expectErr: ErrConnectTimeoutInvalid,
		},
		{
			name:      "connect timeout too large",
			mutate:    func(c *Config) { c.ConnectTimeout = 301 },
			expectErr: ErrConnectTimeoutInvalid,
		},
		{
			name: "incomplete S3 config",
			mutate: func(c *Config) {
				c.S3.Bucket = "exports"
			},
			expectErr: ErrS3ConfigIncomplete,
		},
		{
			name: "complete S3 config",
			mutate: func(c *Config) {
				c.S3 = S3Config{
					Endpoint:  "https://s3.example.com",
					Bucket:    "exports",
					AccessKey: "key",
					SecretKey: "secret",
				}
			},
		},
		{
			name: "seeded project missing name",
			mutate: func(c *Config) {
				c.Projects = []SeedProject{{Host: "db", Database: "app", Username: "u", Password: "p"}}
			},
			expectErr: ErrSeedProjectNameMissing,
		},
		{
			name: "seeded project missing host",
			mutate: func(c *Config) {
				c.Projects = []SeedProject{{Name: "alpha", Database: "app", Username: "u", Password: "p"}}
			},
			expectErr: ErrSeedProjectIncomplete,
		},
		{
			name: "seeded project invalid port",
			mutate: func(c *Config) {
				c.Projects = []SeedProject{{Name: "alpha", Host: "db", Database: "app", Username: "u", Password: "p", Port: 70000}}
			},
			expectErr: ErrSeedProjectPortInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validTestConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.expectErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.expectErr) {
				t.Fatalf("expected %v, got %v", tt.expectErr, err)
			}
		})
	}
}

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name  string
		table string
		want  bool
	}{
		{"simple name", "teams", true},
		{"with underscore", "individual_attempts", true},
		{"leading underscore", "_internal", true},
		{"with digits", "attempts2024", true},
		{"leading digit", "1teams", false},
		{"empty", "", false},
		{"sql injection attempt", "teams; DROP TABLE teams", false},
		{"quoted", `"teams"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isValidTableName(tt.table); got != tt.want {
				t.Errorf("isValidTableName(%q) = %v, want %v", tt.table, got, tt.want)
			}
		})
	}
}

func TestIsValidExportFormat(t *testing.T) {
	for _, format := range []string{"csv", "xlsx"} {
		if !isValidExportFormat(format) {
			t.Errorf("expected %q to be valid", format)
		}
	}
	for _, format := range []string{"", "json", "parquet", "CSV"} {
		if isValidExportFormat(format) {
			t.Errorf("expected %q to be invalid", format)
		}
	}
}
