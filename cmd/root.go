package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/exporthub/exporthub/cmd.Version=1.2.3"
	Version = "dev" // Default to "dev" if not set during build

	cfgFile        string
	debug          bool
	logFormat      string
	listenAddr     string
	authUser       string
	authPassword   string
	exportFormat   string
	chunkSize      int
	connectTimeout int
	s3Endpoint     string
	s3Bucket       string
	s3AccessKey    string
	s3SecretKey    string
	s3Region       string

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	logger *slog.Logger
)

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, level, r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	// For simplicity, we ignore attributes in text-only mode
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	return h
}

// initLogger initializes the slog logger based on debug flag and log format
func initLogger(isDebug bool, format string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(os.Stdout, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(os.Stdout, opts)
	}

	logger = slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:     "exporthub",
	Version: Version,
	Short:   "📦 Bulk-export tables from multiple PostgreSQL projects as archived CSV/XLSX",
	Long: titleStyle.Render("Export Hub") + `

An HTTP service that registers credentials for multiple independent
PostgreSQL-compatible database projects, validates each against a fixed
required-table schema, and bulk-exports rows from those tables as
CSV/XLSX files bundled into a ZIP.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// Show help when no subcommand is specified
		cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the export hub HTTP server",
	Long: `Start the HTTP server exposing the project registry, the bulk-export
pipeline and the cross-project team member aggregation endpoints.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServe()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.exporthub.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")

	// Serve-specific flags
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":3001", "HTTP listen address")
	serveCmd.Flags().StringVar(&authUser, "auth-user", "admin", "operator login username")
	serveCmd.Flags().StringVar(&authPassword, "auth-password", "exporthub", "operator login password")
	serveCmd.Flags().StringVar(&exportFormat, "export-format", "csv", "default export file format: csv, xlsx")
	serveCmd.Flags().IntVar(&chunkSize, "chunk-size", 1000, "number of rows buffered per write during table export")
	serveCmd.Flags().IntVar(&connectTimeout, "connect-timeout", 10, "per-project database connection timeout in seconds")

	serveCmd.Flags().StringVar(&s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint URL for optional archive upload")
	serveCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket for optional archive upload")
	serveCmd.Flags().StringVar(&s3AccessKey, "s3-access-key", "", "S3 access key")
	serveCmd.Flags().StringVar(&s3SecretKey, "s3-secret-key", "", "S3 secret key")
	serveCmd.Flags().StringVar(&s3Region, "s3-region", "auto", "S3 region")

	// Bind persistent flags
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Bind serve flags
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("auth.username", serveCmd.Flags().Lookup("auth-user"))
	_ = viper.BindPFlag("auth.password", serveCmd.Flags().Lookup("auth-password"))
	_ = viper.BindPFlag("export_format", serveCmd.Flags().Lookup("export-format"))
	_ = viper.BindPFlag("chunk_size", serveCmd.Flags().Lookup("chunk-size"))
	_ = viper.BindPFlag("connect_timeout", serveCmd.Flags().Lookup("connect-timeout"))
	_ = viper.BindPFlag("s3.endpoint", serveCmd.Flags().Lookup("s3-endpoint"))
	_ = viper.BindPFlag("s3.bucket", serveCmd.Flags().Lookup("s3-bucket"))
	_ = viper.BindPFlag("s3.access_key", serveCmd.Flags().Lookup("s3-access-key"))
	_ = viper.BindPFlag("s3.secret_key", serveCmd.Flags().Lookup("s3-secret-key"))
	_ = viper.BindPFlag("s3.region", serveCmd.Flags().Lookup("s3-region"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".exporthub")
	}

	viper.SetEnvPrefix("EXPORTHUB")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && debug {
		// Initialize logger early if reading config in debug mode
		if logger == nil {
			initLogger(debug, logFormat)
		}
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

func loadConfig() (*Config, error) {
	config := &Config{
		Debug:          viper.GetBool("debug"),
		LogFormat:      viper.GetString("log_format"),
		Listen:         viper.GetString("listen"),
		ConnectTimeout: viper.GetInt("connect_timeout"),
		ChunkSize:      viper.GetInt("chunk_size"),
		ExportFormat:   viper.GetString("export_format"),
		Auth: AuthConfig{
			Username: viper.GetString("auth.username"),
			Password: viper.GetString("auth.password"),
		},
		S3: S3Config{
			Endpoint:  viper.GetString("s3.endpoint"),
			Bucket:    viper.GetString("s3.bucket"),
			AccessKey: viper.GetString("s3.access_key"),
			SecretKey: viper.GetString("s3.secret_key"),
			Region:    viper.GetString("s3.region"),
		},
	}

	if err := viper.UnmarshalKey("projects", &config.Projects); err != nil {
		return nil, fmt.Errorf("failed to parse seeded projects: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func runServe() error {
	config, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	initLogger(config.Debug, config.LogFormat)

	logger.Info("")
	logger.Info(fmt.Sprintf("🚀 Export Hub v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	store := NewMemoryProjectStore()
	for _, seed := range config.Projects {
		project := seed.toProject()
		store.Add(project)
		logger.Info(fmt.Sprintf("📌 Seeded project '%s' (%s:%d/%s)",
			project.Name, project.Host, project.Port, project.Database))
	}

	server := NewServer(config, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              config.Listen,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// No WriteTimeout: archive streaming for large exports can
		// legitimately outlast any fixed deadline.
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("🌐 Listening on %s", config.Listen))
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("")
		logger.Info("⚠️  Interrupt signal received, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}

	logger.Info("✅ Server stopped")
	return nil
}
