// Command vista-api runs the virtual staging HTTP server and small admin
// commands against the same configuration.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/vista-staging/internal/api"
	"github.com/fpang/vista-staging/internal/boot"
	"github.com/fpang/vista-staging/internal/config"
	"github.com/fpang/vista-staging/internal/logging"
	"github.com/fpang/vista-staging/internal/property"
)

// CLI flags
var (
	configFlag   string
	portFlag     int
	logLevelFlag string
	fileFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "vista-api",
	Short: "Virtual staging backend",
	Long: `Vista API serves the virtual staging endpoints under /api/virtual-staging.

Configuration comes from an optional YAML file, a .env file, and VISTA_*
environment variables, in increasing order of precedence.

Examples:
  vista-api serve
  vista-api serve --config ./vista.yaml --port 9090
  VISTA_STORE_BACKEND=sqlite vista-api serve
  vista-api property put --file ./property.json`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var propertyCmd = &cobra.Command{
	Use:   "property",
	Short: "Manage property documents",
}

var propertyPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace a property from a JSON file",
	RunE:  runPropertyPut,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override log.level (debug, info, warn, error)")
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Override server.port")
	propertyPutCmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Property JSON file")
	_ = propertyPutCmd.MarkFlagRequired("file")

	propertyCmd.AddCommand(propertyPutCmd)
	rootCmd.AddCommand(serveCmd, propertyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty)
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	ctx := context.Background()
	app, err := boot.New(ctx, cfg, "vista-api", boot.Options{CommitHash: commitHash, BuildTime: buildTime})
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.New(app.Service, api.Options{AllowedOrigins: cfg.CORS.AllowedOrigins}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Graceful shutdown incomplete")
		}
	}()

	log.Info().Int("port", cfg.Server.Port).Str("prefix", api.Prefix).Msg("Starting HTTP server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	<-done
	return nil
}

func runPropertyPut(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(fileFlag)
	if err != nil {
		return fmt.Errorf("read %s: %w", fileFlag, err)
	}
	var p property.Property
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("parse %s: %w", fileFlag, err)
	}

	ctx := context.Background()
	app, err := boot.New(ctx, cfg, "vista-api", boot.Options{
		Generator:  offlineGenerator{},
		CommitHash: commitHash,
		BuildTime:  buildTime,
	})
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	defer app.Close()

	if err := app.Properties.Put(ctx, &p); err != nil {
		return err
	}
	log.Info().
		Str("propertyId", p.PropertyID).
		Int("images", len(p.Images)).
		Int("panoramas", len(p.Panoramas())).
		Msg("Property stored")
	return nil
}
