package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	lookupdapp "github.com/refdatahq/lookupd/internal/app"
	"github.com/refdatahq/lookupd/internal/config"
	"github.com/refdatahq/lookupd/internal/telemetry"
	"github.com/refdatahq/lookupd/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lookup table server",
	Long: `Start the server that loads lookup tables from the configured
definition sources and serves them over a REST API.

The server requires a configuration file (--config) that specifies:
- Definition sources (local directories or Git repositories)
- Background refresh and retry tuning
- Optional database persistence for declarative tables

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

// defaultGracefulTimeout is Kubernetes-friendly shutdown time.
const defaultGracefulTimeout = 30 * time.Second

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides config)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	serveCmd.Flags().Bool("otel-enabled", false, "Enable OpenTelemetry metrics")
	serveCmd.Flags().String("otel-metrics-mode", telemetry.MetricsModeOTLP,
		fmt.Sprintf("Metrics exporter mode (%q or %q)", telemetry.MetricsModeOTLP, telemetry.MetricsModePrometheus))
	serveCmd.Flags().String("otel-endpoint", telemetry.DefaultEndpoint, "OTLP collector endpoint (host:port)")
	serveCmd.Flags().Bool("otel-insecure", false, "Allow plain HTTP to the OTLP collector")

	for _, flag := range []string{
		"address", "config", "otel-enabled", "otel-metrics-mode", "otel-endpoint", "otel-insecure",
	} {
		if err := viper.BindPFlag(flag, serveCmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", flag, err))
		}
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		panic(fmt.Sprintf("failed to mark config flag as required: %v", err))
	}
}

// telemetryConfigFromFlags assembles the telemetry configuration from the
// otel-* serve flags.
func telemetryConfigFromFlags() *telemetry.Config {
	if !viper.GetBool("otel-enabled") {
		return nil
	}
	return &telemetry.Config{
		Enabled:        true,
		ServiceVersion: versions.GetVersionInfo().Version,
		Endpoint:       viper.GetString("otel-endpoint"),
		Insecure:       viper.GetBool("otel-insecure"),
		Metrics: &telemetry.MetricsConfig{
			Enabled: true,
			Mode:    viper.GetString("otel-metrics-mode"),
		},
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration", "path", configPath, "sources", len(cfg.Sources))

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(telemetryConfigFromFlags()))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	appOpts := []lookupdapp.LookupAppOptions{
		lookupdapp.WithConfig(cfg),
		lookupdapp.WithMeterProvider(tel.MeterProvider()),
	}
	if address := viper.GetString("address"); address != "" {
		appOpts = append(appOpts, lookupdapp.WithAddress(address))
	}
	if registry := tel.PrometheusRegistry(); registry != nil {
		appOpts = append(appOpts, lookupdapp.WithMetricsHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		))
		slog.Info("Prometheus metrics enabled on /metrics")
	}

	app, err := lookupdapp.NewLookupApp(ctx, appOpts...)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- app.Start() }()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	return app.Stop(defaultGracefulTimeout)
}
