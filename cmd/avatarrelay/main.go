// Command avatarrelay provisions meeting rooms and runs avatar relay
// sessions from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/opd-ai/avatarrelay/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information (set at build time)
var version = "dev"

func main() {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "avatarrelay",
		Short:         "Relay a remote avatar's media into a meeting room",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.BindFlags(rootCmd.PersistentFlags())
	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		logrus.WithError(err).Fatal("Failed to bind flags")
	}

	rootCmd.AddCommand(
		newProvisionCmd(v),
		newRoomCmd(v),
		newSessionCmd(v),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves and validates the full configuration and applies the
// log level.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	return cfg, applyLogLevel(cfg)
}

// resolveConfig is loadConfig for commands that need only part of the
// configuration; they check their own inputs.
func resolveConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Resolve(v)
	if err != nil {
		return nil, err
	}
	return cfg, applyLogLevel(cfg)
}

func applyLogLevel(cfg *config.Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// serveMetrics exposes the Prometheus registry on addr until ctx is done.
// An empty addr disables the endpoint.
func serveMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "serveMetrics",
			"addr":     addr,
		}).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "serveMetrics",
				"error":    err.Error(),
			}).Error("Metrics server failed")
		}
	}()
}
