package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pg "github.com/escrow-payments/escrow-server/pkg/database/postgres"
	"github.com/escrow-payments/escrow-server/pkg/escrow/data"
	"github.com/escrow-payments/escrow-server/pkg/escrow/engine"
	"github.com/escrow-payments/escrow-server/pkg/escrow/rpc"
)

var rootCmd = &cobra.Command{
	Use:   "escrowd",
	Short: "Two-party token escrow server",
	Long: `escrowd is a custodial escrow service for fungible tokens. A buyer locks
tokens into a derived vault tied to a (buyer, seller) pair; the escrow later
resolves exactly once, releasing the funds to the seller or returning them
to the buyer.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().String("listen", ":8080", "json-rpc listen address")
	rootCmd.Flags().String("backend", "memory", "data backend: memory or postgres")
	rootCmd.Flags().String("db-host", "localhost", "postgres host")
	rootCmd.Flags().Int("db-port", 5432, "postgres port")
	rootCmd.Flags().String("db-user", "escrow", "postgres user")
	rootCmd.Flags().String("db-password", "", "postgres password")
	rootCmd.Flags().String("db-name", "escrow", "postgres database name")
	rootCmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().String("app-name", "escrowd", "application name reported to new relic")
	rootCmd.Flags().String("newrelic-license-key", "", "new relic license key, metrics are disabled when unset")

	viper.SetEnvPrefix("escrow")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(rootCmd.Flags())
}

func run(_ *cobra.Command, _ []string) error {
	log := logrus.StandardLogger()

	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	var dataProvider data.Provider
	switch backend := viper.GetString("backend"); backend {
	case "memory":
		log.Warn("using in-memory data backend, state will not survive restarts")
		dataProvider = data.NewTestDataProvider()
	case "postgres":
		dataProvider, err = data.NewDatabaseProvider(&pg.Config{
			Host:     viper.GetString("db-host"),
			Port:     viper.GetInt("db-port"),
			User:     viper.GetString("db-user"),
			Password: viper.GetString("db-password"),
			DbName:   viper.GetString("db-name"),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend: %s", backend)
	}

	var serverOpts []rpc.ServerOption
	if licenseKey := viper.GetString("newrelic-license-key"); len(licenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(viper.GetString("app-name")),
			newrelic.ConfigLicense(licenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
		)
		if err != nil {
			return fmt.Errorf("error connecting to new relic: %w", err)
		}
		serverOpts = append(serverOpts, rpc.WithMetricsApplication(nr))
	} else {
		log.Warn("no new relic license key, metrics are disabled")
	}

	server := rpc.NewServer(engine.New(dataProvider), serverOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return server.Serve(ctx, viper.GetString("listen"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
