package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"FinFusion/internal/di"
	"FinFusion/pkg/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "finfusion",
		Short:         "Adaptive multi-factor confluence engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(checkConfigCmd(&configPath))
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume candles, run the engines and serve decisions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				log.Printf("config load failed: %v", err)
				return err
			}
			log.Printf("env=%s symbols=%s timeframes=%s",
				cfg.Environment, strings.Join(cfg.Symbols, ","), strings.Join(cfg.Timeframes, ","))

			// Wire DI: Initialize all dependencies
			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				log.Printf("app initialization failed: %v", err)
				return err
			}
			defer cleanup()

			log.Printf("kafka: brokers=%v candles=%s decisions=%s",
				cfg.Kafka.Brokers, cfg.Kafka.CandlesTopic, cfg.Kafka.DecisionsTopic)

			// Run application (blocks until signal)
			if err := app.Run(); err != nil {
				log.Printf("app error: %v", err)
				return err
			}
			return nil
		},
	}
}

func checkConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: env=%s symbols=%d timeframes=%d predictor=%t auto_train=%t\n",
				cfg.Environment, len(cfg.Symbols), len(cfg.Timeframes), cfg.Engine.Predictor.Enabled, cfg.Engine.AutoTrain)
			return nil
		},
	}
}
