package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/preisanalytics/redis-semaphore/internal/application"
	"github.com/preisanalytics/redis-semaphore/internal/config"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitHash   = "unset"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "semstored",
		Short: "Semaphore store daemon",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("semstored version %s\nbuild time: %s\nhash: %s\n",
				version, buildTime, gitHash)
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the store daemon",
		Run: func(cmd *cobra.Command, args []string) {
			configPath, _ := cmd.Flags().GetString("config")
			startServer(configPath)
		},
	}

	runCmd.Flags().StringP("config", "c", "config.yml", "Path to config file")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func startServer(cfgPath string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGABRT)
	defer cancel()

	cfg, err := config.GetConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to get config: %s", err)
	}

	if err := application.New(&cfg).Start(ctx); err != nil {
		log.Fatalf("application error: %s", err)
	}
}
