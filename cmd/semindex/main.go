package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/semindex/internal/vectorstore/sqlite"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var flagConfig string

var rootCmd = &cobra.Command{
	Use:           "semindex",
	Short:         "Semantic code index: incremental embedding sync and hybrid search",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("semindex %s (built %s, sqlite %s/%s, vector extension: %v)\n",
		version, buildTime, sqlite.BuildMode, sqlite.DriverName, sqlite.VectorExtensionAvailable))
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ./semindex.yaml, then ~/.config/semindex/config.yaml)")
}
