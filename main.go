// caradvisor collects used-car listings, trains the price model and answers
// deal checks over HTTP and Telegram.
//
// Usage:
//
//	caradvisor migrate
//	caradvisor scrape [--sources=gumtree,autoscout24] [--timeout=30m] [--devtools-url=ws://...]
//	caradvisor train
//	caradvisor serve
//	caradvisor bot
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	debug bool
}

var rootCmd = &cobra.Command{
	Use:          "caradvisor",
	Short:        "Used-car listing pipeline and deal checker",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(migrateCmd, scrapeCmd, trainCmd, serveCmd, botCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
