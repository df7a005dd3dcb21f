package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/snonux/yomibackfill/internal/cli"
	"codeberg.org/snonux/yomibackfill/internal/processor"
)

func main() {
	// Create flags instance
	flags := cli.NewFlags()

	proc := processor.NewProcessor(flags)
	defer proc.Close()

	// Create root command
	rootCmd := cli.CreateRootCommand(flags, proc)

	// Set up command initialization
	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	// Ctrl+C stops a backfill after the current note; finished notes are saved
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// Execute command
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		proc.Close()
		os.Exit(1)
	}
}
