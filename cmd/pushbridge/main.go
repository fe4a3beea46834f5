package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pushbridge/internal/app"
	"pushbridge/internal/config"
)

type rootFlags struct {
	configPath string
	envFiles   []string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "pushbridge",
		Short:         "Relay send commands to Pushover",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(flags.envFiles...)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "./config.json", "path to config (json or yaml)")
	root.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "dotenv files to load before the config (default .env)")

	root.AddCommand(
		serveCommand(flags),
		migrateCommand(flags),
		encryptCommand(flags),
		decryptCommand(flags),
		sendCommand(flags),
	)
	return root
}

// openApp builds the send path without transports for one-shot commands.
func openApp(ctx context.Context, flags *rootFlags) (*app.App, error) {
	return app.NewApp(ctx, flags.configPath, app.WithoutTransports())
}
