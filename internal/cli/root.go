package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "survey-service",
		Short:        "MAIHome house survey and push notification service",
		SilenceUsage: true,
	}

	// An empty port defers to PORT and then to the config file.
	cmd.PersistentFlags().StringVar(&port, "port", "", "port to listen on")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(NewStartCmd(&configPath, &port))
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewHouseCmd(&configPath))
	cmd.AddCommand(NewVAPIDCmd())
	cmd.AddCommand(NewHashPasswordCmd())
	return cmd
}
