// Command grantrelay serves the offline grant and calendar events endpoints.
//
//	grantrelay                 # same as `grantrelay serve`
//	grantrelay serve --config grantrelay.prod.yaml
//	grantrelay config          # lists known config keys and warnings
//
// Configuration is read from grantrelay.yaml, GR__ environment variables and
// a .env file in the working directory.
package main

import (
	"fmt"
	"os"

	"github.com/dpup/grantrelay"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configFile string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:           "grantrelay",
	Short:         "Relays calendar events using stored offline OAuth grants",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "additional YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load (default .env if present)")
	rootCmd.AddCommand(serveCmd, configCmd)
}

// loadConfig applies env files and the --config file on top of the config
// loaded at startup.
func loadConfig(cmd *cobra.Command) error {
	files := envFiles
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			files = []string{".env"}
		}
	}
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return fmt.Errorf("loading env files: %w", err)
		}
		if err := grantrelay.LoadConfigEnv(); err != nil {
			return fmt.Errorf("loading env config: %w", err)
		}
	}
	if configFile != "" {
		return grantrelay.LoadConfigFile(configFile)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "grantrelay:", err)
		os.Exit(1)
	}
}
