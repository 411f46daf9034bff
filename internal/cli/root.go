// Package cli implements the tinytorrentd command-line entrypoint,
// grounded on the teacher's seeder/internal/cli package.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tinytorrent/tinytorrentd/internal/logging"
)

var (
	cfgFile string
	logger  *zap.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tinytorrentd",
	Short: "tinytorrentd - a headless BitTorrent daemon",
	Long: `tinytorrentd is a headless BitTorrent daemon.

A single Engine Thread drives the peer-wire session, per-torrent
policy, and persistence while publishing a lock-free session snapshot
and accepting commands through a bounded queue, so any RPC frontend
attached to it never blocks the session on its own I/O.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(viper.GetString("log.level"), viper.GetString("log.format"))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./tinytorrentd.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points Viper at the config file and environment prefix;
// config.LoadFileConfig does the actual read once a command runs.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/tinytorrentd")
		viper.SetConfigName("tinytorrentd")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TINYTORRENT")
	viper.AutomaticEnv()
}
