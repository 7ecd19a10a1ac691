package main

import (
	"errors"
	"os"

	"github.com/MarcoPoloResearchLab/notenest/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "notenest",
		Short:         "NoteNest chapter notes with local-first cloud sync",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newServeCommand(),
		newNotesCommand(),
		newUsersCommand(),
		newBackupCommand(),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("store-path", defaults.GetString("local.store_path"), "Local notes database path")
	cmd.PersistentFlags().String("cache-dir", defaults.GetString("local.cache_dir"), "Local cache directory")
	cmd.PersistentFlags().String("remote-endpoint", defaults.GetString("remote.endpoint"), "Shared cloud document URL")
	cmd.PersistentFlags().String("backup-endpoint", defaults.GetString("remote.backup_endpoint"), "Backup document URL")
	cmd.PersistentFlags().Int("remote-timeout-seconds", defaults.GetInt("remote.timeout_seconds"), "Timeout for remote calls in seconds")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address of the document server")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path of the document server")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "local.store_path", "store-path")
	bindFlag(cmd, "local.cache_dir", "cache-dir")
	bindFlag(cmd, "remote.endpoint", "remote-endpoint")
	bindFlag(cmd, "remote.backup_endpoint", "backup-endpoint")
	bindFlag(cmd, "remote.timeout_seconds", "remote-timeout-seconds")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("notenest")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
