// Package cmd implements the command-line interface for the mirror.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/mirror/cmd/common"
	"github.com/jonesrussell/north-cloud/mirror/cmd/httpd"
	cmdmirror "github.com/jonesrussell/north-cloud/mirror/cmd/mirror"
	"github.com/jonesrussell/north-cloud/mirror/cmd/runs"
	infraconfig "github.com/jonesrussell/north-cloud/mirror/infrastructure/config"
	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/config"
)

const version = "1.0.0"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// commandDeps is populated before any subcommand runs.
	commandDeps common.CommandDeps

	rootCmd = &cobra.Command{
		Use:   "mirror",
		Short: "Offline web document mirroring",
		Long: `mirror fetches a web page and everything it needs, rewrites the
references to point at local copies, and writes a self-contained archive.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initDeps()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_PATH or ./config.yml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, console)")
	flags.String("fetch-engine", "", "fetch engine (http, colly)")

	common.MustBindFlag("logging.level", flags.Lookup("log-level"))
	common.MustBindFlag("logging.format", flags.Lookup("log-format"))
	common.MustBindFlag("fetch.engine", flags.Lookup("fetch-engine"))

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("mirror version %s\n", version)
		},
	})

	rootCmd.AddCommand(cmdmirror.Command(&commandDeps))
	rootCmd.AddCommand(runs.Command(&commandDeps))
	rootCmd.AddCommand(httpd.Command(&commandDeps, version))
}

// initDeps loads the configuration file, environment and flags, then builds
// the logger shared by every command.
func initDeps() error {
	path := cfgFile
	if path == "" {
		path = infraconfig.GetConfigPath(config.DefaultConfigPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.ApplyViper(viper.GetViper())
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(*cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	commandDeps = common.CommandDeps{Config: cfg, Logger: log}
	return commandDeps.Validate()
}
