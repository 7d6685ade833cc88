package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srediag/namedipc/internal/logger"
)

const (
	envPrefix      = "NAMEDIPC"
	configName     = ".namedipc"
	defaultTimeout = 10 * time.Second
)

// cli carries the state shared by every subcommand of one command tree.
type cli struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	c.v.SetDefault("log_level", "warn")
	c.v.SetDefault("timeout", defaultTimeout)
	c.v.SetDefault("listen", "")

	root := &cobra.Command{
		Use:   "namedipc",
		Short: "Named events and shared memory regions from the shell",
		Long: `namedipc manages named cross-process events and shared memory regions.

Events are binary and auto-reset: a signal releases one waiter and signals do
not accumulate. Regions are plain byte ranges shared by every process that maps
the same name. On Linux both live in /dev/shm (override with NAMEDIPC_SHM_DIR)
until removed; on Windows they disappear with their last handle.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(*cobra.Command, []string) error { return c.initConfig() },
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.namedipc.yaml)")
	root.PersistentFlags().String("log-level", "warn", "diagnostic log level (trace, debug, info, warn, error, none)")
	_ = c.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		c.eventCmd(),
		c.regionCmd(),
		c.awaitCmd(),
		c.holdCmd(),
		c.benchCmd(),
	)
	return root
}

func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(home)
		}
		c.v.SetConfigType("yaml")
		c.v.SetConfigName(configName)
	}
	c.v.SetEnvPrefix(envPrefix)
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if c.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	lv, err := logger.ParseLevel(c.v.GetString("log_level"))
	if err != nil {
		return err
	}
	logger.SetLevel(lv)
	return nil
}
