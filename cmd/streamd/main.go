// streamd stores the data streams of study deployments.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"github.com/xtxerr/datastreams/internal/logging"
	"github.com/xtxerr/datastreams/internal/storage/config"
	"golang.org/x/term"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	app := &cli.App{
		Name:    "streamd",
		Usage:   "Data stream store for study deployments",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "config file path",
				EnvVars: []string{"STREAMD_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (overrides config)",
				EnvVars: []string{"STREAMD_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			shellCommand(),
			inspectCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "streamd: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the global flags. A missing
// file yields the defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = config.DefaultConfig()
	}

	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}
	initLogging(cfg.Log)
	return cfg, nil
}

// initLogging logs to stderr, leaving stdout to command output. The "auto"
// format is JSON unless stderr is a terminal.
func initLogging(cfg config.LogConfig) {
	json := cfg.Format == "json"
	if cfg.Format == "auto" {
		json = !term.IsTerminal(int(os.Stderr.Fd()))
	}
	logging.InitWithWriter(os.Stderr, logging.ParseLevel(cfg.Level), json)
}
