package main

import (
	"fmt"
	"os"

	"github.com/ternarybob/arbor"

	"github.com/awehrman/peas/internal/common"
)

// configPaths is a flag.Value allowing -config to repeat; later files
// override earlier ones.
type configPaths []string

func (c *configPaths) String() string { return fmt.Sprintf("%v", *c) }

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

// bootstrap loads configuration (defaults -> files -> env -> CLI flags),
// initializes the Arbor logger from the resolved config via
// common.SetupLogger, and prints the startup banner.
func bootstrap(configFiles []string, port int, host string) (*common.Config, arbor.ILogger) {
	if len(configFiles) == 0 {
		if _, err := os.Stat("peas.toml"); err == nil {
			configFiles = append(configFiles, "peas.toml")
		} else if _, err := os.Stat("deployments/local/peas.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/peas.toml")
		}
	}

	cfg, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tmp := arbor.NewLogger()
		tmp.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(cfg, port, host)

	logger := common.SetupLogger(cfg)
	common.PrintBanner(cfg, logger)

	return cfg, logger
}
