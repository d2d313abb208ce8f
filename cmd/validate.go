package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/rtspd/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting anything.

Examples:
  rtspd validate -c rtspd.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	metricsAddr := "disabled"
	if cfg.Metrics.Enabled {
		metricsAddr = cfg.Metrics.Listen + cfg.Metrics.Path
	}
	fmt.Fprintf(out, "VALID: listen %s, max %d connection(s), sink %s, metrics %s\n",
		cfg.Server.Listen, cfg.Server.MaxConnections, cfg.Sink.Type, metricsAddr)
	return nil
}
