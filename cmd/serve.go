package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/rtspd/internal/daemon"
)

var servePIDFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the RTSP listener in foreground",
	Long: `Run the RTSP listener in foreground.

The listener will:
  1. Load configuration and initialize logging
  2. Start the metrics server (if enabled)
  3. Accept RTSP connections and parse their requests
  4. Report every completed request to the configured sink
  5. Stop gracefully on SIGTERM/SIGINT, reload logging on SIGHUP

Examples:
  rtspd serve                      # listen on :554 with defaults
  rtspd serve -c /etc/rtspd.yml    # listen with a config file`,
	Run: func(cmd *cobra.Command, args []string) {
		d, err := daemon.New(configFile, servePIDFile, os.Stdout)
		if err != nil {
			exitWithError("failed to create daemon", err)
		}
		if err := d.Start(); err != nil {
			d.Stop()
			exitWithError("failed to start daemon", err)
		}
		if err := d.Run(); err != nil {
			exitWithError("daemon stopped", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePIDFile, "pidfile", "p", "",
		"PID file path (none when empty)")
}
