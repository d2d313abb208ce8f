package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/rtspd/internal/capture"
	"firestige.xyz/rtspd/internal/config"
	"firestige.xyz/rtspd/internal/log"
	"firestige.xyz/rtspd/internal/sink"
)

var (
	replayFile  string
	replayPorts []int
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Parse RTSP client requests from a pcap file",
	Long: `Reassemble client to server TCP streams on the RTSP ports of a pcap file and
report every parsed request to the configured sink.

Examples:
  rtspd replay -r capture.pcap
  rtspd replay -r capture.pcap --port 554 --port 8554 -c rtspd.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := log.Init(cfg.Log); err != nil {
			exitWithError("failed to initialize logging", err)
		}
		if len(replayPorts) > 0 {
			cfg.Replay.Ports = replayPorts
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := runReplay(ctx, cfg, replayFile, os.Stdout, os.Stderr); err != nil {
			exitWithError("replay failed", err)
		}
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayFile, "read", "r", "", "pcap file to replay (required)")
	replayCmd.Flags().IntSliceVar(&replayPorts, "port", nil, "RTSP server port, repeatable (overrides replay.ports)")
	replayCmd.MarkFlagRequired("read")
}

// runReplay writes records to out through the configured sink and a summary to summary.
func runReplay(ctx context.Context, cfg *config.GlobalConfig, path string, out, summary io.Writer) error {
	s, err := sink.New(cfg.Sink, out)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}
	defer s.Close()

	r := capture.New(cfg.Replay, cfg.Parser.Limits(), cfg.Server.MaxBufferBytes, s)
	stats, err := r.ReplayFile(ctx, path)
	if err != nil {
		return err
	}

	fmt.Fprintf(summary, "%d packet(s), %d stream(s), %d request(s), %d failed, %d incomplete, %d gap(s)\n",
		stats.Packets, stats.Streams, stats.Requests, stats.Failed, stats.Incomplete, stats.Gaps)
	return nil
}
