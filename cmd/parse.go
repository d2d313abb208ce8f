package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/rtspd/internal/sink"
	"firestige.xyz/rtspd/internal/stream"
	"firestige.xyz/rtspd/pkg/rtsp"
)

var (
	parseFile   string
	parseChunk  int
	parseOutput string
)

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Parse captured RTSP requests from a file or stdin",
	Long: `Feed captured request bytes through the parser and print every parsed request.

The input is delivered in --chunk sized pieces, the way a socket would deliver it.
Interleaved binary frames between requests are skipped.

Examples:
  rtspd parse -f setup.txt
  rtspd parse -f session.bin --chunk 1 -o yaml
  printf 'OPTIONS rtsp://h/x RTSP/1.0\r\nCSeq: 1\r\n\r\n' | rtspd parse`,
	Run: func(cmd *cobra.Command, args []string) {
		in := io.Reader(os.Stdin)
		if parseFile != "" && parseFile != "-" {
			f, err := os.Open(parseFile)
			if err != nil {
				exitWithError(fmt.Sprintf("failed to open %s", parseFile), err)
			}
			defer f.Close()
			in = f
		}
		limits := rtsp.Limits{}
		if configFile != "" {
			limits = loadConfig().Parser.Limits()
		}
		if err := runParse(cmd.Context(), in, os.Stdout, parseChunk, parseOutput, limits); err != nil {
			exitWithError("parse failed", err)
		}
	},
}

func init() {
	parseCmd.Flags().StringVarP(&parseFile, "file", "f", "-", "input file, - for stdin")
	parseCmd.Flags().IntVar(&parseChunk, "chunk", 0, "delivery size in bytes, 0 for the whole input at once")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "json", "output format: json|yaml")
}

func runParse(ctx context.Context, in io.Reader, out io.Writer, chunk int, format string, limits rtsp.Limits) error {
	if ctx == nil {
		ctx = context.Background()
	}
	console, err := sink.NewConsole(out, map[string]any{"format": format})
	if err != nil {
		return err
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if chunk <= 0 {
		chunk = len(data)
	}

	p := stream.New(stream.Options{ID: "parse", Remote: "-", Limits: limits, Sink: console})
	for off := 0; off < len(data); off += chunk {
		end := min(off+chunk, len(data))
		if err := p.Write(ctx, data[off:end]); err != nil {
			return fmt.Errorf("after %d request(s), at byte %d: %w", p.Parsed(), off, err)
		}
	}

	if p.Pending() {
		return fmt.Errorf("input ends inside a request (%d byte(s) unconsumed)", p.Buffer().Len())
	}
	if p.Parsed() == 0 {
		return fmt.Errorf("no complete request in input")
	}
	return nil
}
