// Package capture replays RTSP client traffic from pcap files through the parser.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/gopacket/tcpassembly"

	"firestige.xyz/rtspd/internal/config"
	"firestige.xyz/rtspd/internal/log"
	"firestige.xyz/rtspd/internal/metrics"
	"firestige.xyz/rtspd/internal/sink"
	"firestige.xyz/rtspd/internal/stream"
	"firestige.xyz/rtspd/pkg/rtsp"
)

// Stats summarises one replay run.
type Stats struct {
	Packets    int `json:"packets" yaml:"packets"`
	Segments   int `json:"segments" yaml:"segments"` // TCP segments sent to an RTSP port
	Streams    int `json:"streams" yaml:"streams"`
	Requests   int `json:"requests" yaml:"requests"`
	Failed     int `json:"failed" yaml:"failed"`         // streams closed on a parse error
	Incomplete int `json:"incomplete" yaml:"incomplete"` // streams that ended mid-request
	Gaps       int `json:"gaps" yaml:"gaps"`             // missing bytes in reassembly
}

// Replayer reassembles client to server TCP streams on the RTSP ports and
// parses them like live connections.
type Replayer struct {
	ports    map[layers.TCPPort]struct{}
	limits   rtsp.Limits
	maxBytes int
	sink     sink.Sink

	stats   Stats
	streams []*rtspStream
}

func New(cfg config.ReplayConfig, limits rtsp.Limits, maxBytes int, s sink.Sink) *Replayer {
	if s == nil {
		s = sink.None{}
	}
	ports := make(map[layers.TCPPort]struct{}, len(cfg.Ports))
	for _, p := range cfg.Ports {
		ports[layers.TCPPort(p)] = struct{}{}
	}
	if len(ports) == 0 {
		ports[layers.TCPPort(rtsp.DefaultPort)] = struct{}{}
	}
	return &Replayer{ports: ports, limits: limits, maxBytes: maxBytes, sink: s}
}

// ReplayFile replays a pcap file.
func (r *Replayer) ReplayFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open pcap: %w", err)
	}
	defer f.Close()
	return r.Replay(ctx, f)
}

// Replay reads a pcap stream to its end, then flushes every open TCP stream.
func (r *Replayer) Replay(ctx context.Context, in io.Reader) (Stats, error) {
	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return Stats{}, fmt.Errorf("read pcap header: %w", err)
	}

	var (
		eth     layers.Ethernet
		sll     layers.LinuxSLL
		ip4     layers.IPv4
		ip6     layers.IPv6
		tcp     layers.TCP
		payload gopacket.Payload
	)
	parser := gopacket.NewDecodingLayerParser(reader.LinkType().LayerType(), &eth, &sll, &ip4, &ip6, &tcp, &payload)
	parser.IgnoreUnsupported = true
	decoded := make([]gopacket.LayerType, 0, 8)

	assembler := tcpassembly.NewAssembler(tcpassembly.NewStreamPool(&streamFactory{ctx: ctx, replayer: r}))

	logger := log.GetLogger().WithField("link_type", reader.LinkType().String())
	logger.Debug("pcap replay started")

	for {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}

		data, ci, err := reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.stats, fmt.Errorf("read packet %d: %w", r.stats.Packets+1, err)
		}
		r.stats.Packets++

		if err := parser.DecodeLayers(data, &decoded); err != nil {
			logger.WithError(err).Trace("skip undecodable packet")
			continue
		}

		var netFlow gopacket.Flow
		hasTCP := false
		for _, lt := range decoded {
			switch lt {
			case layers.LayerTypeIPv4:
				netFlow = ip4.NetworkFlow()
			case layers.LayerTypeIPv6:
				netFlow = ip6.NetworkFlow()
			case layers.LayerTypeTCP:
				hasTCP = true
			}
		}
		if !hasTCP {
			continue
		}
		if _, ok := r.ports[tcp.DstPort]; !ok {
			continue
		}
		r.stats.Segments++
		assembler.AssembleWithTimestamp(netFlow, &tcp, ci.Timestamp)
	}

	assembler.FlushAll()
	for _, s := range r.streams {
		s.finish()
	}

	logger.WithFields(map[string]interface{}{
		"packets":  r.stats.Packets,
		"streams":  r.stats.Streams,
		"requests": r.stats.Requests,
		"failed":   r.stats.Failed,
	}).Info("pcap replay finished")

	return r.stats, nil
}

type streamFactory struct {
	ctx      context.Context
	replayer *Replayer
}

func (f *streamFactory) New(netFlow, tcpFlow gopacket.Flow) tcpassembly.Stream {
	r := f.replayer
	r.stats.Streams++

	id := fmt.Sprintf("%s:%s->%s:%s", netFlow.Src(), tcpFlow.Src(), netFlow.Dst(), tcpFlow.Dst())
	s := &rtspStream{
		ctx:      f.ctx,
		replayer: r,
		logger:   log.GetLogger().WithField("flow", id),
	}
	s.proc = stream.New(stream.Options{
		ID:       id,
		Remote:   fmt.Sprintf("%s:%s", netFlow.Src(), tcpFlow.Src()),
		Source:   metrics.SourceReplay,
		Limits:   r.limits,
		MaxBytes: r.maxBytes,
		Sink:     r.sink,
		Now:      func() time.Time { return s.seen },
	})
	r.streams = append(r.streams, s)
	return s
}

// rtspStream receives reassembled bytes of one client to server direction.
// The assembler calls it synchronously from Replay.
type rtspStream struct {
	ctx      context.Context
	replayer *Replayer
	proc     *stream.Processor
	logger   log.Logger

	seen     time.Time
	failed   bool
	finished bool
}

func (s *rtspStream) Reassembled(reassemblies []tcpassembly.Reassembly) {
	for _, ra := range reassemblies {
		if s.failed {
			return
		}
		if ra.Skip > 0 {
			s.replayer.stats.Gaps++
			s.logger.WithField("skipped", ra.Skip).Warn("bytes missing from capture, stream abandoned")
			s.fail()
			return
		}
		if len(ra.Bytes) == 0 {
			continue
		}
		s.seen = ra.Seen

		before := s.proc.Parsed()
		err := s.proc.Write(s.ctx, ra.Bytes)
		s.replayer.stats.Requests += s.proc.Parsed() - before
		if err != nil {
			s.logger.WithError(err).Warn("stream closed on parse error")
			s.fail()
			return
		}
	}
}

func (s *rtspStream) ReassemblyComplete() {
	s.finish()
}

func (s *rtspStream) fail() {
	s.failed = true
	s.replayer.stats.Failed++
}

func (s *rtspStream) finish() {
	if s.finished {
		return
	}
	s.finished = true
	if !s.failed && s.proc.Pending() {
		s.replayer.stats.Incomplete++
		s.logger.WithField("buffered", s.proc.Buffer().Len()).Info("stream ended mid-request")
	}
}
