// Package sink reports completed RTSP requests.
package sink

import (
	"context"
	"fmt"
	"io"
	"time"

	"firestige.xyz/rtspd/internal/config"
	"firestige.xyz/rtspd/pkg/rtsp"
)

// Sink receives one Record per completed request. Implementations are safe
// for concurrent use.
type Sink interface {
	Name() string
	Emit(ctx context.Context, rec Record) error
	Close() error
}

// Record is a serialisable snapshot of a completed request.
type Record struct {
	Conn      string    `json:"conn" yaml:"conn"`
	Remote    string    `json:"remote" yaml:"remote"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	Method  string `json:"method" yaml:"method"`
	URL     string `json:"url" yaml:"url"`
	Host    string `json:"host" yaml:"host"`
	Port    uint16 `json:"port" yaml:"port"`
	Suffix  string `json:"suffix" yaml:"suffix"`
	Version string `json:"version" yaml:"version"`
	CSeq    uint32 `json:"cseq" yaml:"cseq"`

	Transport *TransportRecord `json:"transport,omitempty" yaml:"transport,omitempty"`
	Channel   string           `json:"channel,omitempty" yaml:"channel,omitempty"`
	Session   uint64           `json:"session,omitempty" yaml:"session,omitempty"`
}

// TransportRecord is the negotiated transport of a SETUP request.
type TransportRecord struct {
	Mode        string `json:"mode" yaml:"mode"`
	RTPChannel  uint8  `json:"rtp_channel,omitempty" yaml:"rtp_channel,omitempty"`
	RTCPChannel uint8  `json:"rtcp_channel,omitempty" yaml:"rtcp_channel,omitempty"`
	RTPPort     uint16 `json:"rtp_port,omitempty" yaml:"rtp_port,omitempty"`
	RTCPPort    uint16 `json:"rtcp_port,omitempty" yaml:"rtcp_port,omitempty"`
}

// NewRecord snapshots req. Method specific fields are only filled for the
// methods that carry them.
func NewRecord(req *rtsp.Request, conn, remote string, ts time.Time) Record {
	rec := Record{
		Conn:      conn,
		Remote:    remote,
		Timestamp: ts,
		Method:    req.Method().String(),
		URL:       req.URL(),
		Host:      req.Host(),
		Port:      req.Port(),
		Suffix:    req.URLSuffix(),
		Version:   req.Version(),
		CSeq:      req.CSeq(),
	}

	switch req.Method() {
	case rtsp.MethodSetup:
		if tr, ok := req.Transport(); ok {
			rec.Transport = &TransportRecord{
				Mode:        tr.Mode.String(),
				RTPChannel:  tr.Channels.RTP,
				RTCPChannel: tr.Channels.RTCP,
				RTPPort:     tr.Ports.RTP,
				RTCPPort:    tr.Ports.RTCP,
			}
		}
		rec.Channel = req.Channel().String()
	case rtsp.MethodPlay:
		rec.Session = req.SessionID()
	}
	return rec
}

// New builds the sink selected by cfg. Console output goes to w.
func New(cfg config.SinkConfig, w io.Writer) (Sink, error) {
	switch cfg.Type {
	case "", ConsoleName:
		return NewConsole(w, cfg.Options)
	case KafkaName:
		return NewKafka(cfg.Options)
	case NoneName:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}

const NoneName = "none"

// None discards every record.
type None struct{}

func (None) Name() string                       { return NoneName }
func (None) Emit(context.Context, Record) error { return nil }
func (None) Close() error                       { return nil }
