// Package stream drives the RTSP parser over one byte stream, whether read
// from a live connection or reassembled from a capture.
package stream

import (
	"context"
	"errors"
	"time"

	"firestige.xyz/rtspd/internal/log"
	"firestige.xyz/rtspd/internal/metrics"
	"firestige.xyz/rtspd/internal/sink"
	"firestige.xyz/rtspd/pkg/buffer"
	"firestige.xyz/rtspd/pkg/rtsp"
)

// Options describe one stream.
type Options struct {
	ID       string // connection id, used as record key
	Remote   string
	Source   string // metrics.SourceServer or metrics.SourceReplay
	Limits   rtsp.Limits
	MaxBytes int // buffered byte cap, 0 = unlimited
	Sink     sink.Sink
	Now      func() time.Time
}

// Processor parses consecutive requests out of a stream's buffer and emits a
// record for each completed one. Interleaved binary frames between requests
// are skipped.
type Processor struct {
	opts   Options
	buf    *buffer.Buffer
	req    *rtsp.Request
	logger log.Logger

	skip     int // bytes of the current interleaved frame still to discard
	consumed int // bytes consumed by the request being assembled
	parsed   int
}

func New(opts Options) *Processor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sink == nil {
		opts.Sink = sink.None{}
	}
	return &Processor{
		opts: opts,
		buf:  buffer.New(opts.MaxBytes),
		req:  rtsp.NewRequest(opts.Limits),
		logger: log.GetLogger().WithFields(map[string]interface{}{
			"conn":   opts.ID,
			"remote": opts.Remote,
		}),
	}
}

// Buffer is the stream's input buffer. Callers append to it and then call Process.
func (p *Processor) Buffer() *buffer.Buffer { return p.buf }

// Parsed returns the number of requests completed so far.
func (p *Processor) Parsed() int { return p.parsed }

// Pending reports whether a request has been started but not completed, or
// request bytes are still buffered. A partial interleaved frame does not count.
func (p *Processor) Pending() bool {
	if p.req.State() != rtsp.StateRequestLine {
		return true
	}
	return p.buf.Len() > 0 && p.buf.Peek()[0] != rtsp.InterleavedMagic
}

// Write appends data and processes it.
func (p *Processor) Write(ctx context.Context, data []byte) error {
	if _, err := p.buf.Write(data); err != nil {
		metrics.ParseErrorsTotal.WithLabelValues(p.opts.Source, "buffer_full").Inc()
		return err
	}
	return p.Process(ctx)
}

// Process consumes as much buffered input as possible. A nil error means
// more input is needed. Errors wrapping rtsp.ErrMalformed are final for the stream.
func (p *Processor) Process(ctx context.Context) error {
	for {
		if p.req.State() == rtsp.StateRequestLine && !p.skipInterleaved() {
			return nil
		}

		before := p.buf.Len()
		err := p.req.Parse(p.buf)
		p.consumed += before - p.buf.Len()

		if err != nil {
			metrics.ParseErrorsTotal.WithLabelValues(p.opts.Source, Reason(err)).Inc()
			if rtsp.IsRecoverable(err) {
				p.logger.WithError(err).Debug("header block incomplete, waiting for more input")
				return nil
			}
			return err
		}
		if !p.req.Complete() {
			// a blank or unparsable line was dropped before any request line
			if p.req.State() == rtsp.StateRequestLine && p.buf.Len() > 0 && p.buf.Len() != before {
				continue
			}
			return nil
		}

		if err := p.emit(ctx); err != nil {
			return err
		}
		if p.buf.Len() == 0 {
			return nil
		}
	}
}

// skipInterleaved discards interleaved frames at the head of the buffer and
// reports whether parsing can go on.
func (p *Processor) skipInterleaved() bool {
	for {
		if p.skip > 0 {
			n := min(p.skip, p.buf.Len())
			p.buf.Retrieve(n)
			p.skip -= n
			metrics.InterleavedBytesSkipped.WithLabelValues(p.opts.Source).Add(float64(n))
			if p.skip > 0 {
				return false
			}
		}
		n, ok := rtsp.InterleavedFrameLen(p.buf.Peek())
		if !ok {
			return p.buf.Len() > 0
		}
		if n == 0 {
			return false
		}
		p.skip = n
	}
}

func (p *Processor) emit(ctx context.Context) error {
	req := p.req
	rec := sink.NewRecord(req, p.opts.ID, p.opts.Remote, p.opts.Now())

	metrics.RequestsParsedTotal.WithLabelValues(p.opts.Source, req.Method().String()).Inc()
	metrics.RequestBytes.Observe(float64(p.consumed))
	p.parsed++
	p.consumed = 0
	p.req = rtsp.NewRequest(p.opts.Limits)

	if p.logger.IsDebugEnabled() {
		p.logger.WithFields(map[string]interface{}{
			"method": rec.Method,
			"cseq":   rec.CSeq,
			"url":    rec.URL,
		}).Debug("request complete")
	}

	if err := p.opts.Sink.Emit(ctx, rec); err != nil {
		metrics.SinkErrorsTotal.WithLabelValues(p.opts.Sink.Name()).Inc()
		p.logger.WithError(err).Warn("sink emit failed")
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// Reason maps a parse error to a metrics label.
func Reason(err error) string {
	switch {
	case errors.Is(err, rtsp.ErrMissingCSeq):
		return "missing_cseq"
	case errors.Is(err, rtsp.ErrUnknownMethod):
		return "unknown_method"
	case errors.Is(err, rtsp.ErrInvalidScheme):
		return "invalid_scheme"
	case errors.Is(err, rtsp.ErrInvalidURL):
		return "invalid_url"
	case errors.Is(err, rtsp.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, rtsp.ErrTokenTooLong):
		return "token_too_long"
	case errors.Is(err, rtsp.ErrLineTooLong):
		return "line_too_long"
	case errors.Is(err, rtsp.ErrInvalidTransport):
		return "invalid_transport"
	case errors.Is(err, buffer.ErrBufferFull):
		return "buffer_full"
	default:
		return "other"
	}
}
