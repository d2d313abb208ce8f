// Package rtsp implements an incremental RTSP request parser.
//
// A Request is fed from a LineReader every time the connection has read more
// bytes. Parse never blocks: when the buffered input is insufficient it returns
// nil and leaves the request in its current State, to be resumed on the next
// call. Only OPTIONS, DESCRIBE, SETUP, PLAY and TEARDOWN are recognised.
package rtsp

// LineReader is the byte buffer a Request consumes its input from.
// Offsets are relative to the start of Peek.
type LineReader interface {
	// FindFirstCRLF returns the offset of the first "\r\n", or -1.
	FindFirstCRLF() int
	// FindLastCRLF returns the offset of the last "\r\n", or -1.
	FindLastCRLF() int
	// Peek returns the unconsumed bytes.
	Peek() []byte
	// Retrieve consumes n bytes.
	Retrieve(n int)
}

// Request is one RTSP request being assembled from a connection's input.
// It is owned by a single goroutine and becomes read-only once complete.
type Request struct {
	limits Limits

	state  State
	method Method
	line   *RequestLine
	header headerFields
}

// NewRequest creates a request waiting for its request line.
// Zero fields of limits fall back to DefaultLimits.
func NewRequest(limits Limits) *Request {
	return &Request{
		limits: limits.withDefaults(),
		state:  StateRequestLine,
	}
}

// Parse advances the request with whatever r currently holds.
//
// A nil error with State() != StateComplete means more input is needed.
// Errors wrapping ErrMalformed are final; ErrMissingCSeq is recoverable
// (see IsRecoverable). Once complete, Parse returns nil without consuming input.
func (r *Request) Parse(in LineReader) error {
	for {
		switch r.state {
		case StateRequestLine:
			pos := in.FindFirstCRLF()
			if pos < 0 {
				if len(in.Peek()) > r.limits.MaxLineLength {
					return ErrLineTooLong
				}
				return nil
			}
			if pos > r.limits.MaxLineLength {
				in.Retrieve(pos + 2)
				return ErrLineTooLong
			}
			err := r.applyRequestLine(in.Peek()[:pos])
			in.Retrieve(pos + 2)
			if err != nil || r.state != StateHeaders {
				return err
			}

		case StateHeaders:
			pos := in.FindLastCRLF()
			if pos < 0 {
				return nil
			}
			err := r.applyHeaders(in.Peek()[:pos])
			if IsRecoverable(err) {
				// keep the block so it is parsed again once CSeq arrives
				return err
			}
			in.Retrieve(pos + 2)
			return err

		default:
			return nil
		}
	}
}

func (r *Request) applyRequestLine(line []byte) error {
	rl, method, err := parseRequestLine(line, r.limits)
	if err != nil || rl == nil {
		return err
	}
	r.line, r.method = rl, method
	r.state = StateHeaders
	return nil
}

func (r *Request) applyHeaders(text []byte) error {
	fields, complete, err := parseHeaders(r.method, r.line.URL, r.header, string(text))
	if err != nil {
		return err
	}
	r.header = fields
	if complete {
		r.state = StateComplete
	}
	return nil
}

// State returns the current parse state.
func (r *Request) State() State { return r.state }

// Complete reports whether every field required by the method has been seen.
func (r *Request) Complete() bool { return r.state == StateComplete }

// Method returns the request method, MethodNone before the request line is parsed.
func (r *Request) Method() Method { return r.method }

// RequestLine returns a copy of the request-line fields and false if the request
// line has not been parsed yet.
func (r *Request) RequestLine() (RequestLine, bool) {
	if r.line == nil {
		return RequestLine{}, false
	}
	return *r.line, true
}

// CSeq returns the sequence number, 0 if absent.
func (r *Request) CSeq() uint32 { return r.header.cseq }

// Host returns the host part of the URL, "" if absent.
func (r *Request) Host() string {
	if r.line == nil {
		return ""
	}
	return r.line.Host
}

// Port returns the URL port (554 when the URL had none), 0 if absent.
func (r *Request) Port() uint16 {
	if r.line == nil {
		return 0
	}
	return r.line.Port
}

// URL returns the full request URL, "" if absent.
func (r *Request) URL() string {
	if r.line == nil {
		return ""
	}
	return r.line.URL
}

// URLSuffix returns the path after the host (and port), "" if absent.
func (r *Request) URLSuffix() string {
	if r.line == nil {
		return ""
	}
	return r.line.Suffix
}

// Version returns the protocol version token, "" if absent.
func (r *Request) Version() string {
	if r.line == nil {
		return ""
	}
	return r.line.Version
}

// TransportMode returns the negotiated delivery mode.
func (r *Request) TransportMode() TransportMode { return r.header.transport.Mode }

// Transport returns the negotiated transport and whether SETUP negotiated one.
func (r *Request) Transport() (Transport, bool) {
	return r.header.transport, r.header.hasTransport
}

// RTPChannel returns the interleaved RTP channel, 0 unless TCP interleaved.
func (r *Request) RTPChannel() uint8 { return r.header.transport.Channels.RTP }

// RTCPChannel returns the interleaved RTCP channel, 0 unless TCP interleaved.
func (r *Request) RTCPChannel() uint8 { return r.header.transport.Channels.RTCP }

// RTPPort returns the client RTP port, 0 unless UDP.
func (r *Request) RTPPort() uint16 { return r.header.transport.Ports.RTP }

// RTCPPort returns the client RTCP port, 0 unless UDP.
func (r *Request) RTCPPort() uint16 { return r.header.transport.Ports.RTCP }

// Channel returns the media sub-stream a SETUP addressed.
func (r *Request) Channel() ChannelID { return r.header.channel }

// SessionID returns the numeric session id of a PLAY request, 0 if absent.
func (r *Request) SessionID() uint64 { return r.header.session }
