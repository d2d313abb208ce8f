package rtsp

import "strings"

// headerFields accumulates the header values of one request.
// Once a value is recorded it is never overwritten.
type headerFields struct {
	cseq    uint32
	hasCSeq bool

	transport    Transport
	hasTransport bool
	channel      ChannelID

	session    uint64
	hasSession bool
}

// parseHeaders runs one header-stage attempt over text, the header lines buffered
// since the previous attempt. It returns the updated fields and whether the
// method's required fields are now all present.
func parseHeaders(method Method, url string, prev headerFields, text string) (headerFields, bool, error) {
	fields := prev

	if cseq, ok := parseCSeq(text); ok {
		if !fields.hasCSeq {
			fields.cseq, fields.hasCSeq = cseq, true
		}
	} else if !fields.hasCSeq {
		return prev, false, ErrMissingCSeq
	}

	switch method {
	case MethodOptions, MethodTeardown:
		return fields, true, nil

	case MethodDescribe:
		return fields, acceptsSDP(text), nil

	case MethodSetup:
		tr, found, err := negotiateTransport(text)
		if err != nil {
			return prev, false, err
		}
		if !found {
			return fields, false, nil
		}
		if !fields.hasTransport {
			fields.transport, fields.hasTransport = tr, true
			fields.channel = mediaChannel(url)
		}
		return fields, true, nil

	case MethodPlay:
		id, ok := parseSession(text)
		if !ok {
			return fields, false, nil
		}
		if !fields.hasSession {
			fields.session, fields.hasSession = id, true
		}
		return fields, true, nil
	}

	return fields, false, nil
}

func parseCSeq(text string) (uint32, bool) {
	pos := strings.Index(text, "CSeq")
	if pos < 0 {
		return 0, false
	}
	v, ok := scanColonNumber(text, pos, 32)
	return uint32(v), ok
}

// acceptsSDP reports whether text carries an Accept field and mentions sdp;
// SDP is the only description format served.
func acceptsSDP(text string) bool {
	return strings.Contains(text, "Accept") && strings.Contains(text, "sdp")
}

func parseSession(text string) (uint64, bool) {
	pos := strings.Index(text, "Session")
	if pos < 0 {
		return 0, false
	}
	return scanColonNumber(text, pos, 64)
}

// mediaChannel maps the request URL onto one of the two media sub-streams.
func mediaChannel(url string) ChannelID {
	if strings.Contains(url, "track1") {
		return Channel1
	}
	return Channel0
}
