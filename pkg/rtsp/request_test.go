package rtsp_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rtspd/pkg/buffer"
	"firestige.xyz/rtspd/pkg/rtsp"
)

// feed writes each delivery into one buffer and parses after every write,
// the way a connection read loop does.
func feed(t *testing.T, req *rtsp.Request, deliveries ...string) (*buffer.Buffer, error) {
	t.Helper()
	buf := buffer.New(0)
	var err error
	for _, d := range deliveries {
		_, werr := buf.Write([]byte(d))
		require.NoError(t, werr)
		if err = req.Parse(buf); err != nil {
			return buf, err
		}
	}
	return buf, err
}

func TestRequest_ZeroDefaults(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})

	assert.Equal(t, rtsp.StateRequestLine, req.State())
	assert.False(t, req.Complete())
	assert.Equal(t, rtsp.MethodNone, req.Method())
	assert.Equal(t, uint32(0), req.CSeq())
	assert.Equal(t, "", req.Host())
	assert.Equal(t, uint16(0), req.Port())
	assert.Equal(t, "", req.URL())
	assert.Equal(t, "", req.URLSuffix())
	assert.Equal(t, "", req.Version())
	assert.Equal(t, uint8(0), req.RTPChannel())
	assert.Equal(t, uint8(0), req.RTCPChannel())
	assert.Equal(t, uint16(0), req.RTPPort())
	assert.Equal(t, uint16(0), req.RTCPPort())
	assert.Equal(t, rtsp.TransportUnset, req.TransportMode())
	assert.Equal(t, rtsp.Channel0, req.Channel())
	assert.Equal(t, uint64(0), req.SessionID())

	_, ok := req.RequestLine()
	assert.False(t, ok)
	_, ok = req.Transport()
	assert.False(t, ok)
}

func TestRequest_Options(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf, err := feed(t, req, "OPTIONS rtsp://127.0.0.1:554/live RTSP/1.0\r\nCSeq: 1\r\n\r\n")

	require.NoError(t, err)
	assert.True(t, req.Complete())
	assert.Equal(t, rtsp.MethodOptions, req.Method())
	assert.Equal(t, uint32(1), req.CSeq())
	assert.Equal(t, "127.0.0.1", req.Host())
	assert.Equal(t, uint16(554), req.Port())
	assert.Equal(t, "rtsp://127.0.0.1:554/live", req.URL())
	assert.Equal(t, "live", req.URLSuffix())
	assert.Equal(t, "RTSP/1.0", req.Version())
	assert.Equal(t, 0, buf.Len())
}

func TestRequest_SplitDeliveries(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf := buffer.New(0)

	_, _ = buf.Write([]byte("OPTIONS rtsp://127.0.0.1:554/live RTSP/1.0\r\nCSe"))
	require.NoError(t, req.Parse(buf))
	assert.Equal(t, rtsp.StateHeaders, req.State())
	assert.Equal(t, "rtsp://127.0.0.1:554/live", req.URL())
	assert.Equal(t, "CSe", string(buf.Peek()))

	_, _ = buf.Write([]byte("q: 1\r\n\r\n"))
	require.NoError(t, req.Parse(buf))
	assert.True(t, req.Complete())
	assert.Equal(t, rtsp.MethodOptions, req.Method())
	assert.Equal(t, "rtsp://127.0.0.1:554/live", req.URL())
	assert.Equal(t, uint32(1), req.CSeq())
}

func TestRequest_ByteAtATime(t *testing.T) {
	msg := "SETUP rtsp://10.1.1.1/cam/track1 RTSP/1.0\r\n" +
		"CSeq: 3\r\n" +
		"Transport: RTP/AVP/TCP;unicast;interleaved=2-3\r\n\r\n"

	req := rtsp.NewRequest(rtsp.Limits{})
	buf := buffer.New(0)
	for i := 0; i < len(msg); i++ {
		_, _ = buf.Write([]byte{msg[i]})
		require.NoError(t, req.Parse(buf), "at byte %d", i)
	}

	// CSeq arrives alone in the first header attempt, Transport in a later one.
	assert.True(t, req.Complete())
	assert.Equal(t, uint32(3), req.CSeq())
	assert.Equal(t, rtsp.TransportTCPInterleaved, req.TransportMode())
	assert.Equal(t, uint8(2), req.RTPChannel())
	assert.Equal(t, uint8(3), req.RTCPChannel())
	assert.Equal(t, rtsp.Channel1, req.Channel())
}

func TestRequest_RequestLinePending(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf, err := feed(t, req, "DESCRIBE rtsp://h/x RT")

	require.NoError(t, err)
	assert.Equal(t, rtsp.StateRequestLine, req.State())
	assert.Equal(t, "DESCRIBE rtsp://h/x RT", string(buf.Peek()))
}

func TestRequest_ShortLineIsConsumedWithoutAdvancing(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf, err := feed(t, req, "OPTIONS rtsp://h/x\r\nCSeq: 1\r\n")

	require.NoError(t, err)
	assert.Equal(t, rtsp.StateRequestLine, req.State())
	assert.Equal(t, "CSeq: 1\r\n", string(buf.Peek()))
}

func TestRequest_MalformedRequestLine(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf, err := feed(t, req, "GET rtsp://h/x RTSP/1.0\r\nCSeq: 1\r\n\r\n")

	assert.ErrorIs(t, err, rtsp.ErrUnknownMethod)
	assert.False(t, rtsp.IsRecoverable(err))
	assert.Equal(t, rtsp.StateRequestLine, req.State())
	assert.Equal(t, rtsp.MethodNone, req.Method())
	// the offending line is consumed, nothing after it
	assert.Equal(t, "CSeq: 1\r\n\r\n", string(buf.Peek()))
}

func TestRequest_LineTooLong(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{MaxLineLength: 32})

	_, err := feed(t, req, strings.Repeat("A", 33))
	assert.ErrorIs(t, err, rtsp.ErrLineTooLong)

	req = rtsp.NewRequest(rtsp.Limits{MaxLineLength: 32})
	_, err = feed(t, req, strings.Repeat("A", 40)+"\r\n")
	assert.ErrorIs(t, err, rtsp.ErrLineTooLong)
	assert.ErrorIs(t, err, rtsp.ErrMalformed)
}

func TestRequest_MissingCSeq(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf := buffer.New(0)

	_, _ = buf.Write([]byte("DESCRIBE rtsp://h/x RTSP/1.0\r\nAccept: application/sdp\r\n"))
	err := req.Parse(buf)
	assert.ErrorIs(t, err, rtsp.ErrMissingCSeq)
	assert.True(t, rtsp.IsRecoverable(err))
	assert.NotErrorIs(t, err, rtsp.ErrMalformed)
	assert.Equal(t, rtsp.StateHeaders, req.State())
	// the header block is kept for the next call
	assert.Equal(t, "Accept: application/sdp\r\n", string(buf.Peek()))

	// the request stays usable
	_, _ = buf.Write([]byte("CSeq: 2\r\nAccept: application/sdp\r\n\r\n"))
	require.NoError(t, req.Parse(buf))
	assert.True(t, req.Complete())
	assert.Equal(t, uint32(2), req.CSeq())
}

func TestRequest_FieldsBeforeCSeq(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		method rtsp.Method
	}{
		{"describe accept", "DESCRIBE rtsp://h/x RTSP/1.0\r\nAccept: application/sdp\r\n", rtsp.MethodDescribe},
		{"setup transport", "SETUP rtsp://h/x RTSP/1.0\r\nTransport: RTP/AVP/TCP;unicast;interleaved=4-5\r\n", rtsp.MethodSetup},
		{"play session", "PLAY rtsp://h/x RTSP/1.0\r\nSession: 777\r\n", rtsp.MethodPlay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := rtsp.NewRequest(rtsp.Limits{})
			buf, err := feed(t, req, tt.first)
			require.ErrorIs(t, err, rtsp.ErrMissingCSeq)

			_, _ = buf.Write([]byte("CSeq: 11\r\n\r\n"))
			require.NoError(t, req.Parse(buf))
			assert.True(t, req.Complete())
			assert.Equal(t, tt.method, req.Method())
			assert.Equal(t, uint32(11), req.CSeq())
			assert.Equal(t, 0, buf.Len())
		})
	}
}

func TestRequest_CSeqRequiredForEveryMethod(t *testing.T) {
	requests := []string{
		"OPTIONS rtsp://h/x RTSP/1.0\r\nUser-Agent: t\r\n\r\n",
		"DESCRIBE rtsp://h/x RTSP/1.0\r\nAccept: application/sdp\r\n\r\n",
		"SETUP rtsp://h/x RTSP/1.0\r\nTransport: RTP/AVP;unicast;client_port=8000-8001\r\n\r\n",
		"PLAY rtsp://h/x RTSP/1.0\r\nSession: 12345\r\n\r\n",
		"TEARDOWN rtsp://h/x RTSP/1.0\r\nSession: 12345\r\n\r\n",
	}
	for _, msg := range requests {
		req := rtsp.NewRequest(rtsp.Limits{})
		_, err := feed(t, req, msg)
		assert.ErrorIs(t, err, rtsp.ErrMissingCSeq, msg)
		assert.False(t, req.Complete(), msg)
	}
}

func TestRequest_CSeqFirstValueWins(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	_, err := feed(t, req,
		"DESCRIBE rtsp://h/x RTSP/1.0\r\nCSeq: 5\r\n",
		"CSeq: 9\r\nAccept: application/sdp\r\n\r\n",
	)

	require.NoError(t, err)
	assert.True(t, req.Complete())
	assert.Equal(t, uint32(5), req.CSeq())
}

func TestRequest_Describe(t *testing.T) {
	tests := []struct {
		accept   string
		complete bool
	}{
		{"Accept: application/sdp", true},
		{"Accept: application/json", false},
	}

	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			req := rtsp.NewRequest(rtsp.Limits{})
			_, err := feed(t, req, "DESCRIBE rtsp://h/x RTSP/1.0\r\nCSeq: 2\r\n"+tt.accept+"\r\n\r\n")

			require.NoError(t, err)
			assert.Equal(t, tt.complete, req.Complete())
			assert.Equal(t, uint32(2), req.CSeq())
		})
	}
}

func TestRequest_SetupUDP(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	_, err := feed(t, req,
		"SETUP rtsp://192.168.1.10:8554/live/track0 RTSP/1.0\r\n"+
			"CSeq: 3\r\n"+
			"Transport: RTP/AVP;unicast;client_port=8000-8001\r\n\r\n")

	require.NoError(t, err)
	assert.True(t, req.Complete())
	assert.Equal(t, rtsp.TransportUDPUnicast, req.TransportMode())
	assert.Equal(t, uint16(8000), req.RTPPort())
	assert.Equal(t, uint16(8001), req.RTCPPort())
	assert.Equal(t, uint8(0), req.RTPChannel())
	assert.Equal(t, rtsp.Channel0, req.Channel())

	tr, ok := req.Transport()
	assert.True(t, ok)
	assert.Equal(t, rtsp.PortPair{RTP: 8000, RTCP: 8001}, tr.Ports)
}

func TestRequest_SetupChannelDerivation(t *testing.T) {
	tests := []struct {
		url      string
		expected rtsp.ChannelID
	}{
		{"rtsp://h/live/track1", rtsp.Channel1},
		{"rtsp://h/live/track0", rtsp.Channel0},
		{"rtsp://h/live", rtsp.Channel0},
		{"rtsp://h/track1/audio", rtsp.Channel1},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			req := rtsp.NewRequest(rtsp.Limits{})
			_, err := feed(t, req,
				"SETUP "+tt.url+" RTSP/1.0\r\nCSeq: 3\r\n"+
					"Transport: RTP/AVP/TCP;unicast;interleaved=0-1\r\n\r\n")

			require.NoError(t, err)
			assert.True(t, req.Complete())
			assert.Equal(t, tt.expected, req.Channel())
		})
	}
}

func TestRequest_SetupWaitsForTransport(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf, err := feed(t, req, "SETUP rtsp://h/x RTSP/1.0\r\nCSeq: 3\r\nUser-Agent: t\r\n")

	require.NoError(t, err)
	assert.Equal(t, rtsp.StateHeaders, req.State())
	assert.Equal(t, rtsp.TransportUnset, req.TransportMode())

	_, _ = buf.Write([]byte("Transport: RTP/AVP;multicast;port=5000-5001\r\n\r\n"))
	require.NoError(t, req.Parse(buf))
	assert.True(t, req.Complete())
	assert.Equal(t, rtsp.TransportUDPMulticast, req.TransportMode())
	assert.Equal(t, uint16(5000), req.RTPPort())
	assert.Equal(t, uint32(3), req.CSeq())
}

func TestRequest_SetupBadTransport(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	_, err := feed(t, req,
		"SETUP rtsp://h/x RTSP/1.0\r\nCSeq: 3\r\n"+
			"Transport: RTP/AVP;client_port=8000-8001\r\n\r\n")

	assert.ErrorIs(t, err, rtsp.ErrInvalidTransport)
	assert.False(t, req.Complete())
	assert.Equal(t, rtsp.TransportUnset, req.TransportMode())
	assert.Equal(t, uint16(0), req.RTPPort())
	assert.Equal(t, uint16(0), req.RTCPPort())
}

func TestRequest_Play(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	_, err := feed(t, req, "PLAY rtsp://h/x RTSP/1.0\r\nCSeq: 4\r\nSession: 66334873\r\nRange: npt=0.000-\r\n\r\n")

	require.NoError(t, err)
	assert.True(t, req.Complete())
	assert.Equal(t, uint64(66334873), req.SessionID())
}

func TestRequest_PlayNonNumericSessionPending(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	_, err := feed(t, req, "PLAY rtsp://h/x RTSP/1.0\r\nCSeq: 4\r\nSession: abcdef\r\n\r\n")

	require.NoError(t, err)
	assert.Equal(t, rtsp.StateHeaders, req.State())
	assert.Equal(t, uint64(0), req.SessionID())
}

func TestRequest_Teardown(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	_, err := feed(t, req, "TEARDOWN rtsp://h/x RTSP/1.0\r\nCSeq: 7\r\n\r\n")

	require.NoError(t, err)
	assert.True(t, req.Complete())
	assert.Equal(t, rtsp.MethodTeardown, req.Method())
}

func TestRequest_CompleteIsIdempotent(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf, err := feed(t, req, "OPTIONS rtsp://h/x RTSP/1.0\r\nCSeq: 1\r\n\r\n")
	require.NoError(t, err)
	require.True(t, req.Complete())

	_, _ = buf.Write([]byte("OPTIONS rtsp://h/y RTSP/1.0\r\nCSeq: 2\r\n\r\n"))
	require.NoError(t, req.Parse(buf))
	assert.Equal(t, "rtsp://h/x", req.URL())
	assert.Equal(t, uint32(1), req.CSeq())
	assert.Equal(t, 40, buf.Len())
}

func TestRequest_DoesNotAliasBuffer(t *testing.T) {
	req := rtsp.NewRequest(rtsp.Limits{})
	buf, err := feed(t, req, "OPTIONS rtsp://h/x RTSP/1.0\r\nCSeq: 1\r\n\r\n")
	require.NoError(t, err)

	_, _ = buf.Write([]byte(strings.Repeat("Z", 128)))
	buf.Compact()
	assert.Equal(t, "rtsp://h/x", req.URL())
	assert.Equal(t, "RTSP/1.0", req.Version())
}
