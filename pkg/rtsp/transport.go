package rtsp

import "strings"

const (
	tcpProfile = "RTP/AVP/TCP"
	avpProfile = "RTP/AVP"
)

// negotiateTransport extracts the delivery mode and the channel or port pair from
// a header block containing a Transport field. The first matching profile wins:
//
//	RTP/AVP/TCP;unicast;interleaved=0-1     -> TransportTCPInterleaved, channels 0/1
//	RTP/AVP;unicast;client_port=8000-8001   -> TransportUDPUnicast, ports 8000/8001
//	RTP/AVP;multicast;port=5000-5001        -> TransportUDPMulticast, ports 5000/5001
//
// ok is false when text has no Transport field at all; err is set when the field is
// present but cannot be negotiated. Nothing is returned on failure.
func negotiateTransport(text string) (tr Transport, ok bool, err error) {
	if !strings.Contains(text, "Transport") {
		return Transport{}, false, nil
	}

	if pos := strings.Index(text, tcpProfile); pos >= 0 {
		rtp, rtcp, ok := scanParamPair(text, pos, 8)
		if !ok {
			return Transport{}, true, ErrInvalidTransport
		}
		return Transport{
			Mode:     TransportTCPInterleaved,
			Channels: ChannelPair{RTP: uint8(rtp), RTCP: uint8(rtcp)},
		}, true, nil
	}

	pos := strings.Index(text, avpProfile)
	if pos < 0 {
		return Transport{}, true, ErrInvalidTransport
	}

	var mode TransportMode
	switch {
	case strings.Contains(text[pos:], "unicast"):
		mode = TransportUDPUnicast
	case strings.Contains(text[pos:], "multicast"):
		mode = TransportUDPMulticast
	default:
		return Transport{}, true, ErrInvalidTransport
	}

	rtp, rtcp, ok := scanParamPair(text, pos, 16)
	if !ok {
		return Transport{}, true, ErrInvalidTransport
	}
	return Transport{
		Mode:  mode,
		Ports: PortPair{RTP: uint16(rtp), RTCP: uint16(rtcp)},
	}, true, nil
}
