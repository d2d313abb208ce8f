package rtsp

// State is the position of a Request in its parse lifecycle. It only moves forward.
type State uint8

const (
	StateRequestLine State = iota // waiting for the request line
	StateHeaders                  // request line parsed, waiting for required headers
	StateComplete                 // all fields required by the method are present
)

func (s State) String() string {
	switch s {
	case StateRequestLine:
		return "request-line"
	case StateHeaders:
		return "headers"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Method is a recognised RTSP request method.
type Method uint8

const (
	MethodNone Method = iota
	MethodOptions
	MethodDescribe
	MethodSetup
	MethodPlay
	MethodTeardown
)

var methodNames = [...]string{
	MethodNone:     "",
	MethodOptions:  "OPTIONS",
	MethodDescribe: "DESCRIBE",
	MethodSetup:    "SETUP",
	MethodPlay:     "PLAY",
	MethodTeardown: "TEARDOWN",
}

func (m Method) String() string {
	if int(m) < len(methodNames) {
		return methodNames[m]
	}
	return ""
}

// ParseMethod matches token case-exactly against the supported methods.
// Anything else yields MethodNone.
func ParseMethod(token string) Method {
	switch token {
	case "OPTIONS":
		return MethodOptions
	case "DESCRIBE":
		return MethodDescribe
	case "SETUP":
		return MethodSetup
	case "PLAY":
		return MethodPlay
	case "TEARDOWN":
		return MethodTeardown
	default:
		return MethodNone
	}
}

// TransportMode is the RTP delivery mode negotiated by SETUP.
type TransportMode uint8

const (
	TransportUnset TransportMode = iota
	TransportTCPInterleaved
	TransportUDPUnicast
	TransportUDPMulticast
)

func (t TransportMode) String() string {
	switch t {
	case TransportTCPInterleaved:
		return "tcp-interleaved"
	case TransportUDPUnicast:
		return "udp-unicast"
	case TransportUDPMulticast:
		return "udp-multicast"
	default:
		return "unset"
	}
}

// ChannelID tells the two media sub-streams of a session apart.
type ChannelID uint8

const (
	Channel0 ChannelID = iota
	Channel1
)

func (c ChannelID) String() string {
	if c == Channel1 {
		return "channel1"
	}
	return "channel0"
}

// RequestLine holds the fields extracted from the first line of a request.
type RequestLine struct {
	URL     string
	Host    string
	Port    uint16
	Suffix  string
	Version string
	Method  string
}

// ChannelPair is the interleaved channel pair of a TCP transport.
type ChannelPair struct {
	RTP  uint8
	RTCP uint8
}

// PortPair is the client port pair of a UDP transport.
type PortPair struct {
	RTP  uint16
	RTCP uint16
}

// Transport is the outcome of a successful transport negotiation.
// Channels is set for TransportTCPInterleaved, Ports for the UDP modes.
type Transport struct {
	Mode     TransportMode
	Channels ChannelPair
	Ports    PortPair
}
