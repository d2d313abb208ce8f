package rtsp

import "strings"

const (
	schemePrefix = "rtsp://"
	// DefaultPort is used when the request URL carries no explicit port.
	DefaultPort = 554
)

// Limits bounds every token the parser copies out of the input.
type Limits struct {
	MaxLineLength    int
	MaxMethodLength  int
	MaxURLLength     int
	MaxVersionLength int
	MaxHostLength    int
	MaxSuffixLength  int
}

// DefaultLimits returns the limits used when a field of Limits is zero.
func DefaultLimits() Limits {
	return Limits{
		MaxLineLength:    4096,
		MaxMethodLength:  64,
		MaxURLLength:     512,
		MaxVersionLength: 64,
		MaxHostLength:    255,
		MaxSuffixLength:  256,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxLineLength <= 0 {
		l.MaxLineLength = d.MaxLineLength
	}
	if l.MaxMethodLength <= 0 {
		l.MaxMethodLength = d.MaxMethodLength
	}
	if l.MaxURLLength <= 0 {
		l.MaxURLLength = d.MaxURLLength
	}
	if l.MaxVersionLength <= 0 {
		l.MaxVersionLength = d.MaxVersionLength
	}
	if l.MaxHostLength <= 0 {
		l.MaxHostLength = d.MaxHostLength
	}
	if l.MaxSuffixLength <= 0 {
		l.MaxSuffixLength = d.MaxSuffixLength
	}
	return l
}

// splitTokens splits line on whitespace into at most max+1 tokens.
// Tokens are copied: nothing returned aliases line.
func splitTokens(line []byte, max int) []string {
	tokens := make([]string, 0, max)
	i := 0
	for i < len(line) && len(tokens) <= max {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		start := i
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		if i > start {
			tokens = append(tokens, string(line[start:i]))
		}
	}
	return tokens
}

func checkToken(tok string, max int) error {
	if len(tok) > max {
		return ErrTokenTooLong
	}
	for i := 0; i < len(tok); i++ {
		if tok[i] < 0x21 || tok[i] == 0x7f {
			return ErrInvalidToken
		}
	}
	return nil
}

// parseRequestLine parses "METHOD rtsp://host[:port]/suffix VERSION".
// A line that does not split into exactly three tokens is not an error: it
// yields (nil, MethodNone, nil) and the request stays in StateRequestLine.
func parseRequestLine(line []byte, lim Limits) (*RequestLine, Method, error) {
	tokens := splitTokens(line, 3)
	if len(tokens) != 3 {
		return nil, MethodNone, nil
	}
	methodText, url, version := tokens[0], tokens[1], tokens[2]

	if err := checkToken(methodText, lim.MaxMethodLength); err != nil {
		return nil, MethodNone, err
	}
	if err := checkToken(url, lim.MaxURLLength); err != nil {
		return nil, MethodNone, err
	}
	if err := checkToken(version, lim.MaxVersionLength); err != nil {
		return nil, MethodNone, err
	}

	method := ParseMethod(methodText)
	if method == MethodNone {
		return nil, MethodNone, ErrUnknownMethod
	}
	if !strings.HasPrefix(url, schemePrefix) {
		return nil, method, ErrInvalidScheme
	}

	host, port, suffix, err := splitURL(url[len(schemePrefix):])
	if err != nil {
		return nil, method, err
	}
	if len(host) > lim.MaxHostLength || len(suffix) > lim.MaxSuffixLength {
		return nil, method, ErrTokenTooLong
	}

	return &RequestLine{
		URL:     url,
		Host:    host,
		Port:    port,
		Suffix:  suffix,
		Version: version,
		Method:  methodText,
	}, method, nil
}

// splitURL matches rest against "host:port/suffix", then "host/suffix".
func splitURL(rest string) (host string, port uint16, suffix string, err error) {
	if colon := strings.IndexByte(rest, ':'); colon > 0 {
		if p, i, ok := scanUint(rest, colon+1, 16); ok && i < len(rest)-1 && rest[i] == '/' {
			return rest[:colon], uint16(p), rest[i+1:], nil
		}
	}
	if slash := strings.IndexByte(rest, '/'); slash > 0 && slash < len(rest)-1 {
		return rest[:slash], DefaultPort, rest[slash+1:], nil
	}
	return "", 0, "", ErrInvalidURL
}
