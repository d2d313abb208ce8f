package rtsp

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every error that leaves a request unrecoverable.
// The connection that produced it should be closed.
var ErrMalformed = errors.New("rtsp: malformed request")

var (
	ErrUnknownMethod    = fmt.Errorf("%w: unknown method", ErrMalformed)
	ErrInvalidScheme    = fmt.Errorf("%w: url is not rtsp://", ErrMalformed)
	ErrInvalidURL       = fmt.Errorf("%w: invalid url", ErrMalformed)
	ErrInvalidToken     = fmt.Errorf("%w: control byte in token", ErrMalformed)
	ErrTokenTooLong     = fmt.Errorf("%w: token too long", ErrMalformed)
	ErrLineTooLong      = fmt.Errorf("%w: line too long", ErrMalformed)
	ErrInvalidTransport = fmt.Errorf("%w: unsupported transport", ErrMalformed)
)

// ErrMissingCSeq is returned when a header block has no usable CSeq and none
// was recorded before. The request stays usable: more input may still complete it.
var ErrMissingCSeq = errors.New("rtsp: missing CSeq")

// IsRecoverable reports whether err leaves the request in a state where
// feeding more input can still complete it. Parse does not consume the header
// block on such an error; it is parsed again, together with the new input, on
// the next call, so fields sent before the CSeq line are not lost.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrMissingCSeq)
}
