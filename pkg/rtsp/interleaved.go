package rtsp

import "encoding/binary"

// InterleavedMagic starts a binary frame embedded in the RTSP connection:
// '$', a one-byte channel and a big-endian 16-bit payload length.
const InterleavedMagic = '$'

const interleavedHeaderLen = 4

// InterleavedFrameLen reports whether b starts with an interleaved frame and,
// if so, the frame's total length including its header. A frame whose header
// is not fully buffered yet has length 0.
func InterleavedFrameLen(b []byte) (n int, ok bool) {
	if len(b) == 0 || b[0] != InterleavedMagic {
		return 0, false
	}
	if len(b) < interleavedHeaderLen {
		return 0, true
	}
	return interleavedHeaderLen + int(binary.BigEndian.Uint16(b[2:4])), true
}
