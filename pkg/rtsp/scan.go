package rtsp

import "strconv"

// maxDigits bounds every numeric field; longer digit runs are rejected instead of wrapped.
const maxDigits = 20

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}

func skipSpace(s string, i int) int {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i
}

// skipUntil advances past at least one byte that is not stop and returns the
// index of the first stop byte. ok is false if no byte was skipped or stop never occurs.
func skipUntil(s string, i int, stop byte) (int, bool) {
	start := i
	for i < len(s) && s[i] != stop {
		i++
	}
	if i == start || i == len(s) {
		return i, false
	}
	return i, true
}

// scanUint reads a decimal number of at most bitSize bits starting at s[i],
// after optional whitespace. It returns the value and the index after the last digit.
func scanUint(s string, i int, bitSize int) (uint64, int, bool) {
	i = skipSpace(s, i)
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start || i-start > maxDigits {
		return 0, i, false
	}
	v, err := strconv.ParseUint(s[start:i], 10, bitSize)
	if err != nil {
		return 0, i, false
	}
	return v, i, true
}

// scanColonNumber extracts the number of a "Name: 123" field. s[i] is the first
// byte of the field name.
func scanColonNumber(s string, i int, bitSize int) (uint64, bool) {
	i, ok := skipUntil(s, i, ':')
	if !ok {
		return 0, false
	}
	v, _, ok := scanUint(s, i+1, bitSize)
	return v, ok
}

// scanParamPair extracts the trailing pair of a three-segment parameter list
// "proto;mode;key=<a>-<b>" starting at s[i]. Every segment must be non-empty.
func scanParamPair(s string, i int, bitSize int) (a, b uint64, ok bool) {
	if i, ok = skipUntil(s, i, ';'); !ok {
		return 0, 0, false
	}
	if i, ok = skipUntil(s, i+1, ';'); !ok {
		return 0, 0, false
	}
	if i, ok = skipUntil(s, i+1, '='); !ok {
		return 0, 0, false
	}
	if a, i, ok = scanUint(s, i+1, bitSize); !ok {
		return 0, 0, false
	}
	if i >= len(s) || s[i] != '-' {
		return 0, 0, false
	}
	if b, _, ok = scanUint(s, i+1, bitSize); !ok {
		return 0, 0, false
	}
	return a, b, true
}
