// Package buffer implements the connection-side byte buffer the RTSP parser reads lines from.
// Socket reads are appended at the tail; the parser searches for CRLF terminators in the
// unconsumed region and retrieves (discards) bytes from the head.
package buffer

import (
	"bytes"
	"errors"
	"io"
)

const (
	defaultInitialSize = 2048
	minReadSize        = 512
)

var crlf = []byte("\r\n")

// ErrBufferFull is returned by ReadFrom when the buffer would grow past its limit.
var ErrBufferFull = errors.New("buffer: size limit exceeded")

// Buffer accumulates bytes from a connection.
// It is not safe for concurrent use; one connection goroutine owns it.
type Buffer struct {
	data   []byte
	reader int // index of the first unconsumed byte
	limit  int // max unconsumed bytes, 0 = unlimited
}

// New creates a buffer holding at most limit unconsumed bytes (0 = unlimited).
func New(limit int) *Buffer {
	return &Buffer{
		data:  make([]byte, 0, defaultInitialSize),
		limit: limit,
	}
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.reader
}

// Peek returns the unconsumed bytes. The slice is only valid until the next
// Write, ReadFrom, Retrieve or Compact call.
func (b *Buffer) Peek() []byte {
	return b.data[b.reader:]
}

// FindFirstCRLF returns the offset (relative to Peek) of the first CRLF, or -1.
func (b *Buffer) FindFirstCRLF() int {
	return bytes.Index(b.Peek(), crlf)
}

// FindLastCRLF returns the offset (relative to Peek) of the last CRLF, or -1.
func (b *Buffer) FindLastCRLF() int {
	return bytes.LastIndex(b.Peek(), crlf)
}

// Retrieve consumes n bytes from the head. n larger than Len consumes everything.
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n >= b.Len() {
		b.Reset()
		return
	}
	b.reader += n
}

// Reset discards all content but keeps the allocated storage.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.reader = 0
}

// Compact moves the unconsumed bytes to the front of the storage.
func (b *Buffer) Compact() {
	if b.reader == 0 {
		return
	}
	n := copy(b.data, b.data[b.reader:])
	b.data = b.data[:n]
	b.reader = 0
}

// Write appends p to the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.limit > 0 && b.Len()+len(p) > b.limit {
		return 0, ErrBufferFull
	}
	b.Compact()
	b.data = append(b.data, p...)
	return len(p), nil
}

// ReadFrom performs a single Read from r into the free tail of the buffer.
// Unlike bytes.Buffer it does not loop until EOF: a connection read loop
// wants to parse after every socket read.
func (b *Buffer) ReadFrom(r io.Reader) (int64, error) {
	if b.limit > 0 && b.Len() >= b.limit {
		return 0, ErrBufferFull
	}
	b.Compact()
	if cap(b.data)-len(b.data) < minReadSize {
		grown := make([]byte, len(b.data), 2*cap(b.data)+minReadSize)
		copy(grown, b.data)
		b.data = grown
	}
	free := b.data[len(b.data):cap(b.data)]
	if b.limit > 0 && len(free) > b.limit-b.Len() {
		free = free[:b.limit-b.Len()]
	}
	n, err := r.Read(free)
	if n > 0 {
		b.data = b.data[:len(b.data)+n]
	}
	return int64(n), err
}
