// Package nativemsg implements the browser native messaging framing: each
// message is a JSON document preceded by its length as a 32-bit little
// endian integer.
package nativemsg

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	// MaxOutgoing is the largest message a browser accepts from a host.
	MaxOutgoing = 1 << 20
	// MaxIncoming bounds what Reader will allocate for one message.
	MaxIncoming = 64 << 20
)

// ErrTooLarge reports a message over the size limit.
var ErrTooLarge = errors.New("native message too large")

// Reader decodes framed messages.
type Reader struct {
	r io.Reader
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read decodes the next message into v. It returns io.EOF when the stream
// ends cleanly between messages.
func (r *Reader) Read(v interface{}) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r.r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("read length: %w", err)
		}
		return err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxIncoming {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return fmt.Errorf("read message: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Writer encodes framed messages. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes v as one message.
func (w *Writer) Write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if len(data) > MaxOutgoing {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	msg := make([]byte, 4, 4+len(data))
	binary.LittleEndian.PutUint32(msg, uint32(len(data)))
	msg = append(msg, data...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
