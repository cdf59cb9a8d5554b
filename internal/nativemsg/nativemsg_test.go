package nativemsg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWriteFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).Write(map[string]string{"cmd": "ping"}); err != nil {
		t.Fatal(err)
	}
	want := `{"cmd":"ping"}`
	got := buf.Bytes()
	if n := binary.LittleEndian.Uint32(got[:4]); int(n) != len(want) {
		t.Errorf("length prefix = %d, want %d", n, len(want))
	}
	if string(got[4:]) != want {
		t.Errorf("body = %q, want %q", got[4:], want)
	}
}

func TestReadSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, cmd := range []string{"ping", "list-accounts"} {
		if err := w.Write(map[string]string{"cmd": cmd}); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReader(&buf)
	var got []string
	for {
		var msg struct{ Cmd string }
		err := r.Read(&msg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, msg.Cmd)
	}
	if strings.Join(got, ",") != "ping,list-accounts" {
		t.Errorf("read %v", got)
	}
}

func TestReadErrors(t *testing.T) {
	header := func(n uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, n)
		return b
	}
	tests := map[string][]byte{
		"short header": {1, 0},
		"short body":   append(header(10), []byte(`{"a"`)...),
		"bad json":     append(header(3), []byte(`{"a`)...),
		"too large":    header(MaxIncoming + 1),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			var v interface{}
			err := NewReader(bytes.NewReader(in)).Read(&v)
			if err == nil || errors.Is(err, io.EOF) {
				t.Fatalf("err = %v, want a framing error", err)
			}
		})
	}
}

func TestWriteTooLarge(t *testing.T) {
	big := strings.Repeat("x", MaxOutgoing)
	err := NewWriter(io.Discard).Write(big)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}
