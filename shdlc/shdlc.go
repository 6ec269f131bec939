// Package shdlc implements the SHDLC framing used by serial sensor bridges and
// a device that performs one request/response exchange at a time over a
// serial link.
//
// A request (MOSI) frame is
//
//	0x7E | ADDR | CMD | LEN | DATA... | CHK | 0x7E
//
// and a response (MISO) frame is
//
//	0x7E | ADDR | CMD | STATE | LEN | DATA... | CHK | 0x7E
//
// where CHK is the inverted low byte of the sum of all bytes between the start
// and stop markers. The bytes 0x7E, 0x7D, 0x11 and 0x13 are escaped as 0x7D
// followed by the byte xor 0x20.
package shdlc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oxplot/go-i2cadapter"
)

const (
	frameMarker = 0x7E
	escape      = 0x7D
	escapeXor   = 0x20

	// MaxDataLen is the maximum number of data bytes in a frame.
	MaxDataLen = 255

	misoHeaderLen = 4 // addr, cmd, state, len
)

var (
	ErrDataTooLong = errors.New("shdlc: data too long")
	ErrFrame       = errors.New("shdlc: malformed frame")
	ErrTimeout     = errors.New("shdlc: response timeout")
	ErrMismatch    = errors.New("shdlc: response does not match request")
)

// StateError is returned when a device answers with a non-zero state byte.
type StateError struct {
	Cmd   byte
	State byte
}

func (e *StateError) Error() string {
	return fmt.Sprintf("shdlc: command 0x%02x failed with state 0x%02x (error code %d)", e.Cmd, e.State, e.State&0x7F)
}

// Frame is a decoded MISO frame.
type Frame struct {
	Addr  byte
	Cmd   byte
	State byte
	Data  []byte
}

func checksum(b []byte) byte {
	var s byte
	for _, c := range b {
		s += c
	}
	return ^s
}

func needsEscape(b byte) bool {
	return b == frameMarker || b == escape || b == 0x11 || b == 0x13
}

func stuff(dst []byte, src []byte) []byte {
	for _, b := range src {
		if needsEscape(b) {
			dst = append(dst, escape, b^escapeXor)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// EncodeMOSI returns the wire bytes of a request frame.
func EncodeMOSI(addr, cmd byte, data []byte) ([]byte, error) {
	if len(data) > MaxDataLen {
		return nil, ErrDataTooLong
	}
	content := make([]byte, 0, 4+len(data))
	content = append(content, addr, cmd, byte(len(data)))
	content = append(content, data...)
	content = append(content, checksum(content))
	out := make([]byte, 0, 2+2*len(content))
	out = append(out, frameMarker)
	out = stuff(out, content)
	return append(out, frameMarker), nil
}

// EncodeMISO returns the wire bytes of a response frame. It is mostly useful
// to emulate devices.
func EncodeMISO(f Frame) ([]byte, error) {
	if len(f.Data) > MaxDataLen {
		return nil, ErrDataTooLong
	}
	content := make([]byte, 0, misoHeaderLen+1+len(f.Data))
	content = append(content, f.Addr, f.Cmd, f.State, byte(len(f.Data)))
	content = append(content, f.Data...)
	content = append(content, checksum(content))
	out := make([]byte, 0, 2+2*len(content))
	out = append(out, frameMarker)
	out = stuff(out, content)
	return append(out, frameMarker), nil
}

// DecodeMISO decodes the unescaped content of a response frame, i.e. the
// bytes between the markers with escapes removed.
func DecodeMISO(content []byte) (Frame, error) {
	if len(content) < misoHeaderLen+1 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrame, len(content))
	}
	n := int(content[3])
	if len(content) != misoHeaderLen+n+1 {
		return Frame{}, fmt.Errorf("%w: length byte %d, frame %d bytes", ErrFrame, n, len(content))
	}
	if checksum(content[:len(content)-1]) != content[len(content)-1] {
		return Frame{}, i2cadapter.ErrChecksum
	}
	return Frame{
		Addr:  content[0],
		Cmd:   content[1],
		State: content[2],
		Data:  content[misoHeaderLen : misoHeaderLen+n],
	}, nil
}

// Device talks to one SHDLC slave over a serial link. Device is not safe for
// concurrent use.
type Device struct {
	rw   io.ReadWriter
	addr byte
	buf  [1]byte
}

// NewDevice creates a device with slave address addr on rw. Reads on rw
// should return periodically (e.g. a serial port with a read timeout) so that
// response timeouts can be honored.
func NewDevice(rw io.ReadWriter, addr byte) *Device {
	return &Device{rw: rw, addr: addr}
}

// Addr returns the slave address of the device.
func (d *Device) Addr() byte {
	return d.addr
}

// Transceive sends cmd with data and waits up to timeout for the response, or
// until ctx is done if timeout is zero. It returns the unescaped content of
// the response frame, which can be decoded with DecodeMISO. A response with a
// non-zero state is returned along with a *StateError.
func (d *Device) Transceive(ctx context.Context, cmd byte, data []byte, timeout time.Duration) ([]byte, error) {
	req, err := EncodeMOSI(d.addr, cmd, data)
	if err != nil {
		return nil, err
	}
	if _, err := d.rw.Write(req); err != nil {
		return nil, err
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	content, err := d.readFrame(ctx, deadline)
	if err != nil {
		return nil, err
	}
	f, err := DecodeMISO(content)
	if err != nil {
		return nil, err
	}
	if f.Addr != d.addr || f.Cmd != cmd {
		return nil, fmt.Errorf("%w: got addr 0x%02x cmd 0x%02x", ErrMismatch, f.Addr, f.Cmd)
	}
	if f.State != 0 {
		return content, &StateError{Cmd: cmd, State: f.State}
	}
	return content, nil
}

func (d *Device) readFrame(ctx context.Context, deadline time.Time) ([]byte, error) {
	var (
		content []byte
		started bool
		escaped bool
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		n, err := d.rw.Read(d.buf[:])
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		b := d.buf[0]
		switch {
		case b == frameMarker && !started:
			started = true
		case b == frameMarker && len(content) == 0:
			// Back to back markers, treat the second one as the start.
		case b == frameMarker:
			if escaped {
				return nil, fmt.Errorf("%w: dangling escape", ErrFrame)
			}
			return content, nil
		case !started:
		case b == escape:
			escaped = true
		case escaped:
			content = append(content, b^escapeXor)
			escaped = false
		default:
			content = append(content, b)
		}
	}
}
