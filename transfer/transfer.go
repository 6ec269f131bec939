// Package transfer describes peripheral commands as a command word followed
// by a packed argument record, and their responses as a packed record, and
// executes them over any i2cadapter.Channel.
package transfer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/oxplot/go-i2cadapter"
	"github.com/oxplot/go-i2cadapter/binfmt"
)

// ErrNoTx is returned when a transfer packs data but has no TxData.
var ErrNoTx = errors.New("transfer: no tx data")

// TxData describes the outbound part of a command: the command word, the
// layout of its arguments and the time the peripheral is busy after receiving
// it.
type TxData struct {
	Command uint16

	// CommandWidth is the size in bytes of the command word, 1 or 2. The
	// command word is the header of the frame; arguments start right after it.
	CommandWidth int

	// Format is the layout of the arguments (without the command word).
	Format binfmt.Format

	DeviceBusyDelay time.Duration
}

// NewTxData creates a TxData for command cmd. desc describes the full frame
// including the command word, e.g. ">H" for a bare command or ">HH" for a
// command with one 16 bit argument. The first field must be the command word,
// either H or B.
func NewTxData(cmd uint16, desc string, busy time.Duration) (*TxData, error) {
	lead := leadingCode(desc)
	var width int
	switch lead[len(lead)-1] {
	case 'H':
		width = 2
	case 'B':
		width = 1
		if cmd > 0xff {
			return nil, fmt.Errorf("%w: command 0x%x does not fit %q", binfmt.ErrValueRange, cmd, desc)
		}
	default:
		return nil, fmt.Errorf("%w: %q does not start with a command word", binfmt.ErrBadDescriptor, desc)
	}
	args, err := binfmt.Parse(orderPrefix(desc) + trimLeadingCode(desc))
	if err != nil {
		return nil, err
	}
	return &TxData{
		Command:         cmd,
		CommandWidth:    width,
		Format:          args,
		DeviceBusyDelay: busy,
	}, nil
}

// MustTxData is like NewTxData but panics on error.
func MustTxData(cmd uint16, desc string, busy time.Duration) *TxData {
	t, err := NewTxData(cmd, desc, busy)
	if err != nil {
		panic(err)
	}
	return t
}

// Pack returns the command word followed by the packed arguments.
func (t *TxData) Pack(args ...any) ([]byte, error) {
	p, err := t.Format.Pack(args...)
	if err != nil {
		return nil, err
	}
	b := make([]byte, t.PayloadOffset(), t.PayloadOffset()+len(p))
	if t.CommandWidth == 1 {
		b[0] = byte(t.Command)
	} else {
		binary.BigEndian.PutUint16(b, t.Command)
	}
	return append(b, p...), nil
}

// PayloadOffset returns the index where the arguments start in a packed
// frame.
func (t *TxData) PayloadOffset() int {
	if t.CommandWidth == 1 {
		return 1
	}
	return 2
}

// RxData describes the response of a command. It implements
// i2cadapter.Response.
type RxData struct {
	Format binfmt.Format

	// Scalar makes Unpack return the bare value instead of a one element
	// slice when the record has a single field.
	Scalar bool
}

// NewRxData creates an RxData for the given descriptor.
func NewRxData(desc string) (*RxData, error) {
	f, err := binfmt.Parse(desc)
	if err != nil {
		return nil, err
	}
	return &RxData{Format: f}, nil
}

// MustRxData is like NewRxData but panics on error.
func MustRxData(desc string) *RxData {
	r, err := NewRxData(desc)
	if err != nil {
		panic(err)
	}
	return r
}

// RxLength returns the payload length of the response.
func (r *RxData) RxLength() int {
	return r.Format.Size()
}

// Unpack decodes the payload into a []any, or a single value if Scalar is
// set and the record has one field.
func (r *RxData) Unpack(data []byte) (any, error) {
	v, err := r.Format.Unpack(data)
	if err != nil {
		return nil, err
	}
	if r.Scalar && len(v) == 1 {
		return v[0], nil
	}
	return v, nil
}

// Transfer describes one command.
type Transfer interface {
	// Pack returns the bytes to write, or nil for receive-only transfers.
	Pack() ([]byte, error)
	Tx() *TxData
	Rx() *RxData
}

// Spec is a Transfer with fixed arguments.
type Spec struct {
	TxData *TxData
	RxData *RxData
	Args   []any
}

// Pack implements Transfer.
func (s *Spec) Pack() ([]byte, error) {
	if s.TxData == nil {
		if len(s.Args) > 0 {
			return nil, ErrNoTx
		}
		return nil, nil
	}
	return s.TxData.Pack(s.Args...)
}

// Tx implements Transfer.
func (s *Spec) Tx() *TxData { return s.TxData }

// Rx implements Transfer.
func (s *Spec) Rx() *RxData { return s.RxData }

// Execute packs t and runs it over ch. The result is empty if t has no
// response, or if IgnoreErrors is passed and an ignorable transport error
// occurred.
func Execute(ctx context.Context, ch i2cadapter.Channel, t Transfer, opts ...i2cadapter.Option) (i2cadapter.Result, error) {
	if ch == nil {
		return i2cadapter.EmptyResult, i2cadapter.ErrNoChannel
	}
	tx, err := t.Pack()
	if err != nil {
		return i2cadapter.EmptyResult, err
	}
	var (
		offset int
		busy   time.Duration
		resp   i2cadapter.Response
	)
	if td := t.Tx(); td != nil {
		offset = td.PayloadOffset()
		busy = td.DeviceBusyDelay
	}
	if rd := t.Rx(); rd != nil {
		resp = rd
	}
	return ch.WriteRead(ctx, tx, offset, resp, busy, opts...)
}

func orderPrefix(desc string) string {
	if len(desc) > 0 {
		switch desc[0] {
		case '>', '!', '<', '=', '@':
			return desc[:1]
		}
	}
	return ""
}

// leadingCode returns the order prefix and first code of desc, or "?" if
// desc has no code.
func leadingCode(desc string) string {
	p := orderPrefix(desc)
	if len(desc) > len(p) {
		return desc[:len(p)+1]
	}
	return "?"
}

func trimLeadingCode(desc string) string {
	p := orderPrefix(desc)
	if len(desc) > len(p) {
		return desc[len(p)+1:]
	}
	return ""
}
