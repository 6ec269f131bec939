// Package channeltest provides an in-memory i2cadapter.Channel and a
// conformance suite that every channel implementation is expected to pass.
package channeltest

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/oxplot/go-i2cadapter"
)

// Reply is the scripted outcome of one transaction on a Fake.
type Reply struct {
	Raw []byte // raw response, before StripProtocol
	Err error  // transport failure, returned instead of Raw
}

// Call records one WriteRead on a Fake.
type Call struct {
	Tx            []byte
	PayloadOffset int
	HasResponse   bool
	Busy          time.Duration
	Options       i2cadapter.Options

	// Steps lists the transfers in order: "write" for the tx data and
	// "busy", "read" for the busy wait followed by the response.
	Steps []string
}

// ErrNoReply is returned by a Fake that runs out of scripted replies.
var ErrNoReply = errors.New("channeltest: no scripted reply")

// Fake is a loopback channel answering each transaction with the next
// scripted Reply. Fake is safe for concurrent use, which makes it handy to
// test callers that serialize access.
type Fake struct {
	// Strip removes framing from raw responses. nil means identity.
	Strip func([]byte) ([]byte, error)

	// Ignorable selects the errors that IgnoreErrors suppresses. nil means
	// i2cadapter.IsTransportError.
	Ignorable i2cadapter.ErrorFilter

	// Trace, if set, receives the transfers of every transaction.
	Trace *Trace

	mu      sync.Mutex
	timeout time.Duration
	replies []Reply
	calls   []Call
}

// NewFake creates a fake channel with the given timeout.
func NewFake(timeout time.Duration) *Fake {
	return &Fake{timeout: timeout}
}

// Push appends replies to the script.
func (f *Fake) Push(r ...Reply) {
	f.mu.Lock()
	f.replies = append(f.replies, r...)
	f.mu.Unlock()
}

// Calls returns the transactions performed so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Pending returns the number of unused replies.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

// Timeout implements i2cadapter.Channel.
func (f *Fake) Timeout() time.Duration {
	return f.timeout
}

// StripProtocol implements i2cadapter.Channel.
func (f *Fake) StripProtocol(data []byte) ([]byte, error) {
	if f.Strip == nil {
		return data, nil
	}
	return f.Strip(data)
}

// WriteRead implements i2cadapter.Channel. The transaction is executed with
// i2cadapter.ExecuteCommand, so busy delays and the timeout are honored.
func (f *Fake) WriteRead(ctx context.Context, tx []byte, payloadOffset int, resp i2cadapter.Response, busy time.Duration, opts ...i2cadapter.Option) (i2cadapter.Result, error) {
	o := i2cadapter.ResolveOptions(opts...)
	n, err := i2cadapter.ExpectedLength(resp)
	if err != nil {
		return i2cadapter.EmptyResult, err
	}

	f.mu.Lock()
	var r Reply
	if len(f.replies) == 0 {
		r.Err = &i2cadapter.TransportError{Op: "write", Addr: o.SlaveAddress, Err: ErrNoReply}
	} else {
		r = f.replies[0]
		f.replies = f.replies[1:]
	}
	f.mu.Unlock()

	s := &script{reply: r, trace: f.Trace}
	guard := i2cadapter.NewDecodeGuard(resp)
	req := i2cadapter.NewRequest(f, tx, guard.Response(), busy, n)
	res, err := i2cadapter.ExecuteCommand(ctx, s, o.SlaveAddress, req)
	if err == nil && !s.used && r.Err != nil {
		err = r.Err
	}

	f.mu.Lock()
	f.calls = append(f.calls, Call{
		Tx:            append([]byte(nil), tx...),
		PayloadOffset: payloadOffset,
		HasResponse:   resp != nil,
		Busy:          busy,
		Options:       o,
		Steps:         s.steps,
	})
	f.mu.Unlock()

	if err != nil {
		if guard.Failed() {
			return i2cadapter.EmptyResult, err
		}
		return o.Suppress(err, f.Ignorable)
	}
	return res, nil
}

// script plays one Reply as the transfers of a transaction.
type script struct {
	reply Reply
	trace *Trace
	steps []string
	used  bool
}

func (s *script) Write(ctx context.Context, addr uint16, w []byte) error {
	s.used = true
	s.steps = append(s.steps, "write")
	s.trace.Add("write")
	return s.reply.Err
}

func (s *script) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	s.used = true
	s.steps = append(s.steps, "busy", "read")
	s.trace.Add("read")
	if s.reply.Err != nil {
		return nil, s.reply.Err
	}
	return s.reply.Raw, nil
}

// FixedResponse is a response with a known payload length.
type FixedResponse struct {
	Len    int
	Decode func([]byte) (any, error)
}

// RxLength implements i2cadapter.Lengther.
func (r FixedResponse) RxLength() int { return r.Len }

// Unpack implements i2cadapter.Response.
func (r FixedResponse) Unpack(data []byte) (any, error) { return r.Decode(data) }

// ErrShortPayload is returned by Uint32BE for payloads shorter than 4 bytes.
var ErrShortPayload = errors.New("channeltest: short payload")

// Uint32BE decodes 4 bytes as a big endian unsigned integer.
var Uint32BE = FixedResponse{
	Len: 4,
	Decode: func(b []byte) (any, error) {
		if len(b) < 4 {
			return nil, ErrShortPayload
		}
		return binary.BigEndian.Uint32(b), nil
	},
}
