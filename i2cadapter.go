// Package i2cadapter decouples the encoding and decoding of peripheral
// command payloads from the transport that carries them over a point to point
// bus such as I2C.
//
// A Channel performs one write-then-read transaction and knows how to strip
// its own framing from a raw response. A Request packages the outbound bytes,
// expected response length and device busy delay of one transaction in the
// shape a connection executor needs, and turns the raw reply back into the
// caller's decoded value.
package i2cadapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel is a transport able to execute a write-then-read bus transaction
// and to remove its transport specific framing from a raw response. Callers
// program against Channel and never against a concrete transport.
//
// A Channel represents a physical transport. Implementations are not required
// to be safe for concurrent use: no two transactions may run against the same
// Channel at the same time without serialization by the caller.
type Channel interface {

	// WriteRead writes tx to the peripheral, waits busy for the peripheral to
	// finish processing and then reads and decodes its response using resp.
	//
	// tx may be nil for receive-only transfers. payloadOffset is the index in
	// tx where header framing ends and the payload begins, which allows the
	// transport to rewrite its own header in place. resp may be nil if no
	// response is expected, in which case the returned Result is empty. A
	// non-nil resp must report its payload length through Lengther, else
	// ErrUnknownLength is returned without touching the bus.
	//
	// Transport failures are returned as errors unless IgnoreErrors is passed
	// and the transport considers the failure ignorable, in which case an
	// empty Result and a nil error are returned. Errors from resp.Unpack and
	// cancellation of ctx are never suppressed.
	//
	// WriteRead blocks for up to Timeout.
	WriteRead(ctx context.Context, tx []byte, payloadOffset int, resp Response, busy time.Duration, opts ...Option) (Result, error)

	// StripProtocol removes the transport framing from a raw response and
	// returns the payload. An error is returned only for malformed framing.
	StripProtocol(data []byte) ([]byte, error)

	// Timeout returns the maximum time the transport waits for a complete
	// transaction.
	Timeout() time.Duration
}

// Response interprets the payload of a raw response into a decoded value.
type Response interface {
	Unpack(data []byte) (any, error)
}

// ResponseFunc is an adapter to allow the use of ordinary functions as
// Response.
type ResponseFunc func([]byte) (any, error)

// Unpack implements Response interface.
func (f ResponseFunc) Unpack(data []byte) (any, error) {
	return f(data)
}

// Lengther is implemented by responses which know the length of the payload
// they decode.
type Lengther interface {
	RxLength() int
}

// ResponseLength returns the payload length expected by resp, or 0 if resp is
// nil or does not implement Lengther.
func ResponseLength(resp Response) int {
	if l, ok := resp.(Lengther); ok && l != nil {
		return l.RxLength()
	}
	return 0
}

// ExpectedLength returns the payload length a transport has to read for
// resp. It is 0 for a nil resp. A response that does not report a positive
// length cannot be read from a bus and yields ErrUnknownLength.
func ExpectedLength(resp Response) (int, error) {
	if resp == nil {
		return 0, nil
	}
	n := ResponseLength(resp)
	if n <= 0 {
		return 0, ErrUnknownLength
	}
	return n, nil
}

// Result holds the decoded response of a transaction. The zero value is the
// empty result, returned when there is no response at all.
type Result struct {
	value any
	ok    bool
}

// EmptyResult is the result of a transaction with no response.
var EmptyResult Result

// NewResult returns a non-empty result holding v.
func NewResult(v any) Result {
	return Result{value: v, ok: true}
}

// Empty returns true if there is no response.
func (r Result) Empty() bool {
	return !r.ok
}

// Value returns the decoded response, or nil for the empty result.
func (r Result) Value() any {
	return r.value
}

func (r Result) String() string {
	if !r.ok {
		return "<empty>"
	}
	return fmt.Sprint(r.value)
}

// Options hold the per-transaction settings of WriteRead.
type Options struct {
	// SlaveAddress overrides the address bound to the channel when
	// HasSlaveAddress is set.
	SlaveAddress    uint16
	HasSlaveAddress bool

	// IgnoreErrors requests ignorable transport failures to be turned into an
	// empty result.
	IgnoreErrors bool
}

// Option configures a single WriteRead call.
type Option func(*Options)

// WithSlaveAddress addresses the transaction to addr instead of the address
// bound to the channel.
func WithSlaveAddress(addr uint16) Option {
	return func(o *Options) {
		o.SlaveAddress = addr
		o.HasSlaveAddress = true
	}
}

// IgnoreErrors makes WriteRead swallow ignorable transport failures and
// return an empty result. Some peripherals report errors on transfers that
// completed correctly; only the caller knows when that is safe.
func IgnoreErrors() Option {
	return func(o *Options) {
		o.IgnoreErrors = true
	}
}

// ResolveOptions applies opts to a zero Options.
func ResolveOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Address returns the slave address of the transaction, falling back to def.
func (o Options) Address(def uint16) uint16 {
	if o.HasSlaveAddress {
		return o.SlaveAddress
	}
	return def
}

// ErrorFilter reports whether a transport failure may be suppressed by
// IgnoreErrors. Each transport chooses its own filter.
type ErrorFilter func(error) bool

// Suppress applies the ignore-errors policy to err. It returns an empty
// result and nil when IgnoreErrors is set and ignorable reports err as
// ignorable, and an empty result with err unmodified otherwise. A nil
// ignorable defaults to IsTransportError. Cancellation by the caller is never
// suppressed.
func (o Options) Suppress(err error, ignorable ErrorFilter) (Result, error) {
	if err == nil {
		return EmptyResult, nil
	}
	if errors.Is(err, context.Canceled) {
		return EmptyResult, err
	}
	if ignorable == nil {
		ignorable = IsTransportError
	}
	if o.IgnoreErrors && ignorable(err) {
		return EmptyResult, nil
	}
	return EmptyResult, err
}

var (
	// ErrChecksum is returned when the checksum of a received frame or word
	// does not match its data.
	ErrChecksum = errors.New("i2cadapter: checksum mismatch")

	// ErrNoChannel is returned by transfer execution without a channel.
	ErrNoChannel = errors.New("i2cadapter: no channel")

	// ErrUnknownLength is returned by channels asked to read a response that
	// does not report its payload length through Lengther.
	ErrUnknownLength = errors.New("i2cadapter: response length unknown")
)

// TransportError is a failure of the bus transaction itself: timeout, NACK,
// framing or bus fault.
type TransportError struct {
	Op   string // "write", "read", "strip", ...
	Addr uint16
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("i2cadapter: %s 0x%02x: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
