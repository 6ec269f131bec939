// Package i2cchannel implements an i2cadapter.Channel for a peripheral
// directly attached to an I2C bus master, using the CRC protected word framing
// of Sensirion peripherals.
package i2cchannel

import (
	"context"
	"time"

	"github.com/oxplot/go-i2cadapter"
	"github.com/oxplot/go-i2cadapter/wordcrc"
)

// DefaultTimeout is the transaction timeout of a channel created without
// WithTimeout.
const DefaultTimeout = time.Second

// Channel carries transfers to one peripheral on an I2C bus.
type Channel struct {
	conn      *Conn
	addr      uint16
	crc       *wordcrc.Calculator
	timeout   time.Duration
	ignorable i2cadapter.ErrorFilter
}

// Option configures a Channel.
type Option func(*Channel)

// WithTimeout sets the maximum duration of one transaction.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

// WithCRC sets the calculator used to frame words. Defaults to
// wordcrc.Default.
func WithCRC(crc *wordcrc.Calculator) Option {
	return func(c *Channel) { c.crc = crc }
}

// WithErrorFilter sets which transport errors may be ignored when a transfer
// is executed with i2cadapter.IgnoreErrors. Defaults to
// i2cadapter.IsTransportError.
func WithErrorFilter(f i2cadapter.ErrorFilter) Option {
	return func(c *Channel) { c.ignorable = f }
}

// New creates a channel to the peripheral at addr on bus. The bus is borrowed
// and must outlive the channel.
func New(bus Bus, addr uint16, opts ...Option) *Channel {
	return NewWithConn(NewConn(bus), addr, opts...)
}

// NewWithConn is like New but shares an existing connection.
func NewWithConn(conn *Conn, addr uint16, opts ...Option) *Channel {
	c := &Channel{
		conn:      conn,
		addr:      addr,
		crc:       wordcrc.Default,
		timeout:   DefaultTimeout,
		ignorable: i2cadapter.IsTransportError,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Address returns the slave address the channel is bound to.
func (c *Channel) Address() uint16 {
	return c.addr
}

// Timeout implements i2cadapter.Channel.
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// WriteRead implements i2cadapter.Channel. The bytes of tx past payloadOffset
// are framed with a CRC after every word. The response is read as whole
// word+CRC groups.
func (c *Channel) WriteRead(ctx context.Context, tx []byte, payloadOffset int, resp i2cadapter.Response, busy time.Duration, opts ...i2cadapter.Option) (i2cadapter.Result, error) {
	o := i2cadapter.ResolveOptions(opts...)
	n, err := i2cadapter.ExpectedLength(resp)
	if err != nil {
		return i2cadapter.EmptyResult, err
	}
	framed, err := c.crc.EncodePayload(tx, payloadOffset)
	if err != nil {
		return i2cadapter.EmptyResult, err
	}
	guard := i2cadapter.NewDecodeGuard(resp)
	rxLen := wordcrc.WireLength(n)
	req := i2cadapter.NewRequest(c, framed, guard.Response(), busy, rxLen)
	res, err := c.conn.Execute(ctx, o.Address(c.addr), req)
	if err != nil {
		if guard.Failed() {
			return i2cadapter.EmptyResult, err
		}
		return o.Suppress(err, c.ignorable)
	}
	return res, nil
}

// StripProtocol implements i2cadapter.Channel. It verifies and removes the CRC
// byte following every word.
func (c *Channel) StripProtocol(data []byte) ([]byte, error) {
	p, err := c.crc.Decode(data)
	if err != nil {
		return nil, &i2cadapter.TransportError{Op: "strip", Addr: c.addr, Err: err}
	}
	return p, nil
}

