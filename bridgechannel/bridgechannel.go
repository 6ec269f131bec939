// Package bridgechannel implements an i2cadapter.Channel for peripherals
// attached to a sensor bridge which proxies I2C transfers over an SHDLC serial
// link.
//
// The bridge executes one I2C transfer per SHDLC command. The request data is
//
//	PORT | I2C ADDR | TX LEN | RX LEN | TIMEOUT MS (uint16, big endian) | TX...
//
// and the response data holds the bytes read from the peripheral, still in
// CRC protected word framing. The raw response handed to the request adapter
// is the whole response frame; StripProtocol removes both the SHDLC frame and
// the word CRCs.
package bridgechannel

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/oxplot/go-i2cadapter"
	"github.com/oxplot/go-i2cadapter/shdlc"
	"github.com/oxplot/go-i2cadapter/wordcrc"
)

// CmdTransceive is the SHDLC command of an I2C transfer through the bridge.
const CmdTransceive = 0x50

// DefaultTimeout is the transaction timeout of a channel created without
// WithTimeout.
const DefaultTimeout = 2 * time.Second

// Port selects the bridge port the peripheral is connected to.
type Port uint8

const (
	PortOne Port = 0
	PortTwo Port = 1
)

// Channel carries transfers to one peripheral behind a sensor bridge.
type Channel struct {
	dev       *shdlc.Device
	port      Port
	addr      uint16
	crc       *wordcrc.Calculator
	timeout   time.Duration
	ignorable i2cadapter.ErrorFilter
}

// Option configures a Channel.
type Option func(*Channel)

// WithTimeout sets the maximum duration of one transaction. The bridge needs
// a bound on every transfer, so a d of zero or less keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCRC sets the word CRC calculator. Defaults to wordcrc.Default.
func WithCRC(crc *wordcrc.Calculator) Option {
	return func(c *Channel) { c.crc = crc }
}

// WithErrorFilter sets which errors may be ignored with
// i2cadapter.IgnoreErrors. The default accepts transport errors, which
// include failure states reported by the bridge.
func WithErrorFilter(f i2cadapter.ErrorFilter) Option {
	return func(c *Channel) { c.ignorable = f }
}

// New creates a channel to the peripheral with I2C address addr on the given
// bridge port.
func New(dev *shdlc.Device, port Port, addr uint16, opts ...Option) *Channel {
	c := &Channel{
		dev:       dev,
		port:      port,
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

// Timeout implements i2cadapter.Channel.
func (c *Channel) Timeout() time.Duration {
	return c.timeout
}

// WriteRead implements i2cadapter.Channel. The write and the read are two
// bridge transfers with the busy delay waited on the host in between.
func (c *Channel) WriteRead(ctx context.Context, tx []byte, payloadOffset int, resp i2cadapter.Response, busy time.Duration, opts ...i2cadapter.Option) (i2cadapter.Result, error) {
	o := i2cadapter.ResolveOptions(opts...)
	addr := o.Address(c.addr)
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
	res, err := i2cadapter.ExecuteCommand(ctx, link{c}, addr, req)
	if err != nil {
		if guard.Failed() {
			return i2cadapter.EmptyResult, err
		}
		return o.Suppress(err, c.ignorable)
	}
	return res, nil
}

// link adapts the bridge transfers of a channel to i2cadapter.Transceiver.
type link struct{ c *Channel }

func (l link) Write(ctx context.Context, addr uint16, w []byte) error {
	_, err := l.c.transfer(ctx, addr, w, 0)
	return err
}

func (l link) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	return l.c.transfer(ctx, addr, nil, n)
}

func (c *Channel) transfer(ctx context.Context, addr uint16, tx []byte, rxLen int) ([]byte, error) {
	if len(tx) > shdlc.MaxDataLen-6 || rxLen > 0xff {
		return nil, shdlc.ErrDataTooLong
	}
	ms := c.timeout.Milliseconds()
	if ms > 0xffff {
		ms = 0xffff
	}
	data := make([]byte, 6, 6+len(tx))
	data[0] = byte(c.port)
	data[1] = byte(addr)
	data[2] = byte(len(tx))
	data[3] = byte(rxLen)
	binary.BigEndian.PutUint16(data[4:], uint16(ms))
	data = append(data, tx...)
	return c.dev.Transceive(ctx, CmdTransceive, data, c.timeout)
}

// StripProtocol implements i2cadapter.Channel. data is the content of a
// bridge response frame.
func (c *Channel) StripProtocol(data []byte) ([]byte, error) {
	f, err := shdlc.DecodeMISO(data)
	if err != nil {
		return nil, &i2cadapter.TransportError{Op: "strip", Addr: c.addr, Err: err}
	}
	p, err := c.crc.Decode(f.Data)
	if err != nil {
		return nil, &i2cadapter.TransportError{Op: "strip", Addr: c.addr, Err: err}
	}
	return p, nil
}
