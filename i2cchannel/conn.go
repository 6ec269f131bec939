package i2cchannel

import (
	"context"

	"github.com/oxplot/go-i2cadapter"
)

// Bus defines a minimum interface to I2C hardware with a single Tx method
// which allows a single channel implementation to work across many different
// µControllers and host platforms. periph.io i2c.Bus and TinyGo machine.I2C
// both satisfy it.
type Bus interface {

	// Tx performs a write and then a read transfer placing the result in r.
	//
	// Passing a nil value for w or r skips the transfer corresponding to write
	// or read, respectively.
	//
	//  bus.Tx(addr, nil, r)
	// Performs only a read transfer.
	//
	//  bus.Tx(addr, w, nil)
	// Performs only a write transfer.
	Tx(addr uint16, w, r []byte) error
}

// Conn executes commands on a bus. It holds no transaction state and may be
// shared by many channels bound to different addresses of the same bus, as
// long as transactions are serialized by the caller.
type Conn struct {
	bus Bus
}

// NewConn creates a connection on bus.
func NewConn(bus Bus) *Conn {
	return &Conn{bus: bus}
}

// Write implements i2cadapter.Transceiver.
func (c *Conn) Write(ctx context.Context, addr uint16, w []byte) error {
	return c.bus.Tx(addr, w, nil)
}

// Read implements i2cadapter.Transceiver.
func (c *Conn) Read(ctx context.Context, addr uint16, n int) ([]byte, error) {
	r := make([]byte, n)
	if err := c.bus.Tx(addr, nil, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Execute runs cmd against the peripheral at addr with
// i2cadapter.ExecuteCommand.
func (c *Conn) Execute(ctx context.Context, addr uint16, cmd i2cadapter.Command) (i2cadapter.Result, error) {
	return i2cadapter.ExecuteCommand(ctx, c, addr, cmd)
}
