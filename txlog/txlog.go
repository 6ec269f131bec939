// Package txlog provides a passthrough channel that logs every transaction.
// It's mostly used for debugging.
package txlog

import (
	"context"
	"encoding/hex"
	"time"

	"go.uber.org/zap"

	"github.com/oxplot/go-i2cadapter"
)

// Channel is a passthrough channel which logs each transaction of the
// underlying channel at debug level, and failures at warn level.
type Channel struct {
	base i2cadapter.Channel
	log  *zap.Logger
}

// New creates a logging channel on top of base. A nil logger logs nothing.
func New(base i2cadapter.Channel, log *zap.Logger) *Channel {
	if log == nil {
		log = zap.NewNop()
	}
	return &Channel{base: base, log: log}
}

// Timeout implements i2cadapter.Channel.
func (c *Channel) Timeout() time.Duration {
	return c.base.Timeout()
}

// StripProtocol implements i2cadapter.Channel.
func (c *Channel) StripProtocol(data []byte) ([]byte, error) {
	return c.base.StripProtocol(data)
}

// WriteRead implements i2cadapter.Channel. Results and errors of the
// underlying channel are returned unmodified.
func (c *Channel) WriteRead(ctx context.Context, tx []byte, payloadOffset int, resp i2cadapter.Response, busy time.Duration, opts ...i2cadapter.Option) (i2cadapter.Result, error) {
	o := i2cadapter.ResolveOptions(opts...)
	start := time.Now()
	res, err := c.base.WriteRead(ctx, tx, payloadOffset, resp, busy, opts...)

	fields := []zap.Field{
		zap.String("tx", hex.EncodeToString(tx)),
		zap.Int("payload_offset", payloadOffset),
		zap.Duration("busy", busy),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ignore_errors", o.IgnoreErrors),
	}
	if o.HasSlaveAddress {
		fields = append(fields, zap.Uint16("addr", o.SlaveAddress))
	}
	switch {
	case err != nil:
		c.log.Warn("transaction failed", append(fields, zap.Error(err))...)
	case resp != nil && res.Empty() && o.IgnoreErrors:
		c.log.Debug("transaction error suppressed", fields...)
	case res.Empty():
		c.log.Debug("transaction", fields...)
	default:
		c.log.Debug("transaction", append(fields, zap.Any("result", res.Value()))...)
	}
	return res, err
}
