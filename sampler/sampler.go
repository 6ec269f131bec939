// Package sampler runs a measurement loop against a peripheral: a start
// transfer, then a read transfer on a fixed interval, then a stop transfer.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oxplot/go-i2cadapter"
	"github.com/oxplot/go-i2cadapter/transfer"
)

// Locked is a channel that serializes transactions of the underlying channel
// with a mutex, so that one channel can be shared by several goroutines.
type Locked struct {
	mu   sync.Mutex
	base i2cadapter.Channel
}

// Lock wraps ch in a Locked channel.
func Lock(ch i2cadapter.Channel) *Locked {
	return &Locked{base: ch}
}

// Timeout implements i2cadapter.Channel.
func (l *Locked) Timeout() time.Duration {
	return l.base.Timeout()
}

// StripProtocol implements i2cadapter.Channel.
func (l *Locked) StripProtocol(data []byte) ([]byte, error) {
	return l.base.StripProtocol(data)
}

// WriteRead implements i2cadapter.Channel. It holds the lock for the whole
// transaction.
func (l *Locked) WriteRead(ctx context.Context, tx []byte, payloadOffset int, resp i2cadapter.Response, busy time.Duration, opts ...i2cadapter.Option) (i2cadapter.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base.WriteRead(ctx, tx, payloadOffset, resp, busy, opts...)
}

// Sample is the outcome of one read transfer.
type Sample struct {
	Seq    int // starting at 1
	Time   time.Time
	Result i2cadapter.Result
	Err    error
}

// Handler is an interface that wraps the method HandleSample.
type Handler interface {
	// HandleSample is called from the goroutine running Run after every read
	// transfer, including failed ones. It should return quickly since it
	// delays the next read.
	HandleSample(Sample)
}

// HandlerFunc is an adapter to allow the use of ordinary functions as
// Handler.
type HandlerFunc func(Sample)

// HandleSample implements Handler interface.
func (f HandlerFunc) HandleSample(s Sample) {
	f(s)
}

// Config defines the measurement loop.
type Config struct {
	Start transfer.Transfer // optional
	Read  transfer.Transfer
	Stop  transfer.Transfer // optional

	// Warmup is waited after Start before the first read.
	Warmup time.Duration

	// Interval between the start of two reads.
	Interval time.Duration

	// Count is the number of reads after which Run stops. Zero means until
	// the context is done.
	Count int

	// Options are passed to every read transfer, e.g. IgnoreErrors.
	ReadOptions []i2cadapter.Option
}

// ErrNoRead is returned by Run when no read transfer is configured.
var ErrNoRead = errors.New("sampler: no read transfer")

// Sampler drives a Config over a channel.
type Sampler struct {
	ch  i2cadapter.Channel
	cfg Config

	callbacks struct {
		mu      sync.Mutex
		handler Handler
	}
}

// New creates a sampler. The channel is borrowed and is not serialized by the
// sampler; wrap it with Lock if it is shared.
func New(ch i2cadapter.Channel, cfg Config) *Sampler {
	return &Sampler{ch: ch, cfg: cfg}
}

// SetHandler sets the handler to send samples to. Pass nil to remove the
// existing handler.
func (s *Sampler) SetHandler(h Handler) {
	s.callbacks.mu.Lock()
	s.callbacks.handler = h
	s.callbacks.mu.Unlock()
}

func (s *Sampler) notify(smp Sample) {
	s.callbacks.mu.Lock()
	defer s.callbacks.mu.Unlock()
	if s.callbacks.handler != nil {
		s.callbacks.handler.HandleSample(smp)
	}
}

// Run executes the start transfer, reads until Count samples were taken or
// ctx is done, and always executes the stop transfer if start succeeded. Read
// failures are delivered as samples and do not end the loop. Only one call to
// Run must be in progress at any given time.
func (s *Sampler) Run(ctx context.Context) (err error) {
	if s.cfg.Read == nil {
		return ErrNoRead
	}
	if s.cfg.Start != nil {
		if _, err := transfer.Execute(ctx, s.ch, s.cfg.Start); err != nil {
			return err
		}
	}
	defer func() {
		if s.cfg.Stop == nil {
			return
		}
		// The run context may already be done; stopping must still happen.
		sctx, cancel := context.WithTimeout(context.Background(), s.ch.Timeout()+stopBusy(s.cfg.Stop))
		defer cancel()
		if _, serr := transfer.Execute(sctx, s.ch, s.cfg.Stop); serr != nil && err == nil {
			err = serr
		}
	}()

	if !sleep(ctx, s.cfg.Warmup) {
		return nil
	}

	next := time.Now()
	for seq := 1; s.cfg.Count == 0 || seq <= s.cfg.Count; seq++ {
		res, rerr := transfer.Execute(ctx, s.ch, s.cfg.Read, s.cfg.ReadOptions...)
		if ctx.Err() != nil {
			return nil
		}
		s.notify(Sample{Seq: seq, Time: time.Now(), Result: res, Err: rerr})

		next = next.Add(s.cfg.Interval)
		if !sleep(ctx, time.Until(next)) {
			return nil
		}
	}
	return nil
}

func stopBusy(t transfer.Transfer) time.Duration {
	if tx := t.Tx(); tx != nil {
		return tx.DeviceBusyDelay
	}
	return 0
}

// sleep waits for d and returns false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
