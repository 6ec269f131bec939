package i2cadapter

import (
	"context"
	"errors"
	"time"
)

// Transceiver performs the raw transfers of a transaction. Concrete
// transports implement it and leave timing and error classification to
// ExecuteCommand.
type Transceiver interface {
	// Write sends w to the peripheral at addr.
	Write(ctx context.Context, addr uint16, w []byte) error

	// Read reads a raw response of n bytes from the peripheral at addr. The
	// returned bytes are what Command.InterpretResponse expects, which may
	// include more framing than n accounts for.
	Read(ctx context.Context, addr uint16, n int) ([]byte, error)
}

// ExecuteCommand runs cmd against the peripheral at addr over t: the tx data
// is written, then if a response is expected ExecuteCommand waits for
// ReadDelay, reads RxLength bytes and decodes them with InterpretResponse.
// Finally it waits for PostProcessingTime. The whole transaction is bounded by
// cmd.Timeout.
//
// Transfer failures and an expired deadline are returned as *TransportError.
// Cancellation of ctx and errors of InterpretResponse are returned
// unmodified.
func ExecuteCommand(ctx context.Context, t Transceiver, addr uint16, cmd Command) (Result, error) {
	if d := cmd.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return EmptyResult, classify("timeout", addr, err)
	}

	if tx := cmd.TxData(); len(tx) > 0 {
		if err := t.Write(ctx, addr, tx); err != nil {
			return EmptyResult, classify("write", addr, err)
		}
	}

	res := EmptyResult
	if n := cmd.RxLength(); n > 0 {
		if err := sleep(ctx, addr, cmd.ReadDelay()); err != nil {
			return EmptyResult, err
		}
		raw, err := t.Read(ctx, addr, n)
		if err != nil {
			return EmptyResult, classify("read", addr, err)
		}
		if res, err = cmd.InterpretResponse(raw); err != nil {
			return EmptyResult, err
		}
	}

	if err := sleep(ctx, addr, cmd.PostProcessingTime()); err != nil {
		return EmptyResult, err
	}
	return res, nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, addr uint16, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return classify("timeout", addr, err)
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return classify("timeout", addr, ctx.Err())
	}
}

// classify turns a failure of op into a transport error. Caller cancellation
// and errors that already are transport errors pass through; an expired
// deadline is a timeout whatever the op.
func classify(op string, addr uint16, err error) error {
	switch {
	case errors.Is(err, context.Canceled), IsTransportError(err):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &TransportError{Op: "timeout", Addr: addr, Err: err}
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}
