package channeltest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/oxplot/go-i2cadapter"
)

// Harness builds channels under test for RunConformance. Every function
// returns a fresh channel scripted for exactly one transaction.
type Harness struct {
	// Timeout is the timeout the channels are configured with.
	Timeout time.Duration

	// Respond returns a channel that accepts tx and, if payload is not nil,
	// answers with payload as the response payload (after framing removal).
	// A nil tx means the transaction must not reach the bus at all. The
	// channel adds a "write" and a "read" event to tr, which may be nil, as
	// the corresponding transfers hit the bus.
	Respond func(t *testing.T, tx, payload []byte, tr *Trace) i2cadapter.Channel

	// Fail returns a channel whose next transaction fails in the transport.
	Fail func(t *testing.T, tx []byte) i2cadapter.Channel
}

// Event is one bus transfer seen by a Trace.
type Event struct {
	Op string
	At time.Time
}

// Trace records bus transfers with the time they happened. A nil *Trace
// discards them.
type Trace struct {
	mu     sync.Mutex
	events []Event
}

// Add records a transfer now.
func (tr *Trace) Add(op string) {
	if tr == nil {
		return
	}
	tr.mu.Lock()
	tr.events = append(tr.events, Event{Op: op, At: time.Now()})
	tr.mu.Unlock()
}

// Events returns the recorded transfers.
func (tr *Trace) Events() []Event {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]Event(nil), tr.events...)
}

// Ops returns the operations of the recorded transfers.
func (tr *Trace) Ops() []string {
	var ops []string
	for _, e := range tr.Events() {
		ops = append(ops, e.Op)
	}
	return ops
}

var (
	readTx  = []byte{0xE1, 0x02}
	writeTx = []byte{0x36, 0x03}

	errDecode = errors.New("channeltest: decode failure")
)

// RunConformance checks that channels built by h honor the channel contract.
func RunConformance(t *testing.T, h Harness) {
	ctx := context.Background()

	t.Run("Timeout", func(t *testing.T) {
		ch := h.Respond(t, writeTx, nil, nil)
		if got := ch.Timeout(); got != h.Timeout {
			t.Errorf("Timeout() = %v, want %v", got, h.Timeout)
		}
		if got := i2cadapter.NewRequest(ch, nil, nil, 0, 0).Timeout(); got != h.Timeout {
			t.Errorf("Request.Timeout() = %v, want %v", got, h.Timeout)
		}
		// Consume the scripted transaction.
		if _, err := ch.WriteRead(ctx, writeTx, len(writeTx), nil, 0); err != nil {
			t.Fatalf("WriteRead: %v", err)
		}
	})

	t.Run("NoResponse", func(t *testing.T) {
		ch := h.Respond(t, writeTx, nil, nil)
		res, err := ch.WriteRead(ctx, writeTx, len(writeTx), nil, time.Millisecond)
		if err != nil {
			t.Fatalf("WriteRead: %v", err)
		}
		if !res.Empty() {
			t.Errorf("WriteRead without response = %v, want empty", res)
		}
	})

	t.Run("Decode", func(t *testing.T) {
		ch := h.Respond(t, readTx, []byte{0x00, 0x00, 0x01, 0x00}, nil)
		res, err := ch.WriteRead(ctx, readTx, len(readTx), Uint32BE, time.Millisecond)
		if err != nil {
			t.Fatalf("WriteRead: %v", err)
		}
		if res.Empty() || res.Value() != uint32(256) {
			t.Errorf("WriteRead = %v, want 256", res)
		}
	})

	t.Run("TransportErrorPropagates", func(t *testing.T) {
		ch := h.Fail(t, readTx)
		_, err := ch.WriteRead(ctx, readTx, len(readTx), Uint32BE, 0)
		if err == nil {
			t.Fatal("WriteRead succeeded, want transport error")
		}
		if !i2cadapter.IsTransportError(err) {
			t.Errorf("WriteRead error %v is not a transport error", err)
		}
	})

	t.Run("TransportErrorIgnored", func(t *testing.T) {
		ch := h.Fail(t, readTx)
		res, err := ch.WriteRead(ctx, readTx, len(readTx), Uint32BE, 0, i2cadapter.IgnoreErrors())
		if err != nil {
			t.Fatalf("WriteRead with IgnoreErrors: %v", err)
		}
		if !res.Empty() {
			t.Errorf("WriteRead with IgnoreErrors = %v, want empty", res)
		}
	})

	t.Run("DecodeErrorNotIgnored", func(t *testing.T) {
		ch := h.Respond(t, readTx, []byte{0x00, 0x00, 0x01, 0x00}, nil)
		bad := FixedResponse{Len: 4, Decode: func([]byte) (any, error) { return nil, errDecode }}
		_, err := ch.WriteRead(ctx, readTx, len(readTx), bad, 0, i2cadapter.IgnoreErrors())
		if !errors.Is(err, errDecode) {
			t.Errorf("WriteRead error = %v, want %v", err, errDecode)
		}
	})

	t.Run("WriteBusyRead", func(t *testing.T) {
		const busy = 20 * time.Millisecond
		tr := &Trace{}
		ch := h.Respond(t, readTx, []byte{0x00, 0x00, 0x01, 0x00}, tr)
		res, err := ch.WriteRead(ctx, readTx, len(readTx), Uint32BE, busy)
		if err != nil {
			t.Fatalf("WriteRead: %v", err)
		}
		if res.Value() != uint32(256) {
			t.Errorf("WriteRead = %v, want 256", res)
		}
		ev := tr.Events()
		if diff := cmp.Diff([]string{"write", "read"}, tr.Ops()); diff != "" {
			t.Fatalf("transfers (-want +got):\n%s", diff)
		}
		if gap := ev[1].At.Sub(ev[0].At); gap < busy {
			t.Errorf("read %v after write, want at least %v", gap, busy)
		}
	})

	t.Run("WriteOnlyBusy", func(t *testing.T) {
		const busy = 20 * time.Millisecond
		tr := &Trace{}
		ch := h.Respond(t, writeTx, nil, tr)
		start := time.Now()
		if _, err := ch.WriteRead(ctx, writeTx, len(writeTx), nil, busy); err != nil {
			t.Fatalf("WriteRead: %v", err)
		}
		if d := time.Since(start); d < busy {
			t.Errorf("WriteRead returned after %v, want at least %v", d, busy)
		}
		if diff := cmp.Diff([]string{"write"}, tr.Ops()); diff != "" {
			t.Errorf("transfers (-want +got):\n%s", diff)
		}
	})

	t.Run("UnknownLength", func(t *testing.T) {
		tr := &Trace{}
		ch := h.Respond(t, nil, nil, tr)
		decoded := false
		resp := i2cadapter.ResponseFunc(func([]byte) (any, error) {
			decoded = true
			return nil, nil
		})
		res, err := ch.WriteRead(ctx, readTx, len(readTx), resp, 0, i2cadapter.IgnoreErrors())
		if !errors.Is(err, i2cadapter.ErrUnknownLength) {
			t.Errorf("WriteRead error = %v, want %v", err, i2cadapter.ErrUnknownLength)
		}
		if !res.Empty() || decoded {
			t.Errorf("WriteRead = %v, decoded %v, want empty without decoding", res, decoded)
		}
		if ops := tr.Ops(); len(ops) != 0 {
			t.Errorf("transfers = %v, want none", ops)
		}
	})

	t.Run("CancelNotSuppressed", func(t *testing.T) {
		ch := h.Respond(t, writeTx, nil, nil)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		time.AfterFunc(20*time.Millisecond, cancel)
		_, err := ch.WriteRead(ctx, writeTx, len(writeTx), nil, time.Second, i2cadapter.IgnoreErrors())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WriteRead error = %v, want %v", err, context.Canceled)
		}
		if i2cadapter.IsTransportError(err) {
			t.Errorf("WriteRead error %v is a transport error", err)
		}
	})
}
