package i2cadapter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/oxplot/go-i2cadapter"
	"github.com/oxplot/go-i2cadapter/channeltest"
)

func TestPostProcessingTimeWithoutResponse(t *testing.T) {
	ch := channeltest.NewFake(time.Second)
	for _, busy := range []time.Duration{0, time.Microsecond, 100 * time.Millisecond, time.Hour} {
		r := i2cadapter.NewRequest(ch, []byte{0x36, 0x03}, nil, busy, 0)
		if got := r.PostProcessingTime(); got != busy {
			t.Errorf("busy %v: PostProcessingTime() = %v, want %v", busy, got, busy)
		}
		if got := r.ReadDelay(); got != busy {
			t.Errorf("busy %v: ReadDelay() = %v, want %v", busy, got, busy)
		}
	}
}

func TestPostProcessingTimeWithResponse(t *testing.T) {
	ch := channeltest.NewFake(time.Second)
	for _, busy := range []time.Duration{0, time.Microsecond, 100 * time.Millisecond, time.Hour} {
		r := i2cadapter.NewRequest(ch, []byte{0xE1, 0x02}, channeltest.Uint32BE, busy, 4)
		if got := r.PostProcessingTime(); got != 0 {
			t.Errorf("busy %v: PostProcessingTime() = %v, want 0", busy, got)
		}
		if got := r.ReadDelay(); got != busy {
			t.Errorf("busy %v: ReadDelay() = %v, want %v", busy, got, busy)
		}
	}
}

func TestTimeoutDelegatesToChannel(t *testing.T) {
	for _, d := range []time.Duration{0, time.Nanosecond, time.Second, 1<<63 - 1} {
		r := i2cadapter.NewRequest(channeltest.NewFake(d), nil, nil, 0, 0)
		if got := r.Timeout(); got != d {
			t.Errorf("Timeout() = %v, want %v", got, d)
		}
	}
}

func TestAccessors(t *testing.T) {
	tx := []byte{0x36, 0x03}
	r := i2cadapter.NewRequest(channeltest.NewFake(time.Second), tx, nil, time.Millisecond, 6)
	if diff := cmp.Diff(tx, r.TxData()); diff != "" {
		t.Errorf("TxData() (-want +got):\n%s", diff)
	}
	if got := r.RxLength(); got != 6 {
		t.Errorf("RxLength() = %d, want 6", got)
	}

	r = i2cadapter.NewRequest(channeltest.NewFake(time.Second), nil, nil, -time.Second, -1)
	if r.TxData() != nil {
		t.Errorf("TxData() = %v, want nil", r.TxData())
	}
	if r.RxLength() != 0 || r.ReadDelay() != 0 {
		t.Errorf("negative values not clamped: rx %d delay %v", r.RxLength(), r.ReadDelay())
	}
}

func TestInterpretResponseIsPure(t *testing.T) {
	r := i2cadapter.NewRequest(channeltest.NewFake(time.Second), nil, channeltest.Uint32BE, 0, 4)
	data := []byte{0x12, 0x34, 0x56, 0x78}
	a, errA := r.InterpretResponse(data)
	b, errB := r.InterpretResponse(data)
	if errA != nil || errB != nil {
		t.Fatalf("InterpretResponse: %v, %v", errA, errB)
	}
	if a != b {
		t.Errorf("InterpretResponse not pure: %v != %v", a, b)
	}
	if diff := cmp.Diff([]byte{0x12, 0x34, 0x56, 0x78}, data); diff != "" {
		t.Errorf("input modified (-want +got):\n%s", diff)
	}
}

func TestInterpretResponseWithoutResponse(t *testing.T) {
	r := i2cadapter.NewRequest(channeltest.NewFake(time.Second), []byte{0x36, 0x03}, nil, 0, 0)
	for _, data := range [][]byte{nil, {}, {0x00}, {0xde, 0xad, 0xbe, 0xef}} {
		res, err := r.InterpretResponse(data)
		if err != nil {
			t.Errorf("InterpretResponse(%x): %v", data, err)
		}
		if !res.Empty() {
			t.Errorf("InterpretResponse(%x) = %v, want empty", data, res)
		}
	}
}

func TestInterpretResponseStripsFraming(t *testing.T) {
	ch := channeltest.NewFake(time.Second)
	ch.Strip = func(b []byte) ([]byte, error) { return b[1:], nil }
	r := i2cadapter.NewRequest(ch, nil, channeltest.Uint32BE, 0, 5)
	res, err := r.InterpretResponse([]byte{0xff, 0x00, 0x00, 0x00, 0x2a})
	if err != nil {
		t.Fatal(err)
	}
	if res.Value() != uint32(42) {
		t.Errorf("InterpretResponse = %v, want 42", res)
	}
}

func TestInterpretResponseErrorsUnmodified(t *testing.T) {
	errStrip := errors.New("bad framing")
	ch := channeltest.NewFake(time.Second)
	ch.Strip = func([]byte) ([]byte, error) { return nil, errStrip }
	r := i2cadapter.NewRequest(ch, nil, channeltest.Uint32BE, 0, 4)
	if _, err := r.InterpretResponse([]byte{0, 0, 0, 0}); err != errStrip {
		t.Errorf("strip error = %v, want %v", err, errStrip)
	}

	r = i2cadapter.NewRequest(channeltest.NewFake(time.Second), nil, channeltest.Uint32BE, 0, 4)
	if _, err := r.InterpretResponse([]byte{0}); err != channeltest.ErrShortPayload {
		t.Errorf("decode error = %v, want %v", err, channeltest.ErrShortPayload)
	}
}

func TestScenarioA(t *testing.T) {
	r := i2cadapter.NewRequest(channeltest.NewFake(time.Second), nil, nil, 100*time.Millisecond, 0)
	if got := r.PostProcessingTime(); got != 100*time.Millisecond {
		t.Errorf("PostProcessingTime() = %v, want 100ms", got)
	}
	if got := r.Timeout(); got != time.Second {
		t.Errorf("Timeout() = %v, want 1s", got)
	}
}

func TestScenarioB(t *testing.T) {
	r := i2cadapter.NewRequest(channeltest.NewFake(time.Second), nil, channeltest.Uint32BE, 0, 4)
	res, err := r.InterpretResponse([]byte{0x00, 0x00, 0x01, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if res.Empty() || res.Value() != uint32(256) {
		t.Errorf("InterpretResponse = %v, want 256", res)
	}
}

func TestScenarioC(t *testing.T) {
	ch := channeltest.NewFake(time.Second)
	ch.Push(channeltest.Reply{Err: &i2cadapter.TransportError{Op: "read", Addr: 0x29, Err: errors.New("nack")}})
	res, err := ch.WriteRead(context.Background(), []byte{0xE1, 0x02}, 2, channeltest.Uint32BE, 0, i2cadapter.IgnoreErrors())
	if err != nil {
		t.Fatalf("WriteRead with IgnoreErrors: %v", err)
	}
	if !res.Empty() {
		t.Errorf("WriteRead = %v, want empty", res)
	}
}

func TestScenarioD(t *testing.T) {
	terr := &i2cadapter.TransportError{Op: "read", Addr: 0x29, Err: errors.New("nack")}
	ch := channeltest.NewFake(time.Second)
	ch.Push(channeltest.Reply{Err: terr})
	_, err := ch.WriteRead(context.Background(), []byte{0xE1, 0x02}, 2, channeltest.Uint32BE, 0)
	if err != terr {
		t.Errorf("WriteRead error = %v, want %v", err, terr)
	}
}

func TestDecodeGuard(t *testing.T) {
	if g := i2cadapter.NewDecodeGuard(nil); g.Response() != nil {
		t.Errorf("Response() of nil guard = %v, want nil", g.Response())
	}
	g := i2cadapter.NewDecodeGuard(channeltest.Uint32BE)
	if got := i2cadapter.ResponseLength(g.Response()); got != 4 {
		t.Errorf("ResponseLength = %d, want 4", got)
	}
	if _, err := g.Unpack([]byte{0, 0, 0, 1}); err != nil || g.Failed() {
		t.Fatalf("Unpack ok: err %v failed %v", err, g.Failed())
	}
	if _, err := g.Unpack(nil); err == nil || !g.Failed() {
		t.Errorf("Unpack short: err %v failed %v", err, g.Failed())
	}
}
