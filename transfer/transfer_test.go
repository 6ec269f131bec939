package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/oxplot/go-i2cadapter"
	"github.com/oxplot/go-i2cadapter/binfmt"
	"github.com/oxplot/go-i2cadapter/channeltest"
)

var (
	startMeasurement      = &Spec{TxData: MustTxData(0x3603, ">H", 100*time.Millisecond)}
	readResults           = &Spec{RxData: MustRxData(">HHH")}
	readProductIdentifier = &Spec{TxData: MustTxData(0xE102, ">H", 0), RxData: MustRxData(">IHHH")}
)

func TestNewTxData(t *testing.T) {
	tests := []struct {
		cmd     uint16
		desc    string
		width   int
		args    int
		wantErr error
	}{
		{0x3603, ">H", 2, 0, nil},
		{0x3603, "H", 2, 0, nil},
		{0x2416, ">HH", 2, 1, nil},
		{0x10, ">B3H", 1, 3, nil},
		{0x100, ">B", 0, 0, binfmt.ErrValueRange},
		{0x3603, ">I", 0, 0, binfmt.ErrBadDescriptor},
		{0x3603, ">", 0, 0, binfmt.ErrBadDescriptor},
		{0x3603, ">HZ", 0, 0, binfmt.ErrBadDescriptor},
	}
	for _, tt := range tests {
		td, err := NewTxData(tt.cmd, tt.desc, 0)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("NewTxData(0x%x, %q) error = %v, want %v", tt.cmd, tt.desc, err, tt.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if td.CommandWidth != tt.width || td.Format.NumValues() != tt.args {
			t.Errorf("NewTxData(0x%x, %q): width %d args %d, want %d %d",
				tt.cmd, tt.desc, td.CommandWidth, td.Format.NumValues(), tt.width, tt.args)
		}
		if td.PayloadOffset() != tt.width {
			t.Errorf("PayloadOffset() = %d, want %d", td.PayloadOffset(), tt.width)
		}
	}
}

func TestTxDataPack(t *testing.T) {
	got, err := MustTxData(0x2416, ">HH", 0).Pack(uint16(0x1234))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x24, 0x16, 0x12, 0x34}, got); diff != "" {
		t.Errorf("Pack (-want +got):\n%s", diff)
	}

	got, err = MustTxData(0x10, "<BH", 0).Pack(0x0102)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x10, 0x02, 0x01}, got); diff != "" {
		t.Errorf("Pack little endian (-want +got):\n%s", diff)
	}

	if _, err := MustTxData(0x3603, ">H", 0).Pack(1); !errors.Is(err, binfmt.ErrArgCount) {
		t.Errorf("Pack with extra arg error = %v, want %v", err, binfmt.ErrArgCount)
	}
}

func TestRxData(t *testing.T) {
	rx := MustRxData(">IHHH")
	if n := rx.RxLength(); n != 10 {
		t.Errorf("RxLength() = %d, want 10", n)
	}
	v, err := rx.Unpack([]byte{0, 0, 1, 0, 0, 1, 0, 2, 0, 3})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{uint32(256), uint16(1), uint16(2), uint16(3)}, v); diff != "" {
		t.Errorf("Unpack (-want +got):\n%s", diff)
	}

	scalar := &RxData{Format: binfmt.MustParse(">I"), Scalar: true}
	v, err = scalar.Unpack([]byte{0, 0, 1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if v != uint32(256) {
		t.Errorf("scalar Unpack = %v, want 256", v)
	}

	if _, err := NewRxData(">Y"); !errors.Is(err, binfmt.ErrBadDescriptor) {
		t.Errorf("NewRxData error = %v, want %v", err, binfmt.ErrBadDescriptor)
	}
}

func TestSpecPack(t *testing.T) {
	b, err := readResults.Pack()
	if err != nil || b != nil {
		t.Errorf("receive-only Pack = %v, %v, want nil, nil", b, err)
	}
	if _, err := (&Spec{Args: []any{1}}).Pack(); err != ErrNoTx {
		t.Errorf("Pack without TxData error = %v, want %v", err, ErrNoTx)
	}
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	ch := channeltest.NewFake(time.Second)
	ch.Push(
		channeltest.Reply{},
		channeltest.Reply{Raw: []byte{0, 1, 0, 2, 0, 3}},
		channeltest.Reply{Raw: []byte{0, 0, 1, 0, 0, 1, 0, 2, 0, 3}},
	)

	res, err := Execute(ctx, ch, startMeasurement)
	if err != nil || !res.Empty() {
		t.Fatalf("Execute(start) = %v, %v", res, err)
	}
	res, err = Execute(ctx, ch, readResults)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{uint16(1), uint16(2), uint16(3)}, res.Value()); diff != "" {
		t.Errorf("Execute(read) (-want +got):\n%s", diff)
	}
	res, err = Execute(ctx, ch, readProductIdentifier, i2cadapter.WithSlaveAddress(0x59))
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Value().([]any)[0]; got != uint32(256) {
		t.Errorf("product = %v, want 256", got)
	}

	want := []channeltest.Call{
		{Tx: []byte{0x36, 0x03}, PayloadOffset: 2, Busy: 100 * time.Millisecond, Steps: []string{"write"}},
		{HasResponse: true, Steps: []string{"busy", "read"}},
		{Tx: []byte{0xE1, 0x02}, PayloadOffset: 2, HasResponse: true,
			Options: i2cadapter.Options{SlaveAddress: 0x59, HasSlaveAddress: true},
			Steps:   []string{"write", "busy", "read"}},
	}
	if diff := cmp.Diff(want, ch.Calls()); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
}

func TestExecuteNoChannel(t *testing.T) {
	if _, err := Execute(context.Background(), nil, startMeasurement); err != i2cadapter.ErrNoChannel {
		t.Errorf("Execute(nil) error = %v, want %v", err, i2cadapter.ErrNoChannel)
	}
}
