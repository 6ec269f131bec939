package i2cadapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestResult(t *testing.T) {
	if !EmptyResult.Empty() || EmptyResult.Value() != nil {
		t.Errorf("EmptyResult = %#v", EmptyResult)
	}
	if s := EmptyResult.String(); s != "<empty>" {
		t.Errorf("EmptyResult.String() = %q", s)
	}
	r := NewResult(nil)
	if r.Empty() {
		t.Error("NewResult(nil) is empty, want a present nil value")
	}
	if s := NewResult(uint32(7)).String(); s != "7" {
		t.Errorf("String() = %q, want 7", s)
	}
}

func TestResolveOptions(t *testing.T) {
	o := ResolveOptions()
	if o.IgnoreErrors || o.HasSlaveAddress {
		t.Errorf("zero options = %+v", o)
	}
	if got := o.Address(0x29); got != 0x29 {
		t.Errorf("Address default = 0x%x, want 0x29", got)
	}
	o = ResolveOptions(nil, WithSlaveAddress(0x00), IgnoreErrors())
	if !o.IgnoreErrors {
		t.Error("IgnoreErrors not set")
	}
	if got := o.Address(0x29); got != 0x00 {
		t.Errorf("Address = 0x%x, want 0x00", got)
	}
}

func TestSuppress(t *testing.T) {
	terr := &TransportError{Op: "read", Addr: 0x29, Err: errors.New("nack")}
	wrapped := fmt.Errorf("bridge: %w", terr)
	other := errors.New("other")
	canceled := fmt.Errorf("read: %w", context.Canceled)

	tests := []struct {
		name      string
		opts      Options
		err       error
		ignorable ErrorFilter
		wantErr   error
	}{
		{"nil error", Options{}, nil, nil, nil},
		{"transport error propagates", Options{}, terr, nil, terr},
		{"transport error suppressed", Options{IgnoreErrors: true}, terr, nil, nil},
		{"wrapped transport error suppressed", Options{IgnoreErrors: true}, wrapped, nil, nil},
		{"other error kept", Options{IgnoreErrors: true}, other, nil, other},
		{"custom filter", Options{IgnoreErrors: true}, other, func(err error) bool { return err == other }, nil},
		{"custom filter rejects", Options{IgnoreErrors: true}, terr, func(error) bool { return false }, terr},
		{"cancellation kept", Options{IgnoreErrors: true}, context.Canceled, nil, context.Canceled},
		{"wrapped cancellation kept", Options{IgnoreErrors: true}, canceled, func(error) bool { return true }, canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.opts.Suppress(tt.err, tt.ignorable)
			if err != tt.wantErr {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if !res.Empty() {
				t.Errorf("result = %v, want empty", res)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	inner := errors.New("nack")
	err := fmt.Errorf("op: %w", &TransportError{Op: "write", Addr: 0x29, Err: inner})
	if !IsTransportError(err) {
		t.Error("IsTransportError = false for wrapped error")
	}
	if !errors.Is(err, inner) {
		t.Error("TransportError does not unwrap to its cause")
	}
	if IsTransportError(inner) {
		t.Error("IsTransportError = true for plain error")
	}
	want := "i2cadapter: write 0x29: nack"
	if got := errors.Unwrap(err).Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestResponseLength(t *testing.T) {
	if n := ResponseLength(nil); n != 0 {
		t.Errorf("ResponseLength(nil) = %d", n)
	}
	f := ResponseFunc(func(b []byte) (any, error) { return len(b), nil })
	if n := ResponseLength(f); n != 0 {
		t.Errorf("ResponseLength(func) = %d", n)
	}
	v, err := f.Unpack([]byte{1, 2, 3})
	if err != nil || v != 3 {
		t.Errorf("ResponseFunc.Unpack = %v, %v", v, err)
	}
}

func TestExpectedLength(t *testing.T) {
	if n, err := ExpectedLength(nil); n != 0 || err != nil {
		t.Errorf("ExpectedLength(nil) = %d, %v", n, err)
	}
	f := ResponseFunc(func(b []byte) (any, error) { return nil, nil })
	if _, err := ExpectedLength(f); err != ErrUnknownLength {
		t.Errorf("ExpectedLength(func) error = %v, want %v", err, ErrUnknownLength)
	}
	if n, err := ExpectedLength(fixedLength(6)); n != 6 || err != nil {
		t.Errorf("ExpectedLength(6) = %d, %v", n, err)
	}
	if _, err := ExpectedLength(fixedLength(0)); err != ErrUnknownLength {
		t.Errorf("ExpectedLength(0) error = %v, want %v", err, ErrUnknownLength)
	}
}

type fixedLength int

func (n fixedLength) RxLength() int                {  return int(n) }
func (n fixedLength) Unpack(b []byte) (any, error) { return b, nil }
