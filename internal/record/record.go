// Package record writes sampler samples as a stream of self-delimited records,
// either JSON lines or a CBOR sequence.
package record

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	cbor "github.com/fxamacker/cbor/v2"

	"github.com/oxplot/go-i2cadapter/sampler"
)

// Record is the serialized form of a sample.
type Record struct {
	Seq    int       `json:"seq" cbor:"seq"`
	Time   time.Time `json:"time" cbor:"time"`
	Empty  bool      `json:"empty,omitempty" cbor:"empty,omitempty"`
	Values []any     `json:"values,omitempty" cbor:"values,omitempty"`
	Error  string    `json:"error,omitempty" cbor:"error,omitempty"`
}

// FromSample converts s. A decoded value which is not a slice becomes a one
// element Values.
func FromSample(s sampler.Sample) Record {
	r := Record{Seq: s.Seq, Time: s.Time, Empty: s.Result.Empty()}
	if s.Err != nil {
		r.Error = s.Err.Error()
	}
	switch v := s.Result.Value().(type) {
	case nil:
	case []any:
		r.Values = v
	default:
		r.Values = []any{v}
	}
	return r
}

type encoder interface {
	Encode(v any) error
}

// Writer encodes records to an io.Writer. It implements sampler.Handler and
// remembers the first encoding failure.
type Writer struct {
	enc encoder
	err error
}

// NewWriter creates a writer for format "json" or "cbor".
func NewWriter(w io.Writer, format string) (*Writer, error) {
	switch format {
	case "", "json":
		return &Writer{enc: json.NewEncoder(w)}, nil
	case "cbor":
		em, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return &Writer{enc: em.NewEncoder(w)}, nil
	}
	return nil, fmt.Errorf("record: unknown format %q", format)
}

// Write encodes r.
func (w *Writer) Write(r Record) error {
	if w.err != nil {
		return w.err
	}
	w.err = w.enc.Encode(r)
	return w.err
}

// HandleSample implements sampler.Handler.
func (w *Writer) HandleSample(s sampler.Sample) {
	_ = w.Write(FromSample(s))
}

// Err returns the first encoding failure, if any.
func (w *Writer) Err() error {
	return w.err
}
