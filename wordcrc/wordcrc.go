// Package wordcrc implements the word framing used by Sensirion style I2C
// peripherals, where every 16 bit data word on the wire is followed by a CRC-8
// of that word.
package wordcrc

import (
	"errors"

	"github.com/sigurn/crc8"

	"github.com/oxplot/go-i2cadapter"
)

// Sensirion holds the CRC-8 parameters used by Sensirion peripherals:
// polynomial 0x31, init 0xFF, no reflection, no final xor.
var Sensirion = crc8.Params{
	Poly:   0x31,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xF7,
	Name:   "CRC-8/NRSC-5",
}

// WordSize is the number of data bytes covered by one CRC byte.
const WordSize = 2

var (
	// ErrOddLength is returned when data to frame is not made of whole words.
	ErrOddLength = errors.New("wordcrc: data is not a whole number of words")

	// ErrFrameLength is returned when a frame is not made of whole
	// word+crc groups.
	ErrFrameLength = errors.New("wordcrc: frame length is not a multiple of 3")

	// ErrOffset is returned when a header offset lies outside the data.
	ErrOffset = errors.New("wordcrc: payload offset out of range")
)

// Calculator computes the CRC of words and frames data with it.
type Calculator struct {
	table *crc8.Table
}

// New creates a calculator for the given CRC parameters.
func New(p crc8.Params) *Calculator {
	return &Calculator{table: crc8.MakeTable(p)}
}

// Default is a calculator with the Sensirion parameters.
var Default = New(Sensirion)

// Checksum returns the CRC of b.
func (c *Calculator) Checksum(b []byte) uint8 {
	return crc8.Checksum(b, c.table)
}

// Encode returns data with a CRC byte inserted after every word.
func (c *Calculator) Encode(data []byte) ([]byte, error) {
	if len(data)%WordSize != 0 {
		return nil, ErrOddLength
	}
	out := make([]byte, 0, WireLength(len(data)))
	for i := 0; i < len(data); i += WordSize {
		w := data[i : i+WordSize]
		out = append(out, w...)
		out = append(out, c.Checksum(w))
	}
	return out, nil
}

// EncodePayload keeps the first offset bytes of tx, the header, untouched
// and frames the rest with Encode. A nil tx yields nil.
func (c *Calculator) EncodePayload(tx []byte, offset int) ([]byte, error) {
	if tx == nil {
		return nil, nil
	}
	if offset < 0 || offset > len(tx) {
		return nil, ErrOffset
	}
	words, err := c.Encode(tx[offset:])
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, offset+len(words))
	b = append(b, tx[:offset]...)
	return append(b, words...), nil
}

// Decode verifies and removes the CRC bytes of frame. A mismatch is reported
// as i2cadapter.ErrChecksum.
func (c *Calculator) Decode(frame []byte) ([]byte, error) {
	if len(frame)%(WordSize+1) != 0 {
		return nil, ErrFrameLength
	}
	out := make([]byte, 0, PayloadLength(len(frame)))
	for i := 0; i < len(frame); i += WordSize + 1 {
		w := frame[i : i+WordSize]
		if c.Checksum(w) != frame[i+WordSize] {
			return nil, i2cadapter.ErrChecksum
		}
		out = append(out, w...)
	}
	return out, nil
}

// WireLength returns the framed length of n payload bytes. A trailing
// partial word is counted as a whole one.
func WireLength(n int) int {
	words := (n + WordSize - 1) / WordSize
	return words * (WordSize + 1)
}

// PayloadLength returns the payload length of a frame of n bytes.
func PayloadLength(n int) int {
	return n / (WordSize + 1) * WordSize
}
