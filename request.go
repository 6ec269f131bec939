package i2cadapter

import "time"

// Command is what a connection executor needs to drive one transaction on a
// bus. Request implements Command.
type Command interface {
	TxData() []byte
	RxLength() int
	ReadDelay() time.Duration
	Timeout() time.Duration
	PostProcessingTime() time.Duration
	InterpretResponse(data []byte) (Result, error)
}

// Request adapts a transfer description to a channel's transport. A Request
// describes exactly one transaction and is discarded afterwards. It borrows
// its channel and never manages the channel's lifecycle.
type Request struct {
	ch    Channel
	tx    []byte
	resp  Response
	busy  time.Duration
	rxLen int
}

// NewRequest creates a request bound to ch. tx may be nil for receive-only
// transfers and resp may be nil if no response is expected. rxLen is the
// number of raw bytes to read, 0 meaning no response or a length determined by
// resp. Negative busy and rxLen are treated as zero.
func NewRequest(ch Channel, tx []byte, resp Response, busy time.Duration, rxLen int) *Request {
	if busy < 0 {
		busy = 0
	}
	if rxLen < 0 {
		rxLen = 0
	}
	return &Request{
		ch:    ch,
		tx:    tx,
		resp:  resp,
		busy:  busy,
		rxLen: rxLen,
	}
}

// ReadDelay returns the device busy delay to wait between write and read.
func (r *Request) ReadDelay() time.Duration {
	return r.busy
}

// TxData returns the bytes to write, possibly nil.
func (r *Request) TxData() []byte {
	return r.tx
}

// RxLength returns the number of bytes to read.
func (r *Request) RxLength() int {
	return r.rxLen
}

// Timeout returns the timeout of the bound channel.
func (r *Request) Timeout() time.Duration {
	return r.ch.Timeout()
}

// PostProcessingTime returns how long the caller has to wait after the
// transaction. Without a response there is nothing that confirms the
// peripheral is done, so the full busy delay applies. With a response the
// decoded reply is the confirmation and no wait is needed.
func (r *Request) PostProcessingTime() time.Duration {
	if r.resp == nil {
		return r.busy
	}
	return 0
}

// InterpretResponse strips the channel framing from data and decodes the
// payload with the bound response. It returns the empty result if no response
// is bound. Errors from the channel or the response are returned unmodified.
func (r *Request) InterpretResponse(data []byte) (Result, error) {
	payload, err := r.ch.StripProtocol(data)
	if err != nil {
		return EmptyResult, err
	}
	if r.resp == nil {
		return EmptyResult, nil
	}
	v, err := r.resp.Unpack(payload)
	if err != nil {
		return EmptyResult, err
	}
	return NewResult(v), nil
}

// DecodeGuard wraps a Response and records whether Unpack failed, so that a
// transport can keep decoding errors out of the ignore-errors policy.
type DecodeGuard struct {
	resp   Response
	failed bool
}

// NewDecodeGuard returns a guard for resp. resp may be nil.
func NewDecodeGuard(resp Response) *DecodeGuard {
	return &DecodeGuard{resp: resp}
}

// Response returns the guard as a Response, or nil if no response is bound.
func (g *DecodeGuard) Response() Response {
	if g.resp == nil {
		return nil
	}
	return g
}

// Unpack implements Response.
func (g *DecodeGuard) Unpack(data []byte) (any, error) {
	v, err := g.resp.Unpack(data)
	if err != nil {
		g.failed = true
	}
	return v, err
}

// RxLength implements Lengther.
func (g *DecodeGuard) RxLength() int {
	return ResponseLength(g.resp)
}

// Failed returns true if Unpack returned an error.
func (g *DecodeGuard) Failed() bool {
	return g.failed
}
