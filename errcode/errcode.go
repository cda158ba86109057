package errcode

import (
	"errors"

	"canhal-go/drivers/mcp2515"
)

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK             Code = "ok"
	Busy           Code = "busy"
	Unsupported    Code = "unsupported"
	InvalidParams  Code = "invalid_params"
	InvalidPayload Code = "invalid_payload"
	InvalidTopic   Code = "invalid_topic"
	NotReady       Code = "not_ready"

	UnknownBus Code = "unknown_bus"
	BusInUse   Code = "bus_in_use"
	UnknownPin Code = "unknown_pin"
	PinInUse   Code = "pin_in_use"
	Timeout    Code = "timeout"

	TxBusy     Code = "tx_busy"
	TxFailed   Code = "tx_failed"
	NoMessage  Code = "no_message"
	InitFailed Code = "init_failed"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Wrap attaches op context and the code mapped from err. Returns nil for nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &E{C: MapDriverErr(err), Op: op, Msg: err.Error(), Err: err}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return MapDriverErr(err)
}

// MapDriverErr maps low-level driver errors to a Code. Specific causes are
// checked before their class.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, mcp2515.ErrAllTxBusy):
		return TxBusy
	case errors.Is(err, mcp2515.ErrFailTx):
		return TxFailed
	case errors.Is(err, mcp2515.ErrNoMsg):
		return NoMessage
	case errors.Is(err, mcp2515.ErrFailInit):
		return InitFailed
	case errors.Is(err, mcp2515.ErrModeTimeout):
		return Timeout
	case errors.Is(err, mcp2515.ErrUnsupportedBitrate):
		return Unsupported
	case errors.Is(err, mcp2515.ErrUnknownFilter):
		return InvalidParams
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
