package mcp2515

import "errors"

// Result classes. A nil error is OK. Callers match with errors.Is.
var (
	ErrFail      = errors.New("mcp2515: fail")
	ErrAllTxBusy = errors.New("mcp2515: all tx buffers busy")
	ErrFailInit  = errors.New("mcp2515: init failed") // reserved
	ErrFailTx    = errors.New("mcp2515: tx failed")
	ErrNoMsg     = errors.New("mcp2515: no message")
)

// Specific causes within a class.
var (
	ErrModeTimeout        error = &classErr{"mode change timeout", ErrFail}
	ErrUnsupportedBitrate error = &classErr{"unsupported oscillator/bitrate", ErrFail}
	ErrUnknownFilter      error = &classErr{"unknown filter or mask", ErrFail}
	ErrBadDLC             error = &classErr{"received dlc out of range", ErrFail}

	ErrPayloadTooLong error = &classErr{"dlc exceeds 8", ErrFailTx}
	ErrIDTooWide      error = &classErr{"id does not fit the frame format", ErrFailTx}
	ErrTxAborted      error = &classErr{"abort, arbitration loss or tx error", ErrFailTx}
)

type classErr struct {
	msg   string
	class error
}

func (e *classErr) Error() string        { return "mcp2515: " + e.msg }
func (e *classErr) Is(target error) bool { return target == e.class }
