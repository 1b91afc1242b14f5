package dg

import "fmt"

// InvalidParameterError reports a setter value outside its documented
// domain. It is returned before any command reaches the instrument, so
// the instrument's own rejection is never the only feedback.
type InvalidParameterError struct {
	Channel int
	Param   string
	Reason  string
}

func (e *InvalidParameterError) Error() string {
	if e.Channel > 0 {
		return fmt.Sprintf("channel %d: invalid %s: %s", e.Channel, e.Param, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// NotFoundError reports a waveform name the instrument does not know,
// as surfaced from its error queue.
type NotFoundError struct {
	Name string
	Code int
	Msg  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("waveform %q not found on instrument (%d,%q)", e.Name, e.Code, e.Msg)
}

// InstrumentError is a nonzero SCPI error-queue entry that does not map
// to a more specific kind.
type InstrumentError struct {
	Code int
	Msg  string
}

func (e *InstrumentError) Error() string {
	return fmt.Sprintf("instrument error %d: %s", e.Code, e.Msg)
}
