package domain

import (
	"errors"
	"fmt"
)

// ErrBusy rejects a start-call intent or an inbound offer while a call
// session is already non-idle.
var ErrBusy = errors.New("call already in progress")

// ErrNoRemoteDescription is returned by Negotiator.AddRemoteCandidate when
// the remote description has not been set yet. The caller must buffer the
// candidate and flush it, in arrival order, once the description is applied.
var ErrNoRemoteDescription = errors.New("remote description not set")

// MediaAcquisitionError reports that local capture failed (permission
// denied, no device, busy device). The pending call must be aborted.
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("local media acquisition failed: %v", e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

// ProtocolError reports a signaling envelope inconsistent with the current
// negotiation state, such as an answer with no matching offer or a duplicate
// remote description. The envelope is dropped; the process never crashes.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "signaling protocol error: " + e.Reason
}

// TransportError reports a failed publish or subscribe on the signaling
// relay. The transport never retries on its own; retry policy belongs to
// the call state machine.
type TransportError struct {
	Op      string
	Channel string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s on %q: %v", e.Op, e.Channel, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
