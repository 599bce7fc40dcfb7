package transfer

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrTransferActive is returned by SendFile when a transfer to the same
// peer is already in flight. Sequence numbers are scoped per peer, so a
// second concurrent transfer there would conflate acknowledgments.
var ErrTransferActive = errors.New("transfer: a transfer to this peer is already in flight")

// RetryCeilingError is the fatal outcome of one fragment exhausting its
// transmission attempts. The whole transfer aborts and FILE_END is never
// sent.
type RetryCeilingError struct {
	Seq      uint32
	Attempts int
}

func (e *RetryCeilingError) Error() string {
	return fmt.Sprintf("fragment %d unacknowledged after %d attempts", e.Seq, e.Attempts)
}

// TransportError wraps a failure of the frame transport itself. It is
// fatal and immediate; there is no point retrying on a dead channel.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport unavailable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Report summarizes a completed outbound transfer.
type Report struct {
	Peer        net.HardwareAddr
	Name        string
	Fragments   int
	Bytes       int
	Retransmits int
	Elapsed     time.Duration
}

// Completion summarizes a finished inbound transfer, surfaced to whatever
// layer reports progress to the user. Received != Expected is a warning,
// not a failure; FILE_END is best-effort and the byte count is the
// ground truth.
type Completion struct {
	Peer     net.HardwareAddr
	Name     string
	Received uint64
	Expected uint64
}
