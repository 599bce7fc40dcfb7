// Package transfer implements the reliable fragment-delivery protocol on
// top of the unreliable frame transport: stop-and-wait with per-fragment
// checksums, positive/negative acknowledgments, and bounded
// retransmission.
package transfer

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/DayanCabrera2003/Link-Chat/internal/checksum"
	"github.com/DayanCabrera2003/Link-Chat/internal/config"
	"github.com/DayanCabrera2003/Link-Chat/internal/protocol"
	"github.com/DayanCabrera2003/Link-Chat/internal/transport"
	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

// resolutionBufferSize bounds the per-transfer resolution channel. One
// entry would do for a stop-and-wait scheme; the slack absorbs duplicate
// acknowledgments without ever blocking the listener.
const resolutionBufferSize = 16

// resolution is one ACK/NACK event posted by the listener to the sender
// loop that owns the in-flight fragment.
type resolution struct {
	seq      uint32
	positive bool
}

// Sender drives outbound file transfers. The per-fragment delivery loop
// owns all transfer state; the listener goroutine only posts resolutions
// onto a per-peer channel, so there is no shared mutable
// pending-acknowledgment table to lock.
type Sender struct {
	conn transport.Conn
	cfg  config.Transfer

	mu       sync.Mutex
	inflight map[string]chan resolution // peer MAC → resolution channel
}

// NewSender creates a Sender using the given transport and reliability
// configuration.
func NewSender(conn transport.Conn, cfg config.Transfer) *Sender {
	return &Sender{
		conn:     conn,
		cfg:      cfg,
		inflight: make(map[string]chan resolution),
	}
}

// Resolve records an inbound ACK or NACK from src. It is called by the
// listener for every acknowledgment frame and never blocks: with no
// matching transfer (stale acknowledgment after an abort) or a full
// channel, the event is dropped and the sender's timeout takes over.
func (s *Sender) Resolve(src net.HardwareAddr, seq uint32, positive bool) {
	s.mu.Lock()
	ch, ok := s.inflight[src.String()]
	s.mu.Unlock()

	if !ok {
		util.LogDebug("stale acknowledgment from %s for fragment %d, no transfer in flight", src, seq)
		return
	}

	select {
	case ch <- resolution{seq: seq, positive: positive}:
	default:
	}
}

// SendFile transfers data to peer under the given name. It blocks until
// every fragment is acknowledged or the transfer fails, and returns a
// Report on success. Fragments go out strictly in sequence order with at
// most one in flight: fragment N+1 is never transmitted before fragment N
// resolves.
func (s *Sender) SendFile(ctx context.Context, peer net.HardwareAddr, name string, data []byte) (*Report, error) {
	ch, err := s.register(peer)
	if err != nil {
		return nil, err
	}
	defer s.unregister(peer)

	start := time.Now()

	// FILE_START is a best-effort announcement: unacknowledged and never
	// retried. If it is lost the receiver opens no transfer, the first
	// fragment goes unacknowledged, and the retry ceiling surfaces the
	// failure.
	if err := s.send(peer, protocol.FileStart{Name: name, Size: uint64(len(data))}); err != nil {
		return nil, err
	}
	util.LogInfo("sending '%s' (%d bytes) to %s", name, len(data), peer)

	report := &Report{Peer: peer, Name: name, Bytes: len(data)}

	for seq, off := uint32(0), 0; off < len(data); seq, off = seq+1, off+s.cfg.FragmentSize {
		end := off + s.cfg.FragmentSize
		if end > len(data) {
			end = len(data)
		}

		retransmits, err := s.deliver(ctx, peer, ch, seq, data[off:end])
		report.Retransmits += retransmits
		if err != nil {
			util.LogError("transfer of '%s' to %s aborted: %v", name, peer, err)
			return nil, err
		}
		report.Fragments++
	}

	// FILE_END is a signal, not a guaranteed event: the receiver infers
	// completion from the byte count.
	if err := s.send(peer, protocol.FileEnd{}); err != nil {
		return nil, err
	}

	report.Elapsed = time.Since(start)
	util.Stats.AddTransfer()
	util.LogInfo("transfer of '%s' complete: %d fragments, %d bytes, %d retransmits",
		name, report.Fragments, report.Bytes, report.Retransmits)
	return report, nil
}

// deliver runs the per-fragment delivery loop: transmit, then wait for
// exactly one of ACK (advance), NACK (immediate retransmit), or timeout
// (retransmit), up to the retry ceiling. The loop is the sole consumer of
// the resolution channel and the sole owner of the attempt counter, so a
// resolution racing a timeout linearizes to exactly one outcome.
func (s *Sender) deliver(ctx context.Context, peer net.HardwareAddr, ch <-chan resolution, seq uint32, data []byte) (int, error) {
	frame, err := protocol.Encode(protocol.FileData{
		Seq:      seq,
		Checksum: checksum.Sum(data),
		Data:     data,
	})
	if err != nil {
		return 0, err
	}

	retransmits := 0

attempt:
	for n := 1; n <= s.cfg.MaxRetries; n++ {
		if n > 1 {
			retransmits++
			util.Stats.AddRetransmit()
			util.LogDebug("retransmitting fragment %d to %s (attempt %d/%d)", seq, peer, n, s.cfg.MaxRetries)
		}

		if err := s.conn.Send(peer, frame); err != nil {
			return retransmits, &TransportError{Err: err}
		}

		timer := time.NewTimer(s.cfg.AckTimeout.Duration)
		for {
			select {
			case res := <-ch:
				if res.seq != seq {
					// Duplicate acknowledgment for an earlier fragment,
					// keep waiting on the same timer.
					continue
				}
				timer.Stop()
				if res.positive {
					return retransmits, nil
				}
				util.LogDebug("fragment %d to %s NACKed, retransmitting", seq, peer)
				continue attempt

			case <-timer.C:
				continue attempt

			case <-ctx.Done():
				timer.Stop()
				return retransmits, ctx.Err()
			}
		}
	}

	return retransmits, &RetryCeilingError{Seq: seq, Attempts: s.cfg.MaxRetries}
}

// send encodes and transmits one control packet.
func (s *Sender) send(peer net.HardwareAddr, m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := s.conn.Send(peer, frame); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

// register claims the per-peer transfer slot. Sequence numbers restart at
// zero for every transfer and are only meaningful per peer, so at most one
// transfer per peer may be in flight.
func (s *Sender) register(peer net.HardwareAddr) (chan resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := peer.String()
	if _, ok := s.inflight[key]; ok {
		return nil, ErrTransferActive
	}
	ch := make(chan resolution, resolutionBufferSize)
	s.inflight[key] = ch
	return ch, nil
}

// unregister releases the slot. Resolutions arriving afterwards are
// dropped by Resolve rather than delivered to a dead transfer.
func (s *Sender) unregister(peer net.HardwareAddr) {
	s.mu.Lock()
	delete(s.inflight, peer.String())
	s.mu.Unlock()
}
