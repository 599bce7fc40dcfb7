package transport

import (
	"net"
	"sync"
)

// Pipe is an in-memory Conn connecting exactly two endpoints in the same
// process. It mimics the real transport's failure surface: frames may be
// dropped (full inbox, or a test-installed filter) and nothing is
// acknowledged. Tests use the filter hook to simulate loss and corruption.
type Pipe struct {
	addr net.HardwareAddr
	peer *Pipe

	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	filter func(payload []byte) ([]byte, bool)
}

// NewPipe creates two connected endpoints with the given addresses.
func NewPipe(a, b net.HardwareAddr) (*Pipe, *Pipe) {
	pa := &Pipe{
		addr:   a,
		frames: make(chan Frame, frameBufferSize),
		done:   make(chan struct{}),
	}
	pb := &Pipe{
		addr:   b,
		frames: make(chan Frame, frameBufferSize),
		done:   make(chan struct{}),
	}
	pa.peer = pb
	pb.peer = pa
	return pa, pb
}

// SetFilter installs a hook applied to every outbound payload before
// delivery. Returning false drops the frame; returning a different byte
// slice delivers it corrupted. A nil filter delivers everything verbatim.
func (p *Pipe) SetFilter(f func(payload []byte) ([]byte, bool)) {
	p.mu.Lock()
	p.filter = f
	p.mu.Unlock()
}

// Send delivers payload to the peer endpoint if dst names it (or is the
// broadcast address). Frames to anyone else vanish, as they would on a
// real segment with no such host.
func (p *Pipe) Send(dst net.HardwareAddr, payload []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	if dst.String() != p.peer.addr.String() && dst.String() != Broadcast.String() {
		return nil
	}

	p.mu.Lock()
	filter := p.filter
	p.mu.Unlock()

	out := payload
	if filter != nil {
		var ok bool
		out, ok = filter(payload)
		if !ok {
			return nil
		}
	}

	cp := make([]byte, len(out))
	copy(cp, out)

	// The peer's mutex serializes delivery against its Close, so we never
	// send on a closed channel.
	p.peer.mu.Lock()
	defer p.peer.mu.Unlock()
	select {
	case <-p.peer.done:
		return nil
	default:
	}
	select {
	case p.peer.frames <- Frame{Source: p.addr, Payload: cp}:
	default:
		// Peer inbox full; an unreliable transport just loses the frame.
	}
	return nil
}

func (p *Pipe) Frames() <-chan Frame { return p.frames }

func (p *Pipe) LocalAddr() net.HardwareAddr { return p.addr }

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.done)
		close(p.frames)
		p.mu.Unlock()
	})
	return nil
}
