//go:build linux

package transport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

// ethHeaderSize is dst(6) + src(6) + EtherType(2).
const ethHeaderSize = 14

// maxFrameSize covers a full Ethernet payload plus its header.
const maxFrameSize = ethHeaderSize + 1500

// RawSocket is a Conn backed by an AF_PACKET socket bound to one
// interface, filtered to the Link-Chat EtherType. Requires CAP_NET_RAW
// (in practice: root).
type RawSocket struct {
	fd    int
	iface *net.Interface
	src   net.HardwareAddr

	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// OpenRawSocket opens an AF_PACKET socket on iface and starts the read
// loop delivering inbound Link-Chat frames.
func OpenRawSocket(iface *net.Interface) (*RawSocket, error) {
	proto := htons(EtherType)

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(proto))
	if err != nil {
		return nil, fmt.Errorf("failed to open raw socket (need root): %w", err)
	}

	sll := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind raw socket to %s: %w", iface.Name, err)
	}

	src := make(net.HardwareAddr, len(iface.HardwareAddr))
	copy(src, iface.HardwareAddr)

	s := &RawSocket{
		fd:     fd,
		iface:  iface,
		src:    src,
		frames: make(chan Frame, frameBufferSize),
		done:   make(chan struct{}),
	}
	go s.readLoop()

	return s, nil
}

// Send builds an Ethernet frame around payload and writes it out on the
// bound interface.
func (s *RawSocket) Send(dst net.HardwareAddr, payload []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	if len(dst) != 6 {
		return fmt.Errorf("invalid destination MAC %q", dst)
	}
	if ethHeaderSize+len(payload) > maxFrameSize {
		return fmt.Errorf("payload %d bytes exceeds interface MTU", len(payload))
	}

	frame := make([]byte, ethHeaderSize+len(payload))
	copy(frame[0:6], dst)
	copy(frame[6:12], s.src)
	binary.BigEndian.PutUint16(frame[12:14], EtherType)
	copy(frame[ethHeaderSize:], payload)

	to := &unix.SockaddrLinklayer{
		Protocol: htons(EtherType),
		Ifindex:  s.iface.Index,
		Halen:    6,
	}
	copy(to.Addr[:], dst)

	if err := unix.Sendto(s.fd, frame, 0, to); err != nil {
		return fmt.Errorf("raw send failed: %w", err)
	}
	util.Stats.AddSent(len(payload))
	return nil
}

func (s *RawSocket) Frames() <-chan Frame { return s.frames }

func (s *RawSocket) LocalAddr() net.HardwareAddr { return s.src }

// Close shuts down the socket. The read loop exits on the resulting read
// error and closes the frame channel.
func (s *RawSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = unix.Close(s.fd)
	})
	return err
}

// readLoop receives Ethernet frames, strips the link header, and delivers
// the Link-Chat payload. Runs until the socket is closed.
func (s *RawSocket) readLoop() {
	defer close(s.frames)

	buf := make([]byte, maxFrameSize)
	for {
		n, _, err := unix.Recvfrom(s.fd, buf, 0)
		if err != nil {
			select {
			case <-s.done:
			default:
				util.LogError("raw socket read failed: %v", err)
			}
			return
		}
		if n < ethHeaderSize {
			continue
		}
		if binary.BigEndian.Uint16(buf[12:14]) != EtherType {
			continue
		}

		src := make(net.HardwareAddr, 6)
		copy(src, buf[6:12])
		if src.String() == s.src.String() {
			// Our own broadcast looped back.
			continue
		}

		payload := trimPadding(buf[ethHeaderSize:n])
		cp := make([]byte, len(payload))
		copy(cp, payload)

		select {
		case s.frames <- Frame{Source: src, Payload: cp}:
			util.Stats.AddRecv(len(cp))
		default:
			util.LogWarning("inbound frame queue full, dropping frame from %s", src)
		}
	}
}

// trimPadding removes the zero padding Ethernet adds to reach its 60-byte
// minimum frame size. The Link-Chat header declares the real payload
// length, so anything past header+length is padding.
func trimPadding(payload []byte) []byte {
	if len(payload) < 3 {
		return payload
	}
	want := 3 + int(binary.BigEndian.Uint16(payload[1:3]))
	if want < len(payload) {
		return payload[:want]
	}
	return payload
}

// htons converts a uint16 to network byte order for the socket API.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
