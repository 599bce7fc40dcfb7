// Package transport provides the frame-delivery substrate for Link-Chat:
// unreliable, unordered, MTU-bounded delivery of opaque payloads addressed
// by link-layer (MAC) address. Three implementations exist: a raw
// AF_PACKET socket (the real thing, Linux only), an in-memory Pipe for
// tests, and a WebSocket Bridge for running without raw-socket privileges.
package transport

import (
	"errors"
	"net"
)

// EtherType is the private protocol number carried in the Ethernet header
// so Link-Chat frames can be told apart from IP, ARP, and everything else
// on the segment.
const EtherType = 0x1234

// Broadcast is the all-ones MAC address: every interface on the segment
// receives the frame.
var Broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("transport: connection closed")

// Frame is one inbound payload together with the sender's address.
type Frame struct {
	Source  net.HardwareAddr
	Payload []byte
}

// Conn is the frame transport consumed by every other layer. Send is safe
// for concurrent use. Frames delivers inbound frames until Close; the
// channel is closed on shutdown. No ordering, delivery, or integrity
// guarantees; that is the whole point of the reliability layer above.
type Conn interface {
	Send(dst net.HardwareAddr, payload []byte) error
	Frames() <-chan Frame
	LocalAddr() net.HardwareAddr
	Close() error
}

// frameBufferSize is the inbound frame channel capacity. When the consumer
// falls behind, further frames are dropped; the transport is allowed to
// lose frames, and the reliability layer recovers.
const frameBufferSize = 64
