package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/DayanCabrera2003/Link-Chat/internal/util"
)

// bridgeHeaderSize is dst(6) + src(6), prefixed to every bridge message.
const bridgeHeaderSize = 12

// Bridge is a Conn that carries Link-Chat frames over a WebSocket hub
// instead of a raw socket. It exists so the protocol can run without
// CAP_NET_RAW: each process connects to a linkchat-bridge hub, which
// plays the role of the shared Ethernet segment. Delivery stays
// best-effort; the hub drops frames for slow or absent receivers.
type Bridge struct {
	conn *websocket.Conn
	addr net.HardwareAddr

	writeMu sync.Mutex // gorilla allows only one concurrent writer

	frames    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

// DialBridge connects to a hub URL (e.g. ws://host:7748/frames) and
// registers the given address with it.
func DialBridge(url string, addr net.HardwareAddr) (*Bridge, error) {
	if len(addr) != 6 {
		return nil, fmt.Errorf("invalid bridge address %q", addr)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge hub: %w", err)
	}

	// First message registers our address with the hub.
	if err := conn.WriteMessage(websocket.BinaryMessage, addr); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register with bridge hub: %w", err)
	}

	b := &Bridge{
		conn:   conn,
		addr:   append(net.HardwareAddr(nil), addr...),
		frames: make(chan Frame, frameBufferSize),
		done:   make(chan struct{}),
	}
	go b.readLoop()

	return b, nil
}

// Send ships dst ++ src ++ payload to the hub, which routes it.
func (b *Bridge) Send(dst net.HardwareAddr, payload []byte) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	if len(dst) != 6 {
		return fmt.Errorf("invalid destination MAC %q", dst)
	}

	msg := make([]byte, bridgeHeaderSize+len(payload))
	copy(msg[0:6], dst)
	copy(msg[6:12], b.addr)
	copy(msg[bridgeHeaderSize:], payload)

	b.writeMu.Lock()
	err := b.conn.WriteMessage(websocket.BinaryMessage, msg)
	b.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("bridge send failed: %w", err)
	}
	util.Stats.AddSent(len(payload))
	return nil
}

func (b *Bridge) Frames() <-chan Frame { return b.frames }

func (b *Bridge) LocalAddr() net.HardwareAddr { return b.addr }

func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.conn.Close()
	})
	return err
}

func (b *Bridge) readLoop() {
	defer close(b.frames)

	for {
		_, msg, err := b.conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
			default:
				util.LogError("bridge read failed: %v", err)
			}
			return
		}
		if len(msg) < bridgeHeaderSize {
			continue
		}

		dst := net.HardwareAddr(msg[0:6])
		if dst.String() != b.addr.String() && dst.String() != Broadcast.String() {
			continue
		}

		src := make(net.HardwareAddr, 6)
		copy(src, msg[6:12])
		payload := make([]byte, len(msg)-bridgeHeaderSize)
		copy(payload, msg[bridgeHeaderSize:])

		select {
		case b.frames <- Frame{Source: src, Payload: payload}:
			util.Stats.AddRecv(len(payload))
		default:
			util.LogWarning("inbound frame queue full, dropping frame from %s", src)
		}
	}
}
