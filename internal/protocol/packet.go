// Package protocol defines the Link-Chat packet format: a 3-byte header
// (kind + payload length) followed by a per-kind payload layout.
package protocol

import "fmt"

// Kind identifies the purpose of a packet on the wire.
type Kind uint8

// Wire codes. These are fixed; changing one breaks interop with every
// deployed peer.
const (
	KindText              Kind = 0x01 // UTF-8 chat message
	KindFileStart         Kind = 0x02 // file transfer announcement (name + size)
	KindFileData          Kind = 0x03 // one checksummed, sequenced fragment
	KindFileEnd           Kind = 0x04 // end-of-transfer signal
	KindDiscoveryRequest  Kind = 0x05 // broadcast "who is here" with username
	KindDiscoveryResponse Kind = 0x06 // unicast reply with username
	KindAck               Kind = 0x07 // positive acknowledgment of a fragment
	KindNack              Kind = 0x08 // negative acknowledgment of a fragment
	KindFolderStart       Kind = 0x09 // begin a folder level (relative path)
	KindFolderEnd         Kind = 0x0A // close the current folder level
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "TEXT"
	case KindFileStart:
		return "FILE_START"
	case KindFileData:
		return "FILE_DATA"
	case KindFileEnd:
		return "FILE_END"
	case KindDiscoveryRequest:
		return "DISCOVERY_REQUEST"
	case KindDiscoveryResponse:
		return "DISCOVERY_RESPONSE"
	case KindAck:
		return "ACK"
	case KindNack:
		return "NACK"
	case KindFolderStart:
		return "FOLDER_START"
	case KindFolderEnd:
		return "FOLDER_END"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(k))
	}
}

// HeaderSize is the fixed header size: Kind(1) + PayloadLen(2).
const HeaderSize = 3

// MaxPayloadSize is the largest payload the 2-byte length field can describe.
const MaxPayloadSize = 0xFFFF

// Message is the decoded form of a packet. Each kind has its own concrete
// type carrying a strongly-typed payload; Decode returns the union directly
// so callers switch on the type rather than on a raw kind byte.
type Message interface {
	Kind() Kind
	// payload serializes the kind-specific payload bytes (without header).
	payload() ([]byte, error)
}

// Text is a plain chat message.
type Text struct {
	Body string
}

func (Text) Kind() Kind { return KindText }

// FileStart announces an incoming file. It is a best-effort signal: it is
// neither acknowledged nor retransmitted.
type FileStart struct {
	Name string
	Size uint64
}

func (FileStart) Kind() Kind { return KindFileStart }

// FileData carries one fragment: sequence number, CRC over Data, and the
// fragment bytes themselves.
type FileData struct {
	Seq      uint32
	Checksum uint32
	Data     []byte
}

func (FileData) Kind() Kind { return KindFileData }

// FileEnd closes a transfer. Empty payload, best-effort like FileStart.
type FileEnd struct{}

func (FileEnd) Kind() Kind { return KindFileEnd }

// Ack confirms receipt of the fragment with the given sequence number.
type Ack struct {
	Seq uint32
}

func (Ack) Kind() Kind { return KindAck }

// Nack reports a corrupt fragment so the sender retransmits immediately
// instead of waiting out its timeout.
type Nack struct {
	Seq uint32
}

func (Nack) Kind() Kind { return KindNack }

// DiscoveryRequest is broadcast to ask every peer on the segment to
// identify itself. Name is the requester's username.
type DiscoveryRequest struct {
	Name string
}

func (DiscoveryRequest) Kind() Kind { return KindDiscoveryRequest }

// DiscoveryResponse is the unicast reply to a DiscoveryRequest.
type DiscoveryResponse struct {
	Name string
}

func (DiscoveryResponse) Kind() Kind { return KindDiscoveryResponse }

// FolderStart opens a folder level during a recursive folder transfer.
// Path is relative to the transfer root, slash-separated.
type FolderStart struct {
	Path string
}

func (FolderStart) Kind() Kind { return KindFolderStart }

// FolderEnd closes the folder level opened by the matching FolderStart.
type FolderEnd struct{}

func (FolderEnd) Kind() Kind { return KindFolderEnd }
