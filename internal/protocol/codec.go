package protocol

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// MalformedHeaderError reports a frame that could not be decoded: truncated
// header, length mismatch, or an invalid per-kind payload layout. Frames
// failing this way are dropped, never surfaced as transfer failures; they
// may belong to an unrelated use of the same channel.
type MalformedHeaderError struct {
	Reason string
}

func (e *MalformedHeaderError) Error() string {
	return "malformed packet: " + e.Reason
}

func malformed(format string, args ...interface{}) error {
	return &MalformedHeaderError{Reason: fmt.Sprintf(format, args...)}
}

// fileDataHeaderSize is Seq(4) + Checksum(4). The checksum always sits at
// offset 4 of the FILE_DATA payload so receivers can locate it without
// extra metadata.
const fileDataHeaderSize = 8

// Encode serializes a Message into header + payload bytes ready for the
// frame transport. It fails if the payload would not fit the 2-byte
// length field.
func Encode(m Message) ([]byte, error) {
	p, err := m.payload()
	if err != nil {
		return nil, err
	}
	if len(p) > MaxPayloadSize {
		return nil, fmt.Errorf("%s payload too large: %d bytes (max %d)", m.Kind(), len(p), MaxPayloadSize)
	}

	buf := make([]byte, HeaderSize+len(p))
	buf[0] = uint8(m.Kind())
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(p)))
	copy(buf[HeaderSize:], p)
	return buf, nil
}

// Decode parses header + payload bytes into the concrete Message for the
// declared kind. The declared payload length must match the bytes that
// follow the header exactly.
func Decode(data []byte) (Message, error) {
	if len(data) < HeaderSize {
		return nil, malformed("%d bytes (need at least %d)", len(data), HeaderSize)
	}

	kind := Kind(data[0])
	declared := int(binary.BigEndian.Uint16(data[1:3]))
	payload := data[HeaderSize:]
	if len(payload) != declared {
		return nil, malformed("%s declares %d payload bytes, got %d", kind, declared, len(payload))
	}

	switch kind {
	case KindText:
		if !utf8.Valid(payload) {
			return nil, malformed("TEXT body is not valid UTF-8")
		}
		return Text{Body: string(payload)}, nil

	case KindFileStart:
		return decodeFileStart(payload)

	case KindFileData:
		if len(payload) < fileDataHeaderSize {
			return nil, malformed("FILE_DATA payload %d bytes (need at least %d)", len(payload), fileDataHeaderSize)
		}
		d := make([]byte, len(payload)-fileDataHeaderSize)
		copy(d, payload[fileDataHeaderSize:])
		return FileData{
			Seq:      binary.BigEndian.Uint32(payload[0:4]),
			Checksum: binary.BigEndian.Uint32(payload[4:8]),
			Data:     d,
		}, nil

	case KindFileEnd:
		return FileEnd{}, nil

	case KindAck:
		seq, err := decodeSeq(payload, "ACK")
		if err != nil {
			return nil, err
		}
		return Ack{Seq: seq}, nil

	case KindNack:
		seq, err := decodeSeq(payload, "NACK")
		if err != nil {
			return nil, err
		}
		return Nack{Seq: seq}, nil

	case KindDiscoveryRequest:
		if !utf8.Valid(payload) {
			return nil, malformed("DISCOVERY_REQUEST name is not valid UTF-8")
		}
		return DiscoveryRequest{Name: string(payload)}, nil

	case KindDiscoveryResponse:
		if !utf8.Valid(payload) {
			return nil, malformed("DISCOVERY_RESPONSE name is not valid UTF-8")
		}
		return DiscoveryResponse{Name: string(payload)}, nil

	case KindFolderStart:
		path, err := decodePrefixedString(payload, "FOLDER_START path")
		if err != nil {
			return nil, err
		}
		return FolderStart{Path: path}, nil

	case KindFolderEnd:
		return FolderEnd{}, nil

	default:
		return nil, malformed("unknown kind 0x%02x", uint8(kind))
	}
}

// ---------------------------------------------------------------------------
// Per-kind payload layouts
// ---------------------------------------------------------------------------

func (m Text) payload() ([]byte, error) {
	return []byte(m.Body), nil
}

// FILE_START payload: name_len(2) + name + total_size(8).
func (m FileStart) payload() ([]byte, error) {
	name := []byte(m.Name)
	if len(name) > MaxPayloadSize-10 {
		return nil, fmt.Errorf("file name too long: %d bytes", len(name))
	}
	buf := make([]byte, 2+len(name)+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(name)))
	copy(buf[2:], name)
	binary.BigEndian.PutUint64(buf[2+len(name):], m.Size)
	return buf, nil
}

// FILE_DATA payload: seq(4) + checksum(4) + data.
func (m FileData) payload() ([]byte, error) {
	buf := make([]byte, fileDataHeaderSize+len(m.Data))
	binary.BigEndian.PutUint32(buf[0:4], m.Seq)
	binary.BigEndian.PutUint32(buf[4:8], m.Checksum)
	copy(buf[fileDataHeaderSize:], m.Data)
	return buf, nil
}

func (FileEnd) payload() ([]byte, error) { return nil, nil }

func (m Ack) payload() ([]byte, error) {
	return encodeSeq(m.Seq), nil
}

func (m Nack) payload() ([]byte, error) {
	return encodeSeq(m.Seq), nil
}

func (m DiscoveryRequest) payload() ([]byte, error) {
	return []byte(m.Name), nil
}

func (m DiscoveryResponse) payload() ([]byte, error) {
	return []byte(m.Name), nil
}

// FOLDER_START payload: path_len(2) + path.
func (m FolderStart) payload() ([]byte, error) {
	path := []byte(m.Path)
	if len(path) > MaxPayloadSize-2 {
		return nil, fmt.Errorf("folder path too long: %d bytes", len(path))
	}
	buf := make([]byte, 2+len(path))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(path)))
	copy(buf[2:], path)
	return buf, nil
}

func (FolderEnd) payload() ([]byte, error) { return nil, nil }

// ---------------------------------------------------------------------------
// Shared field helpers
// ---------------------------------------------------------------------------

func encodeSeq(seq uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, seq)
	return buf
}

func decodeSeq(payload []byte, kind string) (uint32, error) {
	if len(payload) != 4 {
		return 0, malformed("%s payload %d bytes (need 4)", kind, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

func decodeFileStart(payload []byte) (Message, error) {
	if len(payload) < 2 {
		return nil, malformed("FILE_START payload %d bytes (need at least 2)", len(payload))
	}
	nameLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) != 2+nameLen+8 {
		return nil, malformed("FILE_START declares %d name bytes, payload is %d bytes", nameLen, len(payload))
	}
	name := payload[2 : 2+nameLen]
	if !utf8.Valid(name) {
		return nil, malformed("FILE_START name is not valid UTF-8")
	}
	return FileStart{
		Name: string(name),
		Size: binary.BigEndian.Uint64(payload[2+nameLen:]),
	}, nil
}

func decodePrefixedString(payload []byte, field string) (string, error) {
	if len(payload) < 2 {
		return "", malformed("%s payload %d bytes (need at least 2)", field, len(payload))
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) != 2+n {
		return "", malformed("%s declares %d bytes, payload is %d bytes", field, n, len(payload))
	}
	s := payload[2:]
	if !utf8.Valid(s) {
		return "", malformed("%s is not valid UTF-8", field)
	}
	return string(s), nil
}
