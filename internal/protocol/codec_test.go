package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// TestEncodeDecodeRoundTrip verifies that encoding and decoding are
// inverse operations for every packet kind.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  Message
	}{
		{"Text", Text{Body: "hola!"}},
		{"Text empty", Text{Body: ""}},
		{"FileStart", FileStart{Name: "notes.txt", Size: 123456}},
		{"FileStart empty name", FileStart{Name: "", Size: 0}},
		{"FileData", FileData{Seq: 42, Checksum: 0xDEADBEEF, Data: []byte("fragment payload")}},
		{"FileData empty data", FileData{Seq: 0, Checksum: 0, Data: []byte{}}},
		{"FileData max fragment", FileData{Seq: 7, Checksum: 1, Data: make([]byte, 1489)}},
		{"FileEnd", FileEnd{}},
		{"Ack", Ack{Seq: 99}},
		{"Ack boundary", Ack{Seq: 0xFFFFFFFF}},
		{"Nack", Nack{Seq: 3}},
		{"DiscoveryRequest", DiscoveryRequest{Name: "dayan"}},
		{"DiscoveryResponse", DiscoveryResponse{Name: "ana"}},
		{"FolderStart", FolderStart{Path: "fotos/vacaciones"}},
		{"FolderStart root", FolderStart{Path: ""}},
		{"FolderEnd", FolderEnd{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if encoded[0] != uint8(tc.msg.Kind()) {
				t.Errorf("wire kind = 0x%02x, want 0x%02x", encoded[0], uint8(tc.msg.Kind()))
			}
			declared := int(binary.BigEndian.Uint16(encoded[1:3]))
			if declared != len(encoded)-HeaderSize {
				t.Errorf("declared length %d, actual payload %d", declared, len(encoded)-HeaderSize)
			}

			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			switch want := tc.msg.(type) {
			case FileData:
				got, ok := decoded.(FileData)
				if !ok {
					t.Fatalf("decoded type %T, want FileData", decoded)
				}
				if got.Seq != want.Seq || got.Checksum != want.Checksum || !bytes.Equal(got.Data, want.Data) {
					t.Errorf("decoded %+v, want %+v", got, want)
				}
			default:
				if decoded != tc.msg {
					t.Errorf("decoded %#v, want %#v", decoded, tc.msg)
				}
			}
		})
	}
}

// TestDecodeMalformed verifies that undecodable frames fail with a
// MalformedHeaderError rather than panicking or succeeding.
func TestDecodeMalformed(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"1 byte", []byte{0x01}},
		{"2 bytes (one less than header)", []byte{0x01, 0x00}},
		{"declared length larger than payload", []byte{0x01, 0x00, 0x05, 'h', 'i'}},
		{"declared length smaller than payload", []byte{0x01, 0x00, 0x01, 'h', 'i'}},
		{"unknown kind", []byte{0x7F, 0x00, 0x00}},
		{"ACK payload too short", []byte{0x07, 0x00, 0x02, 0x00, 0x01}},
		{"ACK payload too long", []byte{0x07, 0x00, 0x05, 0x00, 0x00, 0x00, 0x01, 0x02}},
		{"FILE_DATA shorter than seq+checksum", []byte{0x03, 0x00, 0x04, 0x00, 0x00, 0x00, 0x01}},
		{"FILE_START truncated name", []byte{0x02, 0x00, 0x04, 0x00, 0x09, 'a', 'b'}},
		{"FILE_START missing size", []byte{0x02, 0x00, 0x04, 0x00, 0x02, 'a', 'b'}},
		{"FOLDER_START bad prefix", []byte{0x09, 0x00, 0x03, 0x00, 0x09, 'x'}},
		{"TEXT invalid UTF-8", []byte{0x01, 0x00, 0x02, 0xFF, 0xFE}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var malformed *MalformedHeaderError
			if !errors.As(err, &malformed) {
				t.Errorf("error type %T, want *MalformedHeaderError", err)
			}
		})
	}
}

// TestDecodeExactHeaderSize verifies that a header-only packet decodes.
func TestDecodeExactHeaderSize(t *testing.T) {
	encoded, err := Encode(FileEnd{})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(encoded) != HeaderSize {
		t.Fatalf("encoded size = %d, want %d", len(encoded), HeaderSize)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := decoded.(FileEnd); !ok {
		t.Errorf("decoded type %T, want FileEnd", decoded)
	}
}

// TestEncodeOversizedPayload verifies the 2-byte length bound is enforced.
func TestEncodeOversizedPayload(t *testing.T) {
	_, err := Encode(FileData{Seq: 1, Data: make([]byte, MaxPayloadSize)})
	if err == nil {
		t.Fatal("expected error for payload exceeding 65535 bytes, got nil")
	}
}

// TestChecksumOffset pins the FILE_DATA layout: the checksum must sit at
// payload offset 4, right after the sequence number.
func TestChecksumOffset(t *testing.T) {
	encoded, err := Encode(FileData{Seq: 0x01020304, Checksum: 0xAABBCCDD, Data: []byte{0xEE}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	payload := encoded[HeaderSize:]
	if got := binary.BigEndian.Uint32(payload[0:4]); got != 0x01020304 {
		t.Errorf("sequence at offset 0 = 0x%08X, want 0x01020304", got)
	}
	if got := binary.BigEndian.Uint32(payload[4:8]); got != 0xAABBCCDD {
		t.Errorf("checksum at offset 4 = 0x%08X, want 0xAABBCCDD", got)
	}
	if payload[8] != 0xEE {
		t.Errorf("data at offset 8 = 0x%02X, want 0xEE", payload[8])
	}
}

func TestKindString(t *testing.T) {
	if got := KindFileData.String(); got != "FILE_DATA" {
		t.Errorf("KindFileData.String() = %q", got)
	}
	if got := Kind(0xEE).String(); got != "UNKNOWN(0xee)" {
		t.Errorf("unknown kind String() = %q", got)
	}
}
