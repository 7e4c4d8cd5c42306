package gpmf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// GPMF type codes.  Each leaf entry declares one of these for its payload.
const (
	TypeNested  byte = 0x00 // payload is a sequence of child entries
	TypeInt8    byte = 'b'
	TypeUint8   byte = 'B'
	TypeASCII   byte = 'c'
	TypeFloat64 byte = 'd'
	TypeFloat32 byte = 'f'
	TypeFourCC  byte = 'F'
	TypeGUID    byte = 'G'
	TypeInt64   byte = 'j'
	TypeUint64  byte = 'J'
	TypeInt32   byte = 'l'
	TypeUint32  byte = 'L'
	TypeQ1516   byte = 'q' // fixed point 15.16
	TypeQ3132   byte = 'Q' // fixed point 31.32
	TypeInt16   byte = 's'
	TypeUint16  byte = 'S'
	TypeUTC     byte = 'U' // ASCII datetime "yymmddhhmmss.sss"
	TypeComplex byte = '?' // tuple described by a sibling TYPE entry
)

// entryHeaderSize is the fixed KLV header: 4-byte key, 1-byte type,
// 1-byte element size, 2-byte big-endian repeat count.
const entryHeaderSize = 8

// KnownType reports whether the type code is in the recognized set.
func KnownType(typeCode byte) bool {
	switch typeCode {
	case TypeNested, TypeInt8, TypeUint8, TypeASCII, TypeFloat64, TypeFloat32,
		TypeFourCC, TypeGUID, TypeInt64, TypeUint64, TypeInt32, TypeUint32,
		TypeQ1516, TypeQ3132, TypeInt16, TypeUint16, TypeUTC, TypeComplex:
		return true
	}
	return false
}

// Parse decodes one or more concatenated timed-metadata samples into the
// top-level KLV entries, recursively decoding nested containers.
//
// An unknown type code does not stop the decode: the entry is surfaced with
// its raw payload so that a single unknown device extension does not prevent
// extraction of the rest of the stream.  A declared payload length that
// would read past the end of the buffer aborts with ErrMalformedEntry;
// entries decoded up to that point are returned alongside the error.
func Parse(buffer []byte) ([]*Entry, error) {
	entries := []*Entry{}
	offset := 0
	for offset < len(buffer) {
		remaining := buffer[offset:]

		// MP4 "udta" GPMF payloads are zero padded; stop cleanly on padding.
		if isZeroPadding(remaining) {
			break
		}

		if len(remaining) < entryHeaderSize {
			return entries, fmt.Errorf("%w: %d trailing bytes cannot hold an entry header", ErrMalformedEntry, len(remaining))
		}

		entry := &Entry{
			Key:   string(remaining[0:4]),
			Type:  remaining[4],
			Size:  remaining[5],
			Count: binary.BigEndian.Uint16(remaining[6:8]),
		}

		if !validKey(entry.Key) {
			return entries, fmt.Errorf("%w: invalid key %q at offset %d", ErrMalformedEntry, entry.Key, offset)
		}

		payloadLength := int(entry.Size) * int(entry.Count)
		paddedLength := (payloadLength + 3) &^ 3
		if entryHeaderSize+payloadLength > len(remaining) {
			return entries, fmt.Errorf("%w: entry %q declares %d payload bytes with %d remaining", ErrMalformedEntry, entry.Key, payloadLength, len(remaining)-entryHeaderSize)
		}

		payload := remaining[entryHeaderSize : entryHeaderSize+payloadLength]
		if entry.Type == TypeNested {
			children, err := Parse(payload)
			if err != nil {
				return entries, fmt.Errorf("in container %q: %w", entry.Key, err)
			}
			entry.Children = children
		} else {
			entry.Raw = bytes.Clone(payload)
			if !KnownType(entry.Type) {
				logger.Debugf("Entry %q: %v: 0x%02x; keeping raw payload", entry.Key, ErrUnknownTypeCode, entry.Type)
			}
		}

		entries = append(entries, entry)
		offset += entryHeaderSize + paddedLength
	}
	return entries, nil
}

// validKey requires printable ASCII, which rules out corrupt headers that
// would otherwise produce absurd payload lengths.
func validKey(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

func isZeroPadding(buffer []byte) bool {
	for _, b := range buffer {
		if b != 0 {
			return false
		}
	}
	return true
}
