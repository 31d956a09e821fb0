package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const packHeaderSize = 12

var packMagic = [4]byte{'P', 'A', 'C', 'K'}

// PackEntryKind is the 3-bit object type tag used in pack entry
// headers. Values match the canonical Git storage format.
type PackEntryKind uint8

const (
	EntryCommit   PackEntryKind = 1
	EntryTree     PackEntryKind = 2
	EntryBlob     PackEntryKind = 3
	EntryTag      PackEntryKind = 4
	EntryOfsDelta PackEntryKind = 6
	EntryRefDelta PackEntryKind = 7
)

// IsDelta reports whether the entry stores a delta instruction stream
// rather than literal content.
func (k PackEntryKind) IsDelta() bool {
	return k == EntryOfsDelta || k == EntryRefDelta
}

// ObjectKind maps a literal entry kind to the object kind it stores.
func (k PackEntryKind) ObjectKind() (ObjectKind, bool) {
	switch k {
	case EntryCommit:
		return KindCommit, true
	case EntryTree:
		return KindTree, true
	case EntryBlob:
		return KindBlob, true
	case EntryTag:
		return KindTag, true
	}
	return "", false
}

func (k PackEntryKind) String() string {
	switch k {
	case EntryCommit:
		return "commit"
	case EntryTree:
		return "tree"
	case EntryBlob:
		return "blob"
	case EntryTag:
		return "tag"
	case EntryOfsDelta:
		return "ofs-delta"
	case EntryRefDelta:
		return "ref-delta"
	}
	return fmt.Sprintf("invalid(%d)", uint8(k))
}

// PackHeader is the fixed-size pack file header.
//
// Bytes:
//   - 0..3:  "PACK"
//   - 4..7:  version (big-endian, 2 or 3)
//   - 8..11: number of objects (big-endian)
type PackHeader struct {
	Version    uint32
	NumObjects uint32
}

func parsePackHeader(data []byte) (*PackHeader, error) {
	if len(data) < packHeaderSize {
		return nil, fmt.Errorf("pack header: %d bytes: %w", len(data), ErrTruncatedPack)
	}
	if string(data[:4]) != string(packMagic[:]) {
		return nil, fmt.Errorf("pack magic %q: %w", data[:4], ErrBadSignature)
	}
	version := binary.BigEndian.Uint32(data[4:8])
	if version != 2 && version != 3 {
		return nil, fmt.Errorf("pack version %d: %w", version, ErrUnsupportedVersion)
	}
	return &PackHeader{
		Version:    version,
		NumObjects: binary.BigEndian.Uint32(data[8:12]),
	}, nil
}

// readEntryHeader decodes the variable-length entry header: a 3-bit
// kind tag packed with the low 4 size bits in the first byte, then
// continuation bytes each contributing 7 more size bits.
func readEntryHeader(r io.ByteReader) (PackEntryKind, uint64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, fmt.Errorf("entry header: %w", ErrTruncatedPack)
	}

	kind := PackEntryKind((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)

	for b&0x80 != 0 {
		if shift > 63 {
			return 0, 0, fmt.Errorf("entry header size overflows: %w", ErrCorrupt)
		}
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, fmt.Errorf("entry header: %w", ErrTruncatedPack)
		}
		size |= uint64(b&0x7f) << shift
		shift += 7
	}

	switch kind {
	case EntryCommit, EntryTree, EntryBlob, EntryTag, EntryOfsDelta, EntryRefDelta:
	default:
		return 0, 0, fmt.Errorf("entry type tag %d: %w", kind, ErrCorrupt)
	}
	return kind, size, nil
}

func decodeEntryHeader(data []byte) (PackEntryKind, uint64, int, error) {
	r := bytes.NewReader(data)
	kind, size, err := readEntryHeader(r)
	if err != nil {
		return 0, 0, 0, err
	}
	return kind, size, len(data) - r.Len(), nil
}

// readOfsDistance decodes the big-endian base-128 backward distance
// that follows an ofs-delta entry header. Each continuation step adds
// one before shifting so that multi-byte encodings have no overlap
// with shorter ones.
func readOfsDistance(r io.ByteReader) (uint64, error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("ofs-delta distance: %w", ErrTruncatedPack)
	}
	distance := uint64(c & 0x7f)
	for width := 1; c&0x80 != 0; width++ {
		if width > 9 {
			return 0, fmt.Errorf("ofs-delta distance overflows: %w", ErrCorrupt)
		}
		c, err = r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("ofs-delta distance: %w", ErrTruncatedPack)
		}
		distance = ((distance + 1) << 7) | uint64(c&0x7f)
	}
	return distance, nil
}

func decodeOfsDistance(data []byte) (uint64, int, error) {
	r := bytes.NewReader(data)
	distance, err := readOfsDistance(r)
	if err != nil {
		return 0, 0, err
	}
	return distance, len(data) - r.Len(), nil
}
