package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"
)

const (
	idxFanoutSize     = 256 * 4
	idxV2HeaderSize   = 8
	idxLargeOffsetBit = uint32(1 << 31)
)

// \377tOc
var idxV2Magic = [4]byte{0xff, 't', 'O', 'c'}

// PackIndexEntry is one row of a pack index.
type PackIndexEntry struct {
	ID     ObjectID
	Offset uint64
	CRC32  uint32
	HasCRC bool // v2 indexes carry CRCs, v1 does not
}

// PackIndex is a parsed pack index file (v1 or v2). The fan-out table
// lives in memory; id and offset tables are kept as raw bytes and
// binary-searched in place rather than materialized eagerly.
type PackIndex struct {
	Version int
	algo    HashAlgo

	fanout [256]uint32

	// v2 layout: parallel tables.
	names        []byte // n * digest
	crcs         []byte // n * 4
	offsets      []byte // n * 4, MSB escapes into largeOffsets
	largeOffsets []byte // l * 8

	// v1 layout: interleaved (offset, id) records.
	v1Records []byte // n * (4 + digest)

	PackChecksum  ObjectID
	IndexChecksum ObjectID

	byOffsetOnce sync.Once
	byOffset     []int // entry indexes sorted by offset
}

// OpenIndex reads and parses a pack index file.
func OpenIndex(path string) (*PackIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pack index %s: %w", path, err)
	}
	idx, err := ParseIndex(data)
	if err != nil {
		return nil, fmt.Errorf("pack index %s: %w", path, err)
	}
	return idx, nil
}

// ParseIndex detects the index version by the v2 magic and parses
// accordingly; absence of the magic implies the legacy v1 layout.
func ParseIndex(data []byte) (*PackIndex, error) {
	if len(data) >= idxV2HeaderSize && bytes.Equal(data[:4], idxV2Magic[:]) {
		version := binary.BigEndian.Uint32(data[4:8])
		if version != 2 {
			return nil, fmt.Errorf("index version %d: %w", version, ErrUnsupportedVersion)
		}
		return parseIndexV2(data)
	}
	return parseIndexV1(data)
}

// Algo returns the digest algorithm inferred from the file geometry.
func (idx *PackIndex) Algo() HashAlgo { return idx.algo }

// Count returns the number of entries.
func (idx *PackIndex) Count() int { return int(idx.fanout[255]) }

// Fanout returns a copy of the 256-bucket fan-out table.
func (idx *PackIndex) Fanout() [256]uint32 { return idx.fanout }

// Find binary-searches for id inside the fan-out bucket keyed by its
// first byte.
func (idx *PackIndex) Find(id ObjectID) (PackIndexEntry, bool) {
	raw, err := id.RawBytes()
	if err != nil || len(raw) != idx.algo.Size() {
		return PackIndexEntry{}, false
	}

	bucket := int(raw[0])
	lo := 0
	if bucket > 0 {
		lo = int(idx.fanout[bucket-1])
	}
	hi := int(idx.fanout[bucket])

	for lo < hi {
		mid := lo + (hi-lo)/2
		switch bytes.Compare(idx.idAt(mid), raw) {
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	if lo < int(idx.fanout[bucket]) && bytes.Equal(idx.idAt(lo), raw) {
		return idx.EntryAt(lo), true
	}
	return PackIndexEntry{}, false
}

// OffsetOf reports where id's entry begins inside the pack file.
func (idx *PackIndex) OffsetOf(id ObjectID) (uint64, bool) {
	entry, ok := idx.Find(id)
	return entry.Offset, ok
}

// EntryAt returns the entry at position i in id-sorted order, with the
// large-offset escape already resolved.
func (idx *PackIndex) EntryAt(i int) PackIndexEntry {
	entry := PackIndexEntry{
		ID:     ObjectIDFromBytes(idx.idAt(i)),
		Offset: idx.offsetAt(i),
	}
	if idx.Version == 2 {
		entry.CRC32 = binary.BigEndian.Uint32(idx.crcs[i*4:])
		entry.HasCRC = true
	}
	return entry
}

// FindByOffset maps a pack offset back to its index entry. The
// offset-sorted view is built lazily on first use.
func (idx *PackIndex) FindByOffset(offset uint64) (PackIndexEntry, bool) {
	idx.byOffsetOnce.Do(func() {
		idx.byOffset = make([]int, idx.Count())
		for i := range idx.byOffset {
			idx.byOffset[i] = i
		}
		sort.Slice(idx.byOffset, func(a, b int) bool {
			return idx.offsetAt(idx.byOffset[a]) < idx.offsetAt(idx.byOffset[b])
		})
	})

	pos := sort.Search(len(idx.byOffset), func(i int) bool {
		return idx.offsetAt(idx.byOffset[i]) >= offset
	})
	if pos < len(idx.byOffset) && idx.offsetAt(idx.byOffset[pos]) == offset {
		return idx.EntryAt(idx.byOffset[pos]), true
	}
	return PackIndexEntry{}, false
}

func (idx *PackIndex) idAt(i int) []byte {
	d := idx.algo.Size()
	if idx.Version == 1 {
		rec := idx.v1Records[i*(4+d):]
		return rec[4 : 4+d]
	}
	return idx.names[i*d : (i+1)*d]
}

func (idx *PackIndex) offsetAt(i int) uint64 {
	if idx.Version == 1 {
		d := idx.algo.Size()
		return uint64(binary.BigEndian.Uint32(idx.v1Records[i*(4+d):]))
	}
	v := binary.BigEndian.Uint32(idx.offsets[i*4:])
	if v&idxLargeOffsetBit == 0 {
		return uint64(v)
	}
	ref := int(v &^ idxLargeOffsetBit)
	return binary.BigEndian.Uint64(idx.largeOffsets[ref*8:])
}

func parseFanout(data []byte) ([256]uint32, error) {
	var fanout [256]uint32
	for i := 0; i < 256; i++ {
		fanout[i] = binary.BigEndian.Uint32(data[i*4:])
		if i > 0 && fanout[i] < fanout[i-1] {
			return fanout, fmt.Errorf("bucket %#02x: %d < %d: %w",
				i, fanout[i], fanout[i-1], ErrBadFanout)
		}
	}
	return fanout, nil
}

func parseIndexV2(data []byte) (*PackIndex, error) {
	if len(data) < idxV2HeaderSize+idxFanoutSize {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrCorrupt)
	}
	fanout, err := parseFanout(data[idxV2HeaderSize:])
	if err != nil {
		return nil, err
	}
	n := int(fanout[255])

	// The digest width is not stated in the header; it is the only
	// free variable in the file geometry, so solve for it.
	algo, largeCount, ok := solveV2Geometry(data, n)
	if !ok {
		return nil, fmt.Errorf("tables do not match any digest width: %w", ErrCorrupt)
	}
	d := algo.Size()

	cursor := idxV2HeaderSize + idxFanoutSize
	idx := &PackIndex{Version: 2, algo: algo, fanout: fanout}
	idx.names = data[cursor : cursor+n*d]
	cursor += n * d
	idx.crcs = data[cursor : cursor+n*4]
	cursor += n * 4
	idx.offsets = data[cursor : cursor+n*4]
	cursor += n * 4
	idx.largeOffsets = data[cursor : cursor+largeCount*8]
	cursor += largeCount * 8

	idx.PackChecksum = ObjectIDFromBytes(data[cursor : cursor+d])
	cursor += d
	idx.IndexChecksum = ObjectIDFromBytes(data[cursor : cursor+d])

	for i := 1; i < n; i++ {
		if bytes.Compare(idx.idAt(i-1), idx.idAt(i)) >= 0 {
			return nil, fmt.Errorf("entry %d out of order: %w", i, ErrCorrupt)
		}
	}
	if err := checkIndexDigest(data, algo, idx.IndexChecksum); err != nil {
		return nil, err
	}
	return idx, nil
}

// solveV2Geometry finds the digest width (and resulting large-offset
// count) under which the table layout exactly fills the file.
func solveV2Geometry(data []byte, n int) (HashAlgo, int, bool) {
	for _, algo := range []HashAlgo{SHA1, SHA256} {
		d := algo.Size()
		offsetsStart := idxV2HeaderSize + idxFanoutSize + n*d + n*4
		offsetsEnd := offsetsStart + n*4
		if offsetsEnd > len(data) {
			continue
		}
		largeCount := 0
		for i := 0; i < n; i++ {
			v := binary.BigEndian.Uint32(data[offsetsStart+i*4:])
			if v&idxLargeOffsetBit != 0 {
				if ref := int(v&^idxLargeOffsetBit) + 1; ref > largeCount {
					largeCount = ref
				}
			}
		}
		if offsetsEnd+largeCount*8+2*d == len(data) {
			return algo, largeCount, true
		}
	}
	return 0, 0, false
}

func parseIndexV1(data []byte) (*PackIndex, error) {
	if len(data) < idxFanoutSize {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrCorrupt)
	}
	fanout, err := parseFanout(data)
	if err != nil {
		return nil, err
	}
	n := int(fanout[255])

	// v1 indexes exist only for the legacy 20-byte digest.
	d := SHA1.Size()
	recordsEnd := idxFanoutSize + n*(4+d)
	if recordsEnd+2*d != len(data) {
		return nil, fmt.Errorf("tables do not fill file: %w", ErrCorrupt)
	}

	idx := &PackIndex{Version: 1, algo: SHA1, fanout: fanout}
	idx.v1Records = data[idxFanoutSize:recordsEnd]
	idx.PackChecksum = ObjectIDFromBytes(data[recordsEnd : recordsEnd+d])
	idx.IndexChecksum = ObjectIDFromBytes(data[recordsEnd+d:])

	for i := 1; i < n; i++ {
		if bytes.Compare(idx.idAt(i-1), idx.idAt(i)) >= 0 {
			return nil, fmt.Errorf("entry %d out of order: %w", i, ErrCorrupt)
		}
	}
	if err := checkIndexDigest(data, SHA1, idx.IndexChecksum); err != nil {
		return nil, err
	}
	return idx, nil
}

func checkIndexDigest(data []byte, algo HashAlgo, stored ObjectID) error {
	h := algo.New()
	h.Write(data[:len(data)-algo.Size()])
	if ObjectIDFromBytes(h.Sum(nil)) != stored {
		return fmt.Errorf("index checksum: %w", ErrCorrupt)
	}
	return nil
}
