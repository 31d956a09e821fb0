package object

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zlib"
)

// Test fixtures build synthetic loose objects, packs, and indexes in
// memory. The tool itself never writes to a repository, so the
// encoders live here.

func deflate(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("deflate: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("deflate close: %v", err)
	}
	return buf.Bytes()
}

func looseEnvelope(kind ObjectKind, content []byte) []byte {
	header := fmt.Sprintf("%s %d\x00", kind, len(content))
	return append([]byte(header), content...)
}

// writeLoose stores a loose object under its content-derived id and
// returns that id.
func writeLoose(t *testing.T, gitDir string, algo HashAlgo, kind ObjectKind, content []byte) ObjectID {
	t.Helper()
	id := HashObject(algo, kind, content)
	writeLooseAs(t, gitDir, id, kind, content)
	return id
}

// writeLooseAs stores a loose object under an explicit id, which may
// deliberately disagree with the content for integrity tests.
func writeLooseAs(t *testing.T, gitDir string, id ObjectID, kind ObjectKind, content []byte) {
	t.Helper()
	dir := filepath.Join(gitDir, "objects", string(id[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir shard: %v", err)
	}
	path := filepath.Join(dir, string(id[2:]))
	if err := os.WriteFile(path, deflate(t, looseEnvelope(kind, content)), 0o644); err != nil {
		t.Fatalf("write loose: %v", err)
	}
}

// encodeEntryHeader is the write-side inverse of readEntryHeader.
func encodeEntryHeader(kind PackEntryKind, size uint64) []byte {
	b := byte((kind & 0x7) << 4)
	b |= byte(size & 0x0f)
	size >>= 4

	out := make([]byte, 0, 10)
	if size > 0 {
		b |= 0x80
	}
	out = append(out, b)

	for size > 0 {
		next := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			next |= 0x80
		}
		out = append(out, next)
	}
	return out
}

// encodeOfsDistance emits the big-endian base-128 backward distance,
// decrementing before each continuation step to mirror the decoder's
// +1 accumulation.
func encodeOfsDistance(distance uint64) []byte {
	if distance == 0 {
		return []byte{0}
	}
	b := []byte{byte(distance & 0x7f)}
	for distance >>= 7; distance > 0; distance >>= 7 {
		distance--
		b = append([]byte{byte((distance & 0x7f) | 0x80)}, b...)
	}
	return b
}

// encodeDeltaVarint emits the little-endian base-128 size varint used
// in delta stream headers.
func encodeDeltaVarint(v uint64) []byte {
	if v == 0 {
		return []byte{0}
	}
	out := make([]byte, 0, 10)
	for v > 0 {
		b := byte(v & 0x7f)
		v >>= 7
		if v > 0 {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// packBuilder assembles a synthetic pack file entry by entry.
type packBuilder struct {
	t    *testing.T
	algo HashAlgo
	buf  bytes.Buffer
}

func newPackBuilder(t *testing.T, algo HashAlgo, numObjects uint32) *packBuilder {
	t.Helper()
	b := &packBuilder{t: t, algo: algo}
	b.buf.Write(packMagic[:])
	var v [8]byte
	binary.BigEndian.PutUint32(v[:4], 2)
	binary.BigEndian.PutUint32(v[4:], numObjects)
	b.buf.Write(v[:])
	return b
}

func (b *packBuilder) addLiteral(kind PackEntryKind, payload []byte) uint64 {
	offset := uint64(b.buf.Len())
	b.buf.Write(encodeEntryHeader(kind, uint64(len(payload))))
	b.buf.Write(deflate(b.t, payload))
	return offset
}

func (b *packBuilder) addOfsDelta(baseOffset uint64, delta []byte) uint64 {
	offset := uint64(b.buf.Len())
	b.buf.Write(encodeEntryHeader(EntryOfsDelta, uint64(len(delta))))
	b.buf.Write(encodeOfsDistance(offset - baseOffset))
	b.buf.Write(deflate(b.t, delta))
	return offset
}

func (b *packBuilder) addRefDelta(base ObjectID, delta []byte) uint64 {
	offset := uint64(b.buf.Len())
	b.buf.Write(encodeEntryHeader(EntryRefDelta, uint64(len(delta))))
	raw, err := base.RawBytes()
	if err != nil {
		b.t.Fatalf("ref-delta base id: %v", err)
	}
	b.buf.Write(raw)
	b.buf.Write(deflate(b.t, delta))
	return offset
}

// finish appends the trailing checksum and returns the pack bytes and
// its checksum id.
func (b *packBuilder) finish() ([]byte, ObjectID) {
	h := b.algo.New()
	h.Write(b.buf.Bytes())
	sum := h.Sum(nil)
	b.buf.Write(sum)
	return b.buf.Bytes(), ObjectIDFromBytes(sum)
}

// buildIndexV2 serializes entries as an idx v2 file.
func buildIndexV2(t *testing.T, algo HashAlgo, entries []PackIndexEntry, packChecksum ObjectID) []byte {
	t.Helper()
	sorted := sortedByID(entries)

	var buf bytes.Buffer
	buf.Write(idxV2Magic[:])
	writeBE32(&buf, 2)
	writeFanout(t, &buf, algo, sorted)

	for _, e := range sorted {
		buf.Write(mustRaw(t, e.ID))
	}
	for _, e := range sorted {
		writeBE32(&buf, e.CRC32)
	}
	var large []uint64
	for _, e := range sorted {
		if e.Offset < uint64(idxLargeOffsetBit) {
			writeBE32(&buf, uint32(e.Offset))
			continue
		}
		writeBE32(&buf, idxLargeOffsetBit|uint32(len(large)))
		large = append(large, e.Offset)
	}
	for _, off := range large {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], off)
		buf.Write(v[:])
	}

	buf.Write(mustRaw(t, packChecksum))
	h := algo.New()
	h.Write(buf.Bytes())
	buf.Write(h.Sum(nil))
	return buf.Bytes()
}

// buildIndexV1 serializes entries in the legacy v1 layout.
func buildIndexV1(t *testing.T, entries []PackIndexEntry, packChecksum ObjectID) []byte {
	t.Helper()
	sorted := sortedByID(entries)

	var buf bytes.Buffer
	writeFanout(t, &buf, SHA1, sorted)
	for _, e := range sorted {
		writeBE32(&buf, uint32(e.Offset))
		buf.Write(mustRaw(t, e.ID))
	}
	buf.Write(mustRaw(t, packChecksum))
	h := SHA1.New()
	h.Write(buf.Bytes())
	buf.Write(h.Sum(nil))
	return buf.Bytes()
}

func writePackWithIndex(t *testing.T, gitDir, base string, pack, index []byte) (string, string) {
	t.Helper()
	packDir := filepath.Join(gitDir, "objects", "pack")
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		t.Fatalf("mkdir pack dir: %v", err)
	}
	packPath := filepath.Join(packDir, base+".pack")
	idxPath := filepath.Join(packDir, base+".idx")
	if err := os.WriteFile(packPath, pack, 0o644); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	if err := os.WriteFile(idxPath, index, 0o644); err != nil {
		t.Fatalf("write idx: %v", err)
	}
	return packPath, idxPath
}

// insertOnlyDelta encodes target as literal insert chunks against base.
func insertOnlyDelta(base, target []byte) []byte {
	var out bytes.Buffer
	out.Write(encodeDeltaVarint(uint64(len(base))))
	out.Write(encodeDeltaVarint(uint64(len(target))))
	for pos := 0; pos < len(target); {
		chunk := len(target) - pos
		if chunk > 127 {
			chunk = 127
		}
		out.WriteByte(byte(chunk))
		out.Write(target[pos : pos+chunk])
		pos += chunk
	}
	return out.Bytes()
}

func sortedByID(entries []PackIndexEntry) []PackIndexEntry {
	out := make([]PackIndexEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func writeFanout(t *testing.T, buf *bytes.Buffer, algo HashAlgo, sorted []PackIndexEntry) {
	t.Helper()
	var counts [256]uint32
	for _, e := range sorted {
		counts[mustRaw(t, e.ID)[0]]++
	}
	var total uint32
	for i := 0; i < 256; i++ {
		total += counts[i]
		writeBE32(buf, total)
	}
}

func writeBE32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func mustRaw(t *testing.T, id ObjectID) []byte {
	t.Helper()
	raw, err := id.RawBytes()
	if err != nil {
		t.Fatalf("id %q: %v", id, err)
	}
	return raw
}

func repeatHex(pair string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += pair
	}
	return out
}
