package object

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zlib"
)

// PackHandle gives random and sequential access to the entries of one
// pack file. It holds no open file descriptor; every call opens the
// pack fresh and closes it on return.
type PackHandle struct {
	path   string
	algo   HashAlgo
	Header PackHeader
}

// RawEntry is one decoded pack entry. For literal kinds Payload is the
// object content; for delta kinds it is the undecoded delta
// instruction stream.
type RawEntry struct {
	Kind          PackEntryKind
	Size          uint64 // uncompressed payload size from the entry header
	Offset        uint64 // byte offset of the entry header in the pack
	HeaderLen     int
	CompressedLen int

	BaseDistance uint64   // ofs-delta: bytes backward to the base entry
	BaseID       ObjectID // ref-delta: base object id

	Payload []byte
}

// OpenPack validates the pack signature and version and records the
// declared object count. algo selects the digest width used for
// ref-delta base ids and the trailing checksum.
func OpenPack(path string, algo HashAlgo) (*PackHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", path, err)
	}
	defer f.Close()

	var hdr [packHeaderSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return nil, fmt.Errorf("pack %s: %w", path, ErrTruncatedPack)
	}
	parsed, err := parsePackHeader(hdr[:])
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", path, err)
	}
	return &PackHandle{path: path, algo: algo, Header: *parsed}, nil
}

// Path returns the pack file path.
func (p *PackHandle) Path() string { return p.path }

// Algo returns the digest algorithm the pack was opened with.
func (p *PackHandle) Algo() HashAlgo { return p.algo }

// EntryAt seeks to offset, parses the entry header, and inflates the
// payload. Entries are back-to-back with no length prefix; the
// decompressor's end-of-stream signal delimits the entry.
func (p *PackHandle) EntryAt(offset uint64) (*RawEntry, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", p.path, err)
	}
	defer f.Close()

	payloadEnd, err := p.payloadEnd(f)
	if err != nil {
		return nil, err
	}
	if offset < packHeaderSize || offset >= uint64(payloadEnd) {
		return nil, fmt.Errorf("pack %s: offset %d outside entry region: %w",
			p.path, offset, ErrTruncatedPack)
	}

	section := io.NewSectionReader(f, int64(offset), payloadEnd-int64(offset))
	cr := &countingReader{r: section}
	br := bufio.NewReader(cr)

	entry, err := p.readEntry(br, cr, offset)
	if err != nil {
		return nil, fmt.Errorf("pack %s at %d: %w", p.path, offset, err)
	}
	return entry, nil
}

// Scan walks all entries in pack order, invoking fn with each. The
// walk is cancellable between entries.
func (p *PackHandle) Scan(ctx context.Context, fn func(*RawEntry) error) error {
	f, err := os.Open(p.path)
	if err != nil {
		return fmt.Errorf("pack %s: %w", p.path, err)
	}
	defer f.Close()

	payloadEnd, err := p.payloadEnd(f)
	if err != nil {
		return err
	}

	section := io.NewSectionReader(f, packHeaderSize, payloadEnd-packHeaderSize)
	cr := &countingReader{r: section}
	br := bufio.NewReader(cr)

	for i := uint32(0); i < p.Header.NumObjects; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := packHeaderSize + uint64(cr.n) - uint64(br.Buffered())
		entry, err := p.readEntry(br, cr, offset)
		if err != nil {
			return fmt.Errorf("pack %s entry %d at %d: %w", p.path, i, offset, err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// VerifyChecksum re-hashes the pack payload and compares it against
// the trailing whole-file checksum, returning the stored checksum.
func (p *PackHandle) VerifyChecksum() (ObjectID, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return "", fmt.Errorf("pack %s: %w", p.path, err)
	}
	digest := p.algo.Size()
	if len(data) < packHeaderSize+digest {
		return "", fmt.Errorf("pack %s: %w", p.path, ErrTruncatedPack)
	}
	payload := data[:len(data)-digest]
	trailer := data[len(data)-digest:]

	h := p.algo.New()
	h.Write(payload)
	if !bytes.Equal(h.Sum(nil), trailer) {
		return "", fmt.Errorf("pack %s: trailer checksum: %w", p.path, ErrCorrupt)
	}
	return ObjectIDFromBytes(trailer), nil
}

func (p *PackHandle) payloadEnd(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("pack %s: %w", p.path, err)
	}
	end := fi.Size() - int64(p.algo.Size())
	if end < packHeaderSize {
		return 0, fmt.Errorf("pack %s: %d bytes: %w", p.path, fi.Size(), ErrTruncatedPack)
	}
	return end, nil
}

// readEntry parses one entry from br. The reader must be positioned at
// an entry header; on return it is positioned at the next entry.
func (p *PackHandle) readEntry(br *bufio.Reader, cr *countingReader, offset uint64) (*RawEntry, error) {
	start := uint64(cr.n) - uint64(br.Buffered())

	kind, size, err := readEntryHeader(br)
	if err != nil {
		return nil, err
	}

	entry := &RawEntry{Kind: kind, Size: size, Offset: offset}
	switch kind {
	case EntryOfsDelta:
		distance, err := readOfsDistance(br)
		if err != nil {
			return nil, err
		}
		if distance == 0 || distance > offset {
			return nil, fmt.Errorf("ofs-delta distance %d: %w", distance, ErrCorrupt)
		}
		entry.BaseDistance = distance
	case EntryRefDelta:
		raw := make([]byte, p.algo.Size())
		if _, err := io.ReadFull(br, raw); err != nil {
			return nil, fmt.Errorf("ref-delta base id: %w", ErrTruncatedPack)
		}
		entry.BaseID = ObjectIDFromBytes(raw)
	}
	entry.HeaderLen = int(uint64(cr.n) - uint64(br.Buffered()) - start)

	zr, err := zlib.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("zlib: %w", ErrCorrupt)
	}
	payload, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("inflate: %w", ErrTruncatedPack)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("inflate close: %w", ErrCorrupt)
	}
	if uint64(len(payload)) != size {
		return nil, fmt.Errorf("header declares %d bytes, inflated %d: %w",
			size, len(payload), ErrSizeMismatch)
	}
	entry.Payload = payload
	entry.CompressedLen = int(uint64(cr.n) - uint64(br.Buffered()) - start - uint64(entry.HeaderLen))
	return entry, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
