package object

import (
	"bytes"
	"fmt"
	"io"
)

// DeltaSizes is the decoded prelude of a delta instruction stream:
// the declared base length and reconstructed length.
type DeltaSizes struct {
	BaseSize   uint64
	ResultSize uint64
	HeaderLen  int
}

// ParseDeltaSizes decodes the two size varints that prefix a delta
// stream without replaying instructions. Used for diagnostics and the
// pack inspection views.
func ParseDeltaSizes(delta []byte) (DeltaSizes, error) {
	r := bytes.NewReader(delta)
	baseSize, err := readDeltaVarint(r)
	if err != nil {
		return DeltaSizes{}, fmt.Errorf("delta base size: %w", err)
	}
	resultSize, err := readDeltaVarint(r)
	if err != nil {
		return DeltaSizes{}, fmt.Errorf("delta result size: %w", err)
	}
	return DeltaSizes{
		BaseSize:   baseSize,
		ResultSize: resultSize,
		HeaderLen:  len(delta) - r.Len(),
	}, nil
}

// applyDelta replays a delta instruction stream against a resolved
// base and returns the reconstructed content. The output length must
// equal the stream's declared result size.
func applyDelta(base, delta []byte) ([]byte, error) {
	dr := bytes.NewReader(delta)

	baseSize, err := readDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("delta base size: %w", err)
	}
	if uint64(len(base)) != baseSize {
		return nil, fmt.Errorf("delta declares base of %d bytes, have %d: %w",
			baseSize, len(base), ErrSizeMismatch)
	}
	resultSize, err := readDeltaVarint(dr)
	if err != nil {
		return nil, fmt.Errorf("delta result size: %w", err)
	}

	out := make([]byte, 0, resultSize)
	for dr.Len() > 0 {
		cmd, err := dr.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("delta command: %w", ErrCorrupt)
		}

		if cmd&0x80 != 0 {
			offset, size, err := readCopyArgs(dr, cmd)
			if err != nil {
				return nil, err
			}
			if offset+size > uint64(len(base)) {
				return nil, fmt.Errorf("delta copy [%d,%d) beyond base of %d bytes: %w",
					offset, offset+size, len(base), ErrCorrupt)
			}
			out = append(out, base[offset:offset+size]...)
			continue
		}

		if cmd == 0 {
			return nil, fmt.Errorf("delta command 0 is reserved: %w", ErrCorrupt)
		}
		insert := make([]byte, int(cmd))
		if _, err := io.ReadFull(dr, insert); err != nil {
			return nil, fmt.Errorf("delta insert of %d bytes: %w", cmd, ErrCorrupt)
		}
		out = append(out, insert...)
	}

	if uint64(len(out)) != resultSize {
		return nil, fmt.Errorf("delta produced %d bytes, declared %d: %w",
			len(out), resultSize, ErrSizeMismatch)
	}
	return out, nil
}

// readCopyArgs decodes the flag-byte-selected little-endian offset and
// size fields of a copy instruction. A size of zero means 0x10000.
func readCopyArgs(r io.ByteReader, cmd byte) (uint64, uint64, error) {
	var offset, size uint64
	for bit := 0; bit < 4; bit++ {
		if cmd&(1<<bit) != 0 {
			b, err := r.ReadByte()
			if err != nil {
				return 0, 0, fmt.Errorf("delta copy offset byte %d: %w", bit, ErrCorrupt)
			}
			offset |= uint64(b) << (8 * bit)
		}
	}
	for bit := 4; bit < 7; bit++ {
		if cmd&(1<<bit) != 0 {
			b, err := r.ReadByte()
			if err != nil {
				return 0, 0, fmt.Errorf("delta copy size byte %d: %w", bit-4, ErrCorrupt)
			}
			size |= uint64(b) << (8 * (bit - 4))
		}
	}
	if size == 0 {
		size = 0x10000
	}
	return offset, size, nil
}

func readDeltaVarint(r io.ByteReader) (uint64, error) {
	var (
		value uint64
		shift uint
	)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, ErrCorrupt
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return value, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("varint overflow: %w", ErrCorrupt)
		}
	}
}
