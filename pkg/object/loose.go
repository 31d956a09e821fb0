package object

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// ReadLoose decompresses and parses a single loose-object file. The
// inflated form is "<kind> <size>\0<content>"; the id is implied by
// the storage path (2-char shard directory + remaining hex).
//
// If the re-hashed content disagrees with the path-implied id, the
// decoded object is returned together with an ErrIntegrityMismatch:
// the tool's job is to show reality, not enforce it.
func ReadLoose(path string) (*DecodedObject, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loose %s: %w", path, err)
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("loose %s: zlib: %w", path, ErrCorrupt)
	}
	inflated, err := io.ReadAll(zr)
	if err != nil {
		_ = zr.Close()
		return nil, fmt.Errorf("loose %s: inflate: %w", path, ErrCorrupt)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("loose %s: inflate: %w", path, ErrCorrupt)
	}

	kind, size, content, err := parseLooseEnvelope(inflated)
	if err != nil {
		return nil, fmt.Errorf("loose %s: %w", path, err)
	}

	obj := &DecodedObject{
		Kind:    kind,
		Size:    size,
		Content: content,
		Provenance: Provenance{
			Source: SourceLoose,
			Path:   path,
		},
	}

	implied, ok := looseIDFromPath(path)
	if !ok {
		// Path does not encode an id; trust the content.
		obj.ID = HashObject(SHA1, kind, content)
		return obj, nil
	}
	algo, err := implied.Algo()
	if err != nil {
		return nil, fmt.Errorf("loose %s: %w", path, err)
	}
	obj.ID = implied

	if computed := HashObject(algo, kind, content); computed != implied {
		return obj, fmt.Errorf("loose %s: stored as %s but content hashes to %s: %w",
			path, implied.Short(), computed.Short(), ErrIntegrityMismatch)
	}
	return obj, nil
}

func parseLooseEnvelope(data []byte) (ObjectKind, uint64, []byte, error) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return "", 0, nil, fmt.Errorf("no NUL after header: %w", ErrCorrupt)
	}
	header := string(data[:nul])
	content := data[nul+1:]

	word, sizeStr, ok := strings.Cut(header, " ")
	if !ok {
		return "", 0, nil, fmt.Errorf("malformed header %q: %w", header, ErrCorrupt)
	}
	kind, err := ParseKind(word)
	if err != nil {
		return "", 0, nil, err
	}
	size, err := strconv.ParseUint(sizeStr, 10, 64)
	if err != nil {
		return "", 0, nil, fmt.Errorf("bad size %q: %w", sizeStr, ErrCorrupt)
	}
	if uint64(len(content)) != size {
		return "", 0, nil, fmt.Errorf("header declares %d bytes, got %d: %w",
			size, len(content), ErrSizeMismatch)
	}
	return kind, size, content, nil
}

// looseIDFromPath reconstructs the object id from the 2/rest filename
// split. Reports false when the path does not look like a shard path.
func looseIDFromPath(path string) (ObjectID, bool) {
	file := filepath.Base(path)
	shard := filepath.Base(filepath.Dir(path))
	if len(shard) != 2 || !isHex(shard) || !isHex(file) {
		return "", false
	}
	id := ObjectID(shard + file)
	if _, err := id.Algo(); err != nil {
		return "", false
	}
	return id, true
}

func isHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
