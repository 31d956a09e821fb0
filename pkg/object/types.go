package object

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// ObjectID is a lowercase hex-encoded object digest: 40 characters for
// SHA-1 repositories, 64 for SHA-256. Byte-wise ordering of the hex
// form matches byte-wise ordering of the raw digest.
type ObjectID string

// HashAlgo identifies the digest algorithm behind an ObjectID.
type HashAlgo int

const (
	SHA1 HashAlgo = iota
	SHA256
)

// Size returns the raw digest length in bytes.
func (a HashAlgo) Size() int {
	if a == SHA256 {
		return sha256.Size
	}
	return sha1.Size
}

// HexLen returns the hex-encoded digest length.
func (a HashAlgo) HexLen() int { return a.Size() * 2 }

// New returns a fresh hash.Hash for the algorithm.
func (a HashAlgo) New() hash.Hash {
	if a == SHA256 {
		return sha256.New()
	}
	return sha1.New()
}

func (a HashAlgo) String() string {
	if a == SHA256 {
		return "sha256"
	}
	return "sha1"
}

// Algo derives the algorithm from the id's length.
func (id ObjectID) Algo() (HashAlgo, error) {
	switch len(id) {
	case 40:
		return SHA1, nil
	case 64:
		return SHA256, nil
	}
	return 0, fmt.Errorf("object id %q: bad length %d: %w", id, len(id), ErrCorrupt)
}

// RawBytes decodes the id to its raw digest bytes.
func (id ObjectID) RawBytes() ([]byte, error) {
	if _, err := id.Algo(); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("object id %q: %w", id, ErrCorrupt)
	}
	return raw, nil
}

// Short returns the conventional 7-character abbreviation.
func (id ObjectID) Short() string {
	if len(id) < 7 {
		return string(id)
	}
	return string(id[:7])
}

// ObjectIDFromBytes encodes raw digest bytes as an ObjectID.
func ObjectIDFromBytes(raw []byte) ObjectID {
	return ObjectID(hex.EncodeToString(raw))
}

// ObjectKind identifies how an object's content is structured.
type ObjectKind string

const (
	KindBlob   ObjectKind = "blob"
	KindTree   ObjectKind = "tree"
	KindCommit ObjectKind = "commit"
	KindTag    ObjectKind = "tag"
)

// ParseKind maps a header kind word to an ObjectKind.
func ParseKind(word string) (ObjectKind, error) {
	switch ObjectKind(word) {
	case KindBlob, KindTree, KindCommit, KindTag:
		return ObjectKind(word), nil
	}
	return "", fmt.Errorf("object kind %q: %w", word, ErrUnknownKind)
}

// HashObject computes the id of the envelope "kind size\0content".
func HashObject(algo HashAlgo, kind ObjectKind, content []byte) ObjectID {
	h := algo.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(content))
	h.Write(content)
	return ObjectIDFromBytes(h.Sum(nil))
}

// Source says which physical storage satisfied a lookup.
type Source int

const (
	SourceLoose Source = iota
	SourcePacked
)

// Provenance records where an object's bytes came from. Diagnostics
// only; identity is always the ObjectID.
type Provenance struct {
	Source Source
	Path   string // loose object file
	Pack   string // pack file path
	Offset uint64 // entry offset within the pack
}

func (p Provenance) String() string {
	if p.Source == SourceLoose {
		return fmt.Sprintf("loose %s", p.Path)
	}
	return fmt.Sprintf("packed %s @%d", p.Pack, p.Offset)
}

// DecodedObject is the uniform typed view of one fully resolved object.
// Once resolution completes, len(Content) equals Size.
type DecodedObject struct {
	ID         ObjectID
	Kind       ObjectKind
	Size       uint64
	Content    []byte
	Provenance Provenance
}
