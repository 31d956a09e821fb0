package object

import (
	"fmt"
)

// DefaultDeltaDepthLimit bounds delta chain resolution. Generous for
// real packs, finite for corrupt or malicious ones.
const DefaultDeltaDepthLimit = 50

// resolver reconstructs the content of one packed entry, walking its
// delta chain. Resolved bases are cached for the duration of this
// single resolution request; a base shared by several deltas in one
// chain walk is materialized once.
type resolver struct {
	store   *Store // ref-delta base lookup; may be nil for pack-only use
	pack    *PackHandle
	limit   int
	visited map[uint64]struct{}
	bases   map[uint64]resolvedBase
}

type resolvedBase struct {
	kind    ObjectKind
	content []byte
}

func newResolver(store *Store, pack *PackHandle, limit int) *resolver {
	if limit <= 0 {
		limit = DefaultDeltaDepthLimit
	}
	return &resolver{
		store:   store,
		pack:    pack,
		limit:   limit,
		visited: make(map[uint64]struct{}),
		bases:   make(map[uint64]resolvedBase),
	}
}

// materialize returns the fully resolved kind and content of the entry
// at offset, replaying delta chains as needed.
func (r *resolver) materialize(offset uint64, depth int) (ObjectKind, []byte, error) {
	if cached, ok := r.bases[offset]; ok {
		return cached.kind, cached.content, nil
	}
	if depth > r.limit {
		return "", nil, fmt.Errorf("depth %d at offset %d: %w", depth, offset, ErrDeltaChainTooDeep)
	}
	if _, seen := r.visited[offset]; seen {
		return "", nil, fmt.Errorf("offset %d revisited: %w", offset, ErrDeltaCycle)
	}
	r.visited[offset] = struct{}{}

	entry, err := r.pack.EntryAt(offset)
	if err != nil {
		return "", nil, err
	}

	var (
		kind    ObjectKind
		content []byte
	)
	switch {
	case !entry.Kind.IsDelta():
		kind, _ = entry.Kind.ObjectKind()
		content = entry.Payload

	case entry.Kind == EntryOfsDelta:
		baseOffset := offset - entry.BaseDistance
		if baseOffset < packHeaderSize {
			return "", nil, fmt.Errorf("ofs-delta base offset %d at %d: %w",
				baseOffset, offset, ErrCorrupt)
		}
		baseKind, base, err := r.materialize(baseOffset, depth+1)
		if err != nil {
			return "", nil, err
		}
		content, err = applyDelta(base, entry.Payload)
		if err != nil {
			return "", nil, fmt.Errorf("ofs-delta at %d: %w", offset, err)
		}
		kind = baseKind

	case entry.Kind == EntryRefDelta:
		if r.store == nil {
			return "", nil, fmt.Errorf("ref-delta at %d: base %s outside pack: %w",
				offset, entry.BaseID.Short(), ErrNotFound)
		}
		if depth+1 > r.limit {
			return "", nil, fmt.Errorf("depth %d at offset %d: %w",
				depth+1, offset, ErrDeltaChainTooDeep)
		}
		baseObj, err := r.store.resolve(entry.BaseID, depth+1)
		if err != nil {
			return "", nil, fmt.Errorf("ref-delta base %s: %w", entry.BaseID.Short(), err)
		}
		content, err = applyDelta(baseObj.Content, entry.Payload)
		if err != nil {
			return "", nil, fmt.Errorf("ref-delta at %d: %w", offset, err)
		}
		kind = baseObj.Kind
	}

	r.bases[offset] = resolvedBase{kind: kind, content: content}
	return kind, content, nil
}
