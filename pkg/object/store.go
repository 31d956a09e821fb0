package object

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store is the read-only facade over a repository's object database.
// It discovers loose shards and pack/index pairs under the metadata
// directory and resolves any object by id regardless of physical
// location. Files are opened fresh per call; the store never writes
// under the repository.
type Store struct {
	gitDir     string
	depthLimit int

	mu       sync.Mutex
	cache    map[ObjectID]*DecodedObject
	inFlight map[ObjectID]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithDeltaDepthLimit overrides the delta chain resolution ceiling.
func WithDeltaDepthLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.depthLimit = limit
		}
	}
}

// Open locates the metadata directory under repoRoot: either a .git
// subdirectory or, for bare repositories, the root itself.
func Open(repoRoot string, opts ...Option) (*Store, error) {
	gitDir, err := DiscoverGitDir(repoRoot)
	if err != nil {
		return nil, err
	}
	s := &Store{
		gitDir:     gitDir,
		depthLimit: DefaultDeltaDepthLimit,
		cache:      make(map[ObjectID]*DecodedObject),
		inFlight:   make(map[ObjectID]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DiscoverGitDir resolves the metadata directory for a repository
// root, accepting both worktree checkouts and bare layouts.
func DiscoverGitDir(repoRoot string) (string, error) {
	gitDir := filepath.Join(repoRoot, ".git")
	if fi, err := os.Stat(gitDir); err == nil && fi.IsDir() {
		return gitDir, nil
	}
	if fi, err := os.Stat(filepath.Join(repoRoot, "objects")); err == nil && fi.IsDir() {
		return repoRoot, nil
	}
	return "", fmt.Errorf("%s: %w", repoRoot, ErrNotRepository)
}

// GitDir returns the metadata directory this store reads from.
func (s *Store) GitDir() string { return s.gitDir }

// LoosePath returns the shard path a loose copy of id would occupy.
func (s *Store) LoosePath(id ObjectID) string {
	return filepath.Join(s.gitDir, "objects", string(id[:2]), string(id[2:]))
}

// Resolve returns the decoded object for id, trying loose storage
// first and then every known pack index in sorted discovery order.
// A decoded object may accompany an ErrIntegrityMismatch.
func (s *Store) Resolve(id ObjectID) (*DecodedObject, error) {
	return s.resolve(id, 0)
}

// resolve carries the delta depth already consumed by the caller, so a
// chain of ref-delta bases re-entering the store keeps drawing from one
// budget instead of resetting it per pack.
func (s *Store) resolve(id ObjectID, depth int) (*DecodedObject, error) {
	if _, err := id.Algo(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if obj, ok := s.cache[id]; ok {
		s.mu.Unlock()
		return obj, nil
	}
	if _, busy := s.inFlight[id]; busy {
		s.mu.Unlock()
		return nil, fmt.Errorf("object %s: %w", id.Short(), ErrDeltaCycle)
	}
	s.inFlight[id] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
	}()

	// Loose wins over any packed copy of the same id.
	loosePath := s.LoosePath(id)
	if _, err := os.Stat(loosePath); err == nil {
		obj, err := ReadLoose(loosePath)
		if err != nil && obj == nil {
			return nil, err
		}
		if err == nil {
			s.cachePut(id, obj)
		}
		return obj, err
	}

	idxPaths, err := s.packIndexPaths()
	if err != nil {
		return nil, err
	}
	for _, idxPath := range idxPaths {
		idx, err := OpenIndex(idxPath)
		if err != nil {
			// Unreadable index degrades this pack only; other
			// sources stay usable.
			continue
		}
		entry, ok := idx.Find(id)
		if !ok {
			continue
		}

		pack, err := OpenPack(packPathForIndex(idxPath), idx.Algo())
		if err != nil {
			continue
		}
		obj, err := s.resolvePacked(pack, entry, depth)
		if err != nil && obj == nil {
			return nil, err
		}
		if err == nil {
			s.cachePut(id, obj)
		}
		return obj, err
	}

	return nil, fmt.Errorf("object %s: %w", id.Short(), ErrNotFound)
}

// resolvePacked materializes the entry's content (replaying deltas as
// needed), then re-hashes it against the id the index stores it under.
func (s *Store) resolvePacked(pack *PackHandle, entry PackIndexEntry, depth int) (*DecodedObject, error) {
	r := newResolver(s, pack, s.depthLimit)
	kind, content, err := r.materialize(entry.Offset, depth)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", entry.ID.Short(), err)
	}

	obj := &DecodedObject{
		ID:      entry.ID,
		Kind:    kind,
		Size:    uint64(len(content)),
		Content: content,
		Provenance: Provenance{
			Source: SourcePacked,
			Pack:   pack.Path(),
			Offset: entry.Offset,
		},
	}
	if computed := HashObject(pack.Algo(), kind, content); computed != entry.ID {
		return obj, fmt.Errorf("object %s: content hashes to %s: %w",
			entry.ID.Short(), computed.Short(), ErrIntegrityMismatch)
	}
	return obj, nil
}

// Objects enumerates every known id across all sources without
// duplication: loose objects by shard and filename, then packs in
// sorted discovery order, intra-pack in index order. Repeated calls
// against an unchanged repository yield identical sequences. The walk
// stops when ctx is cancelled or the consumer breaks.
func (s *Store) Objects(ctx context.Context) iter.Seq2[ObjectID, error] {
	return func(yield func(ObjectID, error) bool) {
		seen := make(map[ObjectID]struct{})

		looseIDs, err := s.looseIDs()
		if err != nil {
			yield("", err)
			return
		}
		for _, id := range looseIDs {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			seen[id] = struct{}{}
			if !yield(id, nil) {
				return
			}
		}

		idxPaths, err := s.packIndexPaths()
		if err != nil {
			yield("", err)
			return
		}
		for _, idxPath := range idxPaths {
			idx, err := OpenIndex(idxPath)
			if err != nil {
				if !yield("", err) {
					return
				}
				continue
			}
			for i := 0; i < idx.Count(); i++ {
				if err := ctx.Err(); err != nil {
					yield("", err)
					return
				}
				id := idx.EntryAt(i).ID
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				if !yield(id, nil) {
					return
				}
			}
		}
	}
}

// Invalidate drops any cached resolution for the given ids.
func (s *Store) Invalidate(ids ...ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.cache, id)
	}
}

// ClearCache drops every cached resolution. Safe to call on any
// ambiguity; correctness over cache retention.
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[ObjectID]*DecodedObject)
}

func (s *Store) cachePut(id ObjectID, obj *DecodedObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[id] = obj
}

// looseIDs lists every loose object id, sorted.
func (s *Store) looseIDs() ([]ObjectID, error) {
	objectsDir := filepath.Join(s.gitDir, "objects")
	shards, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	ids := make([]ObjectID, 0)
	for _, shard := range shards {
		if !shard.IsDir() {
			continue
		}
		prefix := shard.Name()
		if len(prefix) != 2 || !isHex(prefix) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(objectsDir, prefix))
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", prefix, err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			suffix := file.Name()
			if !isHex(suffix) {
				continue
			}
			id := ObjectID(prefix + suffix)
			if _, err := id.Algo(); err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// packIndexPaths lists .idx files under objects/pack, sorted for a
// fixed discovery order.
func (s *Store) packIndexPaths() ([]string, error) {
	packDir := filepath.Join(s.gitDir, "objects", "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	idxPaths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		idxPaths = append(idxPaths, filepath.Join(packDir, entry.Name()))
	}
	sort.Strings(idxPaths)
	return idxPaths, nil
}

func packPathForIndex(idxPath string) string {
	return strings.TrimSuffix(idxPath, ".idx") + ".pack"
}
