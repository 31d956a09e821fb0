package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/plumb/pkg/object"
)

// Fingerprint identifies a file state cheaply. Content is never read;
// mtime plus size is enough to notice storage churn.
type Fingerprint struct {
	ModTime time.Time
	Size    int64
}

// DirState is one snapshot of the watched portion of a metadata
// directory, keyed by slash-separated path relative to it.
type DirState struct {
	Taken time.Time
	Files map[string]Fingerprint
}

// EntityKind classifies what a changed path means.
type EntityKind int

const (
	EntityLooseObject EntityKind = iota
	EntityPack
	EntityRef
	EntityMeta
)

func (k EntityKind) String() string {
	switch k {
	case EntityLooseObject:
		return "loose"
	case EntityPack:
		return "pack"
	case EntityRef:
		return "ref"
	}
	return "meta"
}

// Entity is one logical changed thing: an object id, a pack base
// name, a ref name, or a metadata file.
type Entity struct {
	Kind EntityKind
	Name string
}

func (e Entity) String() string { return fmt.Sprintf("%s:%s", e.Kind, e.Name) }

// ChangeSet is the logical difference between two snapshots.
type ChangeSet struct {
	Added    []Entity
	Removed  []Entity
	Modified []Entity
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// ObjectIDs returns the loose object ids named anywhere in the set,
// for store cache invalidation.
func (c ChangeSet) ObjectIDs() []object.ObjectID {
	var ids []object.ObjectID
	for _, group := range [][]Entity{c.Added, c.Removed, c.Modified} {
		for _, e := range group {
			if e.Kind == EntityLooseObject {
				ids = append(ids, object.ObjectID(e.Name))
			}
		}
	}
	return ids
}

// Snapshot fingerprints the watched paths under gitDir: loose shards,
// the pack directory listing, refs, HEAD, and packed-refs. Missing
// pieces are simply absent from the result.
func Snapshot(gitDir string) (*DirState, error) {
	state := &DirState{
		Taken: time.Now(),
		Files: make(map[string]Fingerprint),
	}

	objectsDir := filepath.Join(gitDir, "objects")
	shards, err := os.ReadDir(objectsDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot objects: %w", err)
	}
	for _, shard := range shards {
		name := shard.Name()
		if !shard.IsDir() || len(name) != 2 {
			continue
		}
		if err := snapshotDir(state, gitDir, filepath.Join(objectsDir, name)); err != nil {
			return nil, err
		}
	}

	if err := snapshotDir(state, gitDir, filepath.Join(objectsDir, "pack")); err != nil {
		return nil, err
	}

	refsDir := filepath.Join(gitDir, "refs")
	err = filepath.WalkDir(refsDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		return recordFile(state, gitDir, path)
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot refs: %w", err)
	}

	for _, meta := range []string{"HEAD", "packed-refs"} {
		if err := recordFile(state, gitDir, filepath.Join(gitDir, meta)); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func snapshotDir(state *DirState, gitDir, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("snapshot %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := recordFile(state, gitDir, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func recordFile(state *DirState, gitDir, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		// Raced away between listing and stat, or never existed.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	rel, err := filepath.Rel(gitDir, path)
	if err != nil {
		return err
	}
	state.Files[filepath.ToSlash(rel)] = Fingerprint{
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}
	return nil
}

// Diff compares two snapshots and classifies every differing path
// into its logical entity. Several paths may collapse into one
// entity: a rewritten pack touches .pack and .idx together.
func Diff(prev, cur *DirState) ChangeSet {
	added := map[Entity]bool{}
	removed := map[Entity]bool{}
	modified := map[Entity]bool{}

	for path, fp := range cur.Files {
		entity, ok := classify(path)
		if !ok {
			continue
		}
		old, existed := prev.Files[path]
		switch {
		case !existed:
			added[entity] = true
		case old != fp:
			modified[entity] = true
		}
	}
	for path := range prev.Files {
		if _, still := cur.Files[path]; still {
			continue
		}
		if entity, ok := classify(path); ok {
			removed[entity] = true
		}
	}

	// An entity both added and removed (pack companion churn) is a
	// modification of the whole.
	for entity := range added {
		if removed[entity] {
			delete(added, entity)
			delete(removed, entity)
			modified[entity] = true
		}
	}

	return ChangeSet{
		Added:    sortedEntities(added),
		Removed:  sortedEntities(removed),
		Modified: sortedEntities(modified),
	}
}

// classify maps a gitDir-relative path to its logical entity. Lock
// files and unrecognized paths report false.
func classify(path string) (Entity, bool) {
	if strings.HasSuffix(path, ".lock") {
		return Entity{}, false
	}
	switch {
	case strings.HasPrefix(path, "objects/pack/"):
		base := strings.TrimPrefix(path, "objects/pack/")
		if i := strings.LastIndexByte(base, '.'); i > 0 {
			base = base[:i]
		}
		return Entity{Kind: EntityPack, Name: base}, true

	case strings.HasPrefix(path, "objects/"):
		rest := strings.TrimPrefix(path, "objects/")
		shard, file, ok := strings.Cut(rest, "/")
		if !ok || len(shard) != 2 || strings.Contains(file, "/") {
			return Entity{}, false
		}
		return Entity{Kind: EntityLooseObject, Name: shard + file}, true

	case strings.HasPrefix(path, "refs/"):
		return Entity{Kind: EntityRef, Name: path}, true

	case path == "HEAD" || path == "packed-refs":
		return Entity{Kind: EntityMeta, Name: path}, true
	}
	return Entity{}, false
}

func sortedEntities(set map[Entity]bool) []Entity {
	if len(set) == 0 {
		return nil
	}
	out := make([]Entity, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Name < out[j].Name
	})
	return out
}
