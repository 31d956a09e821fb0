package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/plumb/pkg/object"
)

// Repo represents an opened repository, wrapping the object store
// with the filesystem-level navigation model: pack groups, loose
// shards, refs. Everything here is read-only.
type Repo struct {
	Root   string        // directory Open was given
	GitDir string        // metadata directory (.git or the root itself)
	Store  *object.Store // object resolution facade
}

// Open discovers the metadata directory under root and builds the
// store over it.
func Open(root string, opts ...object.Option) (*Repo, error) {
	store, err := object.Open(root, opts...)
	if err != nil {
		return nil, err
	}
	return &Repo{
		Root:   root,
		GitDir: store.GitDir(),
		Store:  store,
	}, nil
}

// PackGroup is one pack and its companion files. PackPath and
// IndexPath are always set; RevPath and MtimesPath are empty when the
// companion does not exist.
type PackGroup struct {
	Base       string // file name without extension, e.g. "pack-abc123"
	PackPath   string
	IndexPath  string
	RevPath    string
	MtimesPath string
}

// PackGroups lists pack/index pairs under objects/pack in name order,
// with .rev and .mtimes companions attached. Packs without an index
// are skipped: without one, nothing can be looked up.
func (r *Repo) PackGroups() ([]PackGroup, error) {
	packDir := filepath.Join(r.GitDir, "objects", "pack")
	entries, err := os.ReadDir(packDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pack dir: %w", err)
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			present[entry.Name()] = true
		}
	}

	var groups []PackGroup
	for name := range present {
		base, ok := strings.CutSuffix(name, ".pack")
		if !ok || !present[base+".idx"] {
			continue
		}
		g := PackGroup{
			Base:      base,
			PackPath:  filepath.Join(packDir, base+".pack"),
			IndexPath: filepath.Join(packDir, base+".idx"),
		}
		if present[base+".rev"] {
			g.RevPath = filepath.Join(packDir, base+".rev")
		}
		if present[base+".mtimes"] {
			g.MtimesPath = filepath.Join(packDir, base+".mtimes")
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Base < groups[j].Base })
	return groups, nil
}

// LooseStats aggregates the loose half of the object database.
type LooseStats struct {
	Count     int
	TotalSize int64 // compressed on-disk bytes
	Shards    int   // populated 2-hex-char directories
}

// LooseStats walks the loose shards and totals file counts and sizes.
// It reads directory metadata only; no object is inflated.
func (r *Repo) LooseStats() (LooseStats, error) {
	var stats LooseStats
	objectsDir := filepath.Join(r.GitDir, "objects")
	shards, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("read objects dir: %w", err)
	}

	for _, shard := range shards {
		name := shard.Name()
		if !shard.IsDir() || len(name) != 2 || !isHexPair(name) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(objectsDir, name))
		if err != nil {
			return stats, fmt.Errorf("read shard %s: %w", name, err)
		}
		counted := false
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			info, err := file.Info()
			if err != nil {
				continue
			}
			stats.Count++
			stats.TotalSize += info.Size()
			counted = true
		}
		if counted {
			stats.Shards++
		}
	}
	return stats, nil
}

func isHexPair(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
