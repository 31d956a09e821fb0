package repo

import (
	"fmt"
	"os"
	"path/filepath"
)

// ObjectTree is the navigation model over a repository's storage: the
// categorized filesystem view a presentation layer renders. Building
// it reads directory listings and small metadata files only; no
// object content is inflated. Rebuild it on change notification
// rather than per interaction.
type ObjectTree struct {
	LooseShards []ShardNode
	Loose       LooseStats
	Packs       []PackGroup
	Refs        []Ref
	HeadTarget  string // symbolic target, empty when detached
	HeadID      string // resolved id, empty on unborn branches
	PackedRefs  bool   // packed-refs file present
	Stash       bool
}

// ShardNode is one populated loose shard directory.
type ShardNode struct {
	Prefix string // two hex chars
	Count  int    // object files inside
}

// ObjectTree assembles the full navigation model.
func (r *Repo) ObjectTree() (*ObjectTree, error) {
	tree := &ObjectTree{}

	shards, err := r.looseShards()
	if err != nil {
		return nil, err
	}
	tree.LooseShards = shards

	tree.Loose, err = r.LooseStats()
	if err != nil {
		return nil, err
	}
	tree.Packs, err = r.PackGroups()
	if err != nil {
		return nil, err
	}
	tree.Refs, err = r.Refs()
	if err != nil {
		return nil, err
	}

	if target, id, err := r.Head(); err == nil {
		tree.HeadTarget = target
		tree.HeadID = string(id)
	}
	if _, err := os.Stat(filepath.Join(r.GitDir, "packed-refs")); err == nil {
		tree.PackedRefs = true
	}
	tree.Stash, err = r.HasStash()
	if err != nil {
		return nil, err
	}
	return tree, nil
}

func (r *Repo) looseShards() ([]ShardNode, error) {
	objectsDir := filepath.Join(r.GitDir, "objects")
	entries, err := os.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read objects dir: %w", err)
	}

	var shards []ShardNode
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || len(name) != 2 || !isHexPair(name) {
			continue
		}
		files, err := os.ReadDir(filepath.Join(objectsDir, name))
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", name, err)
		}
		count := 0
		for _, file := range files {
			if !file.IsDir() {
				count++
			}
		}
		if count > 0 {
			shards = append(shards, ShardNode{Prefix: name, Count: count})
		}
	}
	return shards, nil
}
