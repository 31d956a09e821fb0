package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/plumb/pkg/object"
)

// Ref is a named pointer into the object database. Packed reports
// whether the value came from packed-refs rather than a loose file.
type Ref struct {
	Name   string // full name, e.g. "refs/heads/main"
	ID     object.ObjectID
	Packed bool
}

// Refs lists every reference, merging loose files under refs/ with
// packed-refs. A loose ref shadows a packed one of the same name.
// Results are sorted by name.
func (r *Repo) Refs() ([]Ref, error) {
	byName := make(map[string]Ref)

	packed, err := r.packedRefs()
	if err != nil {
		return nil, err
	}
	for _, ref := range packed {
		byName[ref.Name] = ref
	}

	loose, err := r.looseRefs()
	if err != nil {
		return nil, err
	}
	for _, ref := range loose {
		byName[ref.Name] = ref
	}

	refs := make([]Ref, 0, len(byName))
	for _, ref := range byName {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func (r *Repo) looseRefs() ([]Ref, error) {
	root := filepath.Join(r.GitDir, "refs")
	var refs []Ref
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(r.GitDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		value := strings.TrimSpace(string(data))
		if strings.HasPrefix(value, "ref: ") {
			// Symbolic refs are resolved at display time, not here.
			return nil
		}
		refs = append(refs, Ref{
			Name: filepath.ToSlash(rel),
			ID:   object.ObjectID(value),
		})
		return nil
	})
	if os.IsNotExist(err) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walk refs: %w", err)
	}
	return refs, nil
}

// packedRefs parses the packed-refs file: one "<id> <name>" record
// per line, "#" comment lines, "^" peeled-target lines attached to
// the preceding tag and skipped here.
func (r *Repo) packedRefs() ([]Ref, error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "packed-refs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read packed-refs: %w", err)
	}

	var refs []Ref
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "^") {
			continue
		}
		id, name, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		refs = append(refs, Ref{Name: name, ID: object.ObjectID(id), Packed: true})
	}
	return refs, nil
}

// Head returns the current HEAD: the ref name when symbolic (detached
// empty), and the commit id when resolvable through Refs.
func (r *Repo) Head() (refName string, id object.ObjectID, err error) {
	data, err := os.ReadFile(filepath.Join(r.GitDir, "HEAD"))
	if err != nil {
		return "", "", fmt.Errorf("read HEAD: %w", err)
	}
	value := strings.TrimSpace(string(data))

	if target, ok := strings.CutPrefix(value, "ref: "); ok {
		refs, err := r.Refs()
		if err != nil {
			return target, "", err
		}
		for _, ref := range refs {
			if ref.Name == target {
				return target, ref.ID, nil
			}
		}
		// Unborn branch: the symref exists, its target does not.
		return target, "", nil
	}
	return "", object.ObjectID(value), nil
}

// HasStash reports whether a stash ref exists, loose or packed.
func (r *Repo) HasStash() (bool, error) {
	if _, err := os.Stat(filepath.Join(r.GitDir, "refs", "stash")); err == nil {
		return true, nil
	}
	refs, err := r.packedRefs()
	if err != nil {
		return false, err
	}
	for _, ref := range refs {
		if ref.Name == "refs/stash" {
			return true, nil
		}
	}
	return false, nil
}
