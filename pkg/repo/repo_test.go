package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// scaffold lays out a worktree-style repository skeleton. Object
// files carry placeholder bytes; these tests exercise the filesystem
// model, not decoding.
func scaffold(t *testing.T) (root, gitDir string) {
	t.Helper()
	root = t.TempDir()
	gitDir = filepath.Join(root, ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755))
	return root, gitDir
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestOpen(t *testing.T) {
	root, gitDir := scaffold(t)
	r, err := Open(root)
	require.NoError(t, err)
	require.Equal(t, root, r.Root)
	require.Equal(t, gitDir, r.GitDir)
	require.NotNil(t, r.Store)
}

func TestOpenNotRepository(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
}

func TestPackGroups(t *testing.T) {
	root, gitDir := scaffold(t)
	packDir := filepath.Join(gitDir, "objects", "pack")

	writeFile(t, filepath.Join(packDir, "pack-aaa.pack"), "p")
	writeFile(t, filepath.Join(packDir, "pack-aaa.idx"), "i")
	writeFile(t, filepath.Join(packDir, "pack-aaa.rev"), "r")

	writeFile(t, filepath.Join(packDir, "pack-bbb.pack"), "p")
	writeFile(t, filepath.Join(packDir, "pack-bbb.idx"), "i")
	writeFile(t, filepath.Join(packDir, "pack-bbb.mtimes"), "m")

	// Orphan pack without an index is not a usable group.
	writeFile(t, filepath.Join(packDir, "pack-ccc.pack"), "p")

	r, err := Open(root)
	require.NoError(t, err)
	groups, err := r.PackGroups()
	require.NoError(t, err)
	require.Len(t, groups, 2)

	require.Equal(t, "pack-aaa", groups[0].Base)
	require.NotEmpty(t, groups[0].RevPath)
	require.Empty(t, groups[0].MtimesPath)

	require.Equal(t, "pack-bbb", groups[1].Base)
	require.Empty(t, groups[1].RevPath)
	require.NotEmpty(t, groups[1].MtimesPath)
}

func TestPackGroupsEmpty(t *testing.T) {
	root, _ := scaffold(t)
	r, err := Open(root)
	require.NoError(t, err)
	groups, err := r.PackGroups()
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestLooseStats(t *testing.T) {
	root, gitDir := scaffold(t)
	writeFile(t, filepath.Join(gitDir, "objects", "ab", "cdef"), "12345")
	writeFile(t, filepath.Join(gitDir, "objects", "ab", "9999"), "123")
	writeFile(t, filepath.Join(gitDir, "objects", "ff", "0000"), "1")
	// Non-shard directories are ignored.
	writeFile(t, filepath.Join(gitDir, "objects", "info", "alternates"), "x")

	r, err := Open(root)
	require.NoError(t, err)
	stats, err := r.LooseStats()
	require.NoError(t, err)
	require.Equal(t, 3, stats.Count)
	require.Equal(t, int64(9), stats.TotalSize)
	require.Equal(t, 2, stats.Shards)
}

func TestObjectTree(t *testing.T) {
	root, gitDir := scaffold(t)
	writeFile(t, filepath.Join(gitDir, "objects", "ab", "cdef"), "x")
	writeFile(t, filepath.Join(gitDir, "objects", "pack", "pack-x.pack"), "p")
	writeFile(t, filepath.Join(gitDir, "objects", "pack", "pack-x.idx"), "i")
	writeFile(t, filepath.Join(gitDir, "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(gitDir, "refs", "heads", "main"), "ce013625030ba8dba906f756967f9e9ca394464a\n")
	writeFile(t, filepath.Join(gitDir, "packed-refs"), "# pack-refs with: peeled\n")

	r, err := Open(root)
	require.NoError(t, err)
	tree, err := r.ObjectTree()
	require.NoError(t, err)

	require.Len(t, tree.LooseShards, 1)
	require.Equal(t, ShardNode{Prefix: "ab", Count: 1}, tree.LooseShards[0])
	require.Len(t, tree.Packs, 1)
	require.Len(t, tree.Refs, 1)
	require.Equal(t, "refs/heads/main", tree.HeadTarget)
	require.Equal(t, "ce013625030ba8dba906f756967f9e9ca394464a", tree.HeadID)
	require.True(t, tree.PackedRefs)
	require.False(t, tree.Stash)
}
