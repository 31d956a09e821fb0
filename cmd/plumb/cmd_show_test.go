package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/spf13/cobra"

	"github.com/odvcencio/plumb/pkg/object"
)

// fixtureRepo builds a minimal worktree repository with real loose
// objects and points the global --repo target at it.
func fixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	if err := os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PLUMB_CONFIG", filepath.Join(root, "no-config.toml"))
	prev := repoPath
	repoPath = root
	t.Cleanup(func() { repoPath = prev })
	return gitDir
}

func storeLoose(t *testing.T, gitDir string, kind object.ObjectKind, content []byte) object.ObjectID {
	t.Helper()
	id := object.HashObject(object.SHA1, kind, content)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	fmt.Fprintf(zw, "%s %d\x00", kind, len(content))
	zw.Write(content)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(gitDir, "objects", string(id[:2]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, string(id[2:])), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return id
}

func runCmd(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%s: %v\noutput:\n%s", cmd.Use, err, out.String())
	}
	return out.String()
}

func TestShowBlob(t *testing.T) {
	gitDir := fixtureRepo(t)
	id := storeLoose(t, gitDir, object.KindBlob, []byte("hello\n"))

	out := runCmd(t, newShowCmd(), string(id))
	if !strings.Contains(out, "blob "+string(id)) {
		t.Errorf("missing header in output:\n%s", out)
	}
	if !strings.Contains(out, "size: 6") {
		t.Errorf("missing size in output:\n%s", out)
	}
	if !strings.Contains(out, "hello\n") {
		t.Errorf("missing content in output:\n%s", out)
	}
}

func TestShowCommitStructured(t *testing.T) {
	gitDir := fixtureRepo(t)
	commit := "tree 4b825dc642cb6eb9a060e54bf8d69288fbee4904\n" +
		"author A U Thor <a@example.com> 1700000000 +0000\n" +
		"committer A U Thor <a@example.com> 1700000000 +0000\n\n" +
		"say hello\n"
	id := storeLoose(t, gitDir, object.KindCommit, []byte(commit))

	out := runCmd(t, newShowCmd(), string(id))
	if !strings.Contains(out, "tree      4b825dc642cb6eb9a060e54bf8d69288fbee4904") {
		t.Errorf("missing tree line:\n%s", out)
	}
	if !strings.Contains(out, "say hello") {
		t.Errorf("missing message:\n%s", out)
	}
}

func TestShowUnknownID(t *testing.T) {
	fixtureRepo(t)
	cmd := newShowCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{strings.Repeat("9", 40)})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for a missing object")
	}
}

func TestRefsCommand(t *testing.T) {
	gitDir := fixtureRepo(t)
	id := strings.Repeat("1", 40)
	if err := os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "refs", "heads", "main"), []byte(id+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := runCmd(t, newRefsCmd())
	if !strings.Contains(out, id+" loose   refs/heads/main") {
		t.Errorf("missing ref line:\n%s", out)
	}
	if !strings.Contains(out, "HEAD -> refs/heads/main") {
		t.Errorf("missing HEAD line:\n%s", out)
	}
}

func TestListCommand(t *testing.T) {
	gitDir := fixtureRepo(t)
	storeLoose(t, gitDir, object.KindBlob, []byte("content\n"))

	out := runCmd(t, newListCmd(), "loose")
	if !strings.Contains(out, "1 objects in 1 shards") {
		t.Errorf("missing loose stats:\n%s", out)
	}
}
