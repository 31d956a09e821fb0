package object

import (
	"bytes"
	"fmt"
	"strings"
)

// Structured views over raw object content for the presentation
// layer. Raw bytes stay the source of truth: a parse failure degrades
// the display, never the read.

// Commit is the parsed header view of a commit object.
type Commit struct {
	Tree          ObjectID
	Parents       []ObjectID
	Author        string
	AuthorDate    string
	Committer     string
	CommitterDate string
	Message       string
}

// Tag is the parsed header view of an annotated tag object.
type Tag struct {
	Object     ObjectID
	TargetKind string
	Name       string
	Tagger     string
	TaggerDate string
	Message    string
}

// TreeEntry is one entry of a tree object.
type TreeEntry struct {
	Mode string
	Name string
	ID   ObjectID
}

// IsDir reports whether the entry points at a subtree.
func (e TreeEntry) IsDir() bool { return e.Mode == "40000" || e.Mode == "040000" }

// ParseCommit splits a commit's header lines and message.
func ParseCommit(content []byte) (*Commit, error) {
	c := &Commit{}
	headers, message, err := splitHeadersAndMessage(content)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	c.Message = message

	for _, line := range headers {
		switch key, rest, _ := strings.Cut(line, " "); key {
		case "tree":
			c.Tree = ObjectID(rest)
		case "parent":
			c.Parents = append(c.Parents, ObjectID(rest))
		case "author":
			c.Author, c.AuthorDate = splitIdentity(rest)
		case "committer":
			c.Committer, c.CommitterDate = splitIdentity(rest)
		}
	}
	if c.Tree == "" {
		return nil, fmt.Errorf("commit: no tree header: %w", ErrCorrupt)
	}
	return c, nil
}

// ParseTag splits an annotated tag's header lines and message.
func ParseTag(content []byte) (*Tag, error) {
	t := &Tag{}
	headers, message, err := splitHeadersAndMessage(content)
	if err != nil {
		return nil, fmt.Errorf("tag: %w", err)
	}
	t.Message = message

	for _, line := range headers {
		switch key, rest, _ := strings.Cut(line, " "); key {
		case "object":
			t.Object = ObjectID(rest)
		case "type":
			t.TargetKind = rest
		case "tag":
			t.Name = rest
		case "tagger":
			t.Tagger, t.TaggerDate = splitIdentity(rest)
		}
	}
	if t.Object == "" {
		return nil, fmt.Errorf("tag: no object header: %w", ErrCorrupt)
	}
	return t, nil
}

// ParseTree decodes the binary tree format: repeated
// "<mode> <name>\0<raw id>" records. The id width follows algo.
func ParseTree(content []byte, algo HashAlgo) ([]TreeEntry, error) {
	digest := algo.Size()
	entries := make([]TreeEntry, 0)

	for i := 0; i < len(content); {
		sp := bytes.IndexByte(content[i:], ' ')
		if sp < 0 {
			return nil, fmt.Errorf("tree entry %d: no mode terminator: %w", len(entries), ErrCorrupt)
		}
		mode := string(content[i : i+sp])
		i += sp + 1

		nul := bytes.IndexByte(content[i:], 0)
		if nul < 0 {
			return nil, fmt.Errorf("tree entry %d: no name terminator: %w", len(entries), ErrCorrupt)
		}
		name := string(content[i : i+nul])
		i += nul + 1

		if i+digest > len(content) {
			return nil, fmt.Errorf("tree entry %d: truncated id: %w", len(entries), ErrCorrupt)
		}
		entries = append(entries, TreeEntry{
			Mode: mode,
			Name: name,
			ID:   ObjectIDFromBytes(content[i : i+digest]),
		})
		i += digest
	}
	return entries, nil
}

func splitHeadersAndMessage(content []byte) ([]string, string, error) {
	text := string(content)
	head, message, found := strings.Cut(text, "\n\n")
	if !found {
		head = strings.TrimSuffix(text, "\n")
	}
	if head == "" {
		return nil, "", fmt.Errorf("no headers: %w", ErrCorrupt)
	}
	return strings.Split(head, "\n"), message, nil
}

// splitIdentity splits "Name <email> epoch tz" into the identity part
// and the trailing date part.
func splitIdentity(s string) (string, string) {
	end := strings.LastIndexByte(s, '>')
	if end < 0 || end+2 > len(s) {
		return s, ""
	}
	return s[:end+1], strings.TrimSpace(s[end+1:])
}
