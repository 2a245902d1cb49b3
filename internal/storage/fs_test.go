package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("# Intro\n---\nsecond card\n")
	if err := s.Write("sessions/s1.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("sessions/s1.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestDeleteMissingWrapsNotExist(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("media/s1/a.webp", []byte("x"))
	if err := s.Delete("media/s1/a.webp"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	err := s.Delete("media/s1/a.webp")
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("second delete err = %v, want os.ErrNotExist", err)
	}
}

func TestListFiltersByExtension(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("media/s1/a.webp", []byte("a"))
	_ = s.Write("media/s1/b.WEBP", []byte("b"))
	_ = s.Write("media/s1/notes.txt", []byte("c"))
	_ = s.Write("media/s2/c.webp", []byte("d"))

	items, err := s.List("media/s1", ".webp")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(items), items)
	}
	for _, it := range items {
		if filepath.Dir(filepath.FromSlash(it.Path)) != filepath.Join("media", "s1") {
			t.Errorf("unexpected path %q", it.Path)
		}
	}
}

func TestListMissingDir(t *testing.T) {
	s := tempRoot(t)
	items, err := s.List("media/nothing", ".webp")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %v", items)
	}
}

func TestStat(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("media/s1/a.webp", []byte("12345"))
	info, err := s.Stat("media/s1/a.webp")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 5 {
		t.Errorf("size = %d, want 5", info.Size)
	}
	if _, err := s.Stat("media/s1/missing.webp"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing stat err = %v", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.md",
		"/etc/shadow",
		"media/../../x.webp",
	}
	for _, p := range cases {
		if _, err := s.Read(p); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Read(%q) err = %v, want ErrUnsafePath", p, err)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if err := s.Delete(p); err == nil {
			t.Errorf("expected error for delete of %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("sessions/atomic.md", []byte("original content"))
	if err := s.Write("sessions/atomic.md", []byte("updated content")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("sessions/atomic.md")
	if string(got) != "updated content" {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, "sessions", TempPrefix+"*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
	items, _ := s.List("sessions", "")
	if len(items) != 1 {
		t.Errorf("List saw %d files, want 1", len(items))
	}
}

func TestAbs(t *testing.T) {
	s := tempRoot(t)
	abs, err := s.Abs("media/s1/a.webp")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if abs != filepath.Join(s.Root(), "media", "s1", "a.webp") {
		t.Errorf("Abs = %q", abs)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp(t.TempDir(), "growthlab-test-*")
	_ = f.Close()
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
