package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSumKnownVector(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Sum([]byte("hello")); got != want {
		t.Errorf("Sum = %s", got)
	}
	got, err := SumReader(strings.NewReader("hello"))
	if err != nil || got != want {
		t.Errorf("SumReader = %s, %v", got, err)
	}
}

func TestSumFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := SumFile(p)
	if err != nil {
		t.Fatalf("SumFile: %v", err)
	}
	if got != Sum([]byte("hello")) {
		t.Errorf("SumFile mismatch: %s", got)
	}
	if _, err := SumFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
