// Package testutil provides shared test helpers for content roots, hash
// databases and converters.
package testutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"github.com/starford/growthlab/internal/convert"
	"github.com/starford/growthlab/internal/index"
	"github.com/starford/growthlab/internal/storage"
)

// TestDB creates a temporary SQLite hash index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "growthlab-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRoot creates a temporary content root with a storage provider.
func TestRoot(t *testing.T) (string, *storage.FS) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// WriteFile writes content to rel under store, failing the test on error.
func WriteFile(t *testing.T, store storage.Provider, rel, content string) {
	t.Helper()
	if err := store.Write(rel, []byte(content)); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

// QuietLogger returns a logger that discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StubConverter copies its input to dst, optionally failing instead.
type StubConverter struct {
	Fail  bool
	calls atomic.Int32
}

// Convert implements upload.Converter.
func (c *StubConverter) Convert(_ context.Context, src, dst string, _ convert.Kind) error {
	c.calls.Add(1)
	if c.Fail {
		return errors.New("stub: conversion failed")
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("webp:"), data...), 0o644)
}

// Calls returns how many conversions were attempted.
func (c *StubConverter) Calls() int { return int(c.calls.Load()) }
