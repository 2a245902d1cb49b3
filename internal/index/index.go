package index

import "context"

// HashIndex defines the operations the upload pipeline and the garbage
// collector need. Consumers depend on this interface rather than *DB.
type HashIndex interface {
	Lookup(ctx context.Context, dir, hash string) (string, bool, error)
	Register(ctx context.Context, dir, filename string, hashes ...string) error
	Forget(ctx context.Context, dir, filename string) error
	Entries(ctx context.Context) ([]Entry, error)
}

// Verify *DB satisfies HashIndex at compile time.
var _ HashIndex = (*DB)(nil)
