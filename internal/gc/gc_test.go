package gc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/starford/growthlab/internal/cards"
	"github.com/starford/growthlab/internal/storage"
)

type recordingIndex struct {
	mu     sync.Mutex
	forgot []string
}

func (r *recordingIndex) Forget(_ context.Context, dir, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgot = append(r.forgot, dir+"|"+filename)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRoot(t *testing.T, files ...string) *storage.FS {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range files {
		if err := fs.Write(f, []byte("img:"+f)); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func exists(t *testing.T, fs *storage.FS, p string) bool {
	t.Helper()
	_, err := os.Stat(filepath.Join(fs.Root(), filepath.FromSlash(p)))
	return err == nil
}

const (
	imgA = "media/s1/a.webp"
	imgB = "media/s1/b.webp"
	imgC = "media/s1/c.webp"
)

func TestReconcile_DeletesOnlyDroppedRefs(t *testing.T) {
	fs := testRoot(t, imgA, imgB, imgC)
	idx := &recordingIndex{}
	var hooked []string
	c := New(fs, quietLogger(), WithIndex(idx), WithDeleteHook(func(p string) { hooked = append(hooked, p) }))

	oldText := "![a](" + imgA + ")\n---\n<img src=\"" + imgB + "\">"
	newText := "![b](" + imgB + ")\n---\n![c](" + imgC + ")"

	if n := c.Reconcile(context.Background(), oldText, newText, "s1"); n != 1 {
		t.Fatalf("deleted = %d, want 1", n)
	}
	if exists(t, fs, imgA) {
		t.Error("A should be deleted")
	}
	if !exists(t, fs, imgB) || !exists(t, fs, imgC) {
		t.Error("B and C must be kept")
	}
	if !reflect.DeepEqual(idx.forgot, []string{"media/s1|a.webp"}) {
		t.Errorf("forgot = %v", idx.forgot)
	}
	if !reflect.DeepEqual(hooked, []string{imgA}) {
		t.Errorf("hook = %v", hooked)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	fs := testRoot(t, imgA, imgB)
	c := New(fs, quietLogger())
	oldText := "![a](" + imgA + ") ![b](" + imgB + ")"
	newText := "![b](" + imgB + ")"

	if n := c.Reconcile(context.Background(), oldText, newText, "s1"); n != 1 {
		t.Fatalf("first run deleted %d", n)
	}
	if n := c.Reconcile(context.Background(), oldText, newText, "s1"); n != 0 {
		t.Errorf("second run deleted %d, want 0", n)
	}
	if !exists(t, fs, imgB) {
		t.Error("B must survive repeated reconciliation")
	}
}

func TestReconcile_IgnoresOtherSessions(t *testing.T) {
	fs := testRoot(t, "media/s2/x.webp")
	c := New(fs, quietLogger())
	if n := c.Reconcile(context.Background(), "![x](media/s2/x.webp)", "", "s1"); n != 0 {
		t.Errorf("deleted %d files of another session", n)
	}
	if !exists(t, fs, "media/s2/x.webp") {
		t.Error("other session's media removed")
	}
}

func TestReconcile_TraversalNeverLeavesSession(t *testing.T) {
	fs := testRoot(t, "media/s2/keep.webp", "media/keep.webp", "media/s1/sub/x.webp")
	if err := fs.Write("sessions/s2.md", []byte("![kept](media/s2/keep.webp)")); err != nil {
		t.Fatal(err)
	}
	c := New(fs, quietLogger())
	old := "![x](media/s1/../s2/keep.webp)\n" +
		`<img src="media/s1/../keep.webp">` + "\n" +
		"![y](media/s1/sub/x.webp)"
	if n := c.Reconcile(context.Background(), old, "", "s1"); n != 0 {
		t.Errorf("deleted %d files through unclean paths", n)
	}
	for _, p := range []string{"media/s2/keep.webp", "media/keep.webp", "media/s1/sub/x.webp"} {
		if !exists(t, fs, p) {
			t.Errorf("%s removed", p)
		}
	}
}

func TestReconcile_CardDeletionKeepsSharedMedia(t *testing.T) {
	fs := testRoot(t, imgA, imgB)
	doc := cards.Join([]string{
		"![first](" + imgA + ")\n![only here](" + imgB + ")",
		"![again](" + imgA + ")",
	})
	if err := fs.Write("sessions/s1.md", []byte(doc)); err != nil {
		t.Fatal(err)
	}
	store := cards.NewStore(fs, "sessions")
	del, err := store.DeleteCard(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("DeleteCard: %v", err)
	}

	c := New(fs, quietLogger())
	if n := c.Reconcile(context.Background(), del.DeletedCard, del.NewText, "s1"); n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if !exists(t, fs, imgA) {
		t.Error("A is still referenced by the surviving card")
	}
	if exists(t, fs, imgB) {
		t.Error("B was only referenced by the deleted card")
	}
}

func TestConfined(t *testing.T) {
	cases := map[string]bool{
		"media/s1/a.webp":           true,
		"media/s1/nested/a.webp":    true,
		"media/s1/a.png":            false,
		"sessions/s1.md":            false,
		"../media/s1/a.webp":        false,
		"media/../sessions/x.webp":  false,
		"media/s1/../../etc/x.webp": false,
		"/media/s1/a.webp":          false,
		"media\\s1\\a.webp":         false,
		"media/s1//a.webp":          false,
		"":                          false,
		"mediax/s1/a.webp":          false,
	}
	for p, want := range cases {
		if got := Confined(p); got != want {
			t.Errorf("Confined(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestDiscardUploads(t *testing.T) {
	fs := testRoot(t, imgA, imgB, "sessions/s1.md")
	c := New(fs, quietLogger())

	n := c.DiscardUploads(context.Background(), []string{imgA, "sessions/s1.md", "media/s1/missing.webp", "../" + imgB})
	if n != 1 {
		t.Errorf("discarded = %d, want 1", n)
	}
	if exists(t, fs, imgA) {
		t.Error("A should be discarded")
	}
	if !exists(t, fs, "sessions/s1.md") || !exists(t, fs, imgB) {
		t.Error("paths outside confinement must be kept")
	}
}

func TestPruneUnreferenced(t *testing.T) {
	fs := testRoot(t, imgA, imgB, "media/s2/c.webp")
	c := New(fs, quietLogger())

	final := "![kept](/" + imgA + ")"
	n := c.PruneUnreferenced(context.Background(), []string{imgA, imgB, "media/s2/c.webp"}, final)
	if n != 2 {
		t.Errorf("pruned = %d, want 2", n)
	}
	if !exists(t, fs, imgA) {
		t.Error("referenced upload removed")
	}
	if exists(t, fs, imgB) || exists(t, fs, "media/s2/c.webp") {
		t.Error("unreferenced uploads kept")
	}
}

type fakeDocs struct {
	docs map[string]string
	fail string
}

func (f fakeDocs) List(context.Context) ([]string, error) {
	var out []string
	for n := range f.docs {
		out = append(out, n)
	}
	return out, nil
}

func (f fakeDocs) Read(_ context.Context, name string) (string, []string, error) {
	if name == f.fail {
		return "", nil, errors.New("permission denied")
	}
	text := f.docs[name]
	return text, cards.Split(text), nil
}

func TestSweep(t *testing.T) {
	fs := testRoot(t, imgA, imgB, imgC, "media/s1/young.webp")
	old := time.Now().Add(-2 * time.Hour)
	for _, p := range []string{imgA, imgB, imgC} {
		_ = os.Chtimes(filepath.Join(fs.Root(), filepath.FromSlash(p)), old, old)
	}
	docs := fakeDocs{docs: map[string]string{
		"s1": "![a](" + imgA + ")",
		"s9": "borrowed: ![b](" + imgB + ")",
	}}

	c := New(fs, quietLogger())
	rep, err := c.Sweep(context.Background(), docs, "s1", time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	want := SweepReport{Session: "s1", Scanned: 4, Referenced: 2, Young: 1, Deleted: 1}
	if rep != want {
		t.Errorf("report = %+v, want %+v", rep, want)
	}
	if exists(t, fs, imgC) {
		t.Error("C is orphaned and old")
	}
	if !exists(t, fs, imgB) {
		t.Error("B is referenced from another session document")
	}
	if !exists(t, fs, "media/s1/young.webp") {
		t.Error("young file inside grace window removed")
	}
}

func TestSweep_SkipsNestedFiles(t *testing.T) {
	fs := testRoot(t, "media/s1/sub/x.webp")
	c := New(fs, quietLogger())
	rep, err := c.Sweep(context.Background(), fakeDocs{}, "s1", 0)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if rep.Scanned != 0 || rep.Deleted != 0 || !exists(t, fs, "media/s1/sub/x.webp") {
		t.Errorf("nested file touched: %+v", rep)
	}
}

func TestSweep_AbortsOnReadError(t *testing.T) {
	fs := testRoot(t, imgA)
	docs := fakeDocs{docs: map[string]string{"s1": "", "broken": ""}, fail: "broken"}
	c := New(fs, quietLogger())
	if _, err := c.Sweep(context.Background(), docs, "s1", 0); err == nil {
		t.Fatal("expected error")
	}
	if !exists(t, fs, imgA) {
		t.Error("sweep deleted files despite failing to read a document")
	}
}

func TestSweep_InvalidSession(t *testing.T) {
	c := New(testRoot(t), quietLogger())
	if _, err := c.Sweep(context.Background(), fakeDocs{}, "../etc", 0); err == nil {
		t.Error("expected invalid name error")
	}
}
