package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/growthlab/internal/apperr"
	"github.com/starford/growthlab/internal/convert"
	"github.com/starford/growthlab/internal/index"
	"github.com/starford/growthlab/internal/storage"
	"github.com/starford/growthlab/internal/testutil"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	root  string
	store *storage.FS
	db    *index.DB
	conv  *testutil.StubConverter
	svc   *Service
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	root, store := testutil.TestRoot(t)
	f := &fixture{root: root, store: store, db: testutil.TestDB(t), conv: &testutil.StubConverter{}}
	f.svc = New(store, f.db, f.conv, cfg, testutil.QuietLogger(),
		WithClock(func() time.Time { return fixedNow }),
		WithStageDir(t.TempDir()))
	return f
}

func (f *fixture) mediaFiles(t *testing.T, sid string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.root, "media", sid))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestUpload_StoresCanonicalFile(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.svc.Upload(context.Background(), Request{SessionID: "s1", Filename: "photo.PNG", Data: []byte("png-bytes")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.Path != "media/s1/20240101_000000.webp" || res.Duplicate {
		t.Errorf("result = %+v", res)
	}
	got, err := f.store.Read(res.Path)
	if err != nil || string(got) != "webp:png-bytes" {
		t.Errorf("stored = %q, %v", got, err)
	}
	entries, err := f.db.Entries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected source and output hashes, got %+v", entries)
	}
}

func TestUpload_DuplicateReturnsSamePath(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	req := Request{SessionID: "s1", Filename: "a.jpg", Data: []byte("same")}

	first, err := f.svc.Upload(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.Upload(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if second.Path != first.Path || !second.Duplicate {
		t.Errorf("second = %+v, want duplicate of %s", second, first.Path)
	}
	if f.conv.Calls() != 1 {
		t.Errorf("converter calls = %d, want 1", f.conv.Calls())
	}
	if files := f.mediaFiles(t, "s1"); len(files) != 1 {
		t.Errorf("media files = %v", files)
	}

	// Uploading the converted output again also dedups.
	out, _ := f.store.Read(first.Path)
	third, err := f.svc.Upload(ctx, Request{SessionID: "s1", Filename: "again.webp", Data: out})
	if err != nil {
		t.Fatal(err)
	}
	if !third.Duplicate || third.Path != first.Path {
		t.Errorf("third = %+v", third)
	}

	// Dedup is scoped to the session.
	other, err := f.svc.Upload(ctx, Request{SessionID: "s2", Filename: "a.jpg", Data: []byte("same")})
	if err != nil {
		t.Fatal(err)
	}
	if other.Duplicate || !strings.HasPrefix(other.Path, "media/s2/") {
		t.Errorf("other session = %+v", other)
	}
}

func TestUpload_StaleIndexEntryReconverts(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	req := Request{SessionID: "s1", Filename: "a.gif", Data: []byte("GIF89a...")}

	first, err := f.svc.Upload(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.store.Delete(first.Path); err != nil {
		t.Fatal(err)
	}
	again, err := f.svc.Upload(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if again.Duplicate {
		t.Error("a deleted file must not be reported as duplicate")
	}
	if _, err := f.store.Stat(again.Path); err != nil {
		t.Errorf("reconverted file missing: %v", err)
	}
}

func TestUpload_NameCollisionGetsSuffix(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	a, err := f.svc.Upload(ctx, Request{SessionID: "s1", Filename: "a.png", Data: []byte("one")})
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.svc.Upload(ctx, Request{SessionID: "s1", Filename: "b.png", Data: []byte("two")})
	if err != nil {
		t.Fatal(err)
	}
	if a.Path != "media/s1/20240101_000000.webp" || b.Path != "media/s1/20240101_000000_1.webp" {
		t.Errorf("paths = %s, %s", a.Path, b.Path)
	}
}

func TestUpload_DefaultSession(t *testing.T) {
	f := newFixture(t, Config{})
	res, err := f.svc.Upload(context.Background(), Request{Filename: "a.png", Data: []byte("x")})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Path, "media/"+DefaultSession+"/") {
		t.Errorf("path = %s", res.Path)
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t, Config{MaxBytes: 8})
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"too large", Request{Filename: "a.png", Data: []byte("123456789")}, apperr.ErrTooLarge},
		{"empty", Request{Filename: "a.png"}, apperr.ErrEmptyFile},
		{"bad extension", Request{Filename: "a.svg", Data: []byte("x")}, apperr.ErrUnsupportedType},
		{"no extension", Request{Filename: "image", Data: []byte("x")}, apperr.ErrUnsupportedType},
		{"traversal session", Request{SessionID: "../x", Filename: "a.png", Data: []byte("x")}, apperr.ErrInvalidName},
		{"bad session chars", Request{SessionID: "s 1", Filename: "a.png", Data: []byte("x")}, apperr.ErrInvalidName},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := f.svc.Validate(c.req)
			if !errors.Is(err, c.want) {
				t.Errorf("err = %v, want %v", err, c.want)
			}
		})
	}
	if f.conv.Calls() != 0 {
		t.Error("validation failures must not reach the converter")
	}
}

func TestUpload_ConversionFailureLeavesNothing(t *testing.T) {
	f := newFixture(t, Config{})
	f.conv.Fail = true
	if _, err := f.svc.Upload(context.Background(), Request{SessionID: "s1", Filename: "a.png", Data: []byte("x")}); err == nil {
		t.Fatal("expected error")
	}
	if files := f.mediaFiles(t, "s1"); len(files) != 0 {
		t.Errorf("leftover files: %v", files)
	}
}

type silentConverter struct{}

func (silentConverter) Convert(context.Context, string, string, convert.Kind) error { return nil }

func TestUpload_MissingOutput(t *testing.T) {
	_, store := testutil.TestRoot(t)
	svc := New(store, nil, silentConverter{}, Config{}, testutil.QuietLogger(), WithStageDir(t.TempDir()))
	_, err := svc.Upload(context.Background(), Request{SessionID: "s1", Filename: "a.png", Data: []byte("x")})
	if !errors.Is(err, apperr.ErrOutputMissing) {
		t.Errorf("err = %v, want ErrOutputMissing", err)
	}
	if apperr.HTTPStatus(err) != 500 {
		t.Errorf("status = %d", apperr.HTTPStatus(err))
	}
}

func TestUpload_ConcurrentIdenticalUploads(t *testing.T) {
	f := newFixture(t, Config{})
	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.Upload(context.Background(), Request{SessionID: "s1", Filename: "a.png", Data: []byte("same")})
			paths[i], errs[i] = res.Path, err
		}(i)
	}
	wg.Wait()
	for i := range paths {
		if errs[i] != nil {
			t.Fatalf("upload %d: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Errorf("paths diverged: %v", paths)
		}
	}
	if files := f.mediaFiles(t, "s1"); len(files) != 1 {
		t.Errorf("media files = %v", files)
	}
}

// chainConverter is a convert.Converter whose behaviour depends on the
// staged source bytes.
type chainConverter struct {
	name string
	role convert.Role
	fn   func(ctx context.Context, src []byte, dst string) error
}

func (c *chainConverter) Name() string               { return c.name }
func (c *chainConverter) Role() convert.Role         { return c.role }
func (c *chainConverter) Supports(convert.Kind) bool { return true }
func (c *chainConverter) Convert(ctx context.Context, src, dst string, _ convert.Kind) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return c.fn(ctx, data, dst)
}

func TestUpload_FallbackKeepsReservedName(t *testing.T) {
	root, store := testutil.TestRoot(t)
	started := make(chan struct{})
	release := make(chan struct{})

	primary := &chainConverter{name: "primary", role: convert.GeneralPurpose,
		fn: func(_ context.Context, src []byte, dst string) error {
			if string(src) == "AAAA" {
				_ = os.WriteFile(dst, []byte("partial"), 0o644)
				return errors.New("unsupported")
			}
			return os.WriteFile(dst, append([]byte("webp:"), src...), 0o644)
		}}
	fallback := &chainConverter{name: "fallback", role: convert.Fallback,
		fn: func(_ context.Context, src []byte, dst string) error {
			close(started)
			<-release
			return os.WriteFile(dst, append([]byte("webp:"), src...), 0o644)
		}}
	gw := convert.NewGateway([]convert.Converter{primary, fallback}, convert.Options{MaxConcurrent: 2}, testutil.QuietLogger())
	svc := New(store, testutil.TestDB(t), gw, Config{}, testutil.QuietLogger(),
		WithClock(func() time.Time { return fixedNow }),
		WithStageDir(t.TempDir()))

	ctx := context.Background()
	type outcome struct {
		path string
		err  error
	}
	aDone := make(chan outcome, 1)
	go func() {
		res, err := svc.Upload(ctx, Request{SessionID: "s1", Filename: "a.png", Data: []byte("AAAA")})
		aDone <- outcome{res.Path, err}
	}()
	<-started

	b, err := svc.Upload(ctx, Request{SessionID: "s1", Filename: "b.png", Data: []byte("BBBB")})
	close(release)
	a := <-aDone
	if err != nil || a.err != nil {
		t.Fatalf("uploads failed: a=%v b=%v", a.err, err)
	}

	if a.path == b.Path {
		t.Fatalf("both uploads stored at %s", a.path)
	}
	for p, want := range map[string]string{a.path: "webp:AAAA", b.Path: "webp:BBBB"} {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
		if err != nil || string(got) != want {
			t.Errorf("%s = %q, %v; want %q", p, got, err, want)
		}
	}
}
