package fs

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/engineercoding/dedupe/testutil"
)

func collect(t *testing.T, s *Scanner, root string) ([]string, []error) {
	t.Helper()
	var paths []string
	var errs []error
	for rec, err := range s.Scan(context.Background(), root) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rel, relErr := filepath.Rel(root, rec.Path)
		if relErr != nil {
			t.Fatalf("Rel() unexpected error: %v", relErr)
		}
		paths = append(paths, filepath.ToSlash(rel))
	}
	return paths, errs
}

func TestScanOrderAndFiltering(t *testing.T) {
	root := testutil.TempDir(t, "scan")
	testutil.CreateTree(t, root, map[string]string{
		"b/2.bin":         "two",
		"b/1.bin":         "one",
		"a/z.txt":         "zzz",
		"a/sub/deep.bin":  "deep",
		"c.bin":           "c",
		"skip.tmp":        "tmp",
		"cache/junk.bin":  "junk",
		"store/obj.bin":   "stored",
		"tiny/empty.bin":  "",
	})
	if err := os.Symlink(filepath.Join(root, "c.bin"), filepath.Join(root, "a", "link.bin")); err != nil {
		t.Fatalf("Symlink() unexpected error: %v", err)
	}
	// A symlinked directory loop must not be followed
	if err := os.Symlink(root, filepath.Join(root, "a", "loop")); err != nil {
		t.Fatalf("Symlink() unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		scanner Scanner
		want    []string
	}{
		{
			name:    "all regular files",
			scanner: Scanner{},
			want: []string{
				"a/sub/deep.bin", "a/z.txt", "b/1.bin", "b/2.bin", "c.bin",
				"cache/junk.bin", "skip.tmp", "store/obj.bin", "tiny/empty.bin",
			},
		},
		{
			name: "exclude globs and skip dirs",
			scanner: Scanner{
				Exclude:  []string{"*.tmp", "cache"},
				SkipDirs: []string{filepath.Join(root, "store")},
			},
			want: []string{"a/sub/deep.bin", "a/z.txt", "b/1.bin", "b/2.bin", "c.bin", "tiny/empty.bin"},
		},
		{
			name:    "min size",
			scanner: Scanner{MinSize: 4},
			want:    []string{"a/sub/deep.bin", "cache/junk.bin", "store/obj.bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := collect(t, &tt.scanner, root)
			if len(errs) != 0 {
				t.Fatalf("Scan() unexpected errors: %v", errs)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Scan() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScanRecordsMetadata(t *testing.T) {
	root := testutil.TempDir(t, "scan-meta")
	path := testutil.CreateTestFile(t, root, "f.bin", "hello")

	s := &Scanner{}
	for rec, err := range s.Scan(context.Background(), root) {
		if err != nil {
			t.Fatalf("Scan() unexpected error: %v", err)
		}
		if rec.Path != path {
			t.Errorf("Path = %s, want %s", rec.Path, path)
		}
		if rec.Size != 5 {
			t.Errorf("Size = %d, want 5", rec.Size)
		}
		if rec.ModTime.IsZero() {
			t.Error("ModTime not set")
		}
		if !rec.Fingerprint.IsZero() {
			t.Error("Fingerprint should not be computed by the scanner")
		}
	}
}

func TestScanContinuesPastUnreadableDirectory(t *testing.T) {
	testutil.SkipIfRoot(t)

	root := testutil.TempDir(t, "scan-perm")
	testutil.CreateTree(t, root, map[string]string{
		"locked/secret.bin": "secret",
		"open/visible.bin":  "visible",
	})
	locked := filepath.Join(root, "locked")
	if err := os.Chmod(locked, 0o000); err != nil {
		t.Fatalf("Chmod() unexpected error: %v", err)
	}
	defer os.Chmod(locked, 0o755)

	got, errs := collect(t, &Scanner{}, root)
	if !reflect.DeepEqual(got, []string{"open/visible.bin"}) {
		t.Errorf("Scan() = %v, want [open/visible.bin]", got)
	}
	if len(errs) != 1 {
		t.Fatalf("Scan() errors = %v, want exactly one", errs)
	}
	var pe *iofs.PathError
	if !errors.As(errs[0], &pe) || pe.Path != locked {
		t.Errorf("Scan() error = %v, want path error for %s", errs[0], locked)
	}
}

func TestScanStopsWhenConsumerBreaks(t *testing.T) {
	root := testutil.TempDir(t, "scan-break")
	testutil.CreateTree(t, root, map[string]string{"1": "a", "2": "b", "3": "c"})

	count := 0
	for _, err := range (&Scanner{}).Scan(context.Background(), root) {
		if err != nil {
			t.Fatalf("Scan() unexpected error: %v", err)
		}
		count++
		break
	}
	if count != 1 {
		t.Errorf("consumed %d records, want 1", count)
	}
}

func TestScanCancelled(t *testing.T) {
	root := testutil.TempDir(t, "scan-cancel")
	testutil.CreateTree(t, root, map[string]string{"1": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range (&Scanner{}).Scan(ctx, root) {
		if err != nil {
			gotErr = err
		}
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", gotErr)
	}
}
