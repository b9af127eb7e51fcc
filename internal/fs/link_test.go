package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/testutil"
)

func TestReplaceWithSymlink(t *testing.T) {
	dir := testutil.TempDir(t, "link")
	object := testutil.CreateTestFile(t, dir, "store/object", "payload")
	member := testutil.CreateTestFile(t, dir, "tree/member", "payload")

	if err := ReplaceWithSymlink(object, member); err != nil {
		t.Fatalf("ReplaceWithSymlink() unexpected error: %v", err)
	}

	if resolved := testutil.AssertSymlink(t, member); resolved != object {
		t.Errorf("link resolves to %s, want %s", resolved, object)
	}
	testutil.AssertFileNotExists(t, TempLinkPath(member))
	if !PointsTo(member, object) {
		t.Error("PointsTo() = false, want true")
	}
}

func TestReplaceWithSymlinkClearsStaleTempLink(t *testing.T) {
	dir := testutil.TempDir(t, "link-stale")
	object := testutil.CreateTestFile(t, dir, "object", "x")
	member := testutil.CreateTestFile(t, dir, "member", "x")
	if err := os.Symlink("nowhere", TempLinkPath(member)); err != nil {
		t.Fatalf("Symlink() unexpected error: %v", err)
	}

	if err := ReplaceWithSymlink(object, member); err != nil {
		t.Fatalf("ReplaceWithSymlink() unexpected error: %v", err)
	}
	testutil.AssertSymlink(t, member)
}

func TestReplaceWithSymlinkRefusesRegularTempName(t *testing.T) {
	dir := testutil.TempDir(t, "link-clash")
	object := testutil.CreateTestFile(t, dir, "object", "x")
	member := testutil.CreateTestFile(t, dir, "member", "x")
	testutil.CreateTestFile(t, dir, "member"+constants.TempLinkSuffix, "user data")

	if err := ReplaceWithSymlink(object, member); err == nil {
		t.Fatal("ReplaceWithSymlink() expected error but got none")
	}
	testutil.AssertRegularFile(t, member)
	testutil.AssertFileContains(t, TempLinkPath(member), "user data")
}

func TestLinkTarget(t *testing.T) {
	object := filepath.Join("/", "store", "objects", "blake3", "ab", "abcd-3")
	link := filepath.Join("/", "tree", "snap1", "file")

	tests := []struct {
		style   string
		want    string
		wantErr bool
	}{
		{"", object, false},
		{constants.LinkStyleAbsolute, object, false},
		{constants.LinkStyleRelative, filepath.Join("..", "..", "store", "objects", "blake3", "ab", "abcd-3"), false},
		{"sideways", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			got, err := LinkTarget(object, link, tt.style)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LinkTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("LinkTarget() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPointsToRelative(t *testing.T) {
	dir := testutil.TempDir(t, "points")
	object := testutil.CreateTestFile(t, dir, "store/obj", "x")
	link := filepath.Join(dir, "tree", "a", "link")
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatalf("MkdirAll() unexpected error: %v", err)
	}
	target, _ := LinkTarget(object, link, constants.LinkStyleRelative)
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("Symlink() unexpected error: %v", err)
	}

	if !PointsTo(link, object) {
		t.Error("PointsTo() = false for relative link")
	}
	if PointsTo(object, object) {
		t.Error("PointsTo() = true for a regular file")
	}
}
