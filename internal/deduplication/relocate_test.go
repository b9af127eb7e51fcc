package deduplication

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/fs"
	"github.com/engineercoding/dedupe/internal/store"
	"github.com/engineercoding/dedupe/testutil"
)

// groupTree scans root and returns its groups against a fresh store.
func groupTree(t *testing.T, root string) (*store.Store, *Grouping) {
	t.Helper()
	st, err := store.Open(filepath.Join(testutil.TempDir(t, "relocate-store"), "store"))
	require.NoError(t, err)

	scanner := &fs.Scanner{}
	grouper := &Grouper{Algorithm: checksum.BLAKE3, Workers: 2, Store: st}
	grouping, err := grouper.Group(context.Background(), scanner.Scan(context.Background(), root))
	require.NoError(t, err)
	return st, grouping
}

func states(r GroupResult) []MemberState {
	out := make([]MemberState, len(r.Members))
	for i, m := range r.Members {
		out[i] = m.State
	}
	return out
}

func TestRelocateGroup(t *testing.T) {
	root := testutil.TempDir(t, "relocate")
	paths := []string{
		testutil.CreateTestFile(t, root, "1.txt", "group payload"),
		testutil.CreateTestFile(t, root, "2.txt", "group payload"),
		testutil.CreateTestFile(t, root, "3.txt", "group payload"),
	}
	st, grouping := groupTree(t, root)
	require.Len(t, grouping.Groups, 1)

	r := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil)
	res := r.Relocate(context.Background(), grouping.Groups[0])

	assert.Equal(t, []MemberState{StateCanonical, StateRelocated, StateRelocated}, states(res))
	assert.True(t, res.ObjectCreated)
	assert.False(t, res.Copied)
	assert.Equal(t, 3, res.Linked())
	assert.Equal(t, int64(2*len("group payload")), res.BytesReclaimed)
	assert.Equal(t, st.ObjectPath(grouping.Groups[0].Key.Fingerprint, grouping.Groups[0].Key.Size), res.Object)
	for _, p := range paths {
		assert.Equal(t, res.Object, testutil.AssertSymlink(t, p))
		testutil.AssertFileNotExists(t, fs.TempLinkPath(p))
	}
}

func TestRelocateHardLinksReclaimNothing(t *testing.T) {
	root := testutil.TempDir(t, "relocate-hardlink")
	a := testutil.CreateTestFileWithSize(t, root, "a.bin", 8<<10, 3)
	b := filepath.Join(root, "b.bin")
	require.NoError(t, os.Link(a, b))
	st, grouping := groupTree(t, root)
	require.Len(t, grouping.Groups, 1)

	res := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil).Relocate(context.Background(), grouping.Groups[0])
	assert.Equal(t, []MemberState{StateCanonical, StateRelocated}, states(res))
	assert.Zero(t, res.BytesReclaimed)

	// A separate copy still frees its bytes, a second link to it does not
	c := testutil.CreateTestFileWithSize(t, root, "c.bin", 8<<10, 3)
	d := filepath.Join(root, "d.bin")
	require.NoError(t, os.Link(c, d))
	grouper := &Grouper{Algorithm: checksum.BLAKE3, Workers: 2, Store: st}
	scanner := &fs.Scanner{}
	grouping, err := grouper.Group(context.Background(), scanner.Scan(context.Background(), root))
	require.NoError(t, err)
	require.Len(t, grouping.Groups, 1)
	require.NotEmpty(t, grouping.Groups[0].Stored)

	res = NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil).Relocate(context.Background(), grouping.Groups[0])
	assert.Equal(t, []MemberState{StateRelocated, StateRelocated}, states(res))
	assert.Equal(t, int64(8<<10), res.BytesReclaimed)
	for _, p := range []string{a, b, c, d} {
		assert.Equal(t, res.Object, testutil.AssertSymlink(t, p))
	}
}

func TestRelocateChangedMemberIsSkipped(t *testing.T) {
	root := testutil.TempDir(t, "relocate-changed")
	a := testutil.CreateTestFile(t, root, "a.txt", "original")
	b := testutil.CreateTestFile(t, root, "b.txt", "original")
	c := testutil.CreateTestFile(t, root, "c.txt", "original")
	st, grouping := groupTree(t, root)
	require.Len(t, grouping.Groups, 1)

	// Same size, different bytes
	require.NoError(t, os.WriteFile(b, []byte("ORIGINAL"), 0o644))

	res := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil).Relocate(context.Background(), grouping.Groups[0])
	assert.Equal(t, []MemberState{StateCanonical, StateSkipped, StateRelocated}, states(res))
	assert.ErrorIs(t, res.Members[1].Err, ErrPrecondition)

	testutil.AssertFileContains(t, b, "ORIGINAL")
	testutil.AssertRegularFile(t, b)
	assert.Equal(t, res.Object, testutil.AssertSymlink(t, a))
	assert.Equal(t, res.Object, testutil.AssertSymlink(t, c))
}

func TestRelocateCandidateFallsThrough(t *testing.T) {
	root := testutil.TempDir(t, "relocate-fallthrough")
	a := testutil.CreateTestFile(t, root, "a.txt", "fallthrough")
	b := testutil.CreateTestFile(t, root, "b.txt", "fallthrough")
	c := testutil.CreateTestFile(t, root, "c.txt", "fallthrough")
	st, grouping := groupTree(t, root)

	require.NoError(t, os.Remove(a))

	res := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil).Relocate(context.Background(), grouping.Groups[0])
	assert.Equal(t, []MemberState{StateSkipped, StateCanonical, StateRelocated}, states(res))
	assert.Equal(t, a, res.Members[0].Path)
	assert.ErrorIs(t, res.Members[0].Err, ErrRead)
	assert.Equal(t, int64(len("fallthrough")), res.BytesReclaimed)
	assert.Equal(t, res.Object, testutil.AssertSymlink(t, b))
	assert.Equal(t, res.Object, testutil.AssertSymlink(t, c))
}

func TestRelocateLastMemberWithoutPartner(t *testing.T) {
	root := testutil.TempDir(t, "relocate-partner")
	a := testutil.CreateTestFile(t, root, "a.txt", "lonely")
	b := testutil.CreateTestFile(t, root, "b.txt", "lonely")
	st, grouping := groupTree(t, root)

	require.NoError(t, os.WriteFile(a, []byte("LONELY"), 0o644))

	res := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil).Relocate(context.Background(), grouping.Groups[0])
	assert.Equal(t, []MemberState{StateSkipped, StateSkipped}, states(res))
	assert.ErrorIs(t, res.Members[1].Err, ErrPrecondition)
	assert.False(t, res.ObjectCreated)
	assert.Zero(t, res.BytesReclaimed)
	testutil.AssertRegularFile(t, b)

	// The failed group keeps its journal for inspection
	entries, err := os.ReadDir(st.TxnDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRelocateStageFailureLeavesCandidate(t *testing.T) {
	testutil.SkipIfRoot(t)
	root := testutil.TempDir(t, "relocate-readonly")
	locked := filepath.Join(root, "locked")
	a := testutil.CreateTestFile(t, locked, "a.txt", "stage failure")
	b := testutil.CreateTestFile(t, root, "b.txt", "stage failure")
	c := testutil.CreateTestFile(t, root, "c.txt", "stage failure")
	st, grouping := groupTree(t, root)

	// b.txt sorts before locked/ at the top level
	require.Equal(t, b, grouping.Groups[0].Members[0].Path)
	require.NoError(t, os.Chmod(locked, 0o555))

	res := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil).Relocate(context.Background(), grouping.Groups[0])
	assert.Equal(t, []MemberState{StateCanonical, StateRelocated, StateSkipped}, states(res))
	assert.ErrorIs(t, res.Members[2].Err, ErrFilesystem)

	testutil.AssertRegularFile(t, a)
	testutil.AssertFileContains(t, a, "stage failure")
	testutil.AssertSymlink(t, b)
	testutil.AssertSymlink(t, c)
}

func TestRelocateReusesStoredObject(t *testing.T) {
	root := testutil.TempDir(t, "relocate-stored")
	a := testutil.CreateTestFile(t, root, "a.txt", "stored already")
	b := testutil.CreateTestFile(t, root, "b.txt", "stored already")
	st, grouping := groupTree(t, root)
	r := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil)
	first := r.Relocate(context.Background(), grouping.Groups[0])
	require.Equal(t, 2, first.Linked())

	// Relocating the same group again finds both members already linked
	g := grouping.Groups[0]
	g.Stored = first.Object
	again := r.Relocate(context.Background(), g)
	assert.Equal(t, []MemberState{StateAlreadyLinked, StateAlreadyLinked}, states(again))
	assert.False(t, again.ObjectCreated)
	assert.Zero(t, again.BytesReclaimed)
	assert.Equal(t, first.Object, testutil.AssertSymlink(t, a))
	assert.Equal(t, first.Object, testutil.AssertSymlink(t, b))
}

func TestRelocateCancelledSkipsEverything(t *testing.T) {
	root := testutil.TempDir(t, "relocate-cancel")
	a := testutil.CreateTestFile(t, root, "a.txt", "cancelled")
	testutil.CreateTestFile(t, root, "b.txt", "cancelled")
	st, grouping := groupTree(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewRelocator(st, nil, checksum.BLAKE3, "absolute", nil).Relocate(ctx, grouping.Groups[0])
	assert.Equal(t, []MemberState{StateSkipped, StateSkipped}, states(res))
	assert.ErrorIs(t, res.Members[0].Err, context.Canceled)
	testutil.AssertRegularFile(t, a)
}

func TestRelocateRecordsLinksInIndex(t *testing.T) {
	root := testutil.TempDir(t, "relocate-index")
	testutil.CreateTestFile(t, root, "a.txt", "indexed")
	testutil.CreateTestFile(t, root, "b.txt", "indexed")
	st, grouping := groupTree(t, root)

	ix, err := OpenIndex(st.IndexPath(), 1)
	require.NoError(t, err)
	defer ix.Close()

	res := NewRelocator(st, ix, checksum.BLAKE3, "absolute", nil).Relocate(context.Background(), grouping.Groups[0])
	links, err := ix.Links(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		assert.Equal(t, res.Object, l.Object)
		assert.Equal(t, grouping.Groups[0].Key, l.Key)
	}
}
