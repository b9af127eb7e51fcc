package deduplication

import (
	"time"

	"github.com/engineercoding/dedupe/internal/atomic"
	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/fs"
)

// GroupKey identifies duplicate content. Equal keys mean equal content up to
// fingerprint collisions.
type GroupKey struct {
	Size        int64
	Fingerprint checksum.Fingerprint
}

// DuplicateGroup is the set of tree files sharing one GroupKey, in discovery
// order, plus the stored object for the key if one already exists.
type DuplicateGroup struct {
	Key     GroupKey
	Members []*fs.FileRecord
	Stored  string
}

// Holders counts the copies of the content, the stored object included.
func (g *DuplicateGroup) Holders() int {
	n := len(g.Members)
	if g.Stored != "" {
		n++
	}
	return n
}

// MemberState is where a member ended up after relocation.
type MemberState string

const (
	StateCanonical     MemberState = "canonical"
	StateRelocated     MemberState = "relocated"
	StateAlreadyLinked MemberState = "already-linked"
	StateSkipped       MemberState = "skipped"
)

// MemberResult is the outcome for one member path.
type MemberResult struct {
	Path  string
	State MemberState
	Err   error
}

// GroupResult is the outcome of relocating one DuplicateGroup.
type GroupResult struct {
	Key            GroupKey
	Object         string
	ObjectCreated  bool
	Copied         bool
	Members        []MemberResult
	BytesReclaimed int64
}

// Linked counts members that are now links to the object.
func (r *GroupResult) Linked() int {
	n := 0
	for _, m := range r.Members {
		if m.State == StateCanonical || m.State == StateRelocated {
			n++
		}
	}
	return n
}

// Skip records a file left untouched and why.
type Skip struct {
	Path string
	Err  error
}

// Reason is a short description of why the file was skipped.
func (s Skip) Reason() string {
	if s.Err == nil {
		return "skipped"
	}
	return s.Err.Error()
}

// PlannedGroup is what a dry run would do with one DuplicateGroup.
type PlannedGroup struct {
	Key GroupKey
	// Stored is the existing object the members would link to, if any.
	Stored  string
	Members []string
}

// Summary reports a whole run.
type Summary struct {
	FilesScanned    int
	BytesScanned    int64
	Groups          int
	GroupsRelocated int
	FilesLinked     int
	ObjectsCreated  int
	BytesReclaimed  int64
	Skipped         []Skip
	DryRun          bool
	IOLimit         string
	Duration        time.Duration
	Recovery        *atomic.RecoveryResult
	// Planned lists every group a dry run would relocate, in discovery order.
	Planned []PlannedGroup
}

// Failed reports whether any file could not be processed.
func (s *Summary) Failed() bool {
	return len(s.Skipped) > 0
}

func (s *Summary) addGroup(r GroupResult) {
	linked := r.Linked()
	if linked > 0 {
		s.GroupsRelocated++
	}
	if r.ObjectCreated {
		s.ObjectsCreated++
	}
	s.FilesLinked += linked
	s.BytesReclaimed += r.BytesReclaimed
	for _, m := range r.Members {
		if m.State == StateSkipped {
			s.Skipped = append(s.Skipped, Skip{Path: m.Path, Err: m.Err})
		}
	}
}
