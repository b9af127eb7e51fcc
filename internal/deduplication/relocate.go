package deduplication

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/engineercoding/dedupe/internal/atomic"
	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/fs"
	"github.com/engineercoding/dedupe/internal/logging"
	"github.com/engineercoding/dedupe/internal/store"
)

var errNoPartner = errors.New("no remaining copy to share content with")

// Relocator applies the relocation protocol to duplicate groups. It is safe
// for concurrent use with distinct groups.
type Relocator struct {
	Store     *store.Store
	Index     *Index
	Algorithm checksum.Algorithm
	LinkStyle string
	Limiter   checksum.Limiter

	log zerolog.Logger
}

// NewRelocator returns a Relocator writing into st.
func NewRelocator(st *store.Store, index *Index, alg checksum.Algorithm, linkStyle string, limiter checksum.Limiter) *Relocator {
	return &Relocator{
		Store:     st,
		Index:     index,
		Algorithm: alg,
		LinkStyle: linkStyle,
		Limiter:   limiter,
		log:       logging.Get("relocate"),
	}
}

// groupRun carries the state of one Relocate call.
type groupRun struct {
	r      *Relocator
	group  *DuplicateGroup
	txn    *atomic.Transaction
	object string
	result GroupResult
	log    zerolog.Logger
	// counted holds inodes whose bytes are already accounted for, so hard
	// links to one inode are credited at most once.
	counted map[fs.FileID]bool
}

// Relocate makes every member of g a link to one stored object. Members are
// processed in discovery order; each either ends linked or is left exactly
// as it was. Cancellation is honoured between members.
func (r *Relocator) Relocate(ctx context.Context, g *DuplicateGroup) GroupResult {
	unlock := r.Store.Lock(g.Key.Fingerprint)
	defer unlock()

	run := &groupRun{
		r:       r,
		group:   g,
		result:  GroupResult{Key: g.Key},
		counted: make(map[fs.FileID]bool),
		log: r.log.With().
			Str("fingerprint", g.Key.Fingerprint.Short()).
			Int64("size", g.Key.Size).
			Logger(),
	}

	txn, err := atomic.Begin(r.Store.Root(), map[string]any{
		"fingerprint": g.Key.Fingerprint.String(),
		"size":        g.Key.Size,
	})
	if err != nil {
		run.skipFrom(0, filesystemError("begin journal", r.Store.TxnDir(), err))
		return run.result
	}
	run.txn = txn

	run.object = g.Stored
	if run.object == "" {
		if path, err := r.Store.Lookup(g.Key.Fingerprint, g.Key.Size); err == nil {
			run.object = path
		} else if !errors.Is(err, store.ErrNotStored) {
			run.skipFrom(0, filesystemError("lookup object", "", err))
			run.finish()
			return run.result
		}
	} else if _, err := r.Store.Lookup(g.Key.Fingerprint, g.Key.Size); err != nil {
		run.skipFrom(0, filesystemError("check object", g.Stored, err))
		run.finish()
		return run.result
	}
	run.result.Object = run.object

	next := 0
	if run.object == "" {
		next = run.promoteCandidate(ctx)
	} else if info, err := os.Stat(run.object); err == nil {
		run.remember(info)
	}
	for i := next; i < len(g.Members); i++ {
		if err := ctx.Err(); err != nil {
			run.skipFrom(i, err)
			break
		}
		run.linkMember(ctx, g.Members[i])
	}

	run.finish()
	return run.result
}

// promoteCandidate tries members in order until one is moved into the store
// and linked. It returns the index of the first member not yet handled.
func (run *groupRun) promoteCandidate(ctx context.Context) int {
	members := run.group.Members
	for i, m := range members {
		if err := ctx.Err(); err != nil {
			run.skipFrom(i, err)
			return len(members)
		}
		if len(members)-i < 2 {
			run.skipFrom(i, preconditionError(m.Path, "%v", errNoPartner))
			return len(members)
		}
		object, err := run.promote(ctx, m)
		if err != nil {
			run.skip(m.Path, err)
			continue
		}
		run.object = object
		run.result.Object = object
		run.result.ObjectCreated = true
		run.result.Members = append(run.result.Members, MemberResult{Path: m.Path, State: StateCanonical})
		return i + 1
	}
	return len(members)
}

func (run *groupRun) promote(ctx context.Context, m *fs.FileRecord) (string, error) {
	r := run.r
	key := run.group.Key

	info, err := run.checkUnchanged(ctx, m)
	if err != nil {
		return "", err
	}

	p := r.Store.Plan(m.Path, key.Fingerprint, key.Size)
	target, err := fs.LinkTarget(p.Object, m.Path, r.LinkStyle)
	if err != nil {
		return "", filesystemError("link target", m.Path, err)
	}

	idx, err := run.txn.Record(atomic.JournalEntry{
		Type:     atomic.EntryPromote,
		Path:     m.Path,
		Object:   p.Object,
		Temp:     p.Temp,
		LinkTemp: fs.TempLinkPath(m.Path),
		Target:   target,
		Size:     key.Size,
	})
	if err != nil {
		return "", filesystemError("journal", m.Path, err)
	}

	linkTemp, err := fs.StageSymlink(target, m.Path)
	if err != nil {
		_ = run.txn.Revert(idx)
		return "", filesystemError("stage link", m.Path, err)
	}

	copied, err := r.Store.Promote(ctx, p, key.Fingerprint, r.verifyFunc())
	if err != nil {
		_ = fs.RemoveTempLink(linkTemp)
		_ = run.txn.Revert(idx)
		if errors.Is(err, store.ErrVerifyMismatch) {
			return "", newError(KindPrecondition, "promote", m.Path, err)
		}
		return "", filesystemError("promote", m.Path, err)
	}
	run.result.Copied = copied

	if err := fs.CommitSymlink(linkTemp, m.Path); err != nil {
		if derr := r.Store.Demote(p); derr != nil {
			// Content is safe in the store and the journal still points at it
			run.log.Error().Err(derr).Str("path", m.Path).Str("object", p.Object).Msg("Failed to restore promoted file")
			return "", filesystemError("link", m.Path, errors.Join(err, derr))
		}
		_ = run.txn.Revert(idx)
		return "", filesystemError("link", m.Path, err)
	}

	if err := run.txn.Done(idx); err != nil {
		run.log.Warn().Err(err).Msg("Failed to update journal")
	}
	run.remember(info)
	run.recordLink(ctx, m.Path, p.Object)
	run.log.Info().Str("path", m.Path).Str("object", p.Object).Bool("copied", copied).Msg("Promoted canonical copy")
	return p.Object, nil
}

func (run *groupRun) linkMember(ctx context.Context, m *fs.FileRecord) {
	r := run.r

	if fs.PointsTo(m.Path, run.object) {
		run.result.Members = append(run.result.Members, MemberResult{Path: m.Path, State: StateAlreadyLinked})
		return
	}
	info, err := run.checkUnchanged(ctx, m)
	if err != nil {
		run.skip(m.Path, err)
		return
	}

	target, err := fs.LinkTarget(run.object, m.Path, r.LinkStyle)
	if err != nil {
		run.skip(m.Path, filesystemError("link target", m.Path, err))
		return
	}

	idx, err := run.txn.Record(atomic.JournalEntry{
		Type:   atomic.EntryLink,
		Path:   m.Path,
		Object: run.object,
		Temp:   fs.TempLinkPath(m.Path),
		Target: target,
		Size:   run.group.Key.Size,
	})
	if err != nil {
		run.skip(m.Path, filesystemError("journal", m.Path, err))
		return
	}

	if err := fs.ReplaceWithSymlink(target, m.Path); err != nil {
		_ = run.txn.Revert(idx)
		run.skip(m.Path, filesystemError("link", m.Path, err))
		return
	}
	if err := run.txn.Done(idx); err != nil {
		run.log.Warn().Err(err).Msg("Failed to update journal")
	}
	run.credit(info)
	run.recordLink(ctx, m.Path, run.object)
	run.result.Members = append(run.result.Members, MemberResult{Path: m.Path, State: StateRelocated})
	run.log.Debug().Str("path", m.Path).Msg("Replaced duplicate with link")
}

// checkUnchanged re-reads m and fails unless it is still a regular file
// with the group's size and fingerprint.
func (run *groupRun) checkUnchanged(ctx context.Context, m *fs.FileRecord) (os.FileInfo, error) {
	key := run.group.Key
	info, err := os.Lstat(m.Path)
	if err != nil {
		return nil, readError("stat", m.Path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, preconditionError(m.Path, "no longer a regular file (mode %v)", info.Mode().Type())
	}
	if info.Size() != key.Size {
		return nil, preconditionError(m.Path, "size changed from %d to %d", key.Size, info.Size())
	}
	fp, err := run.r.fingerprint(ctx, m.Path)
	if err != nil {
		return nil, readError("fingerprint", m.Path, err)
	}
	if fp != key.Fingerprint {
		return nil, preconditionError(m.Path, "content changed: fingerprint %s, expected %s", fp.Short(), key.Fingerprint.Short())
	}
	return info, nil
}

// remember marks the inode behind info as holding the group's content.
func (run *groupRun) remember(info os.FileInfo) {
	if id, ok := fs.IdentityOf(info); ok {
		run.counted[id] = true
	}
}

// credit counts a replaced member as reclaimed space unless its inode is
// still held by the object or an earlier member.
func (run *groupRun) credit(info os.FileInfo) {
	if id, ok := fs.IdentityOf(info); ok {
		if run.counted[id] {
			return
		}
		run.counted[id] = true
	}
	run.result.BytesReclaimed += run.group.Key.Size
}

func (run *groupRun) recordLink(ctx context.Context, path, object string) {
	if err := run.r.Index.RecordLink(ctx, path, object, run.group.Key); err != nil {
		run.log.Warn().Err(err).Str("path", path).Msg("Failed to record link in index")
	}
}

func (run *groupRun) skip(path string, err error) {
	run.log.Warn().Err(err).Str("path", path).Msg("Skipping member")
	run.result.Members = append(run.result.Members, MemberResult{Path: path, State: StateSkipped, Err: err})
}

// skipFrom marks every member from index i on as skipped with err.
func (run *groupRun) skipFrom(i int, err error) {
	for _, m := range run.group.Members[i:] {
		run.result.Members = append(run.result.Members, MemberResult{Path: m.Path, State: StateSkipped, Err: err})
	}
	if i < len(run.group.Members) {
		run.log.Warn().Err(err).Int("members", len(run.group.Members)-i).Msg("Skipping remaining members")
	}
}

// finish closes the journal. Journals of fully successful groups are removed;
// the rest stay for inspection until purged by recovery.
func (run *groupRun) finish() {
	if run.txn == nil {
		return
	}
	if err := run.txn.Commit(); err != nil {
		run.log.Warn().Err(err).Str("journal", run.txn.ID()).Msg("Failed to commit journal")
		return
	}
	for _, m := range run.result.Members {
		if m.State == StateSkipped {
			return
		}
	}
	if err := run.txn.Discard(); err != nil {
		run.log.Warn().Err(err).Str("journal", run.txn.ID()).Msg("Failed to remove journal")
	}
}

func (r *Relocator) fingerprint(ctx context.Context, path string) (checksum.Fingerprint, error) {
	bufp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufp)
	fp, _, err := checksum.FileFingerprint(ctx, path, r.Algorithm, checksum.FileOptions{Limiter: r.Limiter, Buffer: *bufp})
	return fp, err
}

func (r *Relocator) verifyFunc() store.VerifyFunc {
	return func(ctx context.Context, path string) (checksum.Fingerprint, error) {
		fp, err := r.fingerprint(ctx, path)
		if err != nil {
			return fp, fmt.Errorf("fingerprint copy: %w", err)
		}
		return fp, nil
	}
}
