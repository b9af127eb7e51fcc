package deduplication

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/engineercoding/dedupe/internal/atomic"
	"github.com/engineercoding/dedupe/internal/bandwidth"
	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/config"
	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/internal/fs"
	"github.com/engineercoding/dedupe/internal/logging"
	"github.com/engineercoding/dedupe/internal/store"
)

// ProgressManager is an interface for progress reporting
type ProgressManager interface {
	InitTotalProgress(totalBytes int64, description string)
	UpdateTotalProgress(bytes int64)
	FinishTotalProgress()
	PrintVerbose(format string, args ...interface{})
	PrintInfo(format string, args ...interface{})
}

// Options configures a Manager.
type Options struct {
	// Root is the tree to deduplicate. Only needed by Run and Preflight.
	Root string
	// StoreRoot defaults to <Root>/.dedupe.
	StoreRoot string
	DryRun    bool
	// NoIndex disables the fingerprint index even if the config enables it.
	NoIndex bool
	Config  config.Config
	// StoreOptions are passed to the store, mainly for tests.
	StoreOptions []store.Option
}

// Manager drives deduplication runs against one StorageRoot.
type Manager struct {
	opts        Options
	root        string
	storeRoot   string
	alg         checksum.Algorithm
	minSize     int64
	retention   time.Duration
	limiter     *bandwidth.Limiter
	store       *store.Store
	index       *Index
	progressMgr ProgressManager
	log         zerolog.Logger
	preflighted bool
}

// NewManager validates opts and resolves paths. It touches nothing on disk.
func NewManager(opts Options) (*Manager, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, newError(KindFatalConfig, "config", "", err)
	}

	m := &Manager{
		opts: opts,
		alg:  opts.Config.ChecksumAlgorithm(),
		log:  logging.Get("manager"),
	}
	m.minSize, _ = opts.Config.MinSizeBytes()
	m.retention, _ = opts.Config.Retention()

	limiter, err := bandwidth.NewLimiter(opts.Config.IOLimit)
	if err != nil {
		return nil, newError(KindFatalConfig, "config", "", err)
	}
	m.limiter = limiter

	if opts.Root != "" {
		root, err := fs.AbsPath(opts.Root)
		if err != nil {
			return nil, fatalConfigError("resolve root %s: %v", opts.Root, err)
		}
		m.root = root
	}
	storeRoot := opts.StoreRoot
	if storeRoot == "" {
		if m.root == "" {
			return nil, fatalConfigError("a store directory or a root is required")
		}
		storeRoot = filepath.Join(m.root, constants.DefaultStoreDirName)
	}
	resolved, err := fs.AbsPath(storeRoot)
	if err != nil {
		return nil, fatalConfigError("resolve store %s: %v", storeRoot, err)
	}
	m.storeRoot = resolved
	m.store = store.New(resolved, opts.StoreOptions...)
	return m, nil
}

// SetProgressManager sets the progress manager for verbose output
func (m *Manager) SetProgressManager(pm ProgressManager) {
	m.progressMgr = pm
}

// Root is the resolved tree root.
func (m *Manager) Root() string { return m.root }

// StoreRoot is the resolved StorageRoot.
func (m *Manager) StoreRoot() string { return m.storeRoot }

// Preflight checks everything a mutation run relies on. It fails with a
// FatalConfigError before anything in the tree is changed. Dry runs skip the
// probes that write.
func (m *Manager) Preflight() error {
	if m.root != "" {
		if _, err := fs.VerifyDirectory(m.root); err != nil {
			return fatalConfigError("root: %v", err)
		}
		if m.root == m.storeRoot {
			return fatalConfigError("root and store are the same directory: %s", m.root)
		}
		if fs.IsWithin(m.storeRoot, m.root) {
			return fatalConfigError("root %s lies inside the store %s", m.root, m.storeRoot)
		}
	}

	if info, err := os.Stat(m.storeRoot); err == nil && !info.IsDir() {
		return fatalConfigError("store %s exists and is not a directory", m.storeRoot)
	} else if err != nil && !os.IsNotExist(err) {
		return fatalConfigError("store: %v", err)
	}

	if !m.opts.DryRun {
		if err := fs.EnsureDirectory(m.storeRoot, constants.StandardDirPerms); err != nil {
			return fatalConfigError("create store %s: %v", m.storeRoot, err)
		}
		if err := fs.ProbeWritable(m.storeRoot); err != nil {
			return fatalConfigError("%v", err)
		}
		if err := fs.ProbeSymlink(m.storeRoot); err != nil {
			return fatalConfigError("%v", err)
		}
		if m.root != "" {
			if same, err := fs.SameDevice(m.root, m.storeRoot); err == nil && !same {
				m.log.Info().Str("store", m.storeRoot).Msg("Store is on another filesystem, files will be copied and verified")
			}
		}
	}

	m.preflighted = true
	return nil
}

// open prepares the store, recovers interrupted runs and opens the index.
func (m *Manager) open() (*atomic.RecoveryResult, error) {
	if m.opts.DryRun {
		return nil, nil
	}
	st, err := store.Open(m.storeRoot, m.opts.StoreOptions...)
	if err != nil {
		return nil, fatalConfigError("open store: %v", err)
	}
	m.store = st

	rec, err := atomic.Recover(m.storeRoot, m.retention)
	if err != nil {
		return nil, filesystemError("recover", m.storeRoot, err)
	}
	for _, rerr := range rec.Errors {
		m.log.Warn().Err(rerr).Msg("Journal recovery problem")
	}
	if rec.RolledForward > 0 || rec.RolledBack > 0 {
		m.log.Info().Int("rolled_forward", rec.RolledForward).Int("rolled_back", rec.RolledBack).Msg("Recovered interrupted relocations")
	}

	if m.index == nil && m.opts.Config.Index && !m.opts.NoIndex {
		index, err := OpenIndex(m.store.IndexPath(), m.opts.Config.Workers)
		if err != nil {
			m.log.Warn().Err(err).Msg("Fingerprint index unavailable, continuing without it")
		} else {
			m.index = index
		}
	}
	return rec, nil
}

// Close releases the index.
func (m *Manager) Close() error {
	err := m.index.Close()
	m.index = nil
	return err
}

// Run deduplicates the tree under Root.
func (m *Manager) Run(ctx context.Context) (*Summary, error) {
	if m.root == "" {
		return nil, fatalConfigError("no root to scan")
	}
	scanner := &fs.Scanner{
		Exclude:  m.opts.Config.Exclude,
		SkipDirs: []string{m.storeRoot},
		MinSize:  m.minSize,
	}
	return m.execute(ctx, func(ctx context.Context) iter.Seq2[fs.FileRecord, error] {
		return scanner.Scan(ctx, m.root)
	})
}

// Add deduplicates the given files against the store and each other.
func (m *Manager) Add(ctx context.Context, paths []string) (*Summary, error) {
	return m.execute(ctx, func(ctx context.Context) iter.Seq2[fs.FileRecord, error] {
		return m.explicitFiles(paths)
	})
}

func (m *Manager) explicitFiles(paths []string) iter.Seq2[fs.FileRecord, error] {
	return func(yield func(fs.FileRecord, error) bool) {
		seen := make(map[string]bool, len(paths))
		for _, p := range paths {
			// Only the parent is resolved so a symlink argument stays a symlink
			dir, err := fs.AbsPath(filepath.Dir(p))
			if err != nil {
				if !yield(fs.FileRecord{}, &os.PathError{Op: "resolve", Path: p, Err: err}) {
					return
				}
				continue
			}
			abs := filepath.Join(dir, filepath.Base(p))
			if seen[abs] || fs.IsWithin(m.storeRoot, abs) {
				continue
			}
			seen[abs] = true

			if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
				if m.linksToStore(abs) {
					m.log.Debug().Str("path", abs).Msg("Already linked to the store")
					continue
				}
				if !yield(fs.FileRecord{}, &os.PathError{Op: "add", Path: abs, Err: errSymlink}) {
					return
				}
				continue
			}

			info, err := fs.VerifyFileAndReturnFileInfo(abs)
			if err != nil {
				if !yield(fs.FileRecord{}, &os.PathError{Op: "add", Path: abs, Err: err}) {
					return
				}
				continue
			}
			if info.Size() < m.minSize {
				continue
			}
			if !yield(fs.FileRecord{Path: abs, Size: info.Size(), ModTime: info.ModTime()}, nil) {
				return
			}
		}
	}
}

var errSymlink = errors.New("symlink is not a regular file")

// linksToStore reports whether the symlink at path resolves to a stored object.
func (m *Manager) linksToStore(path string) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	objects, err := fs.AbsPath(m.store.ObjectsDir())
	if err != nil {
		return false
	}
	return fs.IsWithin(objects, target)
}

func (m *Manager) execute(ctx context.Context, source func(context.Context) iter.Seq2[fs.FileRecord, error]) (*Summary, error) {
	start := time.Now()
	if !m.preflighted {
		if err := m.Preflight(); err != nil {
			return nil, err
		}
	}

	summary := &Summary{DryRun: m.opts.DryRun, IOLimit: m.limiter.Limit()}
	defer func() { summary.Duration = time.Since(start) }()

	rec, err := m.open()
	if err != nil {
		return nil, err
	}
	summary.Recovery = rec

	grouper := &Grouper{
		Algorithm: m.alg,
		Workers:   m.opts.Config.Workers,
		Index:     m.index,
		Limiter:   m.limiter,
		Progress:  m.progressMgr,
	}
	if _, err := os.Stat(m.store.ObjectsDir()); err == nil {
		grouper.Store = m.store
	}

	done := logging.LogOperationStart(m.log, "group")
	grouping, err := grouper.Group(ctx, source(ctx))
	done()
	if err != nil {
		return summary, err
	}

	summary.FilesScanned = grouping.FilesScanned
	summary.BytesScanned = grouping.BytesScanned
	summary.Groups = len(grouping.Groups)
	summary.Skipped = append(summary.Skipped, grouping.Skipped...)
	m.log.Info().
		Int("files", grouping.FilesScanned).
		Int("groups", len(grouping.Groups)).
		Int("cache_hits", grouping.CacheHits).
		Msg("Grouping complete")

	if m.opts.DryRun {
		for _, g := range grouping.Groups {
			plan := planned(g)
			m.reportPlanned(plan)
			summary.Planned = append(summary.Planned, plan)
			linked := int64(len(g.Members))
			if g.Stored == "" {
				linked--
			}
			summary.BytesReclaimed += g.Key.Size * linked
			summary.FilesLinked += len(g.Members)
			summary.GroupsRelocated++
		}
		return summary, nil
	}

	results, err := m.relocateAll(ctx, grouping.Groups)
	for _, r := range results {
		summary.addGroup(r)
	}
	return summary, err
}

// reportPlanned prints what a dry run would do with one group. Unlike
// relocation progress it is shown without --verbose.
func (m *Manager) reportPlanned(p PlannedGroup) {
	if m.progressMgr == nil {
		return
	}
	m.progressMgr.PrintInfo("Group %s (%d bytes, %d copies)", p.Key.Fingerprint.Short(), p.Key.Size, len(p.Members))
	if p.Stored != "" {
		m.progressMgr.PrintInfo("  └─ stored: %s", p.Stored)
	}
	for _, member := range p.Members {
		m.progressMgr.PrintInfo("  └─ would link %s", member)
	}
}

func planned(g *DuplicateGroup) PlannedGroup {
	p := PlannedGroup{Key: g.Key, Stored: g.Stored}
	for _, member := range g.Members {
		p.Members = append(p.Members, member.Path)
	}
	return p
}

// relocateAll relocates groups concurrently. Results keep group order; a
// group that never started because of cancellation has no result.
func (m *Manager) relocateAll(ctx context.Context, groups []*DuplicateGroup) ([]GroupResult, error) {
	relocator := NewRelocator(m.store, m.index, m.alg, m.opts.Config.LinkStyle, m.limiter)

	var total int64
	for _, g := range groups {
		total += g.Key.Size * int64(len(g.Members))
	}
	if m.progressMgr != nil {
		m.progressMgr.InitTotalProgress(total, "Relocating")
		defer m.progressMgr.FinishTotalProgress()
	}

	results := make([]GroupResult, len(groups))
	started := make([]bool, len(groups))

	var eg errgroup.Group
	eg.SetLimit(m.opts.Config.Workers)
	for i, g := range groups {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			started[i] = true
			results[i] = relocator.Relocate(ctx, g)
			if m.progressMgr != nil {
				m.progressMgr.UpdateTotalProgress(g.Key.Size * int64(len(g.Members)))
				m.progressMgr.PrintVerbose("Linked %d of %d file(s) to %s", results[i].Linked(), len(g.Members), results[i].Object)
			}
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]GroupResult, 0, len(groups))
	for i := range groups {
		if started[i] {
			out = append(out, results[i])
		}
	}
	return out, ctx.Err()
}

// Recover settles journals left by interrupted runs.
func (m *Manager) Recover() (*atomic.RecoveryResult, error) {
	if _, err := os.Stat(m.storeRoot); err != nil {
		return nil, fatalConfigError("store %s: %v", m.storeRoot, err)
	}
	return atomic.Recover(m.storeRoot, m.retention)
}

// ensureStore fails unless the store directory exists.
func (m *Manager) ensureStore() error {
	if _, err := fs.VerifyDirectory(m.storeRoot); err != nil {
		return fatalConfigError("store: %v", err)
	}
	return nil
}

var errMismatch = errors.New("object content does not match its name")

func objectMismatch(obj store.Object, got checksum.Fingerprint) error {
	return fmt.Errorf("%w: %s is %s", errMismatch, obj.Path, got.Short())
}

func (m *Manager) pendingJournals() int {
	n, err := atomic.Pending(m.storeRoot)
	if err != nil {
		m.log.Warn().Err(err).Msg("Could not read journals")
	}
	return n
}
