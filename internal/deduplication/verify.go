package deduplication

import (
	"context"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/store"
)

// VerifyResult reports a store integrity check.
type VerifyResult struct {
	Objects int
	Bytes   int64
	// Corrupt lists objects whose content no longer matches their name.
	Corrupt []Skip
	// Unreadable lists objects or entries that could not be checked.
	Unreadable []Skip
}

// OK reports whether every object checked out.
func (v *VerifyResult) OK() bool {
	return len(v.Corrupt) == 0 && len(v.Unreadable) == 0
}

// Verify re-fingerprints every stored object and compares it with the
// fingerprint encoded in its name.
func (m *Manager) Verify(ctx context.Context) (*VerifyResult, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}

	res := &VerifyResult{}
	var objects []store.Object
	var total int64
	for obj, err := range m.store.Objects(ctx, "") {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.Unreadable = append(res.Unreadable, Skip{Path: errorPath(err), Err: readError("verify", errorPath(err), err)})
			continue
		}
		objects = append(objects, obj)
		total += obj.Size
	}

	if m.progressMgr != nil {
		m.progressMgr.InitTotalProgress(total, "Verifying")
		defer m.progressMgr.FinishTotalProgress()
	}

	errs := make([]error, len(objects))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(max(m.opts.Config.Workers, 1))
	for i, obj := range objects {
		eg.Go(func() error {
			opts := checksum.FileOptions{Limiter: m.limiter}
			if m.progressMgr != nil {
				opts.OnProgress = m.progressMgr.UpdateTotalProgress
			}
			got, n, err := checksum.FileFingerprint(egCtx, obj.Path, obj.Fingerprint.Algorithm, opts)
			if err != nil {
				if egCtx.Err() != nil {
					return egCtx.Err()
				}
				errs[i] = readError("verify", obj.Path, err)
				return nil
			}
			if n != obj.Size || got != obj.Fingerprint {
				errs[i] = objectMismatch(obj, got)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, obj := range objects {
		switch {
		case errs[i] == nil:
			res.Objects++
			res.Bytes += obj.Size
		case KindOf(errs[i]) == KindRead:
			res.Unreadable = append(res.Unreadable, Skip{Path: obj.Path, Err: errs[i]})
		default:
			res.Corrupt = append(res.Corrupt, Skip{Path: obj.Path, Err: errs[i]})
			m.log.Error().Str("object", obj.Path).Err(errs[i]).Msg("Corrupt object")
		}
	}
	return res, nil
}

// AlgorithmStats summarises the objects stored under one algorithm.
type AlgorithmStats struct {
	Algorithm checksum.Algorithm
	Objects   int
	Bytes     int64
}

// Stats describes the store.
type Stats struct {
	StoreRoot  string
	Algorithms []AlgorithmStats
	Objects    int
	Bytes      int64
	// Links and CachedFiles come from the index and are zero without one.
	Links       int
	CachedFiles int
	// BytesSaved is what the recorded links would occupy as plain files,
	// minus the objects they share.
	BytesSaved int64
	// Unreferenced lists objects no recorded link points to.
	Unreferenced []string
	Pending      int
}

// Stats reads the store layout and, when available, the index.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	if err := m.ensureStore(); err != nil {
		return nil, err
	}
	// Only an existing index is opened; Stats never creates one
	if _, err := os.Stat(m.store.IndexPath()); err == nil && m.index == nil && m.opts.Config.Index && !m.opts.NoIndex {
		if index, err := OpenIndex(m.store.IndexPath(), 1); err == nil {
			m.index = index
		} else {
			m.log.Debug().Err(err).Msg("No fingerprint index")
		}
	}

	st := &Stats{StoreRoot: m.storeRoot}
	perAlg := make(map[checksum.Algorithm]*AlgorithmStats)
	var objects []store.Object
	for obj, err := range m.store.Objects(ctx, "") {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.log.Warn().Err(err).Msg("Ignoring unreadable store entry")
			continue
		}
		objects = append(objects, obj)
		a, ok := perAlg[obj.Fingerprint.Algorithm]
		if !ok {
			a = &AlgorithmStats{Algorithm: obj.Fingerprint.Algorithm}
			perAlg[obj.Fingerprint.Algorithm] = a
		}
		a.Objects++
		a.Bytes += obj.Size
		st.Objects++
		st.Bytes += obj.Size
	}
	for _, alg := range checksum.Algorithms() {
		if a, ok := perAlg[alg]; ok {
			st.Algorithms = append(st.Algorithms, *a)
		}
	}

	links, err := m.index.Links(ctx)
	if err != nil {
		return nil, err
	}
	if st.CachedFiles, err = m.index.CachedFiles(ctx); err != nil {
		return nil, err
	}
	st.Links = len(links)

	if m.index != nil {
		referenced := make(map[string]bool, len(links))
		for _, l := range links {
			referenced[l.Object] = true
			st.BytesSaved += l.Key.Size
		}
		for _, obj := range objects {
			if referenced[obj.Path] {
				st.BytesSaved -= obj.Size
			} else {
				st.Unreferenced = append(st.Unreferenced, obj.Path)
			}
		}
		sort.Strings(st.Unreferenced)
	}

	st.Pending = m.pendingJournals()
	return st, nil
}
