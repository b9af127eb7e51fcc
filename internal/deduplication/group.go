package deduplication

import (
	"context"
	"errors"
	iofs "io/fs"
	"iter"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/internal/fs"
	"github.com/engineercoding/dedupe/internal/logging"
	"github.com/engineercoding/dedupe/internal/store"
)

// Grouper turns a stream of scanned files into duplicate groups.
type Grouper struct {
	Algorithm checksum.Algorithm
	Workers   int
	// Index caches fingerprints between runs. Nil disables it.
	Index *Index
	// Store seeds the size buckets with objects kept by earlier runs. Nil
	// means no store is consulted.
	Store   *store.Store
	Limiter checksum.Limiter
	// Progress is told the number of bytes that need hashing, then fed
	// hashed bytes. Optional.
	Progress ProgressManager

	log zerolog.Logger
}

// Grouping is the output of Grouper.Group.
type Grouping struct {
	// Groups holds every key with two or more holders, ordered by the
	// discovery position of their first member.
	Groups       []*DuplicateGroup
	ByKey        map[GroupKey]*DuplicateGroup
	Skipped      []Skip
	FilesScanned int
	BytesScanned int64
	// BytesHashed counts bytes actually read, cache hits excluded.
	BytesHashed int64
	CacheHits   int
}

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, constants.ReadBufferSize)
		return &b
	},
}

// Group drains records and forms duplicate groups. Per-file failures are
// collected as skips; only cancellation aborts.
func (g *Grouper) Group(ctx context.Context, records iter.Seq2[fs.FileRecord, error]) (*Grouping, error) {
	g.log = logging.Get("group")
	workers := g.Workers
	if workers < 1 {
		workers = 1
	}

	var stored map[int64][]store.Object
	if g.Store != nil {
		var err error
		stored, err = g.Store.SizeIndex(ctx, g.Algorithm)
		if err != nil {
			return nil, err
		}
	}

	out := &Grouping{ByKey: make(map[GroupKey]*DuplicateGroup)}

	// Drain into size buckets; all keeps discovery order
	var all []*fs.FileRecord
	buckets := make(map[int64][]*fs.FileRecord)
	for rec, err := range records {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out.Skipped = append(out.Skipped, Skip{Path: errorPath(err), Err: readError("scan", errorPath(err), err)})
			g.log.Warn().Err(err).Msg("Skipping unreadable entry")
			continue
		}
		r := rec
		all = append(all, &r)
		buckets[r.Size] = append(buckets[r.Size], &r)
		out.FilesScanned++
		out.BytesScanned += r.Size
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var jobs []*fs.FileRecord
	var total int64
	for _, rec := range all {
		if len(buckets[rec.Size]) >= 2 || len(stored[rec.Size]) > 0 {
			jobs = append(jobs, rec)
			total += rec.Size
		}
	}
	g.log.Debug().
		Int("files", out.FilesScanned).
		Int("candidates", len(jobs)).
		Int("buckets", len(buckets)).
		Msg("Size bucketing complete")

	if g.Progress != nil {
		g.Progress.InitTotalProgress(total, "Fingerprinting")
		defer g.Progress.FinishTotalProgress()
	}

	errs := make([]error, len(jobs))
	hits := make([]bool, len(jobs))
	hashed := make([]int64, len(jobs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, rec := range jobs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			hit, n, err := g.fingerprint(egCtx, rec)
			if err != nil && egCtx.Err() != nil {
				return egCtx.Err()
			}
			errs[i], hits[i], hashed[i] = err, hit, n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	failed := make(map[*fs.FileRecord]bool)
	for i, rec := range jobs {
		out.BytesHashed += hashed[i]
		if hits[i] {
			out.CacheHits++
		}
		if errs[i] != nil {
			failed[rec] = true
			out.Skipped = append(out.Skipped, Skip{Path: rec.Path, Err: errs[i]})
			g.log.Warn().Err(errs[i]).Str("path", rec.Path).Msg("Skipping file that could not be fingerprinted")
		}
	}

	for _, rec := range jobs {
		if failed[rec] {
			continue
		}
		key := GroupKey{Size: rec.Size, Fingerprint: rec.Fingerprint}
		grp, ok := out.ByKey[key]
		if !ok {
			grp = &DuplicateGroup{Key: key, Stored: storedObject(stored[rec.Size], rec.Fingerprint)}
			out.ByKey[key] = grp
			out.Groups = append(out.Groups, grp)
		}
		grp.Members = append(grp.Members, rec)
	}

	kept := out.Groups[:0]
	for _, grp := range out.Groups {
		if grp.Holders() >= 2 {
			kept = append(kept, grp)
		} else {
			delete(out.ByKey, grp.Key)
		}
	}
	out.Groups = kept
	return out, nil
}

// fingerprint fills rec.Fingerprint from the index or by reading the file.
func (g *Grouper) fingerprint(ctx context.Context, rec *fs.FileRecord) (hit bool, n int64, err error) {
	if fp, ok, err := g.Index.Lookup(ctx, *rec, g.Algorithm); err != nil {
		g.log.Warn().Err(err).Str("path", rec.Path).Msg("Fingerprint index lookup failed")
	} else if ok {
		rec.Fingerprint = fp
		if g.Progress != nil {
			g.Progress.UpdateTotalProgress(rec.Size)
		}
		return true, 0, nil
	}

	bufp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufp)

	opts := checksum.FileOptions{Limiter: g.Limiter, Buffer: *bufp}
	if g.Progress != nil {
		opts.OnProgress = g.Progress.UpdateTotalProgress
	}
	fp, n, err := checksum.FileFingerprint(ctx, rec.Path, g.Algorithm, opts)
	if err != nil {
		return false, n, readError("fingerprint", rec.Path, err)
	}
	rec.Fingerprint = fp

	if err := g.Index.Put(ctx, *rec); err != nil {
		g.log.Warn().Err(err).Str("path", rec.Path).Msg("Failed to cache fingerprint")
	}
	return false, n, nil
}

func storedObject(objects []store.Object, fp checksum.Fingerprint) string {
	for _, obj := range objects {
		if obj.Fingerprint == fp {
			return obj.Path
		}
	}
	return ""
}

func errorPath(err error) string {
	var pe *iofs.PathError
	if errors.As(err, &pe) {
		return pe.Path
	}
	return ""
}
