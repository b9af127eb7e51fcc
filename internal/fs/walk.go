package fs

import (
	"context"
	"errors"
	iofs "io/fs"
	"iter"
	"path/filepath"
	"time"

	"github.com/engineercoding/dedupe/internal/checksum"
)

// FileRecord describes one regular file found by a scan.
type FileRecord struct {
	Path        string // absolute
	Size        int64
	ModTime     time.Time
	Fingerprint checksum.Fingerprint // zero until computed
}

// Scanner walks a directory tree and yields its regular files.
type Scanner struct {
	// Exclude holds glob patterns matched against base names. A matching
	// directory is pruned, a matching file is not yielded.
	Exclude []string
	// SkipDirs holds absolute directories that are never entered.
	SkipDirs []string
	// MinSize drops files smaller than this many bytes.
	MinSize int64
}

var errStopScan = errors.New("scan stopped")

// Scan walks root depth first with each directory's entries in lexical order.
// Symlinks are never followed and only regular files are yielded. Entries
// that cannot be read are yielded as errors and the walk continues.
func (s *Scanner) Scan(ctx context.Context, root string) iter.Seq2[FileRecord, error] {
	return func(yield func(FileRecord, error) bool) {
		abs, err := filepath.Abs(root)
		if err != nil {
			yield(FileRecord{}, &iofs.PathError{Op: "scan", Path: root, Err: err})
			return
		}

		skip := make(map[string]struct{}, len(s.SkipDirs))
		for _, dir := range s.SkipDirs {
			skip[filepath.Clean(dir)] = struct{}{}
		}

		walkErr := filepath.WalkDir(abs, func(path string, d iofs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if !yield(FileRecord{}, asPathError("scan", path, err)) {
					return errStopScan
				}
				if d != nil && d.IsDir() && path != abs {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				if path == abs {
					return nil
				}
				if _, ok := skip[path]; ok || s.excluded(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() || s.excluded(d.Name()) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				if !yield(FileRecord{}, asPathError("stat", path, err)) {
					return errStopScan
				}
				return nil
			}
			if info.Size() < s.MinSize {
				return nil
			}

			if !yield(FileRecord{Path: path, Size: info.Size(), ModTime: info.ModTime()}, nil) {
				return errStopScan
			}
			return nil
		})

		if walkErr != nil && !errors.Is(walkErr, errStopScan) {
			yield(FileRecord{}, walkErr)
		}
	}
}

func (s *Scanner) excluded(name string) bool {
	for _, pattern := range s.Exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func asPathError(op, path string, err error) error {
	var pe *iofs.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &iofs.PathError{Op: op, Path: path, Err: err}
}
