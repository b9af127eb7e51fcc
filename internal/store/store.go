// Package store owns the StorageRoot: the directory holding one canonical
// object per distinct content, named by algorithm, digest and size.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/internal/fs"
	"github.com/engineercoding/dedupe/internal/logging"
)

var (
	ErrNotStored      = errors.New("object not stored")
	ErrVerifyMismatch = errors.New("copied object does not match source fingerprint")
)

// RenameFunc moves a file. It is os.Rename unless overridden.
type RenameFunc func(oldpath, newpath string) error

// Option configures a Store.
type Option func(*Store)

// WithRename replaces the rename primitive used for promotion and demotion.
func WithRename(fn RenameFunc) Option {
	return func(s *Store) { s.rename = fn }
}

// Store is a handle on one StorageRoot.
type Store struct {
	root   string
	rename RenameFunc
	locks  keyedMutex
	log    zerolog.Logger
}

// Object is one stored canonical copy.
type Object struct {
	Path        string
	Size        int64
	Fingerprint checksum.Fingerprint
}

// New returns a handle on root without touching the filesystem.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:   filepath.Clean(root),
		rename: os.Rename,
		log:    logging.Get("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a handle on root, creating the layout if needed.
func Open(root string, opts ...Option) (*Store, error) {
	s := New(root, opts...)
	if err := fs.EnsureDirectories(constants.StandardDirPerms, s.ObjectsDir(), s.TmpDir(), s.TxnDir()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Root() string       { return s.root }
func (s *Store) ObjectsDir() string { return filepath.Join(s.root, constants.ObjectsDirName) }
func (s *Store) TmpDir() string     { return filepath.Join(s.root, constants.TmpDirName) }
func (s *Store) TxnDir() string     { return filepath.Join(s.root, constants.TxnDirName) }
func (s *Store) IndexPath() string  { return filepath.Join(s.root, constants.IndexFileName) }
func (s *Store) ConfigPath() string { return filepath.Join(s.root, constants.ConfigFileName) }

// ObjectPath is the stable location of the content (fp, size).
func (s *Store) ObjectPath(fp checksum.Fingerprint, size int64) string {
	shard := fp.Digest
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.ObjectsDir(), string(fp.Algorithm), shard, ObjectName(fp.Digest, size))
}

// ObjectName is the file name of an object inside its shard.
func ObjectName(digest string, size int64) string {
	return digest + "-" + strconv.FormatInt(size, 10)
}

// ParseObjectName splits an object file name into digest and size.
func ParseObjectName(name string) (string, int64, error) {
	i := strings.LastIndexByte(name, '-')
	if i <= 0 || i == len(name)-1 {
		return "", 0, fmt.Errorf("malformed object name %q", name)
	}
	size, err := strconv.ParseInt(name[i+1:], 10, 64)
	if err != nil || size < 0 {
		return "", 0, fmt.Errorf("malformed object size in %q", name)
	}
	digest := name[:i]
	for _, c := range digest {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return "", 0, fmt.Errorf("malformed object digest in %q", name)
		}
	}
	return digest, size, nil
}

// Lock takes the exclusive lock for fp and returns its release function.
func (s *Store) Lock(fp checksum.Fingerprint) func() {
	return s.locks.lock(fp)
}

// Lookup returns the object for (fp, size) if it is stored.
func (s *Store) Lookup(fp checksum.Fingerprint, size int64) (string, error) {
	path := s.ObjectPath(fp, size)
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return "", ErrNotStored
	}
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("object %s is not a regular file", path)
	}
	if info.Size() != size {
		return "", fmt.Errorf("object %s has size %d, name says %d", path, info.Size(), size)
	}
	return path, nil
}

// Objects yields every object stored for alg, or for all algorithms when
// alg is empty. Entries whose names do not parse are yielded as errors.
func (s *Store) Objects(ctx context.Context, alg checksum.Algorithm) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		algs := []checksum.Algorithm{alg}
		if alg == "" {
			algs = checksum.Algorithms()
		}
		stopped := false
		emit := func(obj Object, err error) error {
			if !yield(obj, err) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		}
		for _, a := range algs {
			dir := filepath.Join(s.ObjectsDir(), string(a))
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				continue
			}
			err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if err != nil {
					return emit(Object{}, err)
				}
				if d.IsDir() {
					return nil
				}
				digest, size, perr := ParseObjectName(d.Name())
				if perr != nil || !d.Type().IsRegular() {
					if perr == nil {
						perr = fmt.Errorf("object %s is not a regular file", path)
					}
					return emit(Object{}, perr)
				}
				return emit(Object{Path: path, Size: size, Fingerprint: checksum.Fingerprint{Algorithm: a, Digest: digest}}, nil)
			})
			if stopped {
				return
			}
			if err != nil {
				yield(Object{}, err)
				return
			}
		}
	}
}

// SizeIndex groups the stored objects of alg by size.
func (s *Store) SizeIndex(ctx context.Context, alg checksum.Algorithm) (map[int64][]Object, error) {
	index := make(map[int64][]Object)
	for obj, err := range s.Objects(ctx, alg) {
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			s.log.Warn().Err(err).Msg("Ignoring unreadable store entry")
			continue
		}
		index[obj.Size] = append(index[obj.Size], obj)
	}
	return index, nil
}

// NewTempPath returns an unused path inside the store's scratch directory.
func (s *Store) NewTempPath() string {
	return filepath.Join(s.TmpDir(), uuid.NewString())
}
