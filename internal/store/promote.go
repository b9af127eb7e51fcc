package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/internal/fs"
)

// Promotion names the paths involved in moving one file into the store.
type Promotion struct {
	Source string
	Temp   string
	Object string
}

// VerifyFunc fingerprints the file at path.
type VerifyFunc func(ctx context.Context, path string) (checksum.Fingerprint, error)

// Plan picks the temporary and final names for promoting source.
func (s *Store) Plan(source string, fp checksum.Fingerprint, size int64) Promotion {
	return Promotion{Source: source, Temp: s.NewTempPath(), Object: s.ObjectPath(fp, size)}
}

// Promote moves p.Source into the store as p.Object. A rename is tried first;
// across filesystems the source is copied, synced and re-fingerprinted, and
// it is deleted only once the copy matches want. copied reports which path
// was taken. The caller must hold the lock for want.
func (s *Store) Promote(ctx context.Context, p Promotion, want checksum.Fingerprint, verify VerifyFunc) (copied bool, err error) {
	if _, err := os.Lstat(p.Object); err == nil {
		return false, fmt.Errorf("object %s already exists", p.Object)
	}
	if err := fs.EnsureDirectories(constants.StandardDirPerms, filepath.Dir(p.Object), filepath.Dir(p.Temp)); err != nil {
		return false, err
	}

	err = s.rename(p.Source, p.Temp)
	switch {
	case err == nil:
		if err := os.Rename(p.Temp, p.Object); err != nil {
			if rerr := s.rename(p.Temp, p.Source); rerr != nil {
				return false, errors.Join(fmt.Errorf("install object %s: %w", p.Object, err), fmt.Errorf("restore %s: %w", p.Source, rerr))
			}
			return false, fmt.Errorf("install object %s: %w", p.Object, err)
		}
	case fs.IsCrossDevice(err):
		s.log.Debug().Str("source", p.Source).Msg("Source on another filesystem, copying into store")
		if err := s.copyVerified(ctx, p, want, verify); err != nil {
			return true, err
		}
		copied = true
	default:
		return false, fmt.Errorf("move %s into store: %w", p.Source, err)
	}

	if err := fs.SyncDir(filepath.Dir(p.Object)); err != nil {
		s.log.Warn().Err(err).Str("dir", filepath.Dir(p.Object)).Msg("Failed to sync object directory")
	}
	return copied, nil
}

func (s *Store) copyVerified(ctx context.Context, p Promotion, want checksum.Fingerprint, verify VerifyFunc) error {
	if _, err := fs.CopyFile(p.Source, p.Temp, nil); err != nil {
		return err
	}

	got, err := verify(ctx, p.Temp)
	if err != nil {
		_ = os.Remove(p.Temp)
		return fmt.Errorf("verify copy of %s: %w", p.Source, err)
	}
	if got != want {
		_ = os.Remove(p.Temp)
		return fmt.Errorf("%w: %s is %s, expected %s", ErrVerifyMismatch, p.Source, got.Short(), want.Short())
	}

	if err := os.Rename(p.Temp, p.Object); err != nil {
		_ = os.Remove(p.Temp)
		return fmt.Errorf("install object %s: %w", p.Object, err)
	}
	if err := os.Remove(p.Source); err != nil {
		_ = os.Remove(p.Object)
		return fmt.Errorf("remove promoted source %s: %w", p.Source, err)
	}
	return nil
}

// Demote moves an object back to the path it was promoted from. It is used
// when the promoted file could not be replaced by a link.
func (s *Store) Demote(p Promotion) error {
	err := s.rename(p.Object, p.Source)
	if err == nil {
		return nil
	}
	if !fs.IsCrossDevice(err) {
		return fmt.Errorf("restore %s from store: %w", p.Source, err)
	}
	if _, err := fs.CopyFile(p.Object, p.Source, nil); err != nil {
		return fmt.Errorf("restore %s from store: %w", p.Source, err)
	}
	return os.Remove(p.Object)
}
