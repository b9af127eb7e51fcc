package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/engineercoding/dedupe/internal/constants"
)

// TempLinkPath is the sibling name a symlink is staged under before it
// replaces path.
func TempLinkPath(path string) string {
	return path + constants.TempLinkSuffix
}

// IsTempLink reports whether path names a staged symlink.
func IsTempLink(path string) bool {
	return strings.HasSuffix(path, constants.TempLinkSuffix)
}

// LinkTarget returns the symlink text that makes linkPath point at object.
func LinkTarget(object, linkPath, style string) (string, error) {
	switch style {
	case "", constants.LinkStyleAbsolute:
		return object, nil
	case constants.LinkStyleRelative:
		return filepath.Rel(filepath.Dir(linkPath), object)
	default:
		return "", fmt.Errorf("unknown link style %q", style)
	}
}

// ReplaceWithSymlink replaces path with a symlink whose text is target. The
// link is created under a temporary sibling name and renamed over path, so
// path is always either the original entry or the complete link.
func ReplaceWithSymlink(target, path string) error {
	tmp, err := StageSymlink(target, path)
	if err != nil {
		return err
	}
	return CommitSymlink(tmp, path)
}

// StageSymlink creates the temporary sibling link for path and returns its name.
func StageSymlink(target, path string) (string, error) {
	tmp := TempLinkPath(path)
	if err := removeStaleLink(tmp); err != nil {
		return "", err
	}
	if err := os.Symlink(target, tmp); err != nil {
		return "", fmt.Errorf("stage link %s: %w", path, err)
	}
	return tmp, nil
}

// CommitSymlink renames a staged link over path. The staged link is removed
// if the rename fails.
func CommitSymlink(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s with link: %w", path, err)
	}
	return nil
}

// RemoveTempLink removes tmp if it is a leftover staged symlink.
func RemoveTempLink(tmp string) error {
	return removeStaleLink(tmp)
}

func removeStaleLink(tmp string) error {
	info, err := os.Lstat(tmp)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("refusing to remove %s: not a symlink", tmp)
	}
	return os.Remove(tmp)
}

// PointsTo reports whether path is a symlink that resolves to object without
// following further links.
func PointsTo(path, object string) bool {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	target, err := os.Readlink(path)
	if err != nil {
		return false
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return filepath.Clean(target) == filepath.Clean(object)
}
