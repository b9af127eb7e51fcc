package atomic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/engineercoding/dedupe/internal/constants"
	"github.com/engineercoding/dedupe/internal/fs"
)

type RecoveryResult struct {
	// RolledForward counts promotions finished by linking the promoted path.
	RolledForward int
	// RolledBack counts journals whose unfinished steps were cleaned up.
	RolledBack int
	Purged     int
	// StrayTemp lists scratch files no journal accounts for. They are kept.
	StrayTemp []string
	Errors    []error
}

// Recover finishes or undoes every journal left pending by an interrupted
// run and purges finished journals older than retention. It must not run
// while another process relocates into the same store.
func Recover(storeRoot string, retention time.Duration) (*RecoveryResult, error) {
	txnRoot := filepath.Join(storeRoot, constants.TxnDirName)
	res := &RecoveryResult{}
	entries, err := os.ReadDir(txnRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("read txn root: %w", err)
	}

	known := make(map[string]struct{})
	now := time.Now()
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(txnRoot, e.Name())
		j, err := loadJournal(dir)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("load journal %s: %w", dir, err))
			continue
		}
		j.storeRoot = storeRoot
		for _, entry := range j.Entries {
			if entry.Type == EntryPromote && entry.Temp != "" {
				known[entry.Temp] = struct{}{}
			}
		}

		switch j.State {
		case StateCommitted, StateRolledBack:
			if retention >= 0 && now.Sub(j.StartedAt) > retention {
				_ = os.RemoveAll(dir)
				res.Purged++
			}
		case StatePending, StateFailed:
			forward, err := j.recover()
			res.RolledForward += forward
			if err != nil {
				j.State = StateFailed
				res.Errors = append(res.Errors, fmt.Errorf("recover %s: %w", j.ID, err))
			} else {
				j.State = StateRolledBack
				res.RolledBack++
			}
			if perr := j.persist(); perr != nil {
				res.Errors = append(res.Errors, fmt.Errorf("persist %s: %w", j.ID, perr))
			}
		}
	}

	tmpDir := filepath.Join(storeRoot, constants.TmpDirName)
	if tmps, err := os.ReadDir(tmpDir); err == nil {
		for _, e := range tmps {
			path := filepath.Join(tmpDir, e.Name())
			if _, ok := known[path]; !ok {
				res.StrayTemp = append(res.StrayTemp, path)
			}
		}
	}
	return res, nil
}

// recover settles every unfinished entry and returns how many promotions it
// rolled forward.
func (j *Journal) recover() (int, error) {
	forward := 0
	var errs []error
	for i := range j.Entries {
		e := &j.Entries[i]
		if e.Done {
			continue
		}
		var err error
		switch e.Type {
		case EntryPromote:
			var rolled bool
			rolled, err = recoverPromote(e)
			if rolled {
				forward++
			}
		case EntryLink:
			err = removeIfTempLink(e.Temp)
			if err == nil {
				e.Reverted = !fs.PointsTo(e.Path, e.Object)
			}
		default:
			err = fmt.Errorf("%w: unknown entry type %q", ErrTxnCorrupt, e.Type)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.Done = true
	}
	return forward, errors.Join(errs...)
}

// recoverPromote puts a promoted file back in reach of its tree path. The
// content may sit at the source, the scratch name or the final object name
// depending on where the run stopped.
func recoverPromote(e *JournalEntry) (bool, error) {
	if err := removeIfTempLink(e.LinkTemp); err != nil {
		return false, err
	}

	sourceExists := exists(e.Path)
	if sourceExists {
		// Nothing moved, or a cross-device copy was interrupted before the
		// source was deleted. The source is authoritative.
		if e.Temp != "" && exists(e.Temp) {
			if err := os.Remove(e.Temp); err != nil {
				return false, fmt.Errorf("remove scratch object %s: %w", e.Temp, err)
			}
		}
		e.Reverted = !fs.PointsTo(e.Path, e.Object)
		return false, nil
	}

	if !exists(e.Object) {
		if e.Temp == "" || !exists(e.Temp) {
			return false, fmt.Errorf("promoted content of %s not found at %s or %s", e.Path, e.Object, e.Temp)
		}
		if err := os.MkdirAll(filepath.Dir(e.Object), constants.StandardDirPerms); err != nil {
			return false, err
		}
		if err := os.Rename(e.Temp, e.Object); err != nil {
			return false, fmt.Errorf("install scratch object %s: %w", e.Temp, err)
		}
	}

	target := e.Target
	if target == "" {
		target = e.Object
	}
	if err := fs.ReplaceWithSymlink(target, e.Path); err != nil {
		return false, err
	}
	return true, nil
}

func removeIfTempLink(path string) error {
	if path == "" {
		return nil
	}
	return fs.RemoveTempLink(path)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Pending counts journals that Recover would still have to settle.
func Pending(storeRoot string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(storeRoot, constants.TxnDirName))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		j, err := loadJournal(filepath.Join(storeRoot, constants.TxnDirName, e.Name()))
		if err != nil {
			n++
			continue
		}
		if j.State == StatePending || j.State == StateFailed {
			n++
		}
	}
	return n, nil
}
