// Package atomic keeps a write-ahead journal of relocation steps so an
// interrupted run can be finished or undone by Recover.
package atomic

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engineercoding/dedupe/internal/constants"
)

type State string

const (
	StatePending    State = "pending"
	StateCommitted  State = "committed"
	StateRolledBack State = "rolled_back"
	StateFailed     State = "failed"
)

type EntryType string

const (
	// EntryPromote moves a tree file into the store and links its old path.
	EntryPromote EntryType = "promote"
	// EntryLink replaces a tree file with a link to an existing object.
	EntryLink EntryType = "link"
)

const journalFileName = "journal.json"

// JournalEntry is one relocation step. Path is the tree path being replaced,
// Temp the scratch object (promote) or staged link (link), LinkTemp the link
// staged for a promoted path and Target the text the final link will hold.
type JournalEntry struct {
	Type     EntryType `json:"type"`
	Path     string    `json:"path"`
	Object   string    `json:"object"`
	Temp     string    `json:"temp,omitempty"`
	LinkTemp string    `json:"linkTemp,omitempty"`
	Target   string    `json:"target,omitempty"`
	Size     int64     `json:"size,omitempty"`
	Done     bool      `json:"done"`
	Reverted bool      `json:"reverted,omitempty"`
}

type Journal struct {
	Version   int            `json:"version"`
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"startedAt"`
	State     State          `json:"state"`
	Entries   []JournalEntry `json:"entries"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	dir       string
	storeRoot string
	mu        sync.Mutex
}

// Transaction is the handle on one in-progress journal.
type Transaction struct{ j *Journal }

var (
	ErrTxnState   = errors.New("transaction not pending")
	ErrTxnCorrupt = errors.New("transaction journal corrupt")
)

// Begin starts a journal under <storeRoot>/.txn/<id>/.
func Begin(storeRoot string, metadata map[string]any) (*Transaction, error) {
	txnRoot := filepath.Join(storeRoot, constants.TxnDirName)
	id := uuid.NewString()
	dir := filepath.Join(txnRoot, id)
	if err := os.MkdirAll(dir, constants.StandardDirPerms); err != nil {
		return nil, fmt.Errorf("create txn dir: %w", err)
	}
	j := &Journal{
		Version:   1,
		ID:        id,
		StartedAt: time.Now().UTC(),
		State:     StatePending,
		Entries:   []JournalEntry{},
		Metadata:  metadata,
		dir:       dir,
		storeRoot: storeRoot,
	}
	if err := j.persist(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &Transaction{j: j}, nil
}

// ID returns the journal identifier.
func (t *Transaction) ID() string { return t.j.ID }

// Record durably appends a step before it is carried out and returns its index.
func (t *Transaction) Record(e JournalEntry) (int, error) {
	t.j.mu.Lock()
	defer t.j.mu.Unlock()
	if t.j.State != StatePending {
		return -1, fmt.Errorf("%w: record in state %s", ErrTxnState, t.j.State)
	}
	e.Done = false
	t.j.Entries = append(t.j.Entries, e)
	if err := t.j.persistLocked(); err != nil {
		t.j.Entries = t.j.Entries[:len(t.j.Entries)-1]
		return -1, err
	}
	return len(t.j.Entries) - 1, nil
}

// Done marks step i as completed.
func (t *Transaction) Done(i int) error {
	return t.finish(i, false)
}

// Revert marks step i as undone, leaving the tree as it was before the step.
func (t *Transaction) Revert(i int) error {
	return t.finish(i, true)
}

func (t *Transaction) finish(i int, reverted bool) error {
	t.j.mu.Lock()
	defer t.j.mu.Unlock()
	if i < 0 || i >= len(t.j.Entries) {
		return fmt.Errorf("journal entry %d out of range", i)
	}
	t.j.Entries[i].Done = true
	t.j.Entries[i].Reverted = reverted
	return t.j.persistLocked()
}

// Commit closes the journal once every step has finished.
func (t *Transaction) Commit() error {
	t.j.mu.Lock()
	defer t.j.mu.Unlock()
	if t.j.State != StatePending {
		return fmt.Errorf("%w: commit in state %s", ErrTxnState, t.j.State)
	}
	for i, e := range t.j.Entries {
		if !e.Done {
			return fmt.Errorf("cannot commit: entry %d (%s %s) unfinished", i, e.Type, e.Path)
		}
	}
	t.j.State = StateCommitted
	return t.j.persistLocked()
}

// Discard removes a committed journal.
func (t *Transaction) Discard() error {
	t.j.mu.Lock()
	defer t.j.mu.Unlock()
	if t.j.State != StateCommitted && t.j.State != StateRolledBack {
		return fmt.Errorf("%w: discard in state %s", ErrTxnState, t.j.State)
	}
	return os.RemoveAll(t.j.dir)
}

func (j *Journal) persist() error { j.mu.Lock(); defer j.mu.Unlock(); return j.persistLocked() }

// persistLocked writes the journal to a temp file and renames it into place.
func (j *Journal) persistLocked() error {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(j.dir, journalFileName+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.StandardFilePerms)
	if err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync journal: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return os.Rename(tmp, filepath.Join(j.dir, journalFileName))
}

func loadJournal(dir string) (*Journal, error) {
	data, err := os.ReadFile(filepath.Join(dir, journalFileName))
	if err != nil {
		return nil, err
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTxnCorrupt, err)
	}
	if j.ID == "" || j.Version != 1 {
		return nil, fmt.Errorf("%w: missing id or unsupported version %d", ErrTxnCorrupt, j.Version)
	}
	j.dir = dir
	return &j, nil
}
