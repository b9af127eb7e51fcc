package deduplication

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/fs"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS files (
	path      TEXT PRIMARY KEY,
	size      INTEGER NOT NULL,
	mtime_ns  INTEGER NOT NULL,
	algorithm TEXT NOT NULL,
	digest    TEXT NOT NULL,
	seen_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS links (
	path      TEXT PRIMARY KEY,
	algorithm TEXT NOT NULL,
	digest    TEXT NOT NULL,
	size      INTEGER NOT NULL,
	object    TEXT NOT NULL,
	linked_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS links_object ON links (object);
`

// Index caches fingerprints by (path, size, mtime) and records every link
// the engine creates. A nil *Index is a valid, disabled index.
type Index struct {
	pool *sqlitex.Pool
	path string
}

// LinkRecord is one row of the links table.
type LinkRecord struct {
	Path     string
	Object   string
	Key      GroupKey
	LinkedAt time.Time
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string, poolSize int) (*Index, error) {
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareIndexConn,
	})
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	return &Index{pool: pool, path: path}, nil
}

func prepareIndexConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("index: %s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, indexSchema, nil)
}

// Close releases every connection.
func (ix *Index) Close() error {
	if ix == nil {
		return nil
	}
	return ix.pool.Close()
}

// Lookup returns the cached fingerprint of rec if the file is unchanged
// since it was recorded.
func (ix *Index) Lookup(ctx context.Context, rec fs.FileRecord, alg checksum.Algorithm) (checksum.Fingerprint, bool, error) {
	if ix == nil {
		return checksum.Fingerprint{}, false, nil
	}
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return checksum.Fingerprint{}, false, fmt.Errorf("index lookup: %w", err)
	}
	defer ix.pool.Put(conn)

	var digest string
	found := false
	err = sqlitex.Execute(conn,
		`SELECT digest FROM files WHERE path = ? AND size = ? AND mtime_ns = ? AND algorithm = ?`,
		&sqlitex.ExecOptions{
			Args: []any{rec.Path, rec.Size, rec.ModTime.UnixNano(), string(alg)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				digest = stmt.ColumnText(0)
				found = true
				return nil
			},
		})
	if err != nil {
		return checksum.Fingerprint{}, false, fmt.Errorf("index lookup %s: %w", rec.Path, err)
	}
	if !found {
		return checksum.Fingerprint{}, false, nil
	}
	return checksum.Fingerprint{Algorithm: alg, Digest: digest}, true, nil
}

// Put records the fingerprint of rec.
func (ix *Index) Put(ctx context.Context, rec fs.FileRecord) error {
	if ix == nil || rec.Fingerprint.IsZero() {
		return nil
	}
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("index put: %w", err)
	}
	defer ix.pool.Put(conn)

	return sqlitex.Execute(conn,
		`INSERT INTO files (path, size, mtime_ns, algorithm, digest, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   size = excluded.size, mtime_ns = excluded.mtime_ns,
		   algorithm = excluded.algorithm, digest = excluded.digest,
		   seen_at = excluded.seen_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				rec.Path, rec.Size, rec.ModTime.UnixNano(),
				string(rec.Fingerprint.Algorithm), rec.Fingerprint.Digest,
				time.Now().Unix(),
			},
		})
}

// RecordLink notes that path is now a link to object. The path no longer
// holds its own content, so any cached fingerprint for it is dropped.
func (ix *Index) RecordLink(ctx context.Context, path, object string, key GroupKey) (err error) {
	if ix == nil {
		return nil
	}
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("index record link: %w", err)
	}
	defer ix.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("index record link: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = sqlitex.Execute(conn, `DELETE FROM files WHERE path = ?`, &sqlitex.ExecOptions{
		Args: []any{path},
	}); err != nil {
		return err
	}
	err = sqlitex.Execute(conn,
		`INSERT INTO links (path, algorithm, digest, size, object, linked_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   algorithm = excluded.algorithm, digest = excluded.digest,
		   size = excluded.size, object = excluded.object,
		   linked_at = excluded.linked_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				path, string(key.Fingerprint.Algorithm), key.Fingerprint.Digest,
				key.Size, object, time.Now().Unix(),
			},
		})
	return err
}

// Links returns every recorded link ordered by path.
func (ix *Index) Links(ctx context.Context) ([]LinkRecord, error) {
	if ix == nil {
		return nil, nil
	}
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("index links: %w", err)
	}
	defer ix.pool.Put(conn)

	var links []LinkRecord
	err = sqlitex.Execute(conn,
		`SELECT path, object, algorithm, digest, size, linked_at FROM links ORDER BY path`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				links = append(links, LinkRecord{
					Path:   stmt.ColumnText(0),
					Object: stmt.ColumnText(1),
					Key: GroupKey{
						Size: stmt.ColumnInt64(4),
						Fingerprint: checksum.Fingerprint{
							Algorithm: checksum.Algorithm(stmt.ColumnText(2)),
							Digest:    stmt.ColumnText(3),
						},
					},
					LinkedAt: time.Unix(stmt.ColumnInt64(5), 0),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("index links: %w", err)
	}
	return links, nil
}

// CachedFiles returns the number of cached fingerprints.
func (ix *Index) CachedFiles(ctx context.Context) (int, error) {
	if ix == nil {
		return 0, nil
	}
	conn, err := ix.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("index count: %w", err)
	}
	defer ix.pool.Put(conn)

	count := 0
	err = sqlitex.Execute(conn, `SELECT count(*) FROM files`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			count = stmt.ColumnInt(0)
			return nil
		},
	})
	return count, err
}
