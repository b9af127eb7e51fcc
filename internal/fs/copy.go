package fs

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/engineercoding/dedupe/internal/constants"
)

// CopyN copies up to n bytes from src to dst through buf, reporting each
// written chunk to progress. A negative n copies until EOF.
func CopyN(dst io.Writer, src io.Reader, n int64, buf []byte, progress func(int64)) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, constants.ReadBufferSize)
	}
	if n >= 0 {
		src = io.LimitReader(src, n)
	}

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if progress != nil && nw > 0 {
				progress(int64(nw))
			}
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, rerr
		}
	}

	if n >= 0 && written < n {
		return written, io.ErrUnexpectedEOF
	}
	return written, nil
}

// CopyFile copies src to a new file at dst and syncs it to stable storage.
// dst must not exist. On failure the partial destination is removed.
func CopyFile(src, dst string, progress func(int64)) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := CopyN(out, in, info.Size(), nil, progress)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return n, fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	// Preserve modification time so the copy stays indistinguishable
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return n, nil
}

// SyncDir flushes directory metadata such as newly created entries.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
