package checksum

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/engineercoding/dedupe/internal/constants"
)

// Limiter throttles reads. *bandwidth.Limiter satisfies it.
type Limiter interface {
	WaitN(ctx context.Context, n int) error
}

// FileOptions tunes FileFingerprint. The zero value reads unthrottled with a
// freshly allocated buffer.
type FileOptions struct {
	Limiter    Limiter
	OnProgress func(n int64)
	Buffer     []byte
}

// FileFingerprint streams the file at path through a Checksummer. The context
// is checked between chunks.
func FileFingerprint(ctx context.Context, path string, alg Algorithm, opts FileOptions) (Fingerprint, int64, error) {
	c, err := New(alg)
	if err != nil {
		return Fingerprint{}, 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, 0, err
	}
	defer f.Close()

	n, err := Stream(ctx, c, f, opts)
	if err != nil {
		return Fingerprint{}, n, fmt.Errorf("read %s: %w", path, err)
	}
	return c.Fingerprint(), n, nil
}

// Stream feeds r into c until EOF and returns the number of bytes consumed.
func Stream(ctx context.Context, c Checksummer, r io.Reader, opts FileOptions) (int64, error) {
	buf := opts.Buffer
	if len(buf) == 0 {
		buf = make([]byte, constants.ReadBufferSize)
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if opts.Limiter != nil {
				if werr := opts.Limiter.WaitN(ctx, n); werr != nil {
					return total, werr
				}
			}
			_, _ = c.Write(buf[:n])
			total += int64(n)
			if opts.OnProgress != nil {
				opts.OnProgress(int64(n))
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
