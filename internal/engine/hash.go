package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"

	"github.com/bamsammich/beamsum/internal/platform"
)

// HashRequest describes one digest computation.
type HashRequest struct {
	OnRead     func(n int64) // called after every successful read
	Path       string
	Algorithm  Algorithm
	BufferSize int
}

// HashComputer streams a file through a digest. Implementations must stop
// promptly when ctx is cancelled. Every error returned is an *ItemError
// whose Kind is one of NotFound, AccessDenied, Locked, IO or Cancelled.
type HashComputer interface {
	Compute(ctx context.Context, req HashRequest) (string, error)
}

// HashFunc adapts a function to the HashComputer interface.
type HashFunc func(ctx context.Context, req HashRequest) (string, error)

// Compute calls f.
func (f HashFunc) Compute(ctx context.Context, req HashRequest) (string, error) {
	return f(ctx, req)
}

const defaultBufferSize = 1 * mib

// FileHasher hashes local files. Buffers are pooled per size so each
// stream's workers reuse the buffers sized for that stream.
type FileHasher struct {
	limiter *rate.Limiter
	pools   sync.Map // int -> *sync.Pool
}

// NewFileHasher returns a hasher. A positive bwLimit caps the aggregate read
// rate of all workers sharing the hasher, in bytes per second.
func NewFileHasher(bwLimit int64) *FileHasher {
	h := &FileHasher{}
	if bwLimit > 0 {
		h.limiter = NewBWLimiter(bwLimit)
	}
	return h
}

// Compute implements HashComputer.
func (h *FileHasher) Compute(ctx context.Context, req HashRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &ItemError{Kind: KindCancelled, Op: "hash", Path: req.Path, Err: context.Cause(ctx)}
	}

	digest, err := req.Algorithm.New()
	if err != nil {
		return "", &ItemError{Kind: KindIO, Op: "hash", Path: req.Path, Err: err}
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return "", newItemError("open", req.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", newItemError("stat", req.Path, err)
	}
	if info.IsDir() {
		return "", &ItemError{Kind: KindIO, Op: "open", Path: req.Path, Err: errors.New("is a directory")}
	}
	platform.AdviseSequential(f, info.Size())

	var r io.Reader = &ctxReader{ctx: ctx, r: f}
	if h.limiter != nil {
		r = newRateLimitedReader(ctx, r, h.limiter)
	}

	size := req.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	pool := h.pool(size)
	bufp, _ := pool.Get().(*[]byte) //nolint:errcheck // pool only holds *[]byte
	defer pool.Put(bufp)
	buf := *bufp

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			digest.Write(buf[:n]) //nolint:errcheck // hash.Hash never returns an error
			if req.OnRead != nil {
				req.OnRead(int64(n))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return "", &ItemError{Kind: KindCancelled, Op: "read", Path: req.Path, Err: context.Cause(ctx)}
			}
			return "", newItemError("read", req.Path, rerr)
		}
	}

	if info.Size() > 64*mib {
		platform.DropCache(f, info.Size())
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

func (h *FileHasher) pool(size int) *sync.Pool {
	if p, ok := h.pools.Load(size); ok {
		return p.(*sync.Pool) //nolint:forcetypeassert // map only holds *sync.Pool
	}
	p, _ := h.pools.LoadOrStore(size, &sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	})
	return p.(*sync.Pool) //nolint:forcetypeassert // map only holds *sync.Pool
}

// ctxReader fails the next read once ctx is cancelled, so a long file
// stops within one buffer of the cancellation.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, context.Cause(c.ctx)
	}
	return c.r.Read(p)
}

// HashFile computes the digest of the file at path with a default buffer.
func HashFile(ctx context.Context, path string, alg Algorithm) (string, error) {
	return NewFileHasher(0).Compute(ctx, HashRequest{Path: path, Algorithm: alg})
}
