package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrSizeMismatch = errors.New("content size mismatch")

// WriteResult is what WriteContent learned while streaming.
type WriteResult struct {
	Size int64
	Hash string
}

// ctxReader stops a copy as soon as the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// WriteContent streams r into the sandbox under key while hashing it.
// Exactly size bytes must arrive; otherwise nothing is left on disk.
func (s *LocalStore) WriteContent(ctx context.Context, sb *Sandbox, key string, r io.Reader, size int64) (WriteResult, error) {
	final := sb.ContentPath(key)
	part := final + ".part"

	f, err := os.OpenFile(part, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return WriteResult{}, fmt.Errorf("%w: create %s: %v", ErrIO, key, err)
	}
	discard := func() {
		_ = f.Close()
		_ = os.Remove(part)
	}

	hasher := sha256.New()
	// One extra byte lets an oversized body be detected without reading it all.
	src := io.LimitReader(&ctxReader{ctx: ctx, r: r}, size+1)
	written, err := io.Copy(io.MultiWriter(f, hasher), src)
	if err != nil {
		discard()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return WriteResult{}, ctxErr
		}
		return WriteResult{}, fmt.Errorf("%w: write %s: %v", ErrIO, key, err)
	}
	if written != size {
		discard()
		return WriteResult{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, size, written)
	}
	if err := f.Sync(); err != nil {
		discard()
		return WriteResult{}, fmt.Errorf("%w: sync %s: %v", ErrIO, key, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return WriteResult{}, fmt.Errorf("%w: close %s: %v", ErrIO, key, err)
	}
	if err := os.Rename(part, final); err != nil {
		_ = os.Remove(part)
		return WriteResult{}, fmt.Errorf("%w: commit %s: %v", ErrIO, key, err)
	}
	return WriteResult{Size: written, Hash: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// OpenContent opens a stored object for reading.
func (s *LocalStore) OpenContent(sb *Sandbox, key string) (*os.File, error) {
	return os.Open(sb.ContentPath(key))
}

// RemoveContent deletes a stored object. A missing object is not an error.
func (s *LocalStore) RemoveContent(sb *Sandbox, key string) error {
	if err := os.Remove(sb.ContentPath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %v", ErrIO, key, err)
	}
	return nil
}

// RemoveDerivative deletes a derivative artifact. A missing artifact is not an error.
func (s *LocalStore) RemoveDerivative(sb *Sandbox, ref string) error {
	if err := os.Remove(sb.DerivativePath(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove derivative %s: %v", ErrIO, ref, err)
	}
	return nil
}

// HashFile recomputes the hex sha256 of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
