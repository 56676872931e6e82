package fileutil

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies src to dst and returns the number of bytes written. The
// data goes to a hidden temporary file next to dst, is synced and read back
// to confirm it matches the source checksum, and only then renamed over dst.
// dst keeps the source's permission bits. Cancelling ctx aborts the copy
// with ctx.Err() and leaves no temporary file behind.
func CopyFile(ctx context.Context, src, dst string) (written int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	sum := sha256.New()
	written, err = io.Copy(io.MultiWriter(tmp, sum), readerFunc(func(p []byte) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return in.Read(p)
	}))
	if err != nil {
		return written, err
	}
	if written != info.Size() {
		return written, fmt.Errorf("copy %s: source has %d bytes, copied %d", src, info.Size(), written)
	}
	if err = tmp.Sync(); err != nil {
		return written, err
	}
	if err = verify(tmp, sum); err != nil {
		return written, fmt.Errorf("copy %s: %w", src, err)
	}
	if err = tmp.Chmod(info.Mode().Perm()); err != nil {
		return written, err
	}
	if err = tmp.Close(); err != nil {
		return written, err
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return written, err
	}
	return written, nil
}

// verify re-reads f from the start and compares it with the checksum of the
// bytes that were written.
func verify(f *os.File, want hash.Hash) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	got := sha256.New()
	if _, err := io.Copy(got, f); err != nil {
		return err
	}
	if !bytes.Equal(got.Sum(nil), want.Sum(nil)) {
		return fmt.Errorf("checksum mismatch after write")
	}
	return nil
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
