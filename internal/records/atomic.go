package records

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes path through a temporary file in the same directory
// and renames it into place once write succeeds. On failure the previous
// content of path is left untouched.
func WriteFileAtomic(path string, write func(io.Writer) error) error {
	var b AtomicBatch
	if err := b.Stage(path, write); err != nil {
		return err
	}
	return b.Commit()
}

// AtomicBatch stages several output files as temporaries and renames them
// into place together. Nothing under the final names changes until Commit.
type AtomicBatch struct {
	staged []stagedFile
}

type stagedFile struct {
	tmp  string
	path string
}

// Stage writes path's content to a temporary file next to it.
func (b *AtomicBatch) Stage(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriterSize(tmp, 64*1024)
	if err = write(buf); err != nil {
		return err
	}
	if err = buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	b.staged = append(b.staged, stagedFile{tmp: tmp.Name(), path: path})
	return nil
}

// Commit renames every staged file into place in staging order. A failed
// rename stops the commit and discards the files not yet renamed.
func (b *AtomicBatch) Commit() error {
	for i, f := range b.staged {
		if err := os.Rename(f.tmp, f.path); err != nil {
			b.staged = b.staged[i:]
			return errors.Join(fmt.Errorf("replace %s: %w", f.path, err), b.Discard())
		}
	}
	b.staged = nil
	return nil
}

// Discard removes staged files that were not committed. It is safe to call
// after Commit.
func (b *AtomicBatch) Discard() error {
	var errs []error
	for _, f := range b.staged {
		if err := os.Remove(f.tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	b.staged = nil
	return errors.Join(errs...)
}
