// Package pager implements sized, positioned byte I/O against a single
// file with a single file handle. It is the bottom layer shared by the
// row store and every on-disk B-tree index.
package pager

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mistlake/minisql/internal/dberrors"
)

// Pager owns one *os.File and serializes access to it. Every table and
// every index opens its own Pager; there is no shared buffer pool,
// matching the single-threaded, single-process resource model.
type Pager struct {
	file *os.File
	mu   sync.Mutex
	size int64
}

// Open opens path for read/write. If create is true the file is created
// (and truncated if it already existed).
func Open(path string, create bool) (*Pager, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("pager: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pager: stat %s: %w", path, err)
	}

	return &Pager{file: f, size: info.Size()}, nil
}

// Size returns the current length of the file in bytes.
func (p *Pager) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// ReadAt reads exactly len(buf) bytes starting at offset. Reading past the
// current end of file is an error: the pager never returns a short read.
func (p *Pager) ReadAt(offset int64, buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if offset < 0 || offset+int64(len(buf)) > p.size {
		return fmt.Errorf("pager: read past end of file at offset %d (%d bytes, size %d): %w",
			offset, len(buf), p.size, dberrors.ErrIO)
	}

	n, err := p.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("pager: read at %d: %w", offset, dberrors.ErrIO)
	}
	if n != len(buf) {
		return fmt.Errorf("pager: short read at %d: got %d want %d: %w", offset, n, len(buf), dberrors.ErrIO)
	}
	return nil
}

// WriteAt writes buf starting at offset. Writing past the current end of
// file extends it; the pager's notion of size grows to match.
func (p *Pager) WriteAt(offset int64, buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if offset < 0 {
		return fmt.Errorf("pager: negative offset %d: %w", offset, dberrors.ErrIO)
	}

	n, err := p.file.WriteAt(buf, offset)
	if err != nil {
		return fmt.Errorf("pager: write at %d: %w", offset, dberrors.ErrIO)
	}
	if n != len(buf) {
		return fmt.Errorf("pager: short write at %d: got %d want %d: %w", offset, n, len(buf), dberrors.ErrIO)
	}

	if end := offset + int64(len(buf)); end > p.size {
		p.size = end
	}
	return nil
}

// Close releases the file handle.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("pager: close: %w", err)
	}
	return nil
}
