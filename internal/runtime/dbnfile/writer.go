package dbnfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/metadata"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("dbnfile: writer closed")

// Writer appends records to a DBN file. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	w       *bufio.Writer
	records uint64
	closed  bool
}

// Create truncates or creates path and writes the metadata header for md.
func Create(path string, md metadata.Metadata) (*Writer, error) {
	header, err := EncodeMetadata(md)
	if err != nil {
		return nil, lberrors.InvalidArgument("metadata", "%v", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	w := &Writer{path: path, file: f, w: bufio.NewWriter(f)}
	if _, err := w.w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write metadata: %w", err)
	}
	return w, nil
}

// WriteRecord appends one record. rec must hold a whole record; bytes past
// the length in its header are not written.
func (w *Writer) WriteRecord(rec []byte) error {
	if len(rec) == 0 {
		return lberrors.InvalidArgument("record", "cannot be empty")
	}
	h, err := dbn.ParseHeader(rec)
	if err != nil {
		return lberrors.InvalidArgument("record", "%v", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if _, err := w.w.Write(rec[:h.Size()]); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.records++
	return nil
}

// Records reports how many records were written.
func (w *Writer) Records() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

func (w *Writer) Path() string { return w.path }

// Close flushes and closes the file. Later calls return nil.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	flushErr := w.w.Flush()
	return errors.Join(flushErr, w.file.Close())
}

// Reader reads a DBN file written by Writer.
type Reader struct {
	r  *bufio.Reader
	c  io.Closer
	md metadata.Metadata
}

// Open opens path and decodes its metadata header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.c = f
	return r, nil
}

// NewReader decodes the metadata header from src.
func NewReader(src io.Reader) (*Reader, error) {
	r := &Reader{r: bufio.NewReader(src)}
	md, err := DecodeMetadata(r.r)
	if err != nil {
		return nil, err
	}
	r.md = md
	return r, nil
}

func (r *Reader) Metadata() metadata.Metadata { return r.md }

// Next returns the next record, or io.EOF after the last one. A record cut
// short by the end of the stream is reported as dbn.ErrTruncated.
func (r *Reader) Next() ([]byte, error) {
	first, err := r.r.Peek(1)
	if err != nil {
		return nil, err
	}
	size := int(first[0]) * 4
	if size < dbn.HeaderSize {
		return nil, fmt.Errorf("%w: length %d words", dbn.ErrShortRecord, first[0])
	}
	rec := make([]byte, size)
	if _, err := io.ReadFull(r.r, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", dbn.ErrTruncated, err)
	}
	return rec, nil
}

func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
