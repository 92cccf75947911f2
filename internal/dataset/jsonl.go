package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

// maxLine bounds one JSONL line when reading; replies with code can be long.
const maxLine = 16 << 20

// Writer appends values of type T as JSON lines to a file. It is safe for
// concurrent use.
type Writer[T any] struct {
	mu    sync.Mutex
	path  string
	f     *os.File
	buf   *bufio.Writer
	count int
}

// Create opens path for appending, creating the parent directory and the
// file as needed. An existing file is not truncated.
func Create[T any](path string) (*Writer[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Writer[T]{path: path, f: f, buf: bufio.NewWriter(f)}, nil
}

// Path returns the file being written.
func (w *Writer[T]) Path() string {
	return w.path
}

// Append writes v as one line.
func (w *Writer[T]) Append(v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return errors.New("dataset: write to closed writer")
	}
	if _, err := w.buf.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	w.count++
	return nil
}

// Count returns how many lines this writer has appended.
func (w *Writer[T]) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes buffered lines and closes the file.
func (w *Writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.f.Close()
	w.f = nil
	return errors.Join(flushErr, closeErr)
}

// Read streams the values stored in a JSONL file. Blank lines are skipped;
// a malformed line ends the sequence with an error naming its line number.
func Read[T any](path string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		f, err := os.Open(path)
		if err != nil {
			yield(zero, fmt.Errorf("open %s: %w", path, err))
			return
		}
		defer f.Close()
		readLines(f, yield)
	}
}

func readLines[T any](r io.Reader, yield func(T, error) bool) {
	var zero T
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			yield(zero, fmt.Errorf("parse line %d: %w", lineNum, err))
			return
		}
		if !yield(v, nil) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		yield(zero, fmt.Errorf("read: %w", err))
	}
}
