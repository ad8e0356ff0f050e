// Package log stores the engine journal as JSON lines in zstd files, one file
// per UTC hour named <prefix>-YYYY-MM-DD-HH.jsonl.zst. A process restarted
// within the same hour appends a new zstd frame to that hour's file.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const hourLayout = "2006-01-02-15"

// JSONLZstdWriter is safe for concurrent use. Every Write reaches the
// compressor before it returns; the compressor's own block is only complete
// on rotation or Close.
type JSONLZstdWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu    sync.Mutex
	hour  string
	file  *os.File
	zw    *zstd.Encoder
	buf   *bufio.Writer
	lines uint64
}

func NewJSONLZstdWriter(dir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{dir: dir, prefix: prefix, now: time.Now}
}

// Write appends v as one line.
func (w *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", w.prefix, err)
	}
	b = append(b, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.openLocked(w.now().UTC().Format(hourLayout)); err != nil {
		return err
	}
	if _, err := w.buf.Write(b); err != nil {
		return err
	}
	w.lines++
	return w.buf.Flush()
}

// Lines counts the lines written since the writer was created.
func (w *JSONLZstdWriter) Lines() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// openLocked makes sure the file for hour is the one being written.
func (w *JSONLZstdWriter) openLocked(hour string) error {
	if w.buf != nil && hour == w.hour {
		return nil
	}
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.file, w.zw, w.hour = f, zw, hour
	w.buf = bufio.NewWriterSize(zw, 64*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.buf == nil {
		return nil
	}
	err := errors.Join(w.buf.Flush(), w.zw.Close(), w.file.Close())
	w.buf, w.zw, w.file = nil, nil, nil
	return err
}

func (w *JSONLZstdWriter) path(hour string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Files lists prefix's rotated files under dir, oldest first.
func Files(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadJSONL calls fn for every line of a compressed JSONL file. Files
// appended to across restarts hold several zstd frames; they decode as one
// stream.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}
