package paper

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"ritbot-go/internal/execution"
)

// JSONLRecorder appends fills as JSON lines for post-session analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
	err  error
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(file)
	return &JSONLRecorder{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Record writes a single fill and flushes it so a crash loses at most one line.
// The first write error is kept and reported by Close.
func (r *JSONLRecorder) Record(fill execution.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil || r.err != nil {
		return
	}
	if err := r.enc.Encode(fill); err != nil {
		r.err = err
		return
	}
	r.err = r.buf.Flush()
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return r.err
	}
	flushErr := r.buf.Flush()
	closeErr := r.file.Close()
	r.file = nil
	return errors.Join(r.err, flushErr, closeErr)
}
