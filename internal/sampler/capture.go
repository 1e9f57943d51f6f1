package sampler

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Capture records the combined console output of one subprocess in a
// scoped temporary file.
//
// Output arrives through Stream. Raw bytes reach the file as soon as the
// pipe yields them, so a marker printed without a trailing newline is
// visible to Output at once. Lines are split only for the optional
// callback. Output rereads the file from the start on every call.
type Capture struct {
	file *os.File
	path string

	mu     sync.Mutex
	closed bool
	source io.ReadCloser

	done chan struct{}

	// Stats (atomic for thread-safety)
	bytesRead atomic.Int64
	linesRead atomic.Int64
}

// NewCapture creates the temporary file backing a capture.
// An empty dir uses the OS temporary directory.
func NewCapture(dir string) (*Capture, error) {
	f, err := os.CreateTemp(dir, "sample-output-*.log")
	if err != nil {
		return nil, err
	}
	return &Capture{
		file: f,
		path: f.Name(),
		done: make(chan struct{}),
	}, nil
}

// Stream reads r until EOF or Close, copying every byte to the capture.
// It closes Done on exit and must be run at most once, in its own goroutine.
func (c *Capture) Stream(r io.ReadCloser, onLine func(string)) {
	defer close(c.done)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		r.Close()
		return
	}
	c.source = r
	c.mu.Unlock()

	// bufio.Reader rather than Scanner: an overlong line must never stop
	// the pipe from draining, or the child blocks on write.
	br := bufio.NewReaderSize(io.TeeReader(r, c), 64*1024)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			c.linesRead.Add(1)
			if onLine != nil {
				onLine(strings.TrimRight(line, "\r\n"))
			}
		}
		if err != nil {
			return
		}
	}
}

// Write appends raw subprocess output to the file. It never fails so that
// a full disk cannot stall the pipe and block the child.
func (c *Capture) Write(p []byte) (int, error) {
	c.bytesRead.Add(int64(len(p)))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return len(p), nil
	}
	// A failed write only loses console text; the subprocess is unaffected
	_, _ = c.file.Write(p)
	return len(p), nil
}

// Output returns everything captured so far, reread from the start of the
// file. Returns "" if the file is momentarily unreadable or already closed.
func (c *Capture) Output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ""
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return ""
	}
	return string(data)
}

// Done is closed when Stream returns.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Drain waits up to timeout for Stream to reach EOF.
// Returns false if the stream is still open when the timeout elapses.
func (c *Capture) Drain(timeout time.Duration) bool {
	select {
	case <-c.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close closes the source pipe and the file, then deletes the file.
// Safe to call more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	if c.source != nil {
		if err := c.source.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := c.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Path returns the location of the capture file.
func (c *Capture) Path() string {
	return c.path
}

// Stats returns (bytesRead, linesRead).
func (c *Capture) Stats() (bytesRead int64, linesRead int64) {
	return c.bytesRead.Load(), c.linesRead.Load()
}
