package process

import (
	"bytes"
	"sync"

	"github.com/wakujs/ssr-contract-tests/framework"
)

const maxPartialLine = 64 * 1024

// lineWriter receives a command's output stream, which exec copies to it from its own
// goroutine, and logs it one line at a time. Writes never block on the logger's consumer.
type lineWriter struct {
	stream  string
	logger  framework.Logger
	tail    *tailBuffer
	partial []byte
	lock    sync.Mutex
}

func newLineWriter(stream string, logger framework.Logger, tail *tailBuffer) *lineWriter {
	return &lineWriter{stream: stream, logger: logger, tail: tail}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.emit(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
	if len(w.partial) > maxPartialLine {
		w.emit(w.partial)
		w.partial = nil
	}
	return len(p), nil
}

// Flush logs any output that did not end with a newline.
func (w *lineWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if len(w.partial) > 0 {
		w.emit(w.partial)
		w.partial = nil
	}
}

func (w *lineWriter) emit(line []byte) {
	s := string(bytes.TrimRight(line, "\r"))
	w.logger.Printf("[%s] %s", w.stream, s)
	if w.tail != nil {
		w.tail.add(s)
	}
}

// tailBuffer keeps the last few lines of output so that they can be included in an error.
type tailBuffer struct {
	lines []string
	max   int
	lock  sync.Mutex
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	t.lock.Lock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
	t.lock.Unlock()
}

func (t *tailBuffer) Lines() []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]string(nil), t.lines...)
}
