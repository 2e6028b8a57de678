package supervisor

import (
	"bytes"
	"io"
	"sync"
)

// syncWriter serialises whole lines from several children onto one writer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) writeLine(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Write(line)
}

// prefixWriter adds a prefix to each line written
type prefixWriter struct {
	out    *syncWriter
	prefix []byte
	mu     sync.Mutex
	buffer []byte
}

func newPrefixWriter(out *syncWriter, name string) *prefixWriter {
	return &prefixWriter{out: out, prefix: []byte("[" + name + "] ")}
}

func (pw *prefixWriter) Write(p []byte) (int, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.buffer = append(pw.buffer, p...)
	for {
		idx := bytes.IndexByte(pw.buffer, '\n')
		if idx < 0 {
			break
		}
		pw.emit(pw.buffer[:idx+1])
		pw.buffer = pw.buffer[idx+1:]
	}
	return len(p), nil
}

// Flush writes a trailing partial line, terminated with a newline.
func (pw *prefixWriter) Flush() {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if len(pw.buffer) == 0 {
		return
	}
	pw.emit(append(pw.buffer, '\n'))
	pw.buffer = nil
}

func (pw *prefixWriter) emit(line []byte) {
	out := make([]byte, 0, len(pw.prefix)+len(line))
	out = append(out, pw.prefix...)
	out = append(out, line...)
	pw.out.writeLine(out)
}
