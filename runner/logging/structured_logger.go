package logging

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pipewright/pipewright/common/logger"
)

// StructuredLogger writes build output as plaintext lines to an output
// stream, prefixing each line with the names of the nested blocks (job,
// step) it was written inside. Provides utility functions for managing
// the level of nested blocks.
type StructuredLogger struct {
	log   logger.Log
	out   io.Writer
	mu    *sync.Mutex
	block string
	outer *StructuredLogger
}

func NewStructuredLogger(logFactory logger.LogFactory, out io.Writer) *StructuredLogger {
	return &StructuredLogger{
		log: logFactory("StructuredLogger"),
		out: out,
		mu:  &sync.Mutex{},
	}
}

// WriteLine writes a line to the log inside the current block (if any).
func (l *StructuredLogger) WriteLine(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.block != "" {
		fmt.Fprintf(l.out, "[%s] %s\n", l.block, text)
	} else {
		fmt.Fprintf(l.out, "%s\n", text)
	}
}

// WriteLinef writes a line with formatting to the log inside the current block (if any).
func (l *StructuredLogger) WriteLinef(format string, args ...interface{}) {
	l.WriteLine(fmt.Sprintf(format, args...))
}

// WriteError writes an error message to the log inside the current block (if any).
func (l *StructuredLogger) WriteError(errorText string) {
	l.WriteLine("ERROR: " + errorText)
}

// WriteErrorf writes an error message with formatting to the log inside the current block (if any).
func (l *StructuredLogger) WriteErrorf(format string, args ...interface{}) {
	l.WriteError(fmt.Sprintf(format, args...))
}

// Wrap returns a new logger that will wrap lines inside the named block.
// Use Unwrap() to close the block and return to the current level.
func (l *StructuredLogger) Wrap(name string, text string) *StructuredLogger {
	block := name
	if l.block != "" {
		block = l.block + "/" + name
	}
	l.WriteLine(text)
	return &StructuredLogger{
		log:   l.log,
		out:   l.out,
		mu:    l.mu,
		block: block,
		outer: l,
	}
}

// Wrapf returns a new logger that will wrap lines inside the named block.
// Use Unwrap() to close the block and return to the current level.
func (l *StructuredLogger) Wrapf(name string, format string, args ...interface{}) *StructuredLogger {
	return l.Wrap(name, fmt.Sprintf(format, args...))
}

// Unwrap returns the logger above the current block.
func (l *StructuredLogger) Unwrap() *StructuredLogger {
	if l.outer == nil {
		l.log.Panicf("No more blocks to unwrap")
	}
	return l.outer
}

// LineWriter returns a writer that converts a plaintext output stream into
// log lines inside the current block. Close the writer to flush any
// trailing partial line.
func (l *StructuredLogger) LineWriter() io.WriteCloser {
	return &lineWriter{logger: l}
}

// lineWriter buffers writes and emits one log line per newline-terminated
// line of output.
type lineWriter struct {
	logger *StructuredLogger
	mu     sync.Mutex
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Put the partial line back and wait for more data
			w.buf.WriteString(line)
			break
		}
		w.logger.WriteLine(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.logger.WriteLine(w.buf.String())
		w.buf.Reset()
	}
	return nil
}
