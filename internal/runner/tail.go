package runner

import (
	"bytes"
	"io"
	"sync"
)

// DefaultTailSize is how much trailing output a step result keeps.
const DefaultTailSize = 4 << 10

// tailBuffer is an io.Writer that keeps only the last max bytes written to
// it. stdout and stderr share one buffer, so writes are serialized.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = DefaultTailSize
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if n >= t.max {
		t.buf = append(t.buf[:0], p[n-t.max:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// Output routes one command's streams. Both streams feed a shared tail;
// stdout goes to a capture buffer instead of the console when the command
// asks for it. Every Runner implementation builds its Result through
// Output so they report identically.
type Output struct {
	// Stdout and Stderr are the writers to hand to the running command.
	Stdout io.Writer
	Stderr io.Writer

	tail     *tailBuffer
	captured *bytes.Buffer
}

// NewOutput prepares the writers for cmd. console and errConsole may be nil.
func NewOutput(cmd Command, console, errConsole io.Writer, tailSize int) *Output {
	o := &Output{tail: newTailBuffer(tailSize), captured: &bytes.Buffer{}}
	if cmd.Capture {
		o.Stdout = io.MultiWriter(o.captured, o.tail)
	} else {
		o.Stdout = writerWithTail(console, o.tail)
	}
	o.Stderr = writerWithTail(errConsole, o.tail)
	return o
}

// Result assembles the Result for the given exit code.
func (o *Output) Result(exitCode int) Result {
	return Result{ExitCode: exitCode, Output: o.tail.String(), Stdout: o.captured.String()}
}

func writerWithTail(w io.Writer, tail *tailBuffer) io.Writer {
	if w == nil {
		return tail
	}
	return io.MultiWriter(w, tail)
}
