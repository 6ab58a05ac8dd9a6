package logctx

import (
	"io"
	"sync"
)

// Writer sanitizes everything written to it through a Context before
// passing it on. Writes may split values anywhere; Close releases the
// held tail. The Context should not be used for another stream while the
// Writer is open, because both would share its buffer.
type Writer struct {
	ctx *Context
	w   io.Writer

	mu  sync.Mutex
	err error
}

// NewWriter returns a Writer that sanitizes through ctx into w.
func NewWriter(ctx *Context, w io.Writer) *Writer {
	return &Writer{ctx: ctx, w: w}
}

// Write sanitizes p and writes the resolved part to the underlying
// writer. It reports len(p) on success, since the sanitized length
// differs from the input.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	w.ctx.Sanitize(string(p), w.emit)
	if w.err != nil {
		return 0, w.err
	}
	return len(p), nil
}

// Close flushes the held tail. It does not close the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.ctx.FlushTo(w.emit)
	return w.err
}

func (w *Writer) emit(s string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, s)
}
