package masking

import (
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// DefaultToken replaces every masked value. It is bracketed so that log
// consumers can tell it apart from real content.
const DefaultToken = "<redacted>"

// Redactor masks pattern occurrences in a stream of text fragments.
//
// Text that may be the beginning of a pattern continuing in the next
// fragment is held back until the next Apply or Flush, so a value split
// across two writes is still masked. The automaton is supplied on every
// call, which lets the owner swap it when its value set grows.
//
// Apply and Flush hold an internal lock while calling the sink, so the
// sink must not call back into the same Redactor.
type Redactor struct {
	mu      sync.Mutex
	token   string
	logger  *slog.Logger
	pending string
	sink    func(string)
}

// RedactorOption configures a Redactor.
type RedactorOption func(*Redactor)

// WithToken sets the replacement text for masked values. An empty token
// keeps DefaultToken.
func WithToken(token string) RedactorOption {
	return func(r *Redactor) {
		if token != "" {
			r.token = token
		}
	}
}

// WithLogger sets the logger used to report internal failures.
func WithLogger(logger *slog.Logger) RedactorOption {
	return func(r *Redactor) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRedactor creates a Redactor with an empty buffer.
func NewRedactor(opts ...RedactorOption) *Redactor {
	r := &Redactor{
		token:  DefaultToken,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Token returns the replacement text.
func (r *Redactor) Token() string { return r.token }

// Pending returns the number of bytes currently held back.
func (r *Redactor) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Apply masks text against a and passes the resolved part to emit. A nil
// emit reuses the sink of the previous call. At most one chunk is emitted
// per call, none when everything is held back.
//
// Apply never fails: if masking breaks, the held text and text are
// emitted unmodified and the buffer is cleared.
func (r *Redactor) Apply(a *Automaton, text string, emit func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if emit != nil {
		r.sink = emit
	}
	if a.Len() == 0 && r.pending == "" {
		r.send(text)
		return
	}

	raw := r.pending + text
	out, err := r.mask(a, raw, false)
	if err != nil {
		r.logger.Warn("masking failed, passing text through unmasked",
			"error", err, "bytes", len(raw))
		r.pending = ""
		out = raw
	}
	r.send(out)
}

// Flush emits whatever is held back, masked against a where it completes
// a pattern, and clears the buffer. Flushing an empty buffer emits
// nothing. The Redactor can be used again afterwards.
func (r *Redactor) Flush(a *Automaton) {
	r.FlushTo(a, nil)
}

// FlushTo is Flush with an explicit sink. A nil emit uses the sink of the
// previous call.
func (r *Redactor) FlushTo(a *Automaton, emit func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if emit != nil {
		r.sink = emit
	}
	if r.pending == "" {
		return
	}

	raw := r.pending
	out, err := r.mask(a, raw, true)
	if err != nil {
		r.logger.Warn("masking failed on flush, passing text through unmasked",
			"error", err, "bytes", len(raw))
		out = raw
	}
	r.pending = ""
	r.send(out)
}

func (r *Redactor) send(s string) {
	if s == "" || r.sink == nil {
		return
	}
	r.sink(s)
}

// mask replaces resolved matches in buf with the token. Unless final is
// set, the trailing unresolved prefix is kept in r.pending and left out of
// the result. Panics are turned into errors.
func (r *Redactor) mask(a *Automaton, buf string, final bool) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = "", errors.Newf("panic while masking: %v", p)
		}
	}()

	if a.Len() == 0 {
		r.pending = ""
		return buf, nil
	}

	var sb strings.Builder
	sb.Grow(len(buf))
	last := 0
	held := a.resolve(buf, func(s Span) {
		sb.WriteString(buf[last:s.Start])
		sb.WriteString(r.token)
		last = s.End
	})
	if held < last || held > len(buf) {
		return "", errors.AssertionFailedf("held offset %d outside [%d, %d]", held, last, len(buf))
	}
	if final {
		held = len(buf)
	}
	sb.WriteString(buf[last:held])
	r.pending = strings.Clone(buf[held:])
	return sb.String(), nil
}
