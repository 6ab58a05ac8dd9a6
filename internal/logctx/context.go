// Package logctx carries a correlation identity and a set of sensitive
// values through nested units of work, and sanitizes log text against
// those values before it is persisted.
//
// A root Context is created with New. Each unit of work below it gets a
// child from CreateChild, whose id extends the parent's:
//
//	root := logctx.New(logctx.WithValues(password))
//	step := root.CreateChild(apiToken)
//	step.Sanitize(line, sink)
//	...
//	step.Flush()
//
// The index over the sensitive values is built lazily and shared with
// every child that adds no values of its own.
package logctx

import (
	"encoding/hex"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/bimmerbailey/logctx/internal/masking"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Separator joins the segments of a child id to its parent's.
const Separator = "/"

// buildAutomaton is replaced in tests to count builds.
var buildAutomaton = masking.Build

// settings are fixed at New and shared by the whole tree.
type settings struct {
	token     string
	minLength int
	maxNodes  int
	logger    *slog.Logger
}

// generation is one value set and the automaton built from it. Contexts
// that hold the same generation share a single build.
type generation struct {
	values    []string
	automaton lazy[compiled]
}

type compiled struct {
	a *masking.Automaton
}

// Context is a node in the correlation tree. It is safe for concurrent
// use; Sanitize and Flush on one Context are serialized.
type Context struct {
	id  string
	cfg *settings

	mu       sync.Mutex // serializes generation swaps
	gen      atomic.Pointer[generation]
	redactor lazy[masking.Redactor]
}

// Option configures a root Context.
type Option func(*options)

type options struct {
	id     string
	values []string
	settings
}

// WithID sets the correlation id instead of generating one.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithValues sets the initial sensitive values.
func WithValues(values ...string) Option {
	return func(o *options) { o.values = append(o.values, values...) }
}

// WithToken sets the text that replaces sensitive values in the tree.
func WithToken(token string) Option {
	return func(o *options) {
		if token != "" {
			o.token = token
		}
	}
}

// WithMinLength sets the shortest value, in runes, that gets masked.
func WithMinLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minLength = n
		}
	}
}

// WithMaxNodes bounds the index built for one value set.
func WithMaxNodes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxNodes = n
		}
	}
}

// WithLogger sets the logger for internal diagnostics. Nothing logged
// through it contains the text being sanitized or the values themselves.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a root Context.
func New(opts ...Option) *Context {
	o := options{settings: settings{
		token:     masking.DefaultToken,
		minLength: masking.DefaultMinLength,
		maxNodes:  masking.DefaultMaxNodes,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = newID()
	}
	values, _ := union(nil, o.values)
	cfg := o.settings
	return newContext(o.id, &cfg, &generation{values: values})
}

func newContext(id string, cfg *settings, g *generation) *Context {
	c := &Context{id: id, cfg: cfg}
	c.gen.Store(g)
	return c
}

// newID returns 128 random bits as 32 lowercase hex characters.
func newID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ID returns the correlation id.
func (c *Context) ID() string { return c.id }

// String returns the correlation id.
func (c *Context) String() string { return c.id }

// Ancestry returns the id segments from the root down to c.
func (c *Context) Ancestry() []string {
	return strings.Split(c.id, Separator)
}

// Parent returns the id of the parent context, or "" for a root.
func (c *Context) Parent() string {
	i := strings.LastIndex(c.id, Separator)
	if i < 0 {
		return ""
	}
	return c.id[:i]
}

// Depth returns 0 for a root, 1 for its children and so on.
func (c *Context) Depth() int {
	return strings.Count(c.id, Separator)
}

// Token returns the text that replaces sensitive values.
func (c *Context) Token() string { return c.cfg.token }

// SensitiveValues returns a copy of the current value set.
func (c *Context) SensitiveValues() []string {
	return slices.Clone(c.gen.Load().values)
}

// Fingerprint identifies the current value set without revealing it.
// Contexts with equal sets have equal fingerprints.
func (c *Context) Fingerprint() uint64 {
	return fingerprint(c.gen.Load().values)
}

func fingerprint(values []string) uint64 {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	d := xxhash.New()
	for _, v := range sorted {
		_, _ = d.WriteString(v)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// CreateChild returns a new Context below c. Its value set is the union
// of c's and extra; when that adds nothing the child shares c's index.
// Later changes to c do not affect the child, and vice versa.
func (c *Context) CreateChild(extra ...string) *Context {
	id := c.id + Separator + newID()
	g := c.gen.Load()
	if merged, grew := union(g.values, extra); grew {
		g = &generation{values: merged}
	}
	return newContext(id, c.cfg, g)
}

// WithSensitiveValues adds values to c's set and returns c. The index is
// rebuilt lazily, and only if the set actually grew.
func (c *Context) WithSensitiveValues(values ...string) *Context {
	if len(values) == 0 {
		return c
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	merged, grew := union(c.gen.Load().values, values)
	if grew {
		c.gen.Store(&generation{values: merged})
	}
	return c
}

// WithSensitiveValue adds a single value to c's set and returns c.
func (c *Context) WithSensitiveValue(value string) *Context {
	return c.WithSensitiveValues(value)
}

// union returns a new slice holding base followed by the members of extra
// not already present, and whether anything was added. base is never
// modified.
func union(base, extra []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, v := range base {
		seen[v] = struct{}{}
	}
	var merged []string
	for _, v := range extra {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		if merged == nil {
			merged = make([]string, len(base), len(base)+len(extra))
			copy(merged, base)
		}
		merged = append(merged, v)
	}
	if merged == nil {
		return base, false
	}
	return merged, true
}

// Sanitize passes raw to emit with every sensitive value replaced by the
// token. Text that may be the start of a value continuing in the next
// call is held back until that call or Flush. A nil emit reuses the sink
// of the previous call.
//
// Sanitize never fails; on an internal fault the text is passed through
// unmodified.
func (c *Context) Sanitize(raw string, emit func(string)) {
	g := c.gen.Load()
	r := c.redactor.peek()
	if r == nil {
		if len(g.values) == 0 {
			if emit != nil {
				emit(raw)
			}
			return
		}
		r = c.redactor.get(c.newRedactor)
	}
	r.Apply(c.automaton(g), raw, emit)
}

// SanitizeString sanitizes a complete piece of text, such as a rendered
// error, and returns it. It does not touch the buffer used by Sanitize.
func (c *Context) SanitizeString(raw string) string {
	g := c.gen.Load()
	if len(g.values) == 0 {
		return raw
	}
	a := c.automaton(g)
	var sb strings.Builder
	emit := func(s string) { sb.WriteString(s) }
	r := c.newRedactor()
	r.Apply(a, raw, emit)
	r.Flush(a)
	return sb.String()
}

// Flush emits any text held back by Sanitize to the last sink. It is a
// no-op if nothing was ever sanitized against a value.
func (c *Context) Flush() {
	c.FlushTo(nil)
}

// FlushTo is Flush with an explicit sink.
func (c *Context) FlushTo(emit func(string)) {
	r := c.redactor.peek()
	if r == nil {
		return
	}
	r.FlushTo(c.automaton(c.gen.Load()), emit)
}

func (c *Context) newRedactor() *masking.Redactor {
	return masking.NewRedactor(
		masking.WithToken(c.cfg.token),
		masking.WithLogger(c.cfg.logger),
	)
}

// automaton returns g's index, building it on first use.
func (c *Context) automaton(g *generation) *masking.Automaton {
	return g.automaton.get(func() *compiled {
		a, err := c.build(g.values)
		if err != nil {
			c.cfg.logger.Warn("sensitive value index unavailable, values will not be masked",
				"correlation_id", c.id,
				"fingerprint", fingerprint(g.values),
				"values", len(g.values),
				"error", err)
			return &compiled{}
		}
		c.cfg.logger.Debug("built sensitive value index",
			"correlation_id", c.id,
			"fingerprint", fingerprint(g.values),
			"patterns", a.Len(),
			"nodes", a.Nodes())
		return &compiled{a: a}
	}).a
}

func (c *Context) build(values []string) (a *masking.Automaton, err error) {
	defer func() {
		if p := recover(); p != nil {
			a, err = nil, errors.Newf("panic while building index: %v", p)
		}
	}()
	return buildAutomaton(values,
		masking.WithMinLength(c.cfg.minLength),
		masking.WithMaxNodes(c.cfg.maxNodes))
}
