package masking

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultMinLength is the shortest value, in runes, that is indexed.
	// Shorter values match too much ordinary text to be worth masking.
	DefaultMinLength = 4

	// DefaultMaxNodes bounds the size of a single trie.
	DefaultMaxNodes = 1 << 22
)

// ErrTooLarge is returned by Build when the pattern set needs more trie
// nodes than allowed.
var ErrTooLarge = errors.New("pattern set too large")

// Span is the half-open byte range [Start, End) of a match.
type Span struct {
	Start int
	End   int
}

// Len returns the length of the span in bytes.
func (s Span) Len() int { return s.End - s.Start }

type node struct {
	next  map[byte]int32
	fail  int32
	dict  int32 // nearest proper suffix that ends a pattern, 0 if none
	depth int32
	term  bool
}

// Automaton is an Aho-Corasick matcher over a fixed set of patterns.
//
// A nil *Automaton is valid and matches nothing. Once built an Automaton
// is never modified, so it can be shared between goroutines freely.
type Automaton struct {
	nodes    []node
	patterns int
	maxLen   int
}

type buildConfig struct {
	minLength int
	maxNodes  int
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithMinLength sets the minimum value length, in runes, that gets
// indexed. Values below one are treated as one.
func WithMinLength(n int) BuildOption {
	return func(c *buildConfig) {
		if n < 1 {
			n = 1
		}
		c.minLength = n
	}
}

// WithMaxNodes caps the number of trie nodes Build may allocate.
func WithMaxNodes(n int) BuildOption {
	return func(c *buildConfig) {
		if n > 0 {
			c.maxNodes = n
		}
	}
}

// Normalize returns the patterns that would be indexed for values: line
// breaks removed, then empty, whitespace-only and short values dropped,
// then de-duplicated. Order follows first appearance.
func Normalize(values []string, minLength int) []string {
	seen := make(map[string]struct{}, len(values))
	patterns := make([]string, 0, len(values))
	for _, v := range values {
		p := stripLineBreaks(v)
		if strings.TrimSpace(p) == "" || utf8.RuneCountInString(p) < minLength {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}
	return patterns
}

// stripLineBreaks removes \r\n, \n and \r so a value that was wrapped
// when it was captured still matches its logged form.
func stripLineBreaks(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.ReplaceAll(s, "\r", "")
}

// Build constructs an automaton from values. It returns a nil automaton
// and a nil error when no value survives Normalize.
func Build(values []string, opts ...BuildOption) (*Automaton, error) {
	cfg := buildConfig{minLength: DefaultMinLength, maxNodes: DefaultMaxNodes}
	for _, opt := range opts {
		opt(&cfg)
	}

	patterns := Normalize(values, cfg.minLength)
	if len(patterns) == 0 {
		return nil, nil
	}

	a := &Automaton{nodes: make([]node, 1, 64)}
	for _, p := range patterns {
		if err := a.insert(p, cfg.maxNodes); err != nil {
			return nil, err
		}
	}
	a.link()
	return a, nil
}

func (a *Automaton) insert(p string, maxNodes int) error {
	cur := int32(0)
	for i := 0; i < len(p); i++ {
		b := p[i]
		nx, ok := a.nodes[cur].next[b]
		if !ok {
			if len(a.nodes) >= maxNodes {
				return errors.Wrapf(ErrTooLarge, "more than %d nodes", maxNodes)
			}
			nx = int32(len(a.nodes))
			a.nodes = append(a.nodes, node{depth: a.nodes[cur].depth + 1})
			if a.nodes[cur].next == nil {
				a.nodes[cur].next = make(map[byte]int32, 1)
			}
			a.nodes[cur].next[b] = nx
		}
		cur = nx
	}
	if !a.nodes[cur].term {
		a.nodes[cur].term = true
		a.patterns++
		if len(p) > a.maxLen {
			a.maxLen = len(p)
		}
	}
	return nil
}

// link computes failure and dictionary links breadth first.
func (a *Automaton) link() {
	queue := make([]int32, 0, len(a.nodes))
	for _, child := range a.nodes[0].next {
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for b, child := range a.nodes[u].next {
			f := a.nodes[u].fail
			for {
				if nx, ok := a.nodes[f].next[b]; ok && nx != child {
					a.nodes[child].fail = nx
					break
				}
				if f == 0 {
					break
				}
				f = a.nodes[f].fail
			}
			fail := a.nodes[child].fail
			if a.nodes[fail].term {
				a.nodes[child].dict = fail
			} else {
				a.nodes[child].dict = a.nodes[fail].dict
			}
			queue = append(queue, child)
		}
	}
}

func (a *Automaton) step(state int32, b byte) int32 {
	for {
		if nx, ok := a.nodes[state].next[b]; ok {
			return nx
		}
		if state == 0 {
			return 0
		}
		state = a.nodes[state].fail
	}
}

// Len returns the number of distinct patterns.
func (a *Automaton) Len() int {
	if a == nil {
		return 0
	}
	return a.patterns
}

// MaxLen returns the length in bytes of the longest pattern.
func (a *Automaton) MaxLen() int {
	if a == nil {
		return 0
	}
	return a.maxLen
}

// Nodes returns the number of trie nodes, root included.
func (a *Automaton) Nodes() int {
	if a == nil {
		return 0
	}
	return len(a.nodes)
}

// Scan reports every occurrence of every pattern in text, overlapping
// occurrences included. Spans are reported in order of their end offset,
// longest first for a shared end. Scanning stops when fn returns false.
func (a *Automaton) Scan(text string, fn func(Span) bool) {
	if a.Len() == 0 {
		return
	}
	state := int32(0)
	for i := 0; i < len(text); i++ {
		state = a.step(state, text[i])
		n := state
		if !a.nodes[n].term {
			n = a.nodes[n].dict
		}
		for n != 0 {
			if !fn(Span{Start: i + 1 - int(a.nodes[n].depth), End: i + 1}) {
				return
			}
			n = a.nodes[n].dict
		}
	}
}

// Matches returns all spans Scan would report.
func (a *Automaton) Matches(text string) []Span {
	var spans []Span
	a.Scan(text, func(s Span) bool {
		spans = append(spans, s)
		return true
	})
	return spans
}

// Contains reports whether any pattern occurs in text.
func (a *Automaton) Contains(text string) bool {
	found := false
	a.Scan(text, func(Span) bool {
		found = true
		return false
	})
	return found
}

// resolve walks text and calls fn for each match that wins under the
// first-discovered policy: the earliest ending match, longest at a tie,
// after which matching restarts at the root. No two reported spans
// overlap. It returns the offset where the trailing text that is still a
// proper prefix of some pattern begins.
func (a *Automaton) resolve(text string, fn func(Span)) int {
	state := int32(0)
	for i := 0; i < len(text); i++ {
		state = a.step(state, text[i])
		n := state
		if !a.nodes[n].term {
			n = a.nodes[n].dict
		}
		if n != 0 {
			fn(Span{Start: i + 1 - int(a.nodes[n].depth), End: i + 1})
			state = 0
		}
	}
	return len(text) - int(a.nodes[state].depth)
}
