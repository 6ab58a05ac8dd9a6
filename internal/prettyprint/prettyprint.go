// Package prettyprint renders errors as readable multi-line text for
// task logs.
//
// Rendering walks the error and gives each registered Handler, in order,
// the chance to write it. A handler that returns false stops the default
// rendering of the stack trace. Errors that join several causes are
// rendered one cause at a time.
//
// The output is ordinary log text: pass it through a logctx.Context
// before persisting it.
package prettyprint

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Handler renders errors it recognizes.
type Handler interface {
	// Matches reports whether the handler applies to err.
	Matches(err error) bool
	// Handle writes err to sb. It returns true if the stack trace should
	// still be rendered after it.
	Handle(sb *strings.Builder, err error) bool
}

type typedHandler[E error] struct {
	fn func(sb *strings.Builder, err E) bool
}

// For returns a Handler for errors whose chain contains an E.
func For[E error](fn func(sb *strings.Builder, err E) bool) Handler {
	return typedHandler[E]{fn: fn}
}

func (h typedHandler[E]) Matches(err error) bool {
	var target E
	return errors.As(err, &target)
}

func (h typedHandler[E]) Handle(sb *strings.Builder, err error) bool {
	var target E
	if !errors.As(err, &target) {
		return true
	}
	return h.fn(sb, target)
}

type sentinelHandler struct {
	target error
	text   string
}

// Sentinel returns a Handler that renders any error matching target with
// errors.Is as the fixed text, without a stack trace.
func Sentinel(target error, text string) Handler {
	return sentinelHandler{target: target, text: text}
}

func (h sentinelHandler) Matches(err error) bool { return errors.Is(err, h.target) }

func (h sentinelHandler) Handle(sb *strings.Builder, _ error) bool {
	sb.WriteString(h.text)
	return false
}

// ControlledFailure is an expected failure whose message is meant for
// the user as is. It renders without a stack trace.
type ControlledFailure struct {
	msg   string
	cause error
}

// NewControlledFailure returns a ControlledFailure with the given message.
func NewControlledFailure(format string, args ...interface{}) *ControlledFailure {
	return &ControlledFailure{msg: fmt.Sprintf(format, args...)}
}

// WrapControlledFailure returns a ControlledFailure that keeps cause
// reachable through errors.Is and errors.As.
func WrapControlledFailure(cause error, format string, args ...interface{}) *ControlledFailure {
	return &ControlledFailure{msg: fmt.Sprintf(format, args...), cause: cause}
}

func (e *ControlledFailure) Error() string { return e.msg }

func (e *ControlledFailure) Unwrap() error { return e.cause }

// DefaultHandlers are installed by New ahead of any added with
// WithHandler.
func DefaultHandlers() []Handler {
	return []Handler{
		For(func(sb *strings.Builder, err *ControlledFailure) bool {
			sb.WriteString(err.Error())
			return false
		}),
		Sentinel(context.Canceled, "The operation was canceled."),
		Sentinel(context.DeadlineExceeded, "The operation timed out."),
	}
}

// Printer renders errors. The zero value is not usable; call New.
type Printer struct {
	handlers []Handler
	stack    bool
}

// Option configures a Printer.
type Option func(*Printer)

// WithStackTrace enables the stack trace of the innermost error that
// carries one.
func WithStackTrace(enabled bool) Option {
	return func(p *Printer) { p.stack = enabled }
}

// WithHandler adds h after the handlers already registered.
func WithHandler(h Handler) Option {
	return func(p *Printer) { p.handlers = append(p.handlers, h) }
}

// New creates a Printer with the default handlers followed by any added
// through options.
func New(opts ...Option) *Printer {
	p := &Printer{handlers: DefaultHandlers()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Format renders err with the default handlers.
func Format(err error, stack bool) string {
	return New(WithStackTrace(stack)).Format(err)
}

// Format renders err. A nil error renders as "".
func (p *Printer) Format(err error) string {
	if err == nil {
		return ""
	}
	var sb strings.Builder
	p.write(&sb, err, "")
	return sb.String()
}

func (p *Printer) write(sb *strings.Builder, err error, indent string) {
	if causes := joined(err); len(causes) > 1 {
		fmt.Fprintf(sb, "%s%d errors occurred:", indent, len(causes))
		for i, cause := range causes {
			fmt.Fprintf(sb, "\n%s--Error %d--\n", indent, i+1)
			p.write(sb, cause, indent+"  ")
		}
		return
	}

	matched := false
	for _, h := range p.handlers {
		if !h.Matches(err) {
			continue
		}
		if !matched {
			sb.WriteString(indent)
		}
		matched = true
		if !h.Handle(sb, err) {
			return
		}
	}
	if !matched {
		sb.WriteString(indent)
		sb.WriteString(err.Error())
	}
	if p.stack {
		writeStack(sb, err, indent)
	}
}

// joined returns the causes of err if it joins several errors.
func joined(err error) []error {
	if m, ok := err.(interface{ Unwrap() []error }); ok {
		return m.Unwrap()
	}
	return nil
}

// writeStack writes the stack of the innermost error in the chain that
// recorded one, most recent call first.
func writeStack(sb *strings.Builder, err error, indent string) {
	var st *errors.ReportableStackTrace
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		if s := errors.GetReportableStackTrace(e); s != nil {
			st = s
		}
	}
	if st == nil {
		return
	}
	for i := len(st.Frames) - 1; i >= 0; i-- {
		f := st.Frames[i]
		fmt.Fprintf(sb, "\n%s   at %s in %s:%d", indent, f.Function, f.Filename, f.Lineno)
	}
}
