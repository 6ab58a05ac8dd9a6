// Package tail follows a log file and emits sanitized, filtered entries.
//
// Raw bytes are read in chunks and passed through a logctx.Context, so a
// sensitive value split across two writes to the file is still masked.
// Complete lines are re-assembled from the sanitized output, classified,
// and handed to Options.OutputFunc when they pass the filters.
package tail

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/bimmerbailey/logctx/internal/config"
	"github.com/bimmerbailey/logctx/internal/logctx"
	"github.com/bimmerbailey/logctx/internal/parser"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
)

// ErrRotated is returned when the file is rotated and FollowRotate is off.
var ErrRotated = errors.New("file rotated")

// rotateTimeout bounds the wait for a rotated file to reappear.
var rotateTimeout = 10 * time.Second

// Options configures the tailer behavior.
type Options struct {
	FilePath     string                      // Path to the log file
	Lines        int                         // Number of initial lines to show
	Follow       bool                        // Whether to follow the file for new content
	FollowRotate bool                        // Whether to follow through log rotations
	Context      *logctx.Context             // Sanitizes everything read; nil masks nothing
	ChunkSize    int                         // Bytes per read; zero means config.DefaultChunkSize
	Pattern      *regexp.Regexp              // Optional regex pattern matched against sanitized lines
	MinCategory  config.Category             // Minimum category to display
	OutputFunc   func(config.LogEntry) error // Function called for each matching entry
	Notices      io.Writer                   // Rotation and truncation notices; defaults to os.Stderr
}

// Tailer handles tailing a log file with filtering.
type Tailer struct {
	opts    Options
	ctx     *logctx.Context
	parser  *parser.Parser
	file    *os.File
	offset  int64
	watcher *fsnotify.Watcher

	lines   lineSplitter
	lineNum int
	deliver func(config.LogEntry) error
}

// New creates a new Tailer with the given options.
func New(opts Options) *Tailer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = config.DefaultChunkSize
	}
	if opts.Notices == nil {
		opts.Notices = os.Stderr
	}
	t := &Tailer{
		opts:    opts,
		ctx:     opts.Context,
		parser:  parser.New(0),
		deliver: opts.OutputFunc,
	}
	if t.ctx == nil {
		t.ctx = logctx.New()
	}
	t.lines.handle = t.handleLine
	return t
}

// Run starts the tailing process. It blocks until ctx is cancelled or an
// error occurs. Any held partial line is released before Run returns.
func (t *Tailer) Run(ctx context.Context) error {
	if err := t.openFile(); err != nil {
		return errors.Wrap(err, "failed to open file")
	}
	defer t.close()

	if t.opts.Lines > 0 {
		if err := t.readInitialLines(); err != nil {
			return errors.Wrap(err, "failed to read initial lines")
		}
	}

	if !t.opts.Follow {
		return nil
	}

	if err := t.setupWatcher(); err != nil {
		return errors.Wrap(err, "failed to setup watcher")
	}

	err := t.watch(ctx)
	if derr := t.drain(); err == nil {
		err = derr
	}
	return err
}

// openFile opens the log file and records its end when following.
func (t *Tailer) openFile() error {
	f, err := os.Open(t.opts.FilePath)
	if err != nil {
		return err
	}
	t.file = f

	if t.opts.Follow {
		stat, err := f.Stat()
		if err != nil {
			return err
		}
		t.offset = stat.Size()
	}

	return nil
}

// readInitialLines sanitizes the end of the file and outputs the last
// Lines matching entries.
func (t *Tailer) readInitialLines() error {
	stat, err := t.file.Stat()
	if err != nil {
		return err
	}
	fileSize := stat.Size()
	if fileSize == 0 {
		return nil
	}

	// Assume about 300 bytes per line and read twice that.
	estimatedBytesNeeded := int64(t.opts.Lines * 300 * 2)
	startPos := fileSize - estimatedBytesNeeded
	if startPos < 0 {
		startPos = 0
	}

	if _, err := t.file.Seek(startPos, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReaderSize(t.file, t.opts.ChunkSize)

	// The first line is partial when reading from the middle of the file.
	// It is dropped before sanitizing.
	if startPos > 0 {
		if _, err := r.ReadString('\n'); err != nil && err != io.EOF {
			return err
		}
	}

	var entries []config.LogEntry
	t.deliver = func(entry config.LogEntry) error {
		entries = append(entries, entry)
		if len(entries) > t.opts.Lines {
			entries = entries[1:]
		}
		return nil
	}
	defer func() { t.deliver = t.opts.OutputFunc }()

	if err := t.pump(r); err != nil {
		return err
	}
	if !t.opts.Follow {
		if err := t.drain(); err != nil {
			return err
		}
	}

	for _, entry := range entries {
		if err := t.opts.OutputFunc(entry); err != nil {
			return err
		}
	}

	t.offset, err = t.file.Seek(0, io.SeekCurrent)
	return err
}

// setupWatcher initializes the fsnotify watcher.
func (t *Tailer) setupWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	t.watcher = watcher

	return watcher.Add(t.opts.FilePath)
}

// watch monitors the file for changes and outputs new lines.
func (t *Tailer) watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-t.watcher.Events:
			if !ok {
				return errors.New("watcher closed unexpectedly")
			}

			if err := t.handleEvent(ctx, event); err != nil {
				return err
			}

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			return errors.Wrap(err, "watcher error")
		}
	}
}

// handleEvent processes a file system event.
func (t *Tailer) handleEvent(ctx context.Context, event fsnotify.Event) error {
	switch {
	case event.Has(fsnotify.Write):
		return t.readNewContent()

	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		return t.handleRotation(ctx)
	}

	return nil
}

// readNewContent sanitizes and outputs content appended since the last read.
func (t *Tailer) readNewContent() error {
	if t.file == nil {
		return nil
	}

	stat, err := t.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() < t.offset {
		if err := t.drain(); err != nil {
			return err
		}
		fmt.Fprintf(t.opts.Notices, "\n==> File truncated, reading from the start <==\n")
		t.offset = 0
	}

	if _, err := t.file.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}
	if err := t.pump(t.file); err != nil {
		return err
	}

	t.offset, err = t.file.Seek(0, io.SeekCurrent)
	return err
}

// handleRotation handles log file rotation.
func (t *Tailer) handleRotation(ctx context.Context) error {
	if err := t.drain(); err != nil {
		return err
	}

	if !t.opts.FollowRotate {
		fmt.Fprintf(t.opts.Notices, "\nFile rotated. Exiting. Use --follow-rotate to follow through rotations.\n")
		return ErrRotated
	}

	if t.file != nil {
		t.file.Close()
		t.file = nil
	}

	timeout := time.After(rotateTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timeout:
			return errors.Newf("timeout waiting for %s to reappear", t.opts.FilePath)
		case <-ticker.C:
			f, err := os.Open(t.opts.FilePath)
			if err != nil {
				continue
			}
			t.file = f
			t.offset = 0

			if err := t.watcher.Add(t.opts.FilePath); err != nil {
				return errors.Wrap(err, "failed to watch rotated file")
			}

			fmt.Fprintf(t.opts.Notices, "\n==> File rotated, following new file <==\n")
			// Content written before the watch was re-added raised no event.
			return t.readNewContent()
		}
	}
}

// pump sanitizes r chunk by chunk until EOF.
func (t *Tailer) pump(r io.Reader) error {
	buf := make([]byte, t.opts.ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			t.ctx.Sanitize(string(buf[:n]), t.lines.write)
			if t.lines.err != nil {
				return t.lines.err
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// drain releases text held by the context and any unterminated line.
func (t *Tailer) drain() error {
	t.ctx.FlushTo(t.lines.write)
	return t.lines.flush()
}

// handleLine classifies one sanitized line and delivers it if it matches.
func (t *Tailer) handleLine(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	t.lineNum++
	entry := t.parser.ParseLine(line, t.lineNum)
	if !t.shouldDisplay(entry) {
		return nil
	}
	return t.deliver(entry)
}

// shouldDisplay checks if an entry matches the filter criteria.
// Unclassified entries pass the category filter.
func (t *Tailer) shouldDisplay(entry config.LogEntry) bool {
	if !entry.Category.AtLeast(t.opts.MinCategory) {
		return false
	}

	if t.opts.Pattern != nil && !t.opts.Pattern.MatchString(entry.Raw) {
		return false
	}

	return true
}

// close closes all resources.
func (t *Tailer) close() {
	if t.file != nil {
		t.file.Close()
	}
	if t.watcher != nil {
		t.watcher.Close()
	}
}

// lineSplitter re-assembles lines from sanitized fragments.
type lineSplitter struct {
	partial strings.Builder
	handle  func(line string) error
	err     error
}

func (s *lineSplitter) write(chunk string) {
	for s.err == nil {
		i := strings.IndexByte(chunk, '\n')
		if i < 0 {
			s.partial.WriteString(chunk)
			return
		}
		s.partial.WriteString(chunk[:i])
		chunk = chunk[i+1:]
		s.emit()
	}
}

// flush hands over an unterminated line, if any.
func (s *lineSplitter) flush() error {
	if s.err == nil && s.partial.Len() > 0 {
		s.emit()
	}
	return s.err
}

func (s *lineSplitter) emit() {
	line := strings.TrimSuffix(s.partial.String(), "\r")
	s.partial.Reset()
	s.err = s.handle(line)
}
