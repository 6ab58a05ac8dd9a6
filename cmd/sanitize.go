package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bimmerbailey/logctx/internal/config"
	"github.com/bimmerbailey/logctx/internal/logctx"
	"github.com/bimmerbailey/logctx/internal/output"
	"github.com/bimmerbailey/logctx/internal/prettyprint"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [flags] [files...]",
	Short: "Mask sensitive values in files or stdin",
	Long: `Copy files, or stdin when no files are given, replacing every known
sensitive value with the masking token.

Each input is streamed through its own child context in chunks, so a
value split across a chunk boundary is still masked. Inputs may be glob
patterns, including "**". Without --out-dir the results are written to
stdout one after another; with it, inputs are processed concurrently and
written to files of the same name inside the directory.

Examples:
  deploy.sh 2>&1 | logctx sanitize --secret "$DB_PASSWORD"
  logctx sanitize --secrets-file vars.yaml build.log
  logctx sanitize --out-dir clean/ --jobs 8 'logs/**/*.log'`,
	RunE: runSanitize,
}

func init() {
	sanitizeCmd.Flags().Int("chunk-size", config.DefaultChunkSize, "bytes read per chunk")
	sanitizeCmd.Flags().StringP("out-dir", "o", "", "write each input to this directory instead of stdout")
	sanitizeCmd.Flags().IntP("jobs", "j", 4, "inputs processed at once with --out-dir")

	rootCmd.AddCommand(sanitizeCmd)
}

// sanitizedFile describes one file written with --out-dir.
type sanitizedFile struct {
	Input         string `json:"input"`
	Output        string `json:"output"`
	CorrelationID string `json:"correlation_id"`
}

func runSanitize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	root, err := newRootContext(cmd, cfg, logger)
	if err != nil {
		return err
	}

	chunkSize := intFlag(cmd, "chunk-size", cfg.Sanitize.ChunkSize)
	if chunkSize < 1 {
		return prettyprint.NewControlledFailure("--chunk-size must be positive, got %d", chunkSize)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(args) == 0 {
		return sanitizeStream(ctx, root.CreateChild(), cmd.InOrStdin(), cmd.OutOrStdout(), chunkSize)
	}

	files, err := config.ExpandGlobs(args)
	if err != nil {
		return prettyprint.WrapControlledFailure(err, "%v", err)
	}

	outDir, _ := cmd.Flags().GetString("out-dir")
	if outDir == "" {
		for _, path := range files {
			child := root.CreateChild()
			if err := sanitizeFileTo(ctx, child, path, cmd.OutOrStdout(), chunkSize); err != nil {
				return err
			}
			logger.Info("sanitized file", "path", path, "correlation_id", child.ID())
		}
		return nil
	}

	jobs := intFlag(cmd, "jobs", 4)
	results, err := sanitizeToDir(ctx, root, files, outDir, chunkSize, jobs, logger)
	if err != nil {
		return err
	}

	if format := output.ParseFormat(cfg.Format); format == output.FormatJSON {
		return output.New(cmd.OutOrStdout(), format, output.ColorNever).WriteJSON(results)
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", r.Input, r.Output)
	}
	return nil
}

// sanitizeToDir sanitizes files concurrently into dir, one child context
// per file. Results keep the order of files.
func sanitizeToDir(ctx context.Context, root *logctx.Context, files []string, dir string, chunkSize, jobs int, logger *slog.Logger) ([]sanitizedFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", dir)
	}

	names := outputNames(files)
	results := make([]sanitizedFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, path := range files {
		i, path := i, path // per-iteration copies (go < 1.22 loop semantics)
		child := root.CreateChild()
		results[i] = sanitizedFile{
			Input:         path,
			Output:        filepath.Join(dir, names[i]),
			CorrelationID: child.ID(),
		}
		g.Go(func() error {
			if err := sanitizeFile(gctx, child, path, results[i].Output, chunkSize); err != nil {
				return err
			}
			logger.Info("sanitized file", "path", path, "output", results[i].Output, "correlation_id", child.ID())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// sanitizeFile writes the sanitized content of src to a new file dst.
func sanitizeFile(ctx context.Context, lc *logctx.Context, src, dst string, chunkSize int) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "closing %s", dst)
		}
	}()
	return sanitizeFileTo(ctx, lc, src, out, chunkSize)
}

func sanitizeFileTo(ctx context.Context, lc *logctx.Context, src string, w io.Writer, chunkSize int) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "opening %s", src)
	}
	defer in.Close()

	if err := sanitizeStream(ctx, lc, in, w, chunkSize); err != nil {
		return errors.Wrapf(err, "sanitizing %s", src)
	}
	return nil
}

// sanitizeStream copies r to w through lc in chunks of chunkSize bytes and
// flushes the held tail at the end.
func sanitizeStream(ctx context.Context, lc *logctx.Context, r io.Reader, w io.Writer, chunkSize int) error {
	sw := logctx.NewWriter(lc, w)
	buf := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := sw.Write(buf[:n]); werr != nil {
				return errors.Wrap(werr, "writing output")
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "reading input")
		}
	}
	if err := sw.Close(); err != nil {
		return errors.Wrap(err, "writing output")
	}
	return nil
}

// outputNames maps inputs to distinct base names, adding -1, -2 and so on
// before the extension when two inputs share a name.
func outputNames(files []string) []string {
	names := make([]string, len(files))
	used := make(map[string]bool, len(files))
	for i, path := range files {
		base := filepath.Base(path)
		name := base
		ext := filepath.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		for n := 1; used[name]; n++ {
			name = fmt.Sprintf("%s-%d%s", stem, n, ext)
		}
		used[name] = true
		names[i] = name
	}
	return names
}
