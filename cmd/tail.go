package cmd

import (
	"context"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/bimmerbailey/logctx/internal/config"
	"github.com/bimmerbailey/logctx/internal/output"
	"github.com/bimmerbailey/logctx/internal/prettyprint"
	"github.com/bimmerbailey/logctx/internal/tail"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail [flags] <file>",
	Short: "Live-tail a log file with masking and filtering",
	Long: `Watch a log file in real-time, similar to 'tail -f', masking every
known sensitive value before a line is printed. Lines can be filtered by
category and by a pattern matched against the masked text.

Examples:
  logctx tail --secret hunter22 /var/log/deploy.log
  logctx tail --category warning --secrets-file vars.yaml deploy.log
  logctx tail --pattern "Acme.Web" --no-follow -n 50 deploy.log
  logctx tail --follow-rotate /var/log/deploy.log`,
	Args: cobra.ExactArgs(1),
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringP("pattern", "p", "", "only show lines matching regex pattern")
	tailCmd.Flags().StringP("category", "c", "", "minimum category to display (verbose, info, planned, warning, error, fatal, ...)")
	tailCmd.Flags().IntP("lines", "n", config.DefaultTailLines, "number of initial lines to show")
	tailCmd.Flags().Bool("no-follow", false, "print last N lines and exit (don't follow)")
	tailCmd.Flags().Bool("follow-rotate", false, "follow through log rotations (continue when file is renamed/removed)")
	tailCmd.Flags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	categoryStr, _ := cmd.Flags().GetString("category")
	noFollow, _ := cmd.Flags().GetBool("no-follow")
	followRotate, _ := cmd.Flags().GetBool("follow-rotate")
	noColor, _ := cmd.Flags().GetBool("no-color")
	patternStr, _ := cmd.Flags().GetString("pattern")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	lines := intFlag(cmd, "lines", cfg.Tail.Lines)

	if _, err := os.Stat(filePath); err != nil {
		return prettyprint.WrapControlledFailure(err, "file does not exist: %s", filePath)
	}

	var pattern *regexp.Regexp
	if patternStr != "" {
		pattern, err = regexp.Compile(patternStr)
		if err != nil {
			return prettyprint.WrapControlledFailure(err, "invalid pattern: %v", err)
		}
	}

	minCategory := config.CategoryUnknown
	if categoryStr != "" {
		minCategory = config.ParseCategory(categoryStr)
		if minCategory == config.CategoryUnknown {
			return prettyprint.NewControlledFailure("invalid category: %s", categoryStr)
		}
	}

	colorMode := output.ColorAuto
	if noColor {
		colorMode = output.ColorNever
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	root, err := newRootContext(cmd, cfg, logger)
	if err != nil {
		return err
	}
	session := root.CreateChild()
	logger.Info("tailing file", "path", filePath, "correlation_id", session.ID())

	writer := output.New(cmd.OutOrStdout(), output.ParseFormat(cfg.Format), colorMode)
	tailer := tail.New(tail.Options{
		FilePath:     filePath,
		Lines:        lines,
		Follow:       !noFollow,
		FollowRotate: followRotate,
		Context:      session,
		ChunkSize:    cfg.Sanitize.ChunkSize,
		Pattern:      pattern,
		MinCategory:  minCategory,
		OutputFunc:   writer.WriteEntry,
		Notices:      cmd.ErrOrStderr(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- tailer.Run(ctx)
	}()

	select {
	case <-sigChan:
		cancel()
		return <-errChan
	case err := <-errChan:
		if errors.Is(err, tail.ErrRotated) {
			return nil
		}
		return err
	}
}
