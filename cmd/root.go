package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bimmerbailey/logctx/internal/config"
	"github.com/bimmerbailey/logctx/internal/logctx"
	"github.com/bimmerbailey/logctx/internal/prettyprint"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCtx is the context of the running command. Errors are rendered
// through it so they never echo a sensitive value.
var rootCtx *logctx.Context

var rootCmd = &cobra.Command{
	Use:   "logctx",
	Short: "Mask sensitive values in task logs",
	Long: `logctx masks known sensitive values in log streams before they are
written anywhere, and tags every unit of work with a correlation id.

Values are given with --secret, a YAML values file, or the config file.
Values split across reads or writes are still masked.

Examples:
  logctx sanitize --secret hunter22 build.log
  logctx sanitize --secrets-file vars.yaml --out-dir clean/ 'logs/**/*.log'
  deploy.sh 2>&1 | logctx sanitize --secret "$DB_PASSWORD"
  logctx tail --category warning --secrets-file vars.yaml /var/log/deploy.log`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is called by main.main(). It runs the root command and prints
// any error, masked, to stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error: "+renderError(err, viper.GetBool("verbose")))
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.logctx.yaml)")
	rootCmd.PersistentFlags().StringP("format", "f", config.DefaultFormat, "output format (text, json)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringArrayP("secret", "s", nil, "sensitive value to mask (repeatable)")
	rootCmd.PersistentFlags().String("secrets-file", "", "YAML file of sensitive values")

	_ = viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("masking.values_file", rootCmd.PersistentFlags().Lookup("secrets-file"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error finding home directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigName(".logctx")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LOGCTX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig decodes the global viper state.
func loadConfig() (config.Config, error) {
	config.SetDefaults(viper.GetViper())
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return cfg, prettyprint.WrapControlledFailure(err, "invalid configuration: %v", err)
	}
	return cfg, nil
}

// newLogger returns the diagnostics logger: errors only unless verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newRootContext builds the root context from the configured values and
// any --secret flags, and makes it the context errors are rendered with.
func newRootContext(cmd *cobra.Command, cfg config.Config, logger *slog.Logger) (*logctx.Context, error) {
	values, err := cfg.SensitiveValues()
	if err != nil {
		return nil, prettyprint.WrapControlledFailure(err, "loading sensitive values: %v", err)
	}
	if flagValues, err := cmd.Flags().GetStringArray("secret"); err == nil {
		values = append(values, flagValues...)
	}

	ctx := logctx.New(
		logctx.WithValues(values...),
		logctx.WithToken(cfg.Masking.Token),
		logctx.WithMinLength(cfg.Masking.MinLength),
		logctx.WithMaxNodes(cfg.Masking.MaxNodes),
		logctx.WithLogger(logger),
	)
	rootCtx = ctx
	logger.Info("root context ready", "correlation_id", ctx.ID(), "values", len(ctx.SensitiveValues()))
	return ctx, nil
}

// renderError formats err and masks it with the active context.
func renderError(err error, verbose bool) string {
	text := prettyprint.Format(err, verbose)
	if rootCtx == nil {
		return text
	}
	return rootCtx.SanitizeString(text)
}

// intFlag returns the flag value when it was set on the command line and
// fallback otherwise.
func intFlag(cmd *cobra.Command, name string, fallback int) int {
	f := cmd.Flags().Lookup(name)
	if f == nil || !f.Changed {
		return fallback
	}
	n, err := cmd.Flags().GetInt(name)
	if err != nil {
		return fallback
	}
	return n
}
