package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vk/conflux/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// flags are the options shared by every command.
type flags struct {
	configs        []string
	home           string
	envFile        string
	envPrefix      string
	properties     []string
	keepUnresolved bool
	logLevel       string
	logFormat      string
}

func (f *flags) register(fs *pflag.FlagSet) {
	fs.StringArrayVarP(&f.configs, "config", "c", nil, "Configuration file or directory. Repeatable; later sources override earlier ones.")
	fs.StringVar(&f.home, "home", "", "Root of the configHome, dataHome, cacheHome and logHome directories.")
	fs.StringVar(&f.envFile, "env-file", "", "A .env file providing properties.")
	fs.StringVar(&f.envPrefix, "env-prefix", app.DefaultEnvPrefix, "Prefix for environment variable properties.")
	fs.StringArrayVarP(&f.properties, "property", "p", nil, "Property as name=value. Repeatable; takes precedence over the env file and the environment.")
	fs.BoolVar(&f.keepUnresolved, "keep-unresolved", false, "Leave unknown ${...} references in place instead of failing.")
	fs.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&f.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
}

// config validates the flags and positional arguments into an app.Config.
func (f *flags) config(args []string) (*app.Config, error) {
	props := make(map[string]string, len(f.properties))
	for _, p := range f.properties {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, usageError("invalid property %q: expected name=value", p)
		}
		props[name] = value
	}

	cfg, err := app.NewConfig(app.Config{
		Sources:        append(append([]string(nil), f.configs...), args...),
		Home:           f.home,
		EnvFile:        f.envFile,
		EnvPrefix:      f.envPrefix,
		Properties:     props,
		KeepUnresolved: f.keepUnresolved,
		LogLevel:       strings.ToLower(f.logLevel),
		LogFormat:      strings.ToLower(f.logFormat),
	})
	if err != nil {
		return nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, nil
}

// NewRootCommand builds the conflux command tree. Command output goes to
// stdout, logs to stderr. opts are passed to every app.New call.
func NewRootCommand(stdout, stderr io.Writer, opts ...app.Option) *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "conflux",
		Short: "Layered configuration and dependency-ordered service lifecycle.",
		Long: `conflux merges layered configuration documents (XML, HCL, YAML) into one
effective tree, substitutes ${...} properties, and runs the declared services
in dependency order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Message: err.Error()}
	})
	f.register(root.PersistentFlags())

	opts = append([]app.Option{app.WithOutput(stderr)}, opts...)
	root.AddCommand(
		newRunCommand(f, opts),
		newCheckCommand(f, opts),
		newRenderCommand(f, opts),
	)
	return root
}

// Execute runs the command line args.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.Option) error {
	root := NewRootCommand(stdout, stderr, opts...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
