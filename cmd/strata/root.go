package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/strata"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitEmptySchema = 2
)

var (
	verbose         bool
	repoPath        string
	adapter         string
	format          string
	languages       []string
	defaultLanguage string
	remoteIDPrefix  string
	variables       map[string]string
	indexPath       string
	dryRun          bool
	noColor         bool
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Build content trees from declarative documents",
	Long: `Strata reads YAML or JSON documents describing a tree of content nodes
and creates them in a content repository, in every active language.
A failed build prints the location ids it created; pass them to
'strata remove' to undo it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// Execute runs the root command and exits with the code of its failure.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}
	fmt.Fprintln(os.Stderr, failure.Sprint("error:"), err)

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	os.Exit(exitFailure)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVarP(&repoPath, "repo", "r", "", "Repository directory (default: closest repository above the current directory)")
	flags.StringVar(&adapter, "adapter", "fs", "Repository adapter: fs or memory")
	flags.StringVar(&format, "format", "", "Item file format of new repositories: yaml or json")
	flags.StringSliceVarP(&languages, "languages", "l", nil, "Active languages, default first")
	flags.StringVar(&defaultLanguage, "default-language", "", "Language holding the base layer")
	flags.StringVar(&remoteIDPrefix, "remote-id-prefix", "", "Prefix of synthesized remote ids")
	flags.StringToStringVar(&variables, "var", nil, "Document variable as name=value, replacing %name%")
	flags.StringVar(&indexPath, "index", "", "SQLite search index, relative to the repository")
	flags.BoolVar(&dryRun, "dry-run", false, "Build in memory without writing")
	flags.BoolVar(&noColor, "no-color", false, "Disable colored output")

	cobra.OnInitialize(func() {
		if noColor {
			disableColor()
		}
	})
}

// resolveRepo returns the repository directory of the command.
func resolveRepo() string {
	if repoPath != "" {
		return repoPath
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if root, err := strata.FindRoot(cwd); err == nil {
		return root
	}
	return cwd
}

// options returns the engine options set by the global flags.
func options() []strata.Option {
	opts := []strata.Option{
		strata.WithLogger(slog.Default()),
		strata.WithAdapter(adapter),
		strata.WithMustExist(true),
		strata.WithDryRun(dryRun),
		strata.WithLanguages(languages...),
		strata.WithDefaultLanguage(defaultLanguage),
		strata.WithRemoteIDPrefix(remoteIDPrefix),
		strata.WithVariables(variables),
	}
	if format != "" {
		opts = append(opts, strata.WithFormat(format))
	}
	if indexPath != "" {
		opts = append(opts, strata.WithIndexPath(indexPath))
	}
	return opts
}

// openEngine opens the repository of the command and checks it defines
// content types.
func openEngine() (*strata.Engine, error) {
	path := resolveRepo()
	eng, err := strata.New(path, options()...)
	if err != nil {
		return nil, exitWith(exitFailure, fmt.Errorf("opening repository %s: %w", path, err))
	}
	if err := eng.CheckSchema(); err != nil {
		_ = eng.Close()
		return nil, exitWith(exitEmptySchema, err)
	}
	return eng, nil
}
