package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"reldiff/client"
	"reldiff/internal/config"
	"reldiff/internal/release"
	"reldiff/internal/tags"
	"reldiff/internal/watch"
	"reldiff/shared/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	path       string
	base       string
	head       string
	component  string
	tagPrefix  string
	order      string
	title      string
	output     string
	colorMode  string
	configPath string
	verbose    bool
	timeout    time.Duration
	watch      bool
	server     string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "reldiff",
		Short: "Show what changed in a component between two releases",
		Long: `reldiff diffs two release points of a git repository. The base defaults to
the tag released before the head. With --component the diff covers the
component and its sibling directories, leaving out ignored paths.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.path, "path", "p", ".", "Repository location")
	flags.StringVarP(&opts.tagPrefix, "tag-prefix", "t", "", "Only consider tags starting with this prefix")
	flags.StringVarP(&opts.order, "order", "o", "", "Tag order: semver, lexicographic or none")
	flags.StringVar(&opts.configPath, "config", "", "Config file (JSON or YAML)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Give up after this long")

	rootCmd.Flags().StringVarP(&opts.base, "base", "b", "", "Base tag or object id (default: the tag before head)")
	rootCmd.Flags().StringVar(&opts.head, "head", "", "Head tag or object id")
	rootCmd.Flags().StringVarP(&opts.component, "component", "c", "", "Component directory, relative to the repository root")
	rootCmd.Flags().StringVar(&opts.title, "title", "", "Title printed above the diff")
	rootCmd.Flags().StringVarP(&opts.output, "output", "O", "", "Write the diff to a file instead of stdout")
	rootCmd.Flags().StringVar(&opts.colorMode, "color", "auto", "Color output: auto, always or never")
	rootCmd.Flags().BoolVar(&opts.watch, "watch", false, "Recompute whenever tags or HEAD change")
	rootCmd.Flags().StringVar(&opts.server, "server", "", "Compute through a reldiff service at this URL")
	rootCmd.MarkFlagRequired("head")

	tagsCmd := &cobra.Command{
		Use:   "tags",
		Short: "List tags in release order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, policy, prefix, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(opts)
			defer cancel()

			listing, err := svc.Tags(ctx, opts.path, prefix, policy)
			if err != nil {
				return err
			}
			for _, s := range listing.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s: %s\n", s.Tag, s.Reason)
			}
			for _, tag := range listing.Tags {
				fmt.Fprintln(cmd.OutOrStdout(), tag)
			}
			return nil
		},
	}

	previousCmd := &cobra.Command{
		Use:   "previous <tag>",
		Short: "Print the tag released before the given one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, policy, prefix, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(opts)
			defer cancel()

			prev, err := svc.Previous(ctx, opts.path, args[0], prefix, policy)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prev)
			return nil
		},
	}

	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(previousCmd)
	return rootCmd
}

// setup builds the release service from the config file and flags. Flags
// win over the config file.
func setup(cmd *cobra.Command, opts *options) (*release.Service, tags.OrderPolicy, string, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, "", "", err
		}
		cfg = loaded
	}

	logger := zap.NewNop()
	if opts.verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return nil, "", "", fmt.Errorf("initializing logger: %w", err)
		}
	}

	order := cfg.Diff.Order
	if cmd.Flags().Changed("order") {
		order = opts.order
	}
	policy, err := tags.ParseOrderPolicy(order)
	if err != nil {
		return nil, "", "", err
	}
	if w := policy.Warning(); w != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), color.YellowString("warning: %s", w))
	}

	prefix := cfg.Diff.TagPrefix
	if cmd.Flags().Changed("tag-prefix") {
		prefix = opts.tagPrefix
	}
	if !cmd.Flags().Changed("timeout") {
		opts.timeout = cfg.Diff.Timeout.Std()
	}

	svc := release.NewService(logger)
	svc.Excludes = cfg.Diff.Excludes
	return svc, policy, prefix, nil
}

func commandContext(opts *options) (context.Context, context.CancelFunc) {
	if opts.timeout > 0 {
		return context.WithTimeout(context.Background(), opts.timeout)
	}
	return context.WithCancel(context.Background())
}

func runDiff(cmd *cobra.Command, opts *options) error {
	svc, policy, prefix, err := setup(cmd, opts)
	if err != nil {
		return err
	}

	req := release.Request{
		RepoPath:  opts.path,
		Base:      opts.base,
		Head:      opts.head,
		Component: opts.component,
		TagPrefix: prefix,
		Order:     policy,
		Title:     opts.title,
	}

	compute := func() error {
		ctx, cancel := commandContext(opts)
		defer cancel()

		title, text, err := diffOnce(ctx, svc, opts.server, req)
		if err != nil {
			return err
		}
		return emit(cmd, opts, title, text)
	}

	if err := compute(); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}

	w, err := watch.New(opts.path)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() { errs <- w.Run(ctx) }()

	fmt.Fprintln(cmd.ErrOrStderr(), "watching for new tags, press Ctrl-C to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case <-w.Changes():
			if err := compute(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), color.RedString("error: %v", err))
			}
		}
	}
}

func diffOnce(ctx context.Context, svc *release.Service, server string, req release.Request) (string, string, error) {
	if server == "" {
		res, err := svc.Compute(ctx, req)
		if err != nil {
			return "", "", err
		}
		return res.Title, res.Text, nil
	}

	report, err := client.New(server).CreateDiff(ctx, types.DiffRequest{
		Repository: req.RepoPath,
		Base:       req.Base,
		Head:       req.Head,
		Component:  req.Component,
		TagPrefix:  req.TagPrefix,
		Order:      string(req.Order),
		Title:      req.Title,
	})
	if err != nil {
		return "", "", err
	}
	return report.Title, report.Text, nil
}

func emit(cmd *cobra.Command, opts *options, title, text string) error {
	if opts.output != "" {
		if err := os.WriteFile(opts.output, []byte(text), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", opts.output, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s written to %s\n", title, opts.output)
		return nil
	}

	switch opts.colorMode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto", "":
	default:
		return fmt.Errorf("unknown color mode %q (want auto, always or never)", opts.colorMode)
	}

	out := cmd.OutOrStdout()
	color.New(color.Bold).Fprintln(out, title)
	if text == "" {
		fmt.Fprintln(out, "no changes")
		return nil
	}
	printColoredDiff(out, text)
	return nil
}

func printColoredDiff(w io.Writer, diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	header := color.New(color.Bold)

	lines := strings.Split(strings.TrimSuffix(diff, "\n"), "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "diff --git"),
			strings.HasPrefix(line, "+++ "),
			strings.HasPrefix(line, "--- "):
			header.Fprintln(w, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprintln(w, line)
		case strings.HasPrefix(line, "+"):
			added.Fprintln(w, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
