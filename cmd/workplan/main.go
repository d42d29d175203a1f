// Package main provides the workplan binary: it loads an HCL program of
// deferred task calls, constructs the static dependency graph and renders
// it for an external workflow engine.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vk/workplan/construct"
	"github.com/vk/workplan/program"
	"github.com/vk/workplan/render"
	"github.com/vk/workplan/render/cwl"
	"github.com/vk/workplan/render/grid"
)

const (
	version = "0.1.0"
	appName = "workplan"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Construct and render static workflow graphs",
		Long: `Workplan converts a declarative program of deferred task calls into a
static dependency graph and renders it for an external workflow engine.

Programs are HCL files declaring tasks, parameters and calls; nothing in
them ever executes here. Rendering targets a CWL-like YAML structure or
an HCL grid of step blocks.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel, logFormat)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")

	cmd.AddCommand(renderCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, version)
		},
	})
	return cmd
}

func renderCmd() *cobra.Command {
	var (
		format      string
		output      string
		flatten     bool
		simplifyIDs bool
		pretty      bool
	)

	cmd := &cobra.Command{
		Use:   "render <program.hcl> [more.hcl...]",
		Short: "Construct a program's graph and render it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args, format, output, flatten, simplifyIDs, pretty)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or grid")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file; '-' for stdout, '%' expands to the document name")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "Inline all subworkflows into the parent graph")
	cmd.Flags().BoolVar(&simplifyIDs, "simplify-ids", false, "Renumber step ids to short sequential names")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Wider indentation for structured output")
	return cmd
}

func runRender(cmd *cobra.Command, paths []string, format, output string, flatten, simplifyIDs, pretty bool) error {
	prog, err := program.NewLoader().LoadFiles(paths...)
	if err != nil {
		return fmt.Errorf("load program: %w", err)
	}

	var opts []construct.Option
	if flatten {
		opts = append(opts, construct.FlattenAllNested())
	}
	if simplifyIDs {
		opts = append(opts, construct.SimplifyIDs())
	}
	wf, err := prog.Construct(opts...)
	if err != nil {
		return fmt.Errorf("construct: %w", err)
	}
	slog.Debug("graph constructed", "steps", len(wf.Steps()), "tasks", len(wf.TaskNames()))

	renderer, err := rendererFor(format)
	if err != nil {
		return err
	}
	call, err := render.Select(renderer, pretty)
	if err != nil {
		return err
	}
	docs, err := call(wf, render.MergeConfig(renderer, nil))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return render.Write(docs, output, cmd.OutOrStdout())
}

func rendererFor(format string) (render.BaseRenderer, error) {
	switch format {
	case "yaml", "cwl":
		return cwl.Renderer{}, nil
	case "grid", "hcl":
		return grid.Renderer{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q; expected yaml or grid", format)
	}
}

func configureLogging(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
