package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neurodesk/scriptgen/pkg/generate"
	"github.com/neurodesk/scriptgen/pkg/manifest"
	"github.com/spf13/cobra"
)

func (a *app) manifestPath(flag string) string {
	if flag != "" {
		return flag
	}
	return a.cfg.Manifest
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		manifestFlag string
		contexts     []string
		sets         []string
		dryRun       bool
		check        bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render every target of a manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(a.manifestPath(manifestFlag))
			if err != nil {
				return err
			}
			g := a.generator(cmd, contexts, sets, dryRun || check)
			outputs, err := g.Run(cmd.Context(), m)
			if err != nil {
				return wrapGenerateError(err)
			}
			if check {
				stale, err := generate.Diff(outputs)
				if err != nil {
					return err
				}
				for _, p := range stale {
					fmt.Fprintf(cmd.OutOrStdout(), "stale: %s\n", p)
				}
				if len(stale) > 0 {
					return fmt.Errorf("%d output(s) out of date", len(stale))
				}
				return nil
			}
			for _, out := range outputs {
				switch {
				case out.Skipped:
					fmt.Fprintf(cmd.OutOrStdout(), "skip  %s\n", out.Target)
				case dryRun:
					fmt.Fprintf(cmd.OutOrStdout(), "plan  %s\n", out.Dest)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out.Dest)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Manifest file (default from config, scriptgen.yaml)")
	cmd.Flags().StringArrayVarP(&contexts, "context", "c", nil, "Extra context file loaded after the manifest's; repeatable")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override a context value as path=value; repeatable")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Render and lint without writing")
	cmd.Flags().BoolVar(&check, "check", false, "Fail if any output on disk differs from what would be generated")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		manifestFlag string
		contexts     []string
		sets         []string
		debounce     time.Duration
		ignore       []string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate a manifest whenever its inputs change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g := a.generator(cmd, contexts, sets, false)
			return g.Watch(ctx, a.manifestPath(manifestFlag), generate.WatchOptions{
				Debounce: debounce,
				Ignore:   ignore,
			})
		},
	}
	cmd.Flags().StringVarP(&manifestFlag, "manifest", "m", "", "Manifest file (default from config, scriptgen.yaml)")
	cmd.Flags().StringArrayVarP(&contexts, "context", "c", nil, "Extra context file loaded after the manifest's; repeatable")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override a context value as path=value; repeatable")
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Quiet period before regenerating")
	cmd.Flags().StringArrayVar(&ignore, "ignore", nil, "Doublestar pattern to ignore, relative to the manifest directory; repeatable")
	return cmd
}
