package main

import (
	"fmt"
	"strings"

	"github.com/neurodesk/scriptgen/pkg/generate"
	"github.com/neurodesk/scriptgen/pkg/lint"
	"github.com/neurodesk/scriptgen/pkg/project"
	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"github.com/spf13/cobra"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		contexts   []string
		sets       []string
		output     string
		executable bool
		lintKind   string
	)
	cmd := &cobra.Command{
		Use:   "render [template]",
		Short: "Render a single template to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx, err := project.Build(contexts, sets)
			if err != nil {
				return err
			}
			src, err := a.loader(cmd).Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			engine := tmpl.NewEngine(tmpl.WithLogger(a.log))
			out, err := engine.RenderTemplate(src, ctx)
			if err != nil {
				return &templateError{name: name, err: err}
			}

			kind := lint.Kind(lintKind)
			if lintKind == "auto" {
				kind = lint.Detect(output)
			}
			res, err := lint.Check(kind, out)
			if err != nil {
				return err
			}
			for _, w := range res.Warnings {
				a.log.Warn("lint", "template", name, "warning", w)
			}
			if a.cfg.StrictLint && len(res.Warnings) > 0 {
				return fmt.Errorf("lint: %s", strings.Join(res.Warnings, "; "))
			}

			if output == "" || output == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}
			if err := generate.WriteFile(output, strings.NewReader(out), executable); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			a.log.Debug("wrote output", "path", output)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&contexts, "context", "c", nil, "Context file (.yaml, .yml, .json or .star); repeatable, later files win")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Override a context value as path=value; repeatable")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	cmd.Flags().BoolVar(&executable, "executable", false, "Mark the output file executable (0755)")
	cmd.Flags().StringVar(&lintKind, "lint", "auto", "Lint the result as "+strings.Join(lint.Names(), ", ")+" or auto (from the output name)")
	return cmd
}
