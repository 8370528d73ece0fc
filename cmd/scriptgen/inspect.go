package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [template...]",
		Short: "Parse templates and list the names they reference",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := a.loader(cmd)
			var failed []error
			for _, name := range args {
				src, err := loader.Load(cmd.Context(), name)
				if err != nil {
					return err
				}
				tpl, err := tmpl.Compile(src)
				if err != nil {
					failed = append(failed, &templateError{name: name, err: err})
					continue
				}
				refs := tmpl.References(tpl.Root)
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
				printNames(cmd, "vars", refs.Vars)
				printNames(cmd, "flags", refs.Flags)
				printNames(cmd, "arrays", refs.Arrays)
			}
			return errors.Join(failed...)
		},
	}
}

func printNames(cmd *cobra.Command, label string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", label, strings.Join(names, ", "))
}

func newInspectCmd(a *app) *cobra.Command {
	var tokens bool
	cmd := &cobra.Command{
		Use:   "inspect [template]",
		Short: "Print the token stream or syntax tree of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			src, err := a.loader(cmd).Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			toks, err := tmpl.Lex(src)
			if err != nil {
				return &templateError{name: name, err: err}
			}
			if tokens {
				for _, tok := range toks {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%q\n", tok.Pos, tok.Kind, tok.Tag())
				}
				return nil
			}
			root, err := tmpl.Parse(toks)
			if err != nil {
				return &templateError{name: name, err: err}
			}
			fmt.Fprint(cmd.OutOrStdout(), tmpl.Pretty(root))
			return nil
		},
	}
	cmd.Flags().BoolVar(&tokens, "tokens", false, "Print tokens instead of the syntax tree")
	return cmd
}
