package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/neurodesk/scriptgen/pkg/generate"
	"github.com/neurodesk/scriptgen/pkg/netcache"
	"github.com/neurodesk/scriptgen/pkg/source"
	"github.com/neurodesk/scriptgen/pkg/tmpl"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "scriptgen.config.yaml"

type scriptgenConfig struct {
	Manifest     string   `yaml:"manifest,omitempty"`
	TemplateDirs []string `yaml:"template_dirs,omitempty"`
	HTTPCacheDir string   `yaml:"http_cache_dir,omitempty"`
	StrictLint   bool     `yaml:"strict_lint,omitempty"`
}

func defaultConfig() scriptgenConfig {
	cacheDir := ".scriptgen-cache"
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, "scriptgen")
	}
	return scriptgenConfig{
		Manifest:     "scriptgen.yaml",
		HTTPCacheDir: cacheDir,
	}
}

// loadConfig overlays the file at path onto the defaults. A missing file is
// only an error when the user named it explicitly.
func (c *scriptgenConfig) loadConfig(path string, explicit bool) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("decoding config file: %w", err)
	}

	// Relative directories in the config are relative to the config file.
	base := filepath.Dir(path)
	for i, dir := range c.TemplateDirs {
		if !filepath.IsAbs(dir) {
			c.TemplateDirs[i] = filepath.Join(base, dir)
		}
	}
	if c.HTTPCacheDir != "" && !filepath.IsAbs(c.HTTPCacheDir) {
		c.HTTPCacheDir = filepath.Join(base, c.HTTPCacheDir)
	}
	return nil
}

type app struct {
	configPath string
	verbose    bool
	cfg        scriptgenConfig
	log        *slog.Logger
}

// loader resolves template names from the configured directories and
// URLs. Downloads report progress on stderr in verbose mode.
func (a *app) loader(cmd *cobra.Command) source.Loader {
	cache := netcache.New(a.cfg.HTTPCacheDir)
	if a.verbose {
		cache.Progress = cmd.ErrOrStderr()
	}
	return source.New(a.cfg.TemplateDirs, cache)
}

func (a *app) generator(cmd *cobra.Command, extra, sets []string, dryRun bool) *generate.Generator {
	return generate.New(generate.Options{
		Loader:       a.loader(cmd),
		Engine:       tmpl.NewEngine(tmpl.WithLogger(a.log)),
		Logger:       a.log,
		ExtraContext: extra,
		Sets:         sets,
		StrictLint:   a.cfg.StrictLint,
		DryRun:       dryRun,
	})
}

// templateError prints engine errors as name:line:col: stage: message.
type templateError struct {
	name string
	err  error
}

func (e *templateError) Error() string {
	if te, ok := tmpl.AsError(e.err); ok {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.name, te.Pos.Line, te.Pos.Column, te.Stage, te.Msg)
	}
	return fmt.Sprintf("%s: %v", e.name, e.err)
}

func (e *templateError) Unwrap() error { return e.err }

// wrapGenerateError rewrites engine failures inside a run to point at the
// offending template.
func wrapGenerateError(err error) error {
	var ge *generate.Error
	if errors.As(err, &ge) {
		if _, ok := tmpl.AsError(ge.Err); ok {
			return &templateError{name: ge.Template, err: ge.Err}
		}
	}
	return err
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "scriptgen",
		Short:         "Render project scripts and configuration files from templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(a.log)

			a.cfg = defaultConfig()
			if err := a.cfg.loadConfig(a.configPath, cmd.Flags().Changed("config")); err != nil {
				return fmt.Errorf("loading config %s: %w", a.configPath, err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", defaultConfigPath, "Path to scriptgen configuration file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(
		newRenderCmd(a),
		newGenerateCmd(a),
		newWatchCmd(a),
		newCheckCmd(a),
		newInspectCmd(a),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
