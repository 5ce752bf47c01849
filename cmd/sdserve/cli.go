package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"sdserve/internal/config"
)

// newRootCmd builds the command tree. The root command runs the server.
func newRootCmd() *cobra.Command {
	var configPath string
	def := config.Defaults()

	root := &cobra.Command{
		Use:           "sdserve",
		Short:         "Serve Stable Diffusion text-to-image generation over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, src, err := resolveConfig(cmd, configPath, os.LookupEnv)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			log.Info().Str("config", lo.Ternary(src != "", src, "defaults")).Str("addr", cfg.Addr()).
				Str("backend", cfg.BackendURL).Msg("starting sdserve")
			return serve(cmd.Context(), cfg, log)
		},
	}

	f := root.Flags()
	f.StringVar(&configPath, "config", "", "Config file (.yaml|.yml|.json|.toml); defaults to SDSERVE_CONFIG or a discovered sdserve.* file")
	f.String("host", def.Host, "Listen host")
	f.Int("port", def.Port, "Listen port (env PORT)")
	f.String("backend-url", def.BackendURL, "Base URL of the AUTOMATIC1111-compatible backend")
	f.String("model", def.Model, "Checkpoint to select at startup (empty keeps the backend's current one)")
	f.Int("connect-timeout", def.ConnectTimeoutSec, "Backend connect timeout in seconds")
	f.Int("request-timeout", def.RequestTimeoutSec, "Backend request timeout in seconds (0 = none)")
	f.Int("load-timeout", def.LoadTimeoutSec, "Pipeline load timeout in seconds (0 = none)")
	f.Int("generate-timeout", def.GenerateTimeoutSec, "Per-request generation timeout in seconds (0 = none)")
	f.String("negative-prompt", def.NegativePrompt, "Negative prompt applied to every generation")
	f.Int("width", def.Width, "Image width in pixels")
	f.Int("height", def.Height, "Image height in pixels")
	f.String("sampler", def.Sampler, "Sampler name (empty uses the backend default)")
	f.Int64("seed", def.Seed, "Fixed seed (0 or negative = random)")
	f.Int64("max-body-bytes", def.MaxBodyBytes, "Maximum request body size in bytes")
	f.Int("shutdown-timeout", def.ShutdownTimeoutSec, "Graceful shutdown timeout in seconds")
	f.Bool("cors", def.CORSEnabled, "Enable CORS")
	f.String("cors-origins", strings.Join(def.CORSOrigins, ","), "Comma-separated allowed origins")
	f.String("cors-methods", strings.Join(def.CORSMethods, ","), "Comma-separated allowed methods")
	f.String("cors-headers", strings.Join(def.CORSHeaders, ","), "Comma-separated allowed headers")
	f.Int("max-queue-depth", def.MaxQueueDepth, "Bound on queued generations; 0 disables admission control")
	f.Int("max-wait", def.MaxWaitSec, "Seconds a queued generation waits before 429")
	f.String("log-level", def.LogLevel, "Log level: debug|info|warn|error|off")
	f.String("log-format", def.LogFormat, "Log format: json|console")
	f.String("events-sink", def.EventsSink, "CloudEvents sink URL for lifecycle events (empty disables)")
	f.String("events-source", def.EventsSource, "CloudEvents source attribute")

	root.AddCommand(newVersionCmd())
	return root
}

// resolveConfig assembles the effective configuration:
// defaults < config file < environment < explicitly set flags.
// It returns the config file used, if any.
func resolveConfig(cmd *cobra.Command, path string, lookup func(string) (string, bool)) (config.Config, string, error) {
	if path == "" {
		if v, ok := lookup(config.EnvConfig); ok && strings.TrimSpace(v) != "" {
			path = strings.TrimSpace(v)
		} else if p, ok := config.Discover(); ok {
			path = p
		}
	}
	cfg := config.Defaults()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, path, fmt.Errorf("load config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, path, err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return cfg, path, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, path, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, path, nil
}

// applyFlags copies flags the user set on the command line into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	strs := map[string]*string{
		"host":            &cfg.Host,
		"backend-url":     &cfg.BackendURL,
		"model":           &cfg.Model,
		"negative-prompt": &cfg.NegativePrompt,
		"sampler":         &cfg.Sampler,
		"log-level":       &cfg.LogLevel,
		"log-format":      &cfg.LogFormat,
		"events-sink":     &cfg.EventsSink,
		"events-source":   &cfg.EventsSource,
	}
	ints := map[string]*int{
		"port":             &cfg.Port,
		"connect-timeout":  &cfg.ConnectTimeoutSec,
		"request-timeout":  &cfg.RequestTimeoutSec,
		"load-timeout":     &cfg.LoadTimeoutSec,
		"generate-timeout": &cfg.GenerateTimeoutSec,
		"width":            &cfg.Width,
		"height":           &cfg.Height,
		"shutdown-timeout": &cfg.ShutdownTimeoutSec,
		"max-queue-depth":  &cfg.MaxQueueDepth,
		"max-wait":         &cfg.MaxWaitSec,
	}
	int64s := map[string]*int64{
		"seed":           &cfg.Seed,
		"max-body-bytes": &cfg.MaxBodyBytes,
	}
	lists := map[string]*[]string{
		"cors-origins": &cfg.CORSOrigins,
		"cors-methods": &cfg.CORSMethods,
		"cors-headers": &cfg.CORSHeaders,
	}

	for name, dst := range strs {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	for name, dst := range ints {
		if fs.Changed(name) {
			v, err := fs.GetInt(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	for name, dst := range int64s {
		if fs.Changed(name) {
			v, err := fs.GetInt64(name)
			if err != nil {
				return err
			}
			*dst = v
		}
	}
	for name, dst := range lists {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			if err != nil {
				return err
			}
			*dst = splitCSV(v)
		}
	}
	if fs.Changed("cors") {
		v, err := fs.GetBool("cors")
		if err != nil {
			return err
		}
		cfg.CORSEnabled = v
	}
	return nil
}

// splitCSV splits a comma-separated list, trimming blanks and dropping empties.
func splitCSV(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string { return strings.TrimSpace(p) })
	out := lo.Filter(parts, func(p string, _ int) bool { return p != "" })
	if len(out) == 0 {
		return nil
	}
	return out
}
