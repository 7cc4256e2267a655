// Command rollup is a thin CLI boundary: a merged options object plus zero
// or more output-option objects passed to the programmatic API, with error
// propagation and exit codes handled entirely at this layer. All
// engineering depth lives in pkg/api and below; this file only parses
// flags, loads a config file, and prints diagnostics.
//
// Flag parsing uses github.com/spf13/cobra for the command tree and
// github.com/spf13/viper + gopkg.in/yaml.v3 for rollup.config.yaml loading,
// rather than a hand-rolled flag parser.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rollup-go/rollup/internal/exitcode"
	"github.com/rollup-go/rollup/pkg/api"
)

// fileConfig is the shape of rollup.config.yaml/.json that viper
// decodes into — the config-file equivalent of the InputOptions/
// OutputOptions pair, flattened for a static file format (no functions:
// External/ManualChunks/Interop stay Go-API-only concerns, set
// programmatically, not from a config file).
type fileConfig struct {
	Input  []string `mapstructure:"input" yaml:"input"`
	Output struct {
		Dir             string `mapstructure:"dir" yaml:"dir,omitempty"`
		Format          string `mapstructure:"format" yaml:"format,omitempty"`
		EntryFileNames  string `mapstructure:"entryFileNames" yaml:"entryFileNames,omitempty"`
		ChunkFileNames  string `mapstructure:"chunkFileNames" yaml:"chunkFileNames,omitempty"`
		AssetFileNames  string `mapstructure:"assetFileNames" yaml:"assetFileNames,omitempty"`
		Sourcemap       bool   `mapstructure:"sourcemap" yaml:"sourcemap,omitempty"`
		PreserveModules bool   `mapstructure:"preserveModules" yaml:"preserveModules,omitempty"`
	} `mapstructure:"output" yaml:"output"`
}

func main() {
	exitcode.Exit(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool
	var printConfig bool

	root := &cobra.Command{
		Use:   "rollup",
		Short: "Bundle a JavaScript module graph into one or more output chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(verbose)
			if printConfig {
				return printEffectiveConfig(cmd, configPath, args)
			}
			return runBuild(cmd, configPath, args)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "rollup.config.yaml", "path to the config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	root.Flags().StringSlice("input", nil, "entry module ids (overrides the config file's input list)")
	root.Flags().String("dir", "", "output directory (overrides the config file's output.dir)")
	root.Flags().String("format", "", "output format: es|cjs|amd|umd|iife|system (overrides the config file)")
	root.Flags().BoolVar(&printConfig, "print-config", false, "print the effective merged configuration as YAML and exit")

	return root
}

// printEffectiveConfig dumps the config-file + flag merge result, so a
// user can see what a build would actually run with before running it.
func printEffectiveConfig(cmd *cobra.Command, configPath string, extraInputs []string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	if len(extraInputs) > 0 {
		cfg.Input = extraInputs
	}
	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return exitcode.Set(err, 1)
	}
	cmd.Print(string(encoded))
	return nil
}

// loadConfig reads and decodes the config file, tolerating a missing
// file (all settings then come from flags and defaults), then applies the
// --input/--format/--dir flag overrides.
func loadConfig(cmd *cobra.Command, configPath string) (fileConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	var cfg fileConfig
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return cfg, exitcode.Set(fmt.Errorf("reading %s: %w", configPath, err), 1)
		}
		log.Warn().Str("path", configPath).Msg("no config file found, using defaults")
	} else if err := v.Unmarshal(&cfg); err != nil {
		return cfg, exitcode.Set(fmt.Errorf("parsing %s: %w", configPath, err), 1)
	}
	if in, _ := cmd.Flags().GetStringSlice("input"); len(in) > 0 {
		cfg.Input = in
	}
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		cfg.Output.Format = f
	}
	if d, _ := cmd.Flags().GetString("dir"); d != "" {
		cfg.Output.Dir = d
	}
	return cfg, nil
}

func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
}

func runBuild(cmd *cobra.Command, configPath string, extraInputs []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}

	inputs := cfg.Input
	if len(extraInputs) > 0 {
		inputs = extraInputs
	}
	if len(inputs) == 0 {
		return exitcode.Set(fmt.Errorf("no input modules: pass --input or set input in %s", configPath), 1)
	}

	log.Info().Strs("input", inputs).Msg("building")

	bundle, err := api.Rollup(ctx, api.InputOptions{Input: inputs})
	if err != nil {
		return exitcode.Set(err, 1)
	}
	defer bundle.Close()

	for _, w := range bundle.Warnings() {
		log.Warn().Str("code", string(w.Code)).Msg(w.Text)
	}

	out := api.DefaultOutputOptions()
	if f := parseFormat(cfg.Output.Format); f != nil {
		out.Format = *f
	}
	if cfg.Output.EntryFileNames != "" {
		out.EntryFileNames = cfg.Output.EntryFileNames
	}
	if cfg.Output.ChunkFileNames != "" {
		out.ChunkFileNames = cfg.Output.ChunkFileNames
	}
	if cfg.Output.AssetFileNames != "" {
		out.AssetFileNames = cfg.Output.AssetFileNames
	}
	out.Sourcemap = cfg.Output.Sourcemap
	out.PreserveModules = cfg.Output.PreserveModules

	dir := cfg.Output.Dir
	if dir == "" {
		dir = "dist"
	}

	result, err := bundle.Write(ctx, out, dir)
	if err != nil {
		return exitcode.Set(err, 1)
	}

	for _, o := range result.Output {
		log.Info().Str("type", o.Type).Str("fileName", o.FileName).Msg("wrote")
	}
	return nil
}

func parseFormat(s string) *api.Format {
	var f api.Format
	switch strings.ToLower(s) {
	case "":
		return nil
	case "es", "esm", "module":
		f = api.FormatES
	case "cjs", "commonjs":
		f = api.FormatCJS
	case "amd":
		f = api.FormatAMD
	case "umd":
		f = api.FormatUMD
	case "iife":
		f = api.FormatIIFE
	case "system", "systemjs":
		f = api.FormatSystem
	default:
		return nil
	}
	return &f
}
