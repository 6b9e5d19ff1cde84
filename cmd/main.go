package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/1F47E/go-geo-tiles/pkg/config"
	"github.com/1F47E/go-geo-tiles/pkg/errors"
	"github.com/1F47E/go-geo-tiles/pkg/logger"
)

// app carries the state shared by all subcommands of one invocation
type app struct {
	configFile string
	format     string
	logLevel   string
	verbose    bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "geotile",
		Short: "Spatiotemporal tile keys for faceted search",
		Long: `Encode coordinates and year ranges into quadtree tile keys, decode keys back
into boxes and intervals, and cluster facet counts into map regions.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { logger.Cleanup() },
	}

	rootCmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Config file (default ./geotile.yaml if present)")
	rootCmd.PersistentFlags().StringVarP(&a.format, "format", "o", "json", "Output format: json or yaml")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output (debug logging)")

	rootCmd.AddCommand(
		a.chronoCmd(),
		a.geoCmd(),
		a.eventCmd(),
		a.isoCmd(),
		a.aggregateCmd(),
		a.indexCmd(),
		a.regionsCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}

// setup loads configuration and initializes the logger
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	switch a.format {
	case "json", "yaml":
	default:
		return errors.WithHint(errors.Newf("unknown output format %q", a.format), "use --format json or --format yaml")
	}

	level := cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.verbose {
		level = "debug"
	}
	return logger.Initialize(jsonLogs(cfg.Log.Format), level)
}

// jsonLogs resolves the log format; auto means JSON unless stderr is a terminal
func jsonLogs(format string) bool {
	switch format {
	case config.FormatJSON:
		return true
	case config.FormatConsole:
		return false
	default:
		fd := os.Stderr.Fd()
		return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	}
}

// print writes v to the command output in the selected format
func (a *app) print(cmd *cobra.Command, v any) error {
	out := cmd.OutOrStdout()
	if a.format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encode json")
}

// readInput reads a file, or stdin when path is empty or "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return data, nil
}

// decodeInput parses JSON or YAML input into v
func decodeInput(data []byte, v any) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		return errors.Wrap(json.Unmarshal(data, v), "parse json input")
	}
	return errors.Wrap(yaml.Unmarshal(data, v), "parse yaml input")
}
