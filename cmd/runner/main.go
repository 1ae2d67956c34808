// Command runner loads a collect plugin, calls it once and prints the
// decoded response.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/reglet-dev/reglet-collect/application/config"
	"github.com/reglet-dev/reglet-collect/application/runner"
	"github.com/reglet-dev/reglet-collect/application/schema"
	"github.com/reglet-dev/reglet-collect/infrastructure/parser"
)

func main() {
	app := kingpin.New("runner", "Call the collect export of a WebAssembly plugin.")
	app.HelpFlag.Short('h')
	addCollectCommand(app)
	addSchemaCommand(app)

	kingpin.MustParse(app.Parse(os.Args[1:]))
}

type collectCommand struct {
	configFile *string
	pluginPath *string
	capability *int32
	logLevel   *string
	verbose    *bool
}

func addCollectCommand(app *kingpin.Application) {
	cmd := &collectCommand{}
	collect := app.Command("collect", "Collect one response from a plugin.").Default().Action(cmd.run)
	cmd.configFile = collect.Flag("config", "YAML configuration file.").Short('c').ExistingFile()
	cmd.pluginPath = collect.Flag("plugin", "Plugin module, overrides plugin.path.").Short('p').String()
	cmd.capability = collect.Flag("capability", "Capability passed to collect, overrides capability.").Int32()
	cmd.logLevel = collect.Flag("log-level", "Log level, overrides log.level.").Enum("debug", "info", "warn", "error")
	cmd.verbose = collect.Flag("verbose", "Print the descriptor and encoded payload.").Short('v').Bool()
}

func (cmd *collectCommand) run(c *kingpin.ParseContext) error {
	cfg, err := cmd.loadConfig(c)
	if err != nil {
		exitWithErr(err)
	}

	logger := newLogger(cfg.Log)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := runner.NewService(logger, os.Stdout, os.Stderr).Collect(ctx, cfg)
	if err != nil {
		exitWithErr(err)
	}

	if *cmd.verbose {
		bold := color.New(color.Bold)
		bold.Println("Response:")
		fmt.Printf("\tplugin: %s, capability: %d, memory: %s\n",
			report.Plugin, report.Capability, humanize.IBytes(uint64(report.MemorySize)))
		fmt.Printf("\tdescriptor: %s at %#x\n", report.Descriptor, report.Address)
		fmt.Printf("\tencoded (%s): %s\n", humanize.Bytes(uint64(len(report.Encoded))), report.Encoded)
		bold.Println("Decoded:")
	}
	fmt.Println(report.Text)
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (cmd *collectCommand) loadConfig(c *kingpin.ParseContext) (*config.RunnerConfig, error) {
	cfg := config.Default()
	if *cmd.configFile != "" {
		loaded, err := parser.NewYamlConfigParser(true).Load(*cmd.configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	for _, el := range c.Elements {
		flag, ok := el.Clause.(*kingpin.FlagClause)
		if !ok {
			continue
		}
		switch flag.Model().Name {
		case "plugin":
			cfg.Plugin.Path = *cmd.pluginPath
		case "capability":
			cfg.Capability = *cmd.capability
		case "log-level":
			cfg.Log.Level = *cmd.logLevel
		}
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func addSchemaCommand(app *kingpin.Application) {
	app.Command("schema", "Print the JSON schema of the configuration file.").Action(func(*kingpin.ParseContext) error {
		out, err := schema.RunnerConfigSchema()
		if err != nil {
			exitWithErr(err)
		}
		fmt.Println(string(out))
		return nil
	})
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func exitWithErr(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "runner: %v\n", err)
	os.Exit(1)
}
