// Package main is the entry point for the regcomp register completion source.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/dshills/regcomp/internal/config"
	"github.com/dshills/regcomp/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Run modes.
const (
	modeNvim    = "nvim"
	modeJSONRPC = "jsonrpc"
	modePreview = "preview"
	modeLua     = "lua"
)

type options struct {
	Mode       string
	ConfigPath string
	LogLevel   string
	LogFile    string
	Registers  string
	Script     string
	Manifest   string
	NextInput  string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	// The watcher starts before the logger exists; reloads reach the
	// logger through this pointer.
	var logRef atomic.Pointer[logging.Logger]
	onChange := func(c config.Config) {
		if l := logRef.Load(); l != nil && opts.LogLevel == "" {
			l.SetLevel(c.LogLevel())
		}
	}

	cfg, watcher, err := loadConfig(opts, onChange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if watcher != nil {
		defer watcher.Close()
	}

	log, closeLog, err := newLogger(cfg, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open log: %v\n", err)
		return 1
	}
	defer closeLog()
	logRef.Store(log)

	params := func() config.Params { return cfg.Source }
	if watcher != nil {
		params = func() config.Params { return watcher.Current().Source }
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Debug("starting in %s mode", opts.Mode)

	switch opts.Mode {
	case modeNvim:
		err = runNvim(ctx, opts, params, log)
	case modeJSONRPC:
		err = runJSONRPC(ctx, params, log)
	case modePreview:
		err = runPreview(ctx, opts, cfg, params, log)
	case modeLua:
		err = runLua(ctx, opts, cfg, params, log)
	}
	if err != nil && ctx.Err() == nil {
		log.Error("%s mode failed: %v", opts.Mode, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showSchema bool

	flag.StringVar(&opts.Mode, "mode", modeNvim, "Front end (nvim, jsonrpc, preview, lua)")
	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write logs to this file instead of stderr")
	flag.StringVar(&opts.Registers, "registers", "", "Register fixture (TOML) for preview and lua modes")
	flag.StringVar(&opts.Script, "script", "", "Lua script to run in lua mode")
	flag.StringVar(&opts.Manifest, "manifest", "", "Print the Neovim plugin manifest for `host` and exit")
	flag.StringVar(&opts.NextInput, "next-input", "", "Text after the cursor in preview mode")
	flag.BoolVar(&showSchema, "schema", false, "Print the configuration JSON schema")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "regcomp - register completion source\n\n")
		fmt.Fprintf(os.Stderr, "Usage: regcomp [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  regcomp                              Run as a Neovim remote plugin\n")
		fmt.Fprintf(os.Stderr, "  regcomp -mode jsonrpc                Serve JSON-RPC on stdio\n")
		fmt.Fprintf(os.Stderr, "  regcomp -mode preview -registers r.toml\n")
		fmt.Fprintf(os.Stderr, "  regcomp -mode lua -registers r.toml -script demo.lua\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("regcomp %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if showSchema {
		data, err := config.SchemaJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		os.Exit(0)
	}

	switch opts.Mode {
	case modeNvim, modeJSONRPC, modePreview, modeLua:
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid mode %q (must be nvim, jsonrpc, preview, or lua)\n", opts.Mode)
		os.Exit(1)
	}

	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	if opts.Mode == modeLua && opts.Script == "" {
		fmt.Fprintf(os.Stderr, "Error: lua mode needs -script\n")
		os.Exit(1)
	}

	return opts
}

// loadConfig loads the configuration. With -config the file is watched;
// later passes see edits and onChange runs after each reload.
func loadConfig(opts options, onChange func(config.Config)) (config.Config, *config.Watcher, error) {
	loader := config.NewLoader()
	if opts.ConfigPath == "" {
		cfg, err := loader.Load("")
		return cfg, nil, err
	}
	w, err := config.NewWatcher(opts.ConfigPath, loader, config.WithOnChange(onChange))
	if err != nil {
		return config.Config{}, nil, err
	}
	return w.Current(), w, nil
}

// newLogger builds the process logger. Stdout carries RPC traffic in the
// nvim and jsonrpc modes, so logs never go there.
func newLogger(cfg config.Config, opts options) (*logging.Logger, func(), error) {
	level := cfg.LogLevel()
	if opts.LogLevel != "" {
		level = logging.ParseLogLevel(opts.LogLevel)
	}

	path := cfg.Log.File
	if opts.LogFile != "" {
		path = opts.LogFile
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeFn = func() { _ = f.Close() }
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Output = out
	return logging.New(lc), closeFn, nil
}
