package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilguido/jidl/pkg/config"
	"github.com/ilguido/jidl/pkg/log"
	"github.com/ilguido/jidl/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("jidl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configFile    = fs.String("c", "", "Configuration file path")
		autostart     = fs.Bool("a", false, "Start logging immediately")
		remoteControl = fs.Bool("r", false, "Allow start/stop through IPC")
		watchConfig   = fs.Bool("w", false, "Watch the configuration file and reload while paused")

		logLevel  = fs.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat = fs.String("log-format", "text", "Log format (text, json)")

		showHelp    = fs.Bool("h", false, "Show help")
		showVersion = fs.Bool("v", false, "Show version")
	)

	fs.Usage = func() {
		printUsage(stderr)
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showHelp {
		printUsage(stdout)
		return 0
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}
	if *configFile == "" {
		fmt.Fprintln(stderr, "a configuration file is required (-c)")
		printUsage(stderr)
		return 2
	}

	logCfg := log.DefaultConfig()
	if *logFormat == "json" {
		logCfg.Format = log.FormatJSON
	}
	if level, err := log.ParseLevel(*logLevel); err == nil {
		logCfg.DefaultLevel = level
	}
	lg := log.New(logCfg)
	defer lg.Close()

	boot, err := config.LoadBootstrap(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "error loading configuration: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := config.Build(ctx, boot, *remoteControl, lg)
	cancel()
	if err != nil {
		fmt.Fprintf(stderr, "error loading configuration: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "jidl %s\n", version.Version)
	fmt.Fprintf(stdout, "  Logger: %s (%s sink)\n",
		rt.Logger.Name(), rt.Logger.Sink().Dialect())
	fmt.Fprintf(stdout, "  Connections: %d\n", len(rt.Logger.Connections()))
	if rt.Archiver != nil {
		fmt.Fprintln(stdout, "  Archiving service: set")
	}

	if rt.Server != nil {
		if err := rt.Server.Start(); err != nil {
			fmt.Fprintf(stderr, "error starting IPC server: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "  IPC: listening on %s\n", rt.Server.Addr())
	}

	var watcher *config.Watcher
	if *watchConfig {
		watcher, err = config.NewWatcher(*configFile, lg)
		if err != nil {
			fmt.Fprintf(stderr, "error watching configuration: %v\n", err)
			return 1
		}
		defer watcher.Close()
	}

	// The fatal handler fires when the sink becomes unavailable mid-run;
	// the scheduler has already initiated its own stop by then.
	fatalHandler := func(err error) {
		fmt.Fprintf(stderr, "data logging stopped: %v\n", err)
	}

	if *autostart {
		if err := rt.Logger.Start(fatalHandler); err != nil {
			fmt.Fprintf(stderr, "error starting data logging: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, "Data logging started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	cmdCh := make(chan string)
	go readCommands(stdin, cmdCh)

	changes := make(<-chan string)
	if watcher != nil {
		changes = watcher.Changes()
	}

	fmt.Fprintln(stdout, "Enter [s] to start logging, [p] to pause, [q] to quit.")
	for {
		select {
		case sig := <-sigCh:
			lg.System().Info("shutdown signal received", "signal", sig.String())
			fmt.Fprintln(stdout, "\nShutting down...")
			return shutdown(rt, stderr)

		case path := <-changes:
			if rt.Logger.Running() {
				fmt.Fprintln(stdout, "Configuration changed; pause logging to reload.")
				continue
			}
			next, err := reload(path, *remoteControl, lg)
			if err != nil {
				fmt.Fprintf(stderr, "error reloading configuration: %v\n", err)
				continue
			}
			shutdown(rt, stderr)
			rt = next
			if rt.Server != nil {
				if err := rt.Server.Start(); err != nil {
					fmt.Fprintf(stderr, "error starting IPC server: %v\n", err)
				}
			}
			fmt.Fprintln(stdout, "Configuration reloaded")

		case line, ok := <-cmdCh:
			if !ok {
				// stdin closed; keep serving until a signal arrives.
				cmdCh = nil
				continue
			}
			switch line {
			case "s":
				if err := rt.Logger.Start(fatalHandler); err != nil {
					fmt.Fprintf(stderr, "error starting data logging: %v\n", err)
				} else {
					fmt.Fprintln(stdout, "Data logging started")
				}
			case "p":
				rt.Logger.Stop()
				fmt.Fprintln(stdout, "Data logging paused")
			case "q":
				fmt.Fprintln(stdout, "Shutting down...")
				return shutdown(rt, stderr)
			default:
				fmt.Fprintf(stdout, "Unknown command: %s\n", line)
			}
		}
	}
}

func readCommands(stdin io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(stdin)
	for sc.Scan() {
		line := sc.Text()
		if line != "" {
			out <- line
		}
	}
}

func reload(path string, remoteControl bool, lg *log.Logger) (*config.Runtime, error) {
	boot, err := config.LoadBootstrap(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return config.Build(ctx, boot, remoteControl, lg)
}

func shutdown(rt *config.Runtime, stderr io.Writer) int {
	code := 0
	if rt.Logger.Running() {
		if err := rt.Logger.Stop(); err != nil {
			fmt.Fprintf(stderr, "error stopping data logging: %v\n", err)
			code = 1
		}
	}
	if rt.Server != nil && rt.Server.Started() {
		if err := rt.Server.Stop(); err != nil {
			fmt.Fprintf(stderr, "error stopping IPC server: %v\n", err)
			code = 1
		}
	}
	if rt.Archiver != nil {
		rt.Archiver.Stop()
	}
	if err := rt.Logger.Sink().Close(); err != nil {
		fmt.Fprintf(stderr, "error closing sink: %v\n", err)
		code = 1
	}
	return code
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `jidl - Industrial data logger

Usage:
  jidl -c <file> [options]

Options:
  -c <file>                Configuration file path (required)
  -a                       Start logging immediately
  -r                       Allow start/stop through the IPC server
  -w                       Watch the configuration file and reload while paused

Logging:
  --log-level <level>      Log level: debug, info, warn, error (default: info)
  --log-format <format>    Log format: text, json (default: text)

General:
  -h                       Show help
  -v                       Show version

The configuration file names the sink ([datalogger] section) and the
optional archiving schedule ([dataarchiver] section); connections,
variables and the IPC settings are loaded from the sink's
configuration table.

Interactive commands:
  s   start data logging
  p   pause data logging
  q   quit

Exit Codes:
  0  Success
  1  Runtime error
  2  CLI usage error
`)
}
