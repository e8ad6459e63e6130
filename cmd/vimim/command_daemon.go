package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	"github.com/hismailbulut/vimim/internal/config"
	"github.com/hismailbulut/vimim/internal/ipc"
	"github.com/hismailbulut/vimim/internal/nvimhost"
	"github.com/hismailbulut/vimim/internal/store"
	"github.com/hismailbulut/vimim/internal/switcher"
	"github.com/hismailbulut/vimim/internal/types"
	"github.com/hismailbulut/vimim/pkg/bench"
	"github.com/hismailbulut/vimim/pkg/logger"
)

const (
	defaultHistoryCount = 20
	listenDisabled      = "-"
)

type daemonOptions struct {
	configPath string
	listen     string
	address    string
	stdio      bool
	logFile    string
	verbose    bool
}

type DaemonCommand struct {
	stderr    io.Writer
	runDaemon func(opts daemonOptions) error
}

func NewDaemonCommand(stderr io.Writer, runDaemon func(opts daemonOptions) error) *DaemonCommand {
	return &DaemonCommand{
		stderr:    stderr,
		runDaemon: runDaemon,
	}
}

func (c *DaemonCommand) Run(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	var opts daemonOptions
	fs.StringVar(&opts.configPath, "config", "", "configuration file")
	fs.StringVar(&opts.listen, "listen", "", "signal server address, \"-\" disables it")
	fs.StringVar(&opts.address, "address", "", "neovim address to attach to")
	fs.BoolVar(&opts.stdio, "stdio", false, "serve neovim through stdin and stdout")
	fs.StringVar(&opts.logFile, "log-file", "", "also write logs to this file")
	fs.BoolVar(&opts.verbose, "verbose", false, "debug logs and command statistics on exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.stdio && opts.address != "" {
		return errors.New("--stdio and --address are exclusive")
	}
	return c.runDaemon(opts)
}

// signalHandler serves the signals of the ipc server.
type signalHandler struct {
	switcher *switcher.Switcher
	config   *config.Store
	history  *store.Store
}

type statusPayload struct {
	State      switcher.State  `json:"state"`
	ConfigPath string          `json:"config_path,omitempty"`
	Commands   []bench.Summary `json:"commands"`
}

func (h *signalHandler) dispatch(name string, args []string) (string, error) {
	switch name {
	case ipc.SignalMode:
		if len(args) == 0 || args[0] == "" {
			h.switcher.OnModeChanged(nil)
		} else {
			h.switcher.OnModeChanged(&switcher.ModeChange{Mode: args[0]})
		}
		return "", nil
	case ipc.SignalKey:
		if len(args) == 0 || args[0] == "" {
			return "", errors.New("KEY requires a key")
		}
		h.switcher.OnKeypress(args[0])
		return "", nil
	case ipc.SignalStatus:
		return encodePayload(statusPayload{
			State:      h.switcher.State(),
			ConfigPath: h.config.Path(),
			Commands:   bench.Results(),
		})
	case ipc.SignalHistory:
		if h.history == nil {
			return "", errors.New("history is disabled")
		}
		n := defaultHistoryCount
		if len(args) > 0 && args[0] != "" {
			var err error
			if n, err = strconv.Atoi(args[0]); err != nil {
				return "", fmt.Errorf("invalid count %q", args[0])
			}
		}
		records, err := h.history.Recent(context.Background(), n)
		if err != nil {
			return "", err
		}
		if records == nil {
			records = []types.CommandRecord{}
		}
		return encodePayload(records)
	case ipc.SignalReload:
		if err := h.config.Reload(); err != nil {
			return "", err
		}
		logger.Log(logger.TRACE, "Configuration reloaded on request")
		return "", nil
	}
	return "", fmt.Errorf("unknown signal %s", name)
}

func encodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runDaemonProcess(opts daemonOptions) error {
	path, err := config.ResolvePath(opts.configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	cfgStore, err := config.Open(path)
	if err != nil {
		return err
	}
	cfg := cfgStore.Current()

	if opts.stdio {
		// stdout belongs to the rpc connection
		logger.SetOutput(os.Stderr)
	}
	level, err := logger.ParseLevel(cfg.Daemon.LogLevel)
	if err != nil {
		logger.Log(logger.WARN, err)
	}
	if opts.verbose {
		level = logger.DEBUG
	}
	logger.SetLevel(level)
	logFile := opts.logFile
	if logFile == "" {
		logFile = cfg.Daemon.LogFile
	}
	if logFile != "" {
		if err := logger.InitFile(logFile); err != nil {
			logger.Log(logger.WARN, "Failed to open log file:", err)
		}
	}
	logger.Log(logger.TRACE, NAME, VERSION, "using configuration", path)

	watcher, err := config.Watch(cfgStore, func(cfg config.Config) {
		if level, err := logger.ParseLevel(cfg.Daemon.LogLevel); err == nil && !opts.verbose {
			logger.SetLevel(level)
		}
	})
	if err != nil {
		logger.Log(logger.WARN, "Configuration changes will not be noticed:", err)
	} else {
		defer watcher.Close()
	}

	dbPath, err := cfg.StateDBPath()
	if err != nil {
		return err
	}
	history, err := store.Open(dbPath, cfg.HistoryLimit())
	if err != nil {
		return err
	}
	defer history.Close()

	windows := runtime.GOOS == "windows"
	runner := switcher.ShellRunner{Windows: windows, Timeout: cfg.CommandTimeout()}
	sw := switcher.New(cfgStore, runner, switcher.WithPlatform(windows), switcher.WithRecorder(history))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Daemon.RestoreCache {
		cache, err := history.LoadCache(ctx)
		if err != nil {
			logger.Log(logger.WARN, "Failed to load im cache:", err)
		} else {
			sw.Restore(cache)
		}
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sw.Run(ctx)
	}()

	handler := &signalHandler{switcher: sw, config: cfgStore, history: history}
	listen := opts.listen
	if listen == "" {
		listen = cfg.ListenAddress()
	}
	var server *ipc.Server
	if listen != listenDisabled {
		server, err = ipc.Listen(listen, handler.dispatch)
		if err != nil {
			// Every neovim instance starts its own job, only the first one
			// gets the address.
			if !opts.stdio {
				stop()
				<-stopped
				return fmt.Errorf("listen on %s: %w", listen, err)
			}
			logger.Log(logger.WARN, "Signal server disabled:", err)
		}
	}

	var hostDone <-chan struct{}
	address := opts.address
	if address == "" && !opts.stdio {
		address = cfg.Daemon.NvimAddress
		if address == "" {
			address = os.Getenv("NVIM")
		}
	}
	var host *nvimhost.Host
	if opts.stdio || address != "" {
		host, err = nvimhost.Connect(address, sw, nvimhost.Options{
			Stdio:   opts.stdio,
			Store:   cfgStore,
			Name:    NAME,
			Version: VERSION,
		})
		if err != nil {
			if server != nil {
				server.Close()
			}
			stop()
			<-stopped
			return err
		}
		hostDone = host.Done()
	}

	select {
	case <-ctx.Done():
		logger.Log(logger.DEBUG, "Interrupted")
	case <-hostDone:
		logger.Log(logger.DEBUG, "Neovim left")
	}

	if server != nil {
		server.Close()
	}
	if host != nil {
		host.Close()
	}
	stop()
	<-stopped
	sw.Wait()

	if err := history.SaveCache(context.Background(), sw.State().Cache()); err != nil {
		logger.Log(logger.WARN, "Failed to save im cache:", err)
	}
	if opts.verbose {
		bench.PrintResults(os.Stderr)
	}
	logger.Log(logger.TRACE, NAME, "stopped")
	return nil
}
