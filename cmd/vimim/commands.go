package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hismailbulut/vimim/internal/config"
	"github.com/hismailbulut/vimim/internal/ipc"
)

const dialTimeout = 2 * time.Second

type commandRunner interface {
	Run(args []string) error
}

// signalClient is the part of ipc.Client the commands use.
type signalClient interface {
	Send(signal string, args ...string) (string, error)
	Close() error
}

type clientFactory func(address string) (signalClient, error)

type commandWiring struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
	runDaemon func(opts daemonOptions) error
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:    stdout,
		stderr:    stderr,
		newClient: dialSignalServer,
		runDaemon: runDaemonProcess,
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"daemon":  NewDaemonCommand(wiring.stderr, wiring.runDaemon),
		"send":    NewSendCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"status":  NewStatusCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"history": NewHistoryCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"config":  NewConfigCommand(wiring.stdout, wiring.stderr),
	}
}

func dialSignalServer(address string) (signalClient, error) {
	client, err := ipc.Dial(address, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("daemon is not running at %s: %w", address, err)
	}
	return client, nil
}

// daemonAddress returns address, or the listen address of the configuration
// at configPath when address is empty.
func daemonAddress(configPath, address string) (string, error) {
	if strings.TrimSpace(address) != "" {
		return address, nil
	}
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return "", err
	}
	return cfg.ListenAddress(), nil
}

func exitOnErr(label string, err error, stderr io.Writer) {
	if err == nil {
		return
	}
	fmt.Fprintf(stderr, "%s error: %v\n", label, err)
	os.Exit(1)
}
